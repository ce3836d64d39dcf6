package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/waiter/internal/config"
	"github.com/smallbiznis/waiter/internal/notification"
	obsmetrics "github.com/smallbiznis/waiter/internal/observability/metrics"
	"go.uber.org/zap"
)

// Stream message fields.
const (
	FieldEventType = "event_type"
	FieldBody      = "body"
)

// Dispatcher applies one raw notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, raw []byte) (notification.Result, error)
}

type job struct {
	stream string
	msg    redis.XMessage
}

// Consumer reads notification streams through a consumer group. Messages of
// one resource always land on the same worker so they are applied in stream
// order. A failed message is retried in place and blocks its worker until it
// goes through; only messages left behind by a stopped consumer are reclaimed
// after ReclaimIdle.
type Consumer struct {
	client     *redis.Client
	streams    []string
	cfg        config.ConsumerConfig
	dispatcher Dispatcher
	metrics    *obsmetrics.WorkerMetrics
	log        *zap.Logger

	ack func(ctx context.Context, stream string, ids ...string) error

	queues   []chan job
	inflight sync.Map
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(client *redis.Client, streams []string, cfg config.ConsumerConfig, dispatcher Dispatcher, metrics *obsmetrics.WorkerMetrics, log *zap.Logger) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ReclaimIdle <= 0 {
		cfg.ReclaimIdle = time.Minute
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.RetryMaxBackoff < cfg.RetryBackoff {
		cfg.RetryMaxBackoff = cfg.RetryBackoff
	}
	c := &Consumer{
		client:     client,
		streams:    streams,
		cfg:        cfg,
		dispatcher: dispatcher,
		metrics:    metrics,
		log:        log.Named("consumer"),
	}
	c.ack = func(ctx context.Context, stream string, ids ...string) error {
		return c.client.XAck(ctx, stream, c.cfg.Group, ids...).Err()
	}
	return c
}

func (c *Consumer) Start(ctx context.Context) error {
	for _, stream := range c.streams {
		err := c.client.XGroupCreateMkStream(ctx, stream, c.cfg.Group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	c.queues = make([]chan job, c.cfg.Workers)
	for i := range c.queues {
		c.queues[i] = make(chan job, 16)
		c.wg.Add(1)
		go c.work(ctx, c.queues[i])
	}

	c.wg.Add(2)
	go c.readLoop(ctx)
	go c.reclaimLoop(ctx)

	c.log.Info("stream consumer started",
		zap.Strings("streams", c.streams),
		zap.String("group", c.cfg.Group),
		zap.String("consumer", c.cfg.Name),
		zap.Int("workers", c.cfg.Workers),
	)
	return nil
}

func (c *Consumer) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.log.Info("stream consumer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) readLoop(ctx context.Context) {
	defer c.wg.Done()

	args := make([]string, 0, len(c.streams)*2)
	args = append(args, c.streams...)
	for range c.streams {
		args = append(args, ">")
	}

	for ctx.Err() == nil {
		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Name,
			Streams:  args,
			Count:    int64(c.cfg.Workers * 4),
			Block:    c.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.log.Error("failed to read streams", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		for _, stream := range res {
			for _, msg := range stream.Messages {
				c.enqueue(ctx, job{stream: stream.Stream, msg: msg})
			}
		}
	}
}

func (c *Consumer) reclaimLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.ReclaimIdle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, stream := range c.streams {
				c.reclaim(ctx, stream)
			}
		}
	}
}

func (c *Consumer) reclaim(ctx context.Context, stream string) {
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Name,
			MinIdle:  c.cfg.ReclaimIdle,
			Start:    start,
			Count:    50,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("failed to reclaim pending messages", zap.String("stream", stream), zap.Error(err))
			}
			return
		}
		for _, msg := range msgs {
			c.enqueue(ctx, job{stream: stream, msg: msg})
		}
		if next == "0-0" || len(msgs) == 0 {
			return
		}
		start = next
	}
}

// enqueue hands the message to the worker of its resource. A message that is
// already queued or being retried is not queued twice.
func (c *Consumer) enqueue(ctx context.Context, j job) {
	key := j.stream + "/" + j.msg.ID
	if _, loaded := c.inflight.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	q := c.queues[shard(partitionKey(j.msg), len(c.queues))]
	select {
	case q <- j:
	case <-ctx.Done():
		c.inflight.Delete(key)
	}
}

func (c *Consumer) work(ctx context.Context, q <-chan job) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q:
			c.handle(ctx, j.stream, j.msg)
			c.inflight.Delete(j.stream + "/" + j.msg.ID)
		}
	}
}

// handle dispatches one message and acknowledges it. Failures are retried with
// backoff until the dispatcher accepts the message or ctx ends, so later
// messages of the same resource never overtake it.
func (c *Consumer) handle(ctx context.Context, stream string, msg redis.XMessage) {
	log := c.log.With(zap.String("stream", stream), zap.String("stream_id", msg.ID))

	body := stringField(msg.Values, FieldBody)
	if body == "" {
		log.Error("stream message without body, discarding")
		c.metrics.IncConsumerMessage(stream, obsmetrics.ConsumerResultInvalid)
		c.acknowledge(ctx, log, stream, msg.ID)
		return
	}

	eventType := stringField(msg.Values, FieldEventType)
	backoff := c.cfg.RetryBackoff
	for attempt := 1; ; attempt++ {
		result, err := c.dispatcher.Dispatch(ctx, eventType, []byte(body))
		if result != notification.ResultFailed {
			break
		}
		if ctx.Err() != nil {
			log.Warn("message left pending for redelivery", zap.Int("attempt", attempt), zap.Error(err))
			c.metrics.IncConsumerMessage(stream, obsmetrics.ConsumerResultRetained)
			return
		}

		log.Warn("message failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		c.metrics.IncConsumerMessage(stream, obsmetrics.ConsumerResultRetried)
		sleep(ctx, backoff)
		if ctx.Err() != nil {
			c.metrics.IncConsumerMessage(stream, obsmetrics.ConsumerResultRetained)
			return
		}
		backoff *= 2
		if backoff > c.cfg.RetryMaxBackoff {
			backoff = c.cfg.RetryMaxBackoff
		}
	}

	c.metrics.IncConsumerMessage(stream, obsmetrics.ConsumerResultAcked)
	c.acknowledge(ctx, log, stream, msg.ID)
}

func (c *Consumer) acknowledge(ctx context.Context, log *zap.Logger, stream, id string) {
	if err := c.ack(ctx, stream, id); err != nil {
		log.Warn("failed to ack message", zap.Error(err))
	}
}

func stringField(values map[string]interface{}, key string) string {
	switch v := values[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// partitionKey is the resource id of the payload, falling back to the
// stream id when the body cannot be read.
func partitionKey(msg redis.XMessage) string {
	var env struct {
		Payload map[string]json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal([]byte(stringField(msg.Values, FieldBody)), &env); err == nil {
		for _, field := range []string{"share_id", "volume_id", "resource_id"} {
			var id string
			if raw, ok := env.Payload[field]; ok && json.Unmarshal(raw, &id) == nil && id != "" {
				return id
			}
		}
	}
	return msg.ID
}

func shard(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
