package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/waiter/internal/clock"
	"github.com/smallbiznis/waiter/internal/master/domain"
	obsmetrics "github.com/smallbiznis/waiter/internal/observability/metrics"
	"github.com/smallbiznis/waiter/internal/resourcelock"
	"github.com/smallbiznis/waiter/pkg/masterclient"
	"github.com/smallbiznis/waiter/pkg/telemetry"
	"github.com/smallbiznis/waiter/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LockKey guards the relay so one process delivers at a time.
const LockKey = "master-relay"

// Sender delivers one order event to the billing master.
type Sender interface {
	SendOrderEvent(ctx context.Context, orderID, idempotencyKey string, event masterclient.OrderEvent) error
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 20
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 10 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	return c
}

// Relay polls the outbox and delivers due events with exponential backoff.
type Relay struct {
	db      *gorm.DB
	repo    domain.Repository
	sender  Sender
	locker  resourcelock.Locker
	clock   clock.Clock
	cfg     Config
	log     *zap.Logger
	metrics *obsmetrics.Metrics
	worker  *obsmetrics.WorkerMetrics
	prom    *telemetry.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Deps struct {
	DB      *gorm.DB
	Repo    domain.Repository
	Sender  Sender
	Locker  resourcelock.Locker
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics
	Worker  *obsmetrics.WorkerMetrics
	Prom    *telemetry.Metrics
}

func New(d Deps, cfg Config) *Relay {
	return &Relay{
		db:      d.DB,
		repo:    d.Repo,
		sender:  d.Sender,
		locker:  d.Locker,
		clock:   d.Clock,
		cfg:     cfg.withDefaults(),
		log:     d.Log.Named("master.relay"),
		metrics: d.Metrics,
		worker:  d.Worker,
		prom:    d.Prom,
	}
}

func (r *Relay) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	r.wg.Add(1)
	go r.loop(ctx)

	r.log.Info("master relay started",
		zap.Int("batch_size", r.cfg.BatchSize),
		zap.Duration("poll_interval", r.cfg.PollInterval),
	)
	return nil
}

func (r *Relay) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("master relay stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.worker.IncRelayError(err)
				r.log.Error("master relay batch failed", zap.Error(err))
			}
		}
	}
}

// RunOnce delivers one batch of due events and returns how many were handled.
// It returns (0, nil) when another relay holds the lock.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	lockCtx, cancel := context.WithTimeout(ctx, r.cfg.PollInterval)
	unlock, err := r.locker.Lock(lockCtx, LockKey)
	cancel()
	if err != nil {
		if errors.Is(err, resourcelock.ErrLockTimeout) && ctx.Err() == nil {
			r.log.Debug("master relay lock busy")
			return 0, nil
		}
		return 0, err
	}
	defer unlock()

	events, err := r.repo.FetchDue(ctx, r.db, r.clock.Now(), r.cfg.MaxAttempts, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	r.worker.SetRelayBatch(len(events))

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := r.deliver(ctx, event); err != nil {
			return 0, err
		}
	}
	return len(events), nil
}

func (r *Relay) deliver(ctx context.Context, event domain.Event) error {
	ctx = correlation.ContextFromMetadata(ctx, event.Payload)
	log := r.log.With(
		zap.String("master_event_id", event.ID.String()),
		zap.String("order_id", event.OrderID.String()),
		zap.String("action", event.Action),
	)

	start := time.Now()
	sendErr := r.sender.SendOrderEvent(ctx, event.OrderID.String(), event.DedupeKey, masterclient.OrderEvent{
		Action:     event.Action,
		ActionTime: event.ActionTime,
		Remarks:    event.Remarks,
		Metadata:   event.Payload,
	})
	elapsed := time.Since(start)
	now := r.clock.Now()

	if sendErr == nil {
		r.prom.RecordMasterDelivery(event.Action, "delivered", elapsed)
		r.metrics.RecordMasterEvent(ctx, event.Action, obsmetrics.RelayResultDelivered)
		r.worker.AddRelayProcessed(obsmetrics.RelayResultDelivered, 1)
		log.Debug("master event delivered", zap.Duration("elapsed", elapsed))
		return r.repo.MarkPublished(ctx, r.db, event.ID, now)
	}

	attempts := event.Attempts + 1
	result := obsmetrics.RelayResultRetried
	next := now.Add(r.backoff(attempts))
	if !masterclient.IsRetryable(sendErr) || attempts >= r.cfg.MaxAttempts {
		result = obsmetrics.RelayResultAbandoned
		if attempts < r.cfg.MaxAttempts {
			attempts = r.cfg.MaxAttempts
		}
		log.Error("master event abandoned", zap.Int("attempts", attempts), zap.Error(sendErr))
	} else {
		log.Warn("master event delivery failed",
			zap.Int("attempts", attempts),
			zap.Time("next_attempt_at", next),
			zap.Error(sendErr),
		)
	}

	r.prom.RecordMasterDelivery(event.Action, result, elapsed)
	r.metrics.RecordMasterEvent(ctx, event.Action, result)
	r.worker.AddRelayProcessed(result, 1)
	r.worker.IncRelayError(sendErr)
	return r.repo.MarkFailed(ctx, r.db, event.ID, attempts, sendErr.Error(), next)
}

// backoff doubles from BaseBackoff per attempt, capped at MaxBackoff.
func (r *Relay) backoff(attempts int) time.Duration {
	delay := r.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= r.cfg.MaxBackoff {
			return r.cfg.MaxBackoff
		}
	}
	return delay
}
