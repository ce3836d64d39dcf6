package notification

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/smallbiznis/waiter/internal/clock"
	"github.com/smallbiznis/waiter/internal/event"
	"github.com/smallbiznis/waiter/internal/lifecycle"
	obscontext "github.com/smallbiznis/waiter/internal/observability/context"
	"github.com/smallbiznis/waiter/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/waiter/internal/observability/metrics"
	"github.com/smallbiznis/waiter/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/waiter/internal/order/domain"
	productdomain "github.com/smallbiznis/waiter/internal/product/domain"
	"github.com/smallbiznis/waiter/pkg/telemetry"
	"github.com/smallbiznis/waiter/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Result string

const (
	ResultProcessed Result = "processed"
	ResultIgnored   Result = "ignored"
	ResultDropped   Result = "dropped"
	ResultFailed    Result = "failed"
)

// Dispatcher hands each notification to its route exactly once and reports
// whether the transport should redeliver it. Only ResultFailed asks for
// redelivery.
type Dispatcher struct {
	registry *Registry
	clock    clock.Clock
	log      *zap.Logger
	metrics  *obsmetrics.Metrics
	prom     *telemetry.Metrics
	tracer   trace.Tracer
}

type Params struct {
	fx.In

	Registry *Registry
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *obsmetrics.Metrics `optional:"true"`
	Prom     *telemetry.Metrics  `optional:"true"`
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{
		registry: p.Registry,
		clock:    p.Clock,
		log:      p.Log.Named("notification.dispatcher"),
		metrics:  p.Metrics,
		prom:     p.Prom,
		tracer:   otel.Tracer("waiter/notification"),
	}
}

// Dispatch decodes raw and applies it. An empty eventType is taken from the
// envelope. The returned error is non-nil only for ResultFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, raw []byte) (Result, error) {
	start := time.Now()
	ctx, _ = correlation.EnsureCorrelationID(ctx)

	var (
		env    event.Envelope
		envErr error
	)
	if eventType == "" {
		env, envErr = event.DecodeEnvelope(raw)
		if envErr != nil {
			return d.finish(ctx, eventType, ResultDropped, envErr, start), nil
		}
		eventType = env.EventType
	}
	ctx = obscontext.WithEventType(ctx, eventType)

	route, err := d.registry.Lookup(eventType)
	if err != nil {
		logger.WithContext(ctx, d.log).Debug("no route for event type")
		return d.finish(ctx, eventType, ResultIgnored, nil, start), nil
	}

	ctx, span := d.tracer.Start(ctx, "notification.dispatch", trace.WithAttributes(
		attribute.String("waiter.event_type", eventType),
		attribute.String("waiter.family", route.Family),
		attribute.String("waiter.action", route.Action),
	))
	defer span.End()

	if env.EventType == "" {
		env, envErr = event.DecodeEnvelope(raw)
		if envErr != nil {
			return d.finishSpan(ctx, span, eventType, ResultDropped, envErr, start), nil
		}
	}
	if env.MessageID != "" {
		ctx = obscontext.WithMessageID(ctx, env.MessageID)
	}

	res, err := route.Decode(env.Payload, route.ResourceType)
	if err != nil {
		return d.finishSpan(ctx, span, eventType, ResultDropped, err, start), nil
	}
	ctx = obscontext.WithResource(ctx, route.Family, res.ID)

	at, ok := env.Time(d.clock.Now())
	if !ok {
		logger.WithContext(ctx, d.log).Debug("event timestamp missing, using receive time",
			zap.String("timestamp", env.Timestamp),
		)
	}

	err = d.invoke(ctx, route, at, res)
	result := classify(err)
	out := d.finishSpan(ctx, span, eventType, result, err, start)
	if result == ResultFailed {
		return out, err
	}
	return out, nil
}

func (d *Dispatcher) invoke(ctx context.Context, route Route, at time.Time, res event.Resource) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return route.Handler(ctx, at, res)
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.value)
}

func classify(err error) Result {
	var pe *panicError
	switch {
	case err == nil:
		return ResultProcessed
	case errors.As(err, &pe),
		errors.Is(err, event.ErrMalformedEvent),
		errors.Is(err, productdomain.ErrDuplicateProduct),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, lifecycle.ErrInvalidState):
		return ResultDropped
	default:
		return ResultFailed
	}
}

func (d *Dispatcher) finishSpan(ctx context.Context, span trace.Span, eventType string, result Result, err error, start time.Time) Result {
	span.SetAttributes(attribute.String("waiter.result", string(result)))
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, string(result))
	}
	return d.finish(ctx, eventType, result, err, start)
}

func (d *Dispatcher) finish(ctx context.Context, eventType string, result Result, err error, start time.Time) Result {
	elapsed := time.Since(start)
	log := logger.WithContext(ctx, d.log).With(
		zap.String("result", string(result)),
		zap.Duration("elapsed", elapsed),
	)

	var pe *panicError
	switch {
	case result == ResultProcessed:
		log.Debug("notification processed")
	case result == ResultIgnored:
	case errors.As(err, &pe):
		log.Error("notification handler panicked", zap.Error(err), zap.ByteString("stack", pe.stack))
	case errors.Is(err, orderdomain.ErrOrderNotFound):
		log.Warn("notification dropped", zap.Error(err))
	case result == ResultDropped:
		log.Error("notification dropped", zap.Error(err))
	default:
		log.Error("notification failed", zap.Error(err))
	}

	d.metrics.RecordNotification(ctx, eventType, string(result))
	d.prom.RecordHandler(eventType, string(result), elapsed)
	return result
}
