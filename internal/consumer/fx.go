package consumer

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/waiter/internal/config"
	"github.com/smallbiznis/waiter/internal/notification"
	obsmetrics "github.com/smallbiznis/waiter/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("consumer",
	fx.Invoke(register),
)

type Params struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Config     config.Config
	Waiter     config.WaiterConfig
	Client     *redis.Client `optional:"true"`
	Dispatcher *notification.Dispatcher
	Metrics    *obsmetrics.WorkerMetrics `optional:"true"`
	Log        *zap.Logger
}

func register(p Params) {
	if !p.Config.Consumer.Enabled {
		return
	}
	if p.Client == nil {
		p.Log.Warn("CONSUMER_ENABLED is set but REDIS_ADDR is empty, stream consumer not started")
		return
	}
	c := New(p.Client, p.Waiter.StreamNames(), p.Config.Consumer, p.Dispatcher, p.Metrics, p.Log)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return c.Start(ctx) },
		OnStop:  func(ctx context.Context) error { return c.Stop(ctx) },
	})
}
