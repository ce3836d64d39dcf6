package resourcelock

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/waiter/internal/config"
	obsmetrics "github.com/smallbiznis/waiter/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("resource.lock",
	fx.Provide(NewRedisClient),
	fx.Provide(New),
)

// NewRedisClient returns nil when no redis endpoint is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if !cfg.RedisEnabled() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

type Params struct {
	fx.In

	Config  config.Config
	Client  *redis.Client `optional:"true"`
	Metrics *obsmetrics.WorkerMetrics
	Log     *zap.Logger
}

func New(p Params) (Locker, error) {
	if p.Client == nil {
		p.Log.Info("using in-process resource locks")
		return NewLocalLocker(p.Metrics), nil
	}
	p.Log.Info("using redis resource locks", zap.String("addr", p.Config.RedisAddr))
	return NewRedisLocker(p.Client, p.Config.Lock.TTL, p.Config.Lock.RetryBackoff, p.Metrics, p.Log)
}
