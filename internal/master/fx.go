package master

import (
	"context"

	"github.com/smallbiznis/waiter/internal/clock"
	"github.com/smallbiznis/waiter/internal/config"
	"github.com/smallbiznis/waiter/internal/master/domain"
	"github.com/smallbiznis/waiter/internal/master/relay"
	"github.com/smallbiznis/waiter/internal/master/repository"
	"github.com/smallbiznis/waiter/internal/master/service"
	obsmetrics "github.com/smallbiznis/waiter/internal/observability/metrics"
	"github.com/smallbiznis/waiter/internal/resourcelock"
	"github.com/smallbiznis/waiter/pkg/masterclient"
	"github.com/smallbiznis/waiter/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module queues master notifications. It does not deliver them; add
// RelayModule for that.
var Module = fx.Module("master.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewNotifier),
)

var RelayModule = fx.Module("master.relay",
	fx.Provide(provideClient),
	fx.Provide(provideRelay),
	fx.Invoke(registerRelay),
)

func provideClient(cfg config.Config) *masterclient.Client {
	return masterclient.New(masterclient.ConfigFrom(cfg))
}

type RelayParams struct {
	fx.In

	Config  config.Config
	DB      *gorm.DB
	Repo    domain.Repository
	Client  *masterclient.Client
	Locker  resourcelock.Locker
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics       `optional:"true"`
	Worker  *obsmetrics.WorkerMetrics `optional:"true"`
	Prom    *telemetry.Metrics        `optional:"true"`
}

func provideRelay(p RelayParams) *relay.Relay {
	return relay.New(relay.Deps{
		DB:      p.DB,
		Repo:    p.Repo,
		Sender:  p.Client,
		Locker:  p.Locker,
		Clock:   p.Clock,
		Log:     p.Log,
		Metrics: p.Metrics,
		Worker:  p.Worker,
		Prom:    p.Prom,
	}, relay.Config{
		PollInterval: p.Config.Master.PollInterval,
		BatchSize:    p.Config.Master.BatchSize,
		MaxAttempts:  p.Config.Master.MaxAttempts,
	})
}

func registerRelay(lc fx.Lifecycle, r *relay.Relay, client *masterclient.Client, log *zap.Logger) {
	if !client.Configured() {
		log.Warn("MASTER_URL not set, master events stay queued")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return r.Start(ctx) },
		OnStop:  func(ctx context.Context) error { return r.Stop(ctx) },
	})
}
