package notification

import (
	"github.com/smallbiznis/waiter/internal/config"
	"github.com/smallbiznis/waiter/internal/lifecycle"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(provideRegistry),
	fx.Provide(NewDispatcher),
)

func provideRegistry(cfg config.WaiterConfig, controllers *lifecycle.Controllers, log *zap.Logger) (*Registry, error) {
	reg, err := BuildRegistry(cfg, controllers)
	if err != nil {
		return nil, err
	}
	log.Named("notification").Info("routes registered", zap.Strings("event_types", reg.EventTypes()))
	return reg, nil
}
