package migration

import (
	"context"

	"github.com/smallbiznis/waiter/internal/config"
	productdomain "github.com/smallbiznis/waiter/internal/product/domain"
	"github.com/smallbiznis/waiter/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, products productdomain.Service, cfg config.WaiterConfig, log *zap.Logger) error {
		if err := Run(conn); err != nil {
			return err
		}
		return seed.EnsureCatalog(context.Background(), products, cfg, log)
	}),
)
