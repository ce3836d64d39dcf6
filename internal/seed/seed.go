package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/waiter/internal/config"
	productdomain "github.com/smallbiznis/waiter/internal/product/domain"
	"go.uber.org/zap"
)

// EnsureCatalog creates or reprices the products listed in the waiter config.
// Seeds without a region land in the configured region.
func EnsureCatalog(ctx context.Context, products productdomain.Service, cfg config.WaiterConfig, log *zap.Logger) error {
	if products == nil {
		return errors.New("seed product service is required")
	}
	log = log.Named("seed")

	for _, item := range cfg.Products {
		price, err := decimal.NewFromString(strings.TrimSpace(item.UnitPrice))
		if err != nil {
			return fmt.Errorf("seed product %q: %w", item.Name, err)
		}
		region := strings.TrimSpace(item.Region)
		if region == "" {
			region = cfg.RegionName
		}

		product, err := products.Ensure(ctx, productdomain.EnsureRequest{
			Name:        item.Name,
			Service:     item.Service,
			RegionID:    region,
			UnitPrice:   price,
			Description: item.Description,
		})
		if err != nil {
			return fmt.Errorf("seed product %q: %w", item.Name, err)
		}
		log.Debug("product ensured",
			zap.Int64("product_id", product.ID),
			zap.String("name", product.Name),
			zap.String("region_id", product.RegionID),
			zap.String("unit_price", product.UnitPrice.String()),
		)
	}

	if len(cfg.Products) > 0 {
		log.Info("catalog seeded", zap.Int("products", len(cfg.Products)))
	}
	return nil
}
