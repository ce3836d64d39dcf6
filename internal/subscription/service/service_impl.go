package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/waiter/internal/clock"
	"github.com/smallbiznis/waiter/internal/collection"
	productdomain "github.com/smallbiznis/waiter/internal/product/domain"
	subscriptiondomain "github.com/smallbiznis/waiter/internal/subscription/domain"
	"github.com/smallbiznis/waiter/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     subscriptiondomain.Repository
	products productdomain.Service
}

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       subscriptiondomain.Repository
	Productsvc productdomain.Service
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		log: p.Log.Named("subscription.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		products: p.Productsvc,
	}
}

func (s *Service) CreateSubscription(ctx context.Context, tx *gorm.DB, coll collection.Collection, orderID snowflake.ID, status string) (*subscriptiondomain.Subscription, error) {
	product, err := s.resolve(ctx, tx, coll)
	if err != nil {
		if errors.Is(err, productdomain.ErrProductNotFound) {
			s.log.Warn("subscription skipped, product not found",
				zap.String("resource_id", coll.ResourceID),
				zap.String("product_name", coll.ProductName),
				zap.String("status", status),
			)
			return nil, nil
		}
		return nil, err
	}

	existing, err := s.repo.FindByResourceStatus(ctx, tx, coll.ResourceID, status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", subscriptiondomain.ErrDB, err)
	}
	if existing != nil {
		return s.rebind(ctx, tx, existing, coll, product, orderID)
	}

	now := s.clock.Now()
	sub := &subscriptiondomain.Subscription{
		ID:             s.genID.Generate(),
		OrderID:        orderID,
		ResourceID:     coll.ResourceID,
		ResourceName:   coll.ResourceName,
		ResourceType:   coll.ResourceType,
		ResourceStatus: coll.ResourceStatus,
		ResourceVolume: coll.ResourceVolume,
		ProductID:      product.ID,
		CurrentFee:     decimal.Zero,
		CronTime:       nil,
		Status:         status,
		UserID:         coll.UserID,
		ProjectID:      coll.ProjectID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, tx, sub); err != nil {
		if db.IsDuplicateKeyErr(err) {
			existing, findErr := s.repo.FindByResourceStatus(ctx, tx, coll.ResourceID, status)
			if findErr == nil && existing != nil {
				return s.rebind(ctx, tx, existing, coll, product, orderID)
			}
		}
		s.log.Error("failed to create subscription",
			zap.String("resource_id", coll.ResourceID),
			zap.String("status", status),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", subscriptiondomain.ErrDB, err)
	}

	s.log.Debug("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("order_id", orderID.String()),
		zap.String("resource_id", coll.ResourceID),
		zap.String("status", status),
	)
	return sub, nil
}

// rebind refreshes a reused subscription so that it prices the resource as the
// current event describes it and belongs to the current order.
func (s *Service) rebind(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, coll collection.Collection, product *productdomain.Product, orderID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if sub.OrderID == orderID &&
		sub.ResourceVolume == coll.ResourceVolume &&
		sub.ResourceName == coll.ResourceName &&
		sub.ProductID == product.ID {
		return sub, nil
	}

	sub.OrderID = orderID
	sub.ResourceName = coll.ResourceName
	sub.ResourceStatus = coll.ResourceStatus
	sub.ResourceVolume = coll.ResourceVolume
	sub.ProductID = product.ID
	sub.UserID = coll.UserID
	sub.ProjectID = coll.ProjectID
	sub.UpdatedAt = s.clock.Now()

	if err := s.repo.Rebind(ctx, tx, sub); err != nil {
		s.log.Error("failed to rebind subscription",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("resource_id", coll.ResourceID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", subscriptiondomain.ErrDB, err)
	}

	s.log.Debug("subscription rebound",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("order_id", orderID.String()),
		zap.Int64("volume", sub.ResourceVolume),
	)
	return sub, nil
}

// GetUnitPrice prices the collection against the current catalog.
func (s *Service) GetUnitPrice(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, coll collection.Collection) (decimal.Decimal, error) {
	product, err := s.resolve(ctx, tx, coll)
	if err != nil {
		if errors.Is(err, productdomain.ErrProductNotFound) {
			s.log.Warn("unit price defaults to zero, product not found",
				zap.String("order_id", orderID.String()),
				zap.String("product_name", coll.ProductName),
			)
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return product.UnitPrice.Mul(decimal.NewFromInt(coll.ResourceVolume)), nil
}

// SubscriptionPrice prices an existing subscription with its bound product.
func (s *Service) SubscriptionPrice(ctx context.Context, tx *gorm.DB, sub subscriptiondomain.Subscription) (decimal.Decimal, error) {
	product, err := s.products.Get(ctx, tx, sub.ProductID)
	if err != nil {
		if errors.Is(err, productdomain.ErrProductNotFound) {
			s.log.Warn("subscription product missing",
				zap.String("subscription_id", sub.ID.String()),
				zap.Int64("product_id", sub.ProductID),
			)
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("%w: %w", subscriptiondomain.ErrDB, err)
	}
	return product.UnitPrice.Mul(decimal.NewFromInt(sub.ResourceVolume)), nil
}

func (s *Service) ListByResource(ctx context.Context, tx *gorm.DB, resourceID, status string) ([]subscriptiondomain.Subscription, error) {
	items, err := s.repo.ListByResource(ctx, tx, resourceID, status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", subscriptiondomain.ErrDB, err)
	}
	return items, nil
}

// Resize applies the new quantity to every component of the resource.
func (s *Service) Resize(ctx context.Context, tx *gorm.DB, resourceID string, volume int64) error {
	rows, err := s.repo.UpdateVolume(ctx, tx, resourceID, volume, s.clock.Now())
	if err != nil {
		return fmt.Errorf("%w: %w", subscriptiondomain.ErrDB, err)
	}
	s.log.Debug("subscriptions resized",
		zap.String("resource_id", resourceID),
		zap.Int64("volume", volume),
		zap.Int64("rows", rows),
	)
	return nil
}

func (s *Service) resolve(ctx context.Context, tx *gorm.DB, coll collection.Collection) (*productdomain.Product, error) {
	product, err := s.products.Resolve(ctx, tx, coll.ProductName, coll.Service, coll.RegionID)
	if err == nil {
		return product, nil
	}
	if errors.Is(err, productdomain.ErrProductNotFound) || errors.Is(err, productdomain.ErrDuplicateProduct) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", subscriptiondomain.ErrDB, err)
}
