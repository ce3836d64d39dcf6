package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waiter/internal/clock"
	"github.com/smallbiznis/waiter/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

// Resolve finds the single product for the lookup triple. A duplicated
// catalog entry is a hard failure, a missing one is soft.
func (s *Service) Resolve(ctx context.Context, db *gorm.DB, name, service, regionID string) (*domain.Product, error) {
	items, err := s.repo.FindByLookup(ctx, s.conn(db), name, service, regionID, 2)
	if err != nil {
		return nil, err
	}

	switch len(items) {
	case 0:
		s.log.Warn("product not found",
			zap.String("product_name", name),
			zap.String("service", service),
			zap.String("region_id", regionID),
		)
		return nil, domain.ErrProductNotFound
	case 1:
		return &items[0], nil
	default:
		s.log.Error("duplicated product",
			zap.String("product_name", name),
			zap.String("service", service),
			zap.String("region_id", regionID),
		)
		return nil, domain.ErrDuplicateProduct
	}
}

func (s *Service) Get(ctx context.Context, db *gorm.DB, id int64) (*domain.Product, error) {
	item, err := s.repo.FindByID(ctx, s.conn(db), id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrProductNotFound
	}
	return item, nil
}

// Ensure creates the product or refreshes its price. Used for catalog seeding.
func (s *Service) Ensure(ctx context.Context, req domain.EnsureRequest) (*domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	service := strings.TrimSpace(req.Service)
	if service == "" {
		return nil, domain.ErrInvalidService
	}
	if req.UnitPrice.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}

	var description *string
	if d := strings.TrimSpace(req.Description); d != "" {
		description = &d
	}

	var out *domain.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := s.repo.FindByLookup(ctx, tx, name, service, req.RegionID, 2)
		if err != nil {
			return err
		}
		if len(items) > 1 {
			return domain.ErrDuplicateProduct
		}

		now := s.clock.Now()
		if len(items) == 1 {
			item := items[0]
			if item.UnitPrice.Equal(req.UnitPrice) && equalPtr(item.Description, description) {
				out = &item
				return nil
			}
			item.UnitPrice = req.UnitPrice
			item.Description = description
			item.UpdatedAt = now
			if err := s.repo.UpdatePrice(ctx, tx, &item); err != nil {
				return err
			}
			out = &item
			return nil
		}

		p := &domain.Product{
			ID:          s.genID.Generate().Int64(),
			Name:        name,
			Service:     service,
			RegionID:    req.RegionID,
			UnitPrice:   req.UnitPrice,
			Description: description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Create(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) conn(db *gorm.DB) *gorm.DB {
	if db != nil {
		return db
	}
	return s.db
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
