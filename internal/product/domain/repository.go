package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Product, error)
	// FindByLookup returns at most limit products matching the lookup triple.
	FindByLookup(ctx context.Context, db *gorm.DB, name, service, regionID string, limit int) ([]Product, error)
	UpdatePrice(ctx context.Context, db *gorm.DB, product *Product) error
}
