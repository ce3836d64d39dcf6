package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service resolves catalog products. Methods taking a db handle run on it so
// lookups can join the caller's transaction; nil falls back to the service
// connection.
type Service interface {
	Resolve(ctx context.Context, db *gorm.DB, name, service, regionID string) (*Product, error)
	Get(ctx context.Context, db *gorm.DB, id int64) (*Product, error)
	Ensure(ctx context.Context, req EnsureRequest) (*Product, error)
}

type EnsureRequest struct {
	Name        string
	Service     string
	RegionID    string
	UnitPrice   decimal.Decimal
	Description string
}

var (
	ErrDuplicateProduct = errors.New("duplicate_product")
	ErrProductNotFound  = errors.New("product_not_found")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidService   = errors.New("invalid_service")
	ErrInvalidPrice     = errors.New("invalid_unit_price")
)
