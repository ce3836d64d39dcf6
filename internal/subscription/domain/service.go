package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/waiter/internal/collection"
	"gorm.io/gorm"
)

// Service manages subscriptions. The db argument is the caller's transaction.
type Service interface {
	// CreateSubscription returns (nil, nil) when the product does not exist.
	CreateSubscription(ctx context.Context, db *gorm.DB, coll collection.Collection, orderID snowflake.ID, status string) (*Subscription, error)
	GetUnitPrice(ctx context.Context, db *gorm.DB, orderID snowflake.ID, coll collection.Collection) (decimal.Decimal, error)
	SubscriptionPrice(ctx context.Context, db *gorm.DB, sub Subscription) (decimal.Decimal, error)
	ListByResource(ctx context.Context, db *gorm.DB, resourceID, status string) ([]Subscription, error)
	Resize(ctx context.Context, db *gorm.DB, resourceID string, volume int64) error
}

var ErrDB = errors.New("db_error")
