package pricing

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/waiter/internal/collection"
	"github.com/smallbiznis/waiter/internal/event"
	subscriptiondomain "github.com/smallbiznis/waiter/internal/subscription/domain"
	"gorm.io/gorm"
)

// Extension is one priced component of a resource family.
type Extension interface {
	Name() string
	CreateSubscription(ctx context.Context, tx *gorm.DB, res event.Resource, orderID snowflake.ID, componentType string) (*subscriptiondomain.Subscription, error)
	GetUnitPrice(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, res event.Resource) (decimal.Decimal, error)
}

// ComponentType returns the component type the extension name starts with.
func ComponentType(name string) (string, bool) {
	for _, ct := range subscriptiondomain.ComponentTypes {
		if strings.HasPrefix(name, ct) {
			return ct, true
		}
	}
	return "", false
}

// SizeItem prices a resource by its size against one catalog product.
type SizeItem struct {
	name          string
	ref           collection.ProductRef
	regionID      string
	subscriptions subscriptiondomain.Service
}

func NewSizeItem(name string, ref collection.ProductRef, regionID string, subscriptions subscriptiondomain.Service) *SizeItem {
	return &SizeItem{
		name:          name,
		ref:           ref,
		regionID:      regionID,
		subscriptions: subscriptions,
	}
}

func (i *SizeItem) Name() string { return i.name }

func (i *SizeItem) Collection(res event.Resource) collection.Collection {
	return collection.Build(i.ref, i.regionID, res)
}

func (i *SizeItem) CreateSubscription(ctx context.Context, tx *gorm.DB, res event.Resource, orderID snowflake.ID, componentType string) (*subscriptiondomain.Subscription, error) {
	return i.subscriptions.CreateSubscription(ctx, tx, i.Collection(res), orderID, componentType)
}

func (i *SizeItem) GetUnitPrice(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, res event.Resource) (decimal.Decimal, error) {
	return i.subscriptions.GetUnitPrice(ctx, tx, orderID, i.Collection(res))
}
