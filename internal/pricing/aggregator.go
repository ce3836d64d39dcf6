package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/waiter/internal/event"
	subscriptiondomain "github.com/smallbiznis/waiter/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Aggregator combines the extensions of one resource family into order prices.
type Aggregator struct {
	family        string
	extensions    []Extension
	subscriptions subscriptiondomain.Service
	log           *zap.Logger
}

func NewAggregator(family string, extensions []Extension, subscriptions subscriptiondomain.Service, log *zap.Logger) (*Aggregator, error) {
	seen := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		if _, ok := ComponentType(ext.Name()); !ok {
			return nil, fmt.Errorf("family %s: extension %q has no known component type", family, ext.Name())
		}
		if _, dup := seen[ext.Name()]; dup {
			return nil, fmt.Errorf("family %s: extension %q registered twice", family, ext.Name())
		}
		seen[ext.Name()] = struct{}{}
	}
	return &Aggregator{
		family:        family,
		extensions:    extensions,
		subscriptions: subscriptions,
		log:           log.Named("pricing.aggregator").With(zap.String("family", family)),
	}, nil
}

func (a *Aggregator) Family() string { return a.family }

func (a *Aggregator) Extensions() []Extension { return a.extensions }

// CreateSubscriptions creates the subscription of every extension and returns
// the price of those whose component type equals effectiveState.
func (a *Aggregator) CreateSubscriptions(ctx context.Context, tx *gorm.DB, res event.Resource, orderID snowflake.ID, effectiveState string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, ext := range a.extensions {
		componentType, _ := ComponentType(ext.Name())
		sub, err := ext.CreateSubscription(ctx, tx, res, orderID, componentType)
		if err != nil {
			return decimal.Zero, fmt.Errorf("extension %s: %w", ext.Name(), err)
		}
		if sub == nil || componentType != effectiveState {
			continue
		}
		price, err := a.subscriptions.SubscriptionPrice(ctx, tx, *sub)
		if err != nil {
			return decimal.Zero, fmt.Errorf("extension %s: %w", ext.Name(), err)
		}
		total = total.Add(price)
	}
	return total, nil
}

// UnitPrice reprices the resource from the catalog using the extensions
// whose name starts with status.
func (a *Aggregator) UnitPrice(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, res event.Resource, status string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, ext := range a.extensions {
		if !strings.HasPrefix(ext.Name(), status) {
			continue
		}
		price, err := ext.GetUnitPrice(ctx, tx, orderID, res)
		if err != nil {
			return decimal.Zero, fmt.Errorf("extension %s: %w", ext.Name(), err)
		}
		total = total.Add(price)
	}
	return total, nil
}

// StatusPrice sums the existing subscriptions of one component type.
// It never creates subscriptions.
func (a *Aggregator) StatusPrice(ctx context.Context, tx *gorm.DB, resourceID, status string) (decimal.Decimal, error) {
	subs, err := a.subscriptions.ListByResource(ctx, tx, resourceID, status)
	if err != nil {
		return decimal.Zero, err
	}
	if len(subs) == 0 {
		a.log.Warn("no subscriptions for status",
			zap.String("resource_id", resourceID),
			zap.String("status", status),
		)
	}
	total := decimal.Zero
	for _, sub := range subs {
		price, err := a.subscriptions.SubscriptionPrice(ctx, tx, sub)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(price)
	}
	return total, nil
}
