package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/waiter/internal/clock"
	"github.com/smallbiznis/waiter/internal/config"
	"github.com/smallbiznis/waiter/internal/event"
	masterdomain "github.com/smallbiznis/waiter/internal/master/domain"
	obscontext "github.com/smallbiznis/waiter/internal/observability/context"
	"github.com/smallbiznis/waiter/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/waiter/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/waiter/internal/order/domain"
	"github.com/smallbiznis/waiter/internal/pricing"
	"github.com/smallbiznis/waiter/internal/resourcelock"
	subscriptiondomain "github.com/smallbiznis/waiter/internal/subscription/domain"
	"github.com/smallbiznis/waiter/pkg/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidState = errors.New("invalid_state")

// Controller owns the order state machine of one resource family. Every
// operation holds the resource lock and runs in a single transaction that
// also queues the master notification.
type Controller struct {
	family     config.FamilyConfig
	regionID   string
	aggregator *pricing.Aggregator

	db            *gorm.DB
	orders        orderdomain.Repository
	subscriptions subscriptiondomain.Service
	notifier      masterdomain.Notifier
	locker        resourcelock.Locker
	genID         *snowflake.Node
	clock         clock.Clock

	log     *zap.Logger
	metrics *obsmetrics.Metrics
	prom    *telemetry.Metrics
}

func (c *Controller) Family() string { return c.family.Name }

func (c *Controller) ResourceType() string { return c.family.ResourceType }

// Create opens an order for a new resource. An empty state bills the
// running component and reports "created"; an explicit state reports
// "created_again". A resource that already has a live order is left as is.
func (c *Controller) Create(ctx context.Context, at time.Time, res event.Resource, state string) (*orderdomain.Order, error) {
	effective := state
	if effective == "" {
		effective = subscriptiondomain.StatusRunning
	}
	if !validState(effective) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, state)
	}
	action := masterdomain.ActionCreated
	if state != "" {
		action = masterdomain.ActionCreatedAgain
	}

	var (
		result  *orderdomain.Order
		created bool
	)
	err := c.run(ctx, res, func(ctx context.Context, tx *gorm.DB, log *zap.Logger) error {
		existing, err := c.orders.FindLiveByResource(ctx, tx, res.ID)
		if err != nil {
			return dbError(err)
		}
		if existing != nil {
			log.Info("resource already has a live order",
				zap.String("order_id", existing.ID.String()),
				zap.String("status", existing.Status),
			)
			result = existing
			return nil
		}

		orderID := c.genID.Generate()
		price, err := c.aggregator.CreateSubscriptions(ctx, tx, res, orderID, effective)
		if err != nil {
			return err
		}

		now := c.clock.Now()
		order := &orderdomain.Order{
			ID:           orderID,
			ResourceID:   res.ID,
			ResourceName: res.Name,
			ResourceType: c.family.ResourceType,
			RegionID:     c.regionID,
			Unit:         c.family.Unit,
			UnitPrice:    price,
			Status:       effective,
			UserID:       res.UserID,
			ProjectID:    res.ProjectID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := c.orders.Insert(ctx, tx, order); err != nil {
			return dbError(err)
		}
		if err := c.notify(ctx, tx, order, action, at, c.remarks("Created")); err != nil {
			return err
		}

		log.Info("order created",
			zap.String("order_id", order.ID.String()),
			zap.String("status", order.Status),
			zap.String("unit_price", order.UnitPrice.String()),
		)
		result = order
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		c.record(ctx, action, result.UnitPrice)
	}
	return result, nil
}

// Delete marks the live order deleted. Orders billed per month or year are
// prepaid and stay untouched.
func (c *Controller) Delete(ctx context.Context, at time.Time, res event.Resource) (*orderdomain.Order, error) {
	var (
		result  *orderdomain.Order
		deleted bool
	)
	err := c.run(ctx, res, func(ctx context.Context, tx *gorm.DB, log *zap.Logger) error {
		order, err := c.liveOrder(ctx, tx, res.ID, log)
		if err != nil {
			return err
		}
		result = order

		if order.Unit == config.UnitMonth || order.Unit == config.UnitYear {
			log.Info("prepaid order kept on delete",
				zap.String("order_id", order.ID.String()),
				zap.String("unit", order.Unit),
			)
			return nil
		}

		order.Status = orderdomain.StatusDeleted
		order.UpdatedAt = c.clock.Now()
		if err := c.orders.Update(ctx, tx, order); err != nil {
			return dbError(err)
		}
		if err := c.notify(ctx, tx, order, masterdomain.ActionDeleted, at, c.remarks("Deleted")); err != nil {
			return err
		}

		log.Info("order deleted", zap.String("order_id", order.ID.String()))
		deleted = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if deleted {
		c.record(ctx, masterdomain.ActionDeleted, result.UnitPrice)
	}
	return result, nil
}

// Resize applies the new size to every component and reprices the order for
// its current status.
func (c *Controller) Resize(ctx context.Context, at time.Time, res event.Resource) (*orderdomain.Order, error) {
	var result *orderdomain.Order
	err := c.run(ctx, res, func(ctx context.Context, tx *gorm.DB, log *zap.Logger) error {
		order, err := c.liveOrder(ctx, tx, res.ID, log)
		if err != nil {
			return err
		}

		if err := c.subscriptions.Resize(ctx, tx, res.ID, res.Volume); err != nil {
			return err
		}
		price, err := c.aggregator.UnitPrice(ctx, tx, order.ID, res, order.Status)
		if err != nil {
			return err
		}

		previous := order.UnitPrice
		order.UnitPrice = price
		if res.Name != "" {
			order.ResourceName = res.Name
		}
		order.UpdatedAt = c.clock.Now()
		if err := c.orders.Update(ctx, tx, order); err != nil {
			return dbError(err)
		}
		if err := c.notify(ctx, tx, order, masterdomain.ActionResized, at, c.remarks("Resized")); err != nil {
			return err
		}

		log.Info("order resized",
			zap.String("order_id", order.ID.String()),
			zap.Int64("volume", res.Volume),
			zap.String("previous_unit_price", previous.String()),
			zap.String("unit_price", price.String()),
		)
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.record(ctx, masterdomain.ActionResized, result.UnitPrice)
	return result, nil
}

// ChangeStatus moves the live order to status and reprices it from the
// subscriptions already held for that status.
func (c *Controller) ChangeStatus(ctx context.Context, at time.Time, res event.Resource, status string) (*orderdomain.Order, error) {
	if !validState(status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, status)
	}

	var (
		result  *orderdomain.Order
		changed bool
	)
	err := c.run(ctx, res, func(ctx context.Context, tx *gorm.DB, log *zap.Logger) error {
		order, err := c.liveOrder(ctx, tx, res.ID, log)
		if err != nil {
			return err
		}
		result = order
		if order.Status == status {
			log.Debug("order already in status", zap.String("status", status))
			return nil
		}

		price, err := c.aggregator.StatusPrice(ctx, tx, res.ID, status)
		if err != nil {
			return err
		}

		from := order.Status
		order.Status = status
		order.UnitPrice = price
		order.UpdatedAt = c.clock.Now()
		if err := c.orders.Update(ctx, tx, order); err != nil {
			return dbError(err)
		}
		if err := c.notify(ctx, tx, order, masterdomain.ActionChanged, at, c.remarks(statusVerb(status))); err != nil {
			return err
		}

		log.Info("order status changed",
			zap.String("order_id", order.ID.String()),
			zap.String("from", from),
			zap.String("to", status),
			zap.String("unit_price", price.String()),
		)
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		c.record(ctx, masterdomain.ActionChanged, result.UnitPrice)
	}
	return result, nil
}

type txFunc func(ctx context.Context, tx *gorm.DB, log *zap.Logger) error

func (c *Controller) run(ctx context.Context, res event.Resource, fn txFunc) error {
	ctx = obscontext.WithResource(ctx, c.family.Name, res.ID)
	log := logger.WithContext(ctx, c.log)

	unlock, err := c.locker.Lock(ctx, resourcelock.Key(c.family.Name, res.ID))
	if err != nil {
		log.Warn("resource lock not acquired", zap.Error(err))
		return err
	}
	defer unlock()

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx, log)
	})
}

func (c *Controller) liveOrder(ctx context.Context, tx *gorm.DB, resourceID string, log *zap.Logger) (*orderdomain.Order, error) {
	order, err := c.orders.FindLiveByResource(ctx, tx, resourceID)
	if err != nil {
		return nil, dbError(err)
	}
	if order == nil {
		log.Warn("no live order for resource")
		return nil, orderdomain.ErrOrderNotFound
	}
	return order, nil
}

func (c *Controller) notify(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, action string, at time.Time, remarks string) error {
	err := c.notifier.Notify(ctx, tx, masterdomain.Notification{
		OrderID:    order.ID,
		Action:     action,
		ActionTime: at,
		Remarks:    remarks,
		Family:     c.family.Name,
		ResourceID: order.ResourceID,
		UnitPrice:  order.UnitPrice,
	})
	if err != nil && !errors.Is(err, masterdomain.ErrInvalidAction) {
		return dbError(err)
	}
	return err
}

func (c *Controller) record(ctx context.Context, action string, price decimal.Decimal) {
	c.metrics.RecordOrder(ctx, c.family.Name, action)
	c.prom.ObserveOrderPrice(c.family.Name, price.InexactFloat64())
}

func (c *Controller) remarks(verb string) string {
	name := c.family.DisplayName
	if name == "" {
		name = c.family.Name
	}
	return fmt.Sprintf("%s Has Been %s.", name, verb)
}

func statusVerb(status string) string {
	if status == subscriptiondomain.StatusSuspended {
		return "Suspended"
	}
	return "Resumed"
}

func validState(state string) bool {
	for _, ct := range subscriptiondomain.ComponentTypes {
		if ct == state {
			return true
		}
	}
	return false
}

func dbError(err error) error {
	if errors.Is(err, subscriptiondomain.ErrDB) {
		return err
	}
	return fmt.Errorf("%w: %w", subscriptiondomain.ErrDB, err)
}
