package notification_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/waiter/internal/clock"
	"github.com/smallbiznis/waiter/internal/config"
	"github.com/smallbiznis/waiter/internal/event"
	"github.com/smallbiznis/waiter/internal/notification"
	orderdomain "github.com/smallbiznis/waiter/internal/order/domain"
	subscriptiondomain "github.com/smallbiznis/waiter/internal/subscription/domain"
	"github.com/smallbiznis/waiter/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func shareEvent(eventType, id string, size int) []byte {
	return []byte(fmt.Sprintf(`{
		"message_id": "msg-%s-%s",
		"event_type": %q,
		"timestamp": "2026-05-04 08:30:00.000000",
		"payload": {"share_id": %q, "display_name": "data", "size": %d, "user_id": "u1", "tenant_id": "p1", "status": "available"}
	}`, eventType, id, eventType, id, size))
}

func newDispatcher(t *testing.T) (*testutil.Stack, *notification.Dispatcher, *observer.ObservedLogs) {
	stack := testutil.NewStack(t, config.DefaultWaiterConfig())
	stack.SeedDefaultCatalog(t)
	reg, err := notification.BuildRegistry(stack.Config, stack.Controllers)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	d := notification.NewDispatcher(notification.Params{
		Registry: reg,
		Clock:    stack.Clock,
		Log:      zap.New(core),
	})
	return stack, d, logs
}

func errorLogs(logs *observer.ObservedLogs) int {
	return logs.FilterLevelExact(zapcore.ErrorLevel).Len()
}

func TestDispatchShareLifecycle(t *testing.T) {
	stack, d, _ := newDispatcher(t)
	ctx := context.Background()

	result, err := d.Dispatch(ctx, "share.create.end", shareEvent("share.create.end", "r1", 10))
	require.NoError(t, err)
	assert.Equal(t, notification.ResultProcessed, result)

	order := stack.LiveOrder(t, "r1")
	require.NotNil(t, order)
	assert.True(t, decimal.NewFromInt(20).Equal(order.UnitPrice))
	assert.Equal(t, "data", order.ResourceName)

	events := stack.MasterEvents(t, order.ID)
	require.Len(t, events, 1)
	assert.True(t, time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC).Equal(events[0].ActionTime))

	result, err = d.Dispatch(ctx, "share.suspend.end", shareEvent("share.suspend.end", "r1", 10))
	require.NoError(t, err)
	assert.Equal(t, notification.ResultProcessed, result)
	assert.Equal(t, orderdomain.StatusSuspended, stack.LiveOrder(t, "r1").Status)

	result, err = d.Dispatch(ctx, "share.resume.end", shareEvent("share.resume.end", "r1", 10))
	require.NoError(t, err)
	assert.Equal(t, notification.ResultProcessed, result)

	result, err = d.Dispatch(ctx, "share.extend.end", shareEvent("share.extend.end", "r1", 15))
	require.NoError(t, err)
	assert.Equal(t, notification.ResultProcessed, result)
	assert.True(t, decimal.NewFromInt(30).Equal(stack.LiveOrder(t, "r1").UnitPrice))

	result, err = d.Dispatch(ctx, "share.delete.end", shareEvent("share.delete.end", "r1", 15))
	require.NoError(t, err)
	assert.Equal(t, notification.ResultProcessed, result)
	assert.Nil(t, stack.LiveOrder(t, "r1"))
}

func TestDispatchTakesEventTypeFromEnvelope(t *testing.T) {
	stack, d, _ := newDispatcher(t)

	result, err := d.Dispatch(context.Background(), "", shareEvent("share.create.end", "r1", 3))
	require.NoError(t, err)
	assert.Equal(t, notification.ResultProcessed, result)
	assert.NotNil(t, stack.LiveOrder(t, "r1"))
}

func TestDispatchRedeliveredCreateIsIdempotent(t *testing.T) {
	stack, d, _ := newDispatcher(t)
	raw := shareEvent("share.create.end", "r1", 10)

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(context.Background(), "share.create.end", raw)
		require.NoError(t, err)
		assert.Equal(t, notification.ResultProcessed, result)
	}
	assert.Len(t, stack.AllOrders(t, "r1"), 1)
	assert.Len(t, stack.ResourceSubscriptions(t, "r1"), 2)
}

func TestDispatchIgnoresUnknownEventType(t *testing.T) {
	_, d, logs := newDispatcher(t)

	result, err := d.Dispatch(context.Background(), "compute.instance.create.end", []byte(`not json`))
	require.NoError(t, err)
	assert.Equal(t, notification.ResultIgnored, result)
	assert.Zero(t, errorLogs(logs))
	assert.Equal(t, 1, logs.FilterMessage("no route for event type").Len())
}

func TestDispatchDropsMalformedEvents(t *testing.T) {
	stack, d, logs := newDispatcher(t)

	cases := map[string][]byte{
		"invalid json":    []byte(`{"event_type":`),
		"missing payload": []byte(`{"event_type":"share.create.end"}`),
		"missing size":    []byte(`{"event_type":"share.create.end","payload":{"share_id":"r1","user_id":"u","tenant_id":"p"}}`),
		"negative size":   []byte(`{"event_type":"share.create.end","payload":{"share_id":"r1","size":-1,"user_id":"u","tenant_id":"p"}}`),
		"blank share id":  []byte(`{"event_type":"share.create.end","payload":{"share_id":"   ","size":1,"user_id":"u","tenant_id":"p"}}`),
		"blank tenant":    []byte(`{"event_type":"share.create.end","payload":{"share_id":"r1","size":1,"user_id":"u","tenant_id":" "}}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			result, err := d.Dispatch(context.Background(), "share.create.end", raw)
			require.NoError(t, err)
			assert.Equal(t, notification.ResultDropped, result)
		})
	}
	assert.Zero(t, stack.CountRows(t, "orders"))
	assert.Equal(t, len(cases), errorLogs(logs))
}

func TestDispatchDropsDuplicateProduct(t *testing.T) {
	stack, d, _ := newDispatcher(t)
	stack.SeedDuplicateProduct(t, "share.size", "share", "2")

	result, err := d.Dispatch(context.Background(), "share.create.end", shareEvent("share.create.end", "r1", 10))
	require.NoError(t, err)
	assert.Equal(t, notification.ResultDropped, result)
	assert.Zero(t, stack.CountRows(t, "orders"))
	assert.Zero(t, stack.CountRows(t, "subscriptions"))
}

func TestDispatchDropsEventsWithoutOrder(t *testing.T) {
	_, d, logs := newDispatcher(t)

	result, err := d.Dispatch(context.Background(), "share.delete.end", shareEvent("share.delete.end", "ghost", 1))
	require.NoError(t, err)
	assert.Equal(t, notification.ResultDropped, result)
	assert.Zero(t, errorLogs(logs))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).FilterMessage("notification dropped").Len())
}

func customDispatcher(t *testing.T, h notification.Handler) *notification.Dispatcher {
	reg := notification.NewRegistry()
	require.NoError(t, reg.Register(notification.Route{
		EventType:    "share.create.end",
		Family:       "share",
		ResourceType: "share",
		Action:       notification.ActionCreate,
		Decode:       event.DecodeShare,
		Handler:      h,
	}))
	return notification.NewDispatcher(notification.Params{
		Registry: reg,
		Clock:    clock.NewFakeClock(testutil.StartTime),
		Log:      zap.NewNop(),
	})
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	d := customDispatcher(t, func(ctx context.Context, at time.Time, res event.Resource) error {
		panic("boom")
	})

	result, err := d.Dispatch(context.Background(), "share.create.end", shareEvent("share.create.end", "r1", 1))
	require.NoError(t, err)
	assert.Equal(t, notification.ResultDropped, result)
}

func TestDispatchReportsStorageFailures(t *testing.T) {
	storageErr := fmt.Errorf("%w: connection reset", subscriptiondomain.ErrDB)
	d := customDispatcher(t, func(ctx context.Context, at time.Time, res event.Resource) error {
		return storageErr
	})

	result, err := d.Dispatch(context.Background(), "share.create.end", shareEvent("share.create.end", "r1", 1))
	assert.Equal(t, notification.ResultFailed, result)
	assert.True(t, errors.Is(err, subscriptiondomain.ErrDB))
}

func TestDispatchFallsBackToReceiveTime(t *testing.T) {
	var got time.Time
	d := customDispatcher(t, func(ctx context.Context, at time.Time, res event.Resource) error {
		got = at
		return nil
	})

	raw := []byte(`{"event_type":"share.create.end","payload":{"share_id":"r1","size":1,"user_id":"u","tenant_id":"p"}}`)
	result, err := d.Dispatch(context.Background(), "share.create.end", raw)
	require.NoError(t, err)
	assert.Equal(t, notification.ResultProcessed, result)
	assert.True(t, testutil.StartTime.Equal(got))
}

func TestBuildRegistryRejectsDuplicateEventTypes(t *testing.T) {
	cfg := config.DefaultWaiterConfig()
	cfg.Families[1].Events.Delete = cfg.Families[0].Events.Delete
	stack := testutil.NewStack(t, cfg)

	_, err := notification.BuildRegistry(cfg, stack.Controllers)
	assert.ErrorIs(t, err, notification.ErrDuplicateRoute)
}

func TestBuildRegistryRoutesConfiguredEvents(t *testing.T) {
	stack := testutil.NewStack(t, config.DefaultWaiterConfig())
	reg, err := notification.BuildRegistry(stack.Config, stack.Controllers)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"share.create.end",
		"share.delete.end",
		"share.extend.end",
		"share.resume.end",
		"share.shrink.end",
		"share.suspend.end",
		"volume.create.end",
		"volume.delete.end",
		"volume.resize.end",
	}, reg.EventTypes())

	route, err := reg.Lookup("share.shrink.end")
	require.NoError(t, err)
	assert.Equal(t, notification.ActionResize, route.Action)

	_, err = reg.Lookup("share.manage.end")
	assert.ErrorIs(t, err, notification.ErrUnknownEventType)
}
