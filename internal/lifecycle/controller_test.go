package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/waiter/internal/config"
	"github.com/smallbiznis/waiter/internal/event"
	"github.com/smallbiznis/waiter/internal/lifecycle"
	masterdomain "github.com/smallbiznis/waiter/internal/master/domain"
	orderdomain "github.com/smallbiznis/waiter/internal/order/domain"
	productdomain "github.com/smallbiznis/waiter/internal/product/domain"
	subscriptiondomain "github.com/smallbiznis/waiter/internal/subscription/domain"
	"github.com/smallbiznis/waiter/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func share(id string, size int64) event.Resource {
	return event.Resource{
		ID:        id,
		Name:      "share-" + id,
		Type:      "share",
		Status:    "available",
		Volume:    size,
		UserID:    "user-1",
		ProjectID: "project-1",
	}
}

func newShareStack(t *testing.T) (*testutil.Stack, *lifecycle.Controller) {
	stack := testutil.NewStack(t, config.DefaultWaiterConfig())
	stack.SeedDefaultCatalog(t)
	return stack, stack.Controller(t, "share")
}

func assertPrice(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s got %s", want, got)
}

func TestCreateBillsRunningComponent(t *testing.T) {
	stack, ctrl := newShareStack(t)
	at := testutil.StartTime.Add(-time.Minute)

	order, err := ctrl.Create(context.Background(), at, share("r1", 10), "")
	require.NoError(t, err)

	assert.Equal(t, orderdomain.StatusRunning, order.Status)
	assert.Equal(t, config.UnitHour, order.Unit)
	assert.Equal(t, "RegionOne", order.RegionID)
	assertPrice(t, "20", order.UnitPrice)

	subs := stack.ResourceSubscriptions(t, "r1")
	require.Len(t, subs, 2)
	for _, sub := range subs {
		assert.Equal(t, order.ID, sub.OrderID)
		assert.Equal(t, int64(10), sub.ResourceVolume)
		assert.True(t, sub.CurrentFee.IsZero())
		assert.Nil(t, sub.CronTime)
	}

	events := stack.MasterEvents(t, order.ID)
	require.Len(t, events, 1)
	assert.Equal(t, masterdomain.ActionCreated, events[0].Action)
	assert.Equal(t, "Share Has Been Created.", events[0].Remarks)
	assert.True(t, at.Equal(events[0].ActionTime))
}

func TestCreateWithStateNotifiesCreatedAgain(t *testing.T) {
	stack, ctrl := newShareStack(t)

	order, err := ctrl.Create(context.Background(), testutil.StartTime, share("r1", 10), subscriptiondomain.StatusSuspended)
	require.NoError(t, err)

	assert.Equal(t, orderdomain.StatusSuspended, order.Status)
	assertPrice(t, "10", order.UnitPrice)
	assert.Len(t, stack.ResourceSubscriptions(t, "r1"), 2)

	events := stack.MasterEvents(t, order.ID)
	require.Len(t, events, 1)
	assert.Equal(t, masterdomain.ActionCreatedAgain, events[0].Action)
}

func TestCreateRejectsUnknownState(t *testing.T) {
	stack, ctrl := newShareStack(t)

	_, err := ctrl.Create(context.Background(), testutil.StartTime, share("r1", 10), "paused")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidState)
	assert.Zero(t, stack.CountRows(t, "orders"))
}

func TestCreateIsIdempotent(t *testing.T) {
	stack, ctrl := newShareStack(t)
	ctx := context.Background()

	first, err := ctrl.Create(ctx, testutil.StartTime, share("r1", 10), "")
	require.NoError(t, err)
	second, err := ctrl.Create(ctx, testutil.StartTime, share("r1", 10), "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, stack.AllOrders(t, "r1"), 1)
	assert.Len(t, stack.ResourceSubscriptions(t, "r1"), 2)
	assert.Len(t, stack.MasterEvents(t, first.ID), 1)
}

func TestConcurrentCreatesYieldOneOrder(t *testing.T) {
	stack, ctrl := newShareStack(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ctrl.Create(context.Background(), testutil.StartTime, share("r1", 10), "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, stack.AllOrders(t, "r1"), 1)
	assert.Len(t, stack.ResourceSubscriptions(t, "r1"), 2)
}

func TestCreateWithMissingProductBillsZero(t *testing.T) {
	stack := testutil.NewStack(t, config.DefaultWaiterConfig())
	stack.SeedProduct(t, "share.size.suspended", "share", "1")
	ctrl := stack.Controller(t, "share")

	order, err := ctrl.Create(context.Background(), testutil.StartTime, share("r1", 10), "")
	require.NoError(t, err)
	assertPrice(t, "0", order.UnitPrice)

	subs := stack.ResourceSubscriptions(t, "r1")
	require.Len(t, subs, 1)
	assert.Equal(t, subscriptiondomain.StatusSuspended, subs[0].Status)
}

func TestCreateWithDuplicateProductWritesNothing(t *testing.T) {
	stack, ctrl := newShareStack(t)
	stack.SeedDuplicateProduct(t, "share.size", "share", "3")

	_, err := ctrl.Create(context.Background(), testutil.StartTime, share("r1", 10), "")
	require.ErrorIs(t, err, productdomain.ErrDuplicateProduct)

	assert.Zero(t, stack.CountRows(t, "orders"))
	assert.Zero(t, stack.CountRows(t, "subscriptions"))
	assert.Zero(t, stack.CountRows(t, "master_events"))
}

func TestChangeStatusReusesSubscriptions(t *testing.T) {
	stack, ctrl := newShareStack(t)
	ctx := context.Background()

	created, err := ctrl.Create(ctx, testutil.StartTime, share("r1", 10), "")
	require.NoError(t, err)

	suspended, err := ctrl.ChangeStatus(ctx, testutil.StartTime.Add(time.Hour), share("r1", 10), subscriptiondomain.StatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, created.ID, suspended.ID)
	assert.Equal(t, orderdomain.StatusSuspended, suspended.Status)
	assertPrice(t, "10", suspended.UnitPrice)
	assert.Len(t, stack.ResourceSubscriptions(t, "r1"), 2)

	resumed, err := ctrl.ChangeStatus(ctx, testutil.StartTime.Add(2*time.Hour), share("r1", 10), subscriptiondomain.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusRunning, resumed.Status)
	assertPrice(t, "20", resumed.UnitPrice)

	events := stack.MasterEvents(t, created.ID)
	require.Len(t, events, 3)
	assert.Equal(t, masterdomain.ActionChanged, events[1].Action)
	assert.Equal(t, "Share Has Been Suspended.", events[1].Remarks)
	assert.Equal(t, "Share Has Been Resumed.", events[2].Remarks)
}

func TestChangeStatusToCurrentStatusIsNoop(t *testing.T) {
	stack, ctrl := newShareStack(t)
	ctx := context.Background()

	created, err := ctrl.Create(ctx, testutil.StartTime, share("r1", 10), "")
	require.NoError(t, err)

	order, err := ctrl.ChangeStatus(ctx, testutil.StartTime, share("r1", 10), subscriptiondomain.StatusRunning)
	require.NoError(t, err)
	assertPrice(t, "20", order.UnitPrice)
	assert.Len(t, stack.MasterEvents(t, created.ID), 1)
}

func TestResizeRepricesCurrentStatus(t *testing.T) {
	stack, ctrl := newShareStack(t)
	ctx := context.Background()

	created, err := ctrl.Create(ctx, testutil.StartTime, share("r1", 10), "")
	require.NoError(t, err)

	resized, err := ctrl.Resize(ctx, testutil.StartTime.Add(time.Hour), share("r1", 25))
	require.NoError(t, err)
	assertPrice(t, "50", resized.UnitPrice)
	for _, sub := range stack.ResourceSubscriptions(t, "r1") {
		assert.Equal(t, int64(25), sub.ResourceVolume)
	}

	suspended, err := ctrl.ChangeStatus(ctx, testutil.StartTime.Add(2*time.Hour), share("r1", 25), subscriptiondomain.StatusSuspended)
	require.NoError(t, err)
	assertPrice(t, "25", suspended.UnitPrice)

	events := stack.MasterEvents(t, created.ID)
	require.Len(t, events, 3)
	assert.Equal(t, masterdomain.ActionResized, events[1].Action)
}

func TestDeleteMarksHourlyOrderDeleted(t *testing.T) {
	stack, ctrl := newShareStack(t)
	ctx := context.Background()

	created, err := ctrl.Create(ctx, testutil.StartTime, share("r1", 10), "")
	require.NoError(t, err)

	deleted, err := ctrl.Delete(ctx, testutil.StartTime.Add(time.Hour), share("r1", 10))
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusDeleted, deleted.Status)
	assertPrice(t, "20", deleted.UnitPrice)
	assert.Nil(t, stack.LiveOrder(t, "r1"))

	events := stack.MasterEvents(t, created.ID)
	require.Len(t, events, 2)
	assert.Equal(t, masterdomain.ActionDeleted, events[1].Action)
	assert.Equal(t, "Share Has Been Deleted.", events[1].Remarks)

	_, err = ctrl.Delete(ctx, testutil.StartTime.Add(2*time.Hour), share("r1", 10))
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
}

func TestDeleteKeepsMonthlyOrder(t *testing.T) {
	cfg := config.DefaultWaiterConfig()
	cfg.Families[0].Unit = config.UnitMonth
	stack := testutil.NewStack(t, cfg)
	stack.SeedDefaultCatalog(t)
	ctrl := stack.Controller(t, "share")
	ctx := context.Background()

	created, err := ctrl.Create(ctx, testutil.StartTime, share("r1", 10), "")
	require.NoError(t, err)

	order, err := ctrl.Delete(ctx, testutil.StartTime.Add(time.Hour), share("r1", 10))
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusRunning, order.Status)
	assert.NotNil(t, stack.LiveOrder(t, "r1"))
	assert.Len(t, stack.MasterEvents(t, created.ID), 1)
}

func TestRecreateAfterDeleteOpensNewOrder(t *testing.T) {
	stack, ctrl := newShareStack(t)
	ctx := context.Background()

	first, err := ctrl.Create(ctx, testutil.StartTime, share("r1", 10), "")
	require.NoError(t, err)
	_, err = ctrl.Delete(ctx, testutil.StartTime.Add(time.Hour), share("r1", 10))
	require.NoError(t, err)

	stack.Clock.Advance(time.Hour)
	second, err := ctrl.Create(ctx, testutil.StartTime.Add(2*time.Hour), share("r1", 10), subscriptiondomain.StatusSuspended)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assertPrice(t, "10", second.UnitPrice)
	assert.Len(t, stack.AllOrders(t, "r1"), 2)
	assert.Len(t, stack.ResourceSubscriptions(t, "r1"), 2)
}

func TestRecreateAfterDeleteBillsNewSize(t *testing.T) {
	stack, ctrl := newShareStack(t)
	ctx := context.Background()

	first, err := ctrl.Create(ctx, testutil.StartTime, share("r1", 10), "")
	require.NoError(t, err)
	assertPrice(t, "20", first.UnitPrice)
	_, err = ctrl.Delete(ctx, testutil.StartTime.Add(time.Hour), share("r1", 10))
	require.NoError(t, err)

	stack.Clock.Advance(time.Hour)
	second, err := ctrl.Create(ctx, testutil.StartTime.Add(2*time.Hour), share("r1", 20), "")
	require.NoError(t, err)
	assertPrice(t, "40", second.UnitPrice)

	subs := stack.ResourceSubscriptions(t, "r1")
	require.Len(t, subs, 2)
	for _, sub := range subs {
		assert.Equal(t, int64(20), sub.ResourceVolume, sub.Status)
		assert.Equal(t, second.ID, sub.OrderID, sub.Status)
	}

	suspended, err := ctrl.ChangeStatus(ctx, testutil.StartTime.Add(3*time.Hour), share("r1", 20), subscriptiondomain.StatusSuspended)
	require.NoError(t, err)
	assertPrice(t, "20", suspended.UnitPrice)
}

func TestOperationsWithoutLiveOrder(t *testing.T) {
	_, ctrl := newShareStack(t)
	ctx := context.Background()

	_, err := ctrl.Resize(ctx, testutil.StartTime, share("missing", 1))
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)

	_, err = ctrl.ChangeStatus(ctx, testutil.StartTime, share("missing", 1), subscriptiondomain.StatusSuspended)
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
}

func TestVolumeFamilyHasSingleComponent(t *testing.T) {
	stack := testutil.NewStack(t, config.DefaultWaiterConfig())
	stack.SeedDefaultCatalog(t)
	ctrl := stack.Controller(t, "volume")

	order, err := ctrl.Create(context.Background(), testutil.StartTime, event.Resource{
		ID:        "v1",
		Type:      "volume",
		Volume:    40,
		UserID:    "u",
		ProjectID: "p",
	}, "")
	require.NoError(t, err)
	assertPrice(t, "20", order.UnitPrice)
	assert.Equal(t, "volume", order.ResourceType)

	subs := stack.ResourceSubscriptions(t, "v1")
	require.Len(t, subs, 1)
	assert.Equal(t, subscriptiondomain.StatusRunning, subs[0].Status)
}

func TestControllersFollowConfigOrder(t *testing.T) {
	stack := testutil.NewStack(t, config.DefaultWaiterConfig())
	assert.Equal(t, []string{"share", "volume"}, stack.Controllers.Families())
	_, ok := stack.Controllers.Get("network")
	assert.False(t, ok)
}
