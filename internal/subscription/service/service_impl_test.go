package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/waiter/internal/clock"
	"github.com/smallbiznis/waiter/internal/collection"
	productdomain "github.com/smallbiznis/waiter/internal/product/domain"
	subscriptiondomain "github.com/smallbiznis/waiter/internal/subscription/domain"
	"github.com/smallbiznis/waiter/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubProducts struct {
	byName map[string]productdomain.Product
	dups   map[string]bool
	err    error
}

func (s *stubProducts) Resolve(ctx context.Context, db *gorm.DB, name, service, regionID string) (*productdomain.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.dups[name] {
		return nil, productdomain.ErrDuplicateProduct
	}
	p, ok := s.byName[name]
	if !ok {
		return nil, productdomain.ErrProductNotFound
	}
	return &p, nil
}

func (s *stubProducts) Get(ctx context.Context, db *gorm.DB, id int64) (*productdomain.Product, error) {
	for _, p := range s.byName {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, productdomain.ErrProductNotFound
}

func (s *stubProducts) Ensure(ctx context.Context, req productdomain.EnsureRequest) (*productdomain.Product, error) {
	return nil, errors.New("not implemented")
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&subscriptiondomain.Subscription{}))
	return db
}

func newTestService(t *testing.T, products productdomain.Service) *Service {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParam{
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Repo:       repository.Provide(),
		Productsvc: products,
	}).(*Service)
}

func shareCollection(product string, volume int64) collection.Collection {
	return collection.Collection{
		ProductName:    product,
		Service:        "share",
		RegionID:       "RegionOne",
		ResourceID:     "r1",
		ResourceName:   "data",
		ResourceType:   "share",
		ResourceVolume: volume,
		UserID:         "u1",
		ProjectID:      "p1",
	}
}

func defaultProducts() *stubProducts {
	return &stubProducts{byName: map[string]productdomain.Product{
		"share.size":           {ID: 11, Name: "share.size", UnitPrice: decimal.NewFromInt(2)},
		"share.size.suspended": {ID: 12, Name: "share.size.suspended", UnitPrice: decimal.NewFromInt(1)},
	}}
}

func TestCreateSubscriptionInsertsWithZeroFee(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, defaultProducts())
	ctx := context.Background()

	sub, err := svc.CreateSubscription(ctx, db, shareCollection("share.size", 10), snowflake.ID(99), subscriptiondomain.StatusRunning)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, int64(11), sub.ProductID)
	assert.True(t, sub.CurrentFee.IsZero())
	assert.Nil(t, sub.CronTime)

	stored, err := svc.ListByResource(ctx, db, "r1", subscriptiondomain.StatusRunning)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, snowflake.ID(99), stored[0].OrderID)
	assert.Equal(t, int64(10), stored[0].ResourceVolume)
	assert.True(t, stored[0].CurrentFee.IsZero())
}

func TestCreateSubscriptionIsIdempotentPerResourceAndStatus(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, defaultProducts())
	ctx := context.Background()

	first, err := svc.CreateSubscription(ctx, db, shareCollection("share.size", 10), snowflake.ID(99), subscriptiondomain.StatusRunning)
	require.NoError(t, err)
	second, err := svc.CreateSubscription(ctx, db, shareCollection("share.size", 10), snowflake.ID(99), subscriptiondomain.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = svc.CreateSubscription(ctx, db, shareCollection("share.size.suspended", 10), snowflake.ID(99), subscriptiondomain.StatusSuspended)
	require.NoError(t, err)

	all, err := svc.ListByResource(ctx, db, "r1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateSubscriptionRebindsToNewOrder(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, defaultProducts())
	ctx := context.Background()

	first, err := svc.CreateSubscription(ctx, db, shareCollection("share.size", 10), snowflake.ID(99), subscriptiondomain.StatusRunning)
	require.NoError(t, err)

	coll := shareCollection("share.size", 20)
	coll.ResourceName = "renamed"
	second, err := svc.CreateSubscription(ctx, db, coll, snowflake.ID(100), subscriptiondomain.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(20), second.ResourceVolume)

	stored, err := svc.ListByResource(ctx, db, "r1", subscriptiondomain.StatusRunning)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, snowflake.ID(100), stored[0].OrderID)
	assert.Equal(t, int64(20), stored[0].ResourceVolume)
	assert.Equal(t, "renamed", stored[0].ResourceName)

	price, err := svc.SubscriptionPrice(ctx, db, stored[0])
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(40)))
}

func TestCreateSubscriptionProductNotFoundIsSoft(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, defaultProducts())

	sub, err := svc.CreateSubscription(context.Background(), db, shareCollection("share.iops", 10), snowflake.ID(99), subscriptiondomain.StatusRunning)
	assert.NoError(t, err)
	assert.Nil(t, sub)

	all, err := svc.ListByResource(context.Background(), db, "r1", "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateSubscriptionDuplicateProductFails(t *testing.T) {
	db := setupTestDB(t)
	products := defaultProducts()
	products.dups = map[string]bool{"share.size": true}
	svc := newTestService(t, products)

	_, err := svc.CreateSubscription(context.Background(), db, shareCollection("share.size", 10), snowflake.ID(99), subscriptiondomain.StatusRunning)
	assert.ErrorIs(t, err, productdomain.ErrDuplicateProduct)
}

func TestCreateSubscriptionStorageFailureIsDBError(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, defaultProducts())
	require.NoError(t, db.Migrator().DropTable(&subscriptiondomain.Subscription{}))

	_, err := svc.CreateSubscription(context.Background(), db, shareCollection("share.size", 10), snowflake.ID(99), subscriptiondomain.StatusRunning)
	assert.ErrorIs(t, err, subscriptiondomain.ErrDB)

	products := defaultProducts()
	products.err = errors.New("connection reset")
	svc = newTestService(t, products)
	_, err = svc.GetUnitPrice(context.Background(), db, snowflake.ID(1), shareCollection("share.size", 10))
	assert.ErrorIs(t, err, subscriptiondomain.ErrDB)
}

func TestGetUnitPrice(t *testing.T) {
	svc := newTestService(t, defaultProducts())
	ctx := context.Background()

	price, err := svc.GetUnitPrice(ctx, nil, snowflake.ID(1), shareCollection("share.size", 10))
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(20)))

	price, err = svc.GetUnitPrice(ctx, nil, snowflake.ID(1), shareCollection("share.iops", 10))
	require.NoError(t, err)
	assert.True(t, price.IsZero())
}

func TestResizeAndSubscriptionPrice(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, defaultProducts())
	ctx := context.Background()

	_, err := svc.CreateSubscription(ctx, db, shareCollection("share.size", 10), snowflake.ID(99), subscriptiondomain.StatusRunning)
	require.NoError(t, err)
	_, err = svc.CreateSubscription(ctx, db, shareCollection("share.size.suspended", 10), snowflake.ID(99), subscriptiondomain.StatusSuspended)
	require.NoError(t, err)

	require.NoError(t, svc.Resize(ctx, db, "r1", 25))

	subs, err := svc.ListByResource(ctx, db, "r1", subscriptiondomain.StatusSuspended)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(25), subs[0].ResourceVolume)

	price, err := svc.SubscriptionPrice(ctx, db, subs[0])
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(25)))
}
