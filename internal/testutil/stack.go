// Package testutil wires the billing stack over an in-memory sqlite database
// for package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/waiter/internal/clock"
	"github.com/smallbiznis/waiter/internal/config"
	"github.com/smallbiznis/waiter/internal/lifecycle"
	masterdomain "github.com/smallbiznis/waiter/internal/master/domain"
	masterrepository "github.com/smallbiznis/waiter/internal/master/repository"
	masterservice "github.com/smallbiznis/waiter/internal/master/service"
	"github.com/smallbiznis/waiter/internal/migration"
	orderdomain "github.com/smallbiznis/waiter/internal/order/domain"
	orderrepository "github.com/smallbiznis/waiter/internal/order/repository"
	orderservice "github.com/smallbiznis/waiter/internal/order/service"
	"github.com/smallbiznis/waiter/internal/pricing"
	productdomain "github.com/smallbiznis/waiter/internal/product/domain"
	productrepository "github.com/smallbiznis/waiter/internal/product/repository"
	productservice "github.com/smallbiznis/waiter/internal/product/service"
	"github.com/smallbiznis/waiter/internal/resourcelock"
	subscriptiondomain "github.com/smallbiznis/waiter/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/waiter/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/waiter/internal/subscription/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var StartTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type Stack struct {
	DB     *gorm.DB
	Clock  *clock.FakeClock
	GenID  *snowflake.Node
	Config config.WaiterConfig

	ProductRepo   productdomain.Repository
	Products      productdomain.Service
	Subscriptions subscriptiondomain.Service
	OrderRepo     orderdomain.Repository
	Orders        orderdomain.Service
	MasterRepo    masterdomain.Repository
	Notifier      masterdomain.Notifier
	Pricing       *pricing.Registry
	Controllers   *lifecycle.Controllers
}

// NewDB opens a single-connection in-memory database with every table migrated.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func NewStack(t testing.TB, cfg config.WaiterConfig) *Stack {
	t.Helper()
	log := zap.NewNop()
	db := NewDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(StartTime)

	s := &Stack{
		DB:          db,
		Clock:       clk,
		GenID:       node,
		Config:      cfg,
		ProductRepo: productrepository.Provide(),
		OrderRepo:   orderrepository.Provide(),
		MasterRepo:  masterrepository.Provide(),
	}
	s.Products = productservice.New(productservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  s.ProductRepo,
	})
	s.Subscriptions = subscriptionservice.NewService(subscriptionservice.ServiceParam{
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Repo:       subscriptionrepository.Provide(),
		Productsvc: s.Products,
	})
	s.Orders = orderservice.New(orderservice.Params{
		DB:              db,
		Log:             log,
		Repo:            s.OrderRepo,
		Subscriptionsvc: s.Subscriptions,
	})
	s.Notifier = masterservice.NewNotifier(masterservice.Params{
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  s.MasterRepo,
	})
	s.Pricing, err = pricing.NewRegistry(pricing.RegistryParams{
		Config:          cfg,
		Subscriptionsvc: s.Subscriptions,
		Log:             log,
	})
	require.NoError(t, err)
	s.Controllers, err = lifecycle.NewControllers(lifecycle.Params{
		Config:          cfg,
		DB:              db,
		Pricing:         s.Pricing,
		Orders:          s.OrderRepo,
		Subscriptionsvc: s.Subscriptions,
		Notifier:        s.Notifier,
		Locker:          resourcelock.NewLocalLocker(nil),
		GenID:           node,
		Clock:           clk,
		Log:             log,
	})
	require.NoError(t, err)
	return s
}

// SeedProduct stores a catalog product in the configured region.
func (s *Stack) SeedProduct(t testing.TB, name, service, unitPrice string) *productdomain.Product {
	t.Helper()
	p, err := s.Products.Ensure(context.Background(), productdomain.EnsureRequest{
		Name:      name,
		Service:   service,
		RegionID:  s.Config.RegionName,
		UnitPrice: decimal.RequireFromString(unitPrice),
	})
	require.NoError(t, err)
	return p
}

// SeedDuplicateProduct stores a second row for an existing lookup triple.
func (s *Stack) SeedDuplicateProduct(t testing.TB, name, service, unitPrice string) {
	t.Helper()
	now := s.Clock.Now()
	err := s.ProductRepo.Create(context.Background(), s.DB, &productdomain.Product{
		ID:        s.GenID.Generate().Int64(),
		Name:      name,
		Service:   service,
		RegionID:  s.Config.RegionName,
		UnitPrice: decimal.RequireFromString(unitPrice),
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
}

// SeedDefaultCatalog prices the default share and volume families.
func (s *Stack) SeedDefaultCatalog(t testing.TB) {
	t.Helper()
	s.SeedProduct(t, "share.size", "share", "2")
	s.SeedProduct(t, "share.size.suspended", "share", "1")
	s.SeedProduct(t, "volume.size", "block_storage", "0.5")
}

func (s *Stack) Controller(t testing.TB, family string) *lifecycle.Controller {
	t.Helper()
	c, ok := s.Controllers.Get(family)
	require.True(t, ok, "family %s", family)
	return c
}

func (s *Stack) LiveOrder(t testing.TB, resourceID string) *orderdomain.Order {
	t.Helper()
	o, err := s.OrderRepo.FindLiveByResource(context.Background(), s.DB, resourceID)
	require.NoError(t, err)
	return o
}

func (s *Stack) AllOrders(t testing.TB, resourceID string) []orderdomain.Order {
	t.Helper()
	items, err := s.OrderRepo.ListByResource(context.Background(), s.DB, resourceID)
	require.NoError(t, err)
	return items
}

func (s *Stack) ResourceSubscriptions(t testing.TB, resourceID string) []subscriptiondomain.Subscription {
	t.Helper()
	items, err := s.Subscriptions.ListByResource(context.Background(), s.DB, resourceID, "")
	require.NoError(t, err)
	return items
}

func (s *Stack) MasterEvents(t testing.TB, orderID snowflake.ID) []masterdomain.Event {
	t.Helper()
	items, err := s.MasterRepo.ListByOrder(context.Background(), s.DB, orderID)
	require.NoError(t, err)
	return items
}

// CountRows counts the rows of one table.
func (s *Stack) CountRows(t testing.TB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.DB.Table(table).Count(&n).Error)
	return n
}
