package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/waiter/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Order{}))
	return db
}

func newOrder(id int64, status string, createdAt time.Time) *domain.Order {
	return &domain.Order{
		ID:           snowflake.ID(id),
		ResourceID:   "r1",
		ResourceName: "data",
		ResourceType: "share",
		RegionID:     "RegionOne",
		Unit:         "hour",
		UnitPrice:    decimal.NewFromInt(20),
		Status:       status,
		UserID:       "u1",
		ProjectID:    "p1",
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func TestFindLiveByResourceSkipsDeleted(t *testing.T) {
	db := setupTestDB(t)
	repo := Provide()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, db, newOrder(1, domain.StatusDeleted, base)))

	live, err := repo.FindLiveByResource(ctx, db, "r1")
	require.NoError(t, err)
	assert.Nil(t, live)

	require.NoError(t, repo.Insert(ctx, db, newOrder(2, domain.StatusSuspended, base.Add(time.Hour))))

	live, err = repo.FindLiveByResource(ctx, db, "r1")
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, snowflake.ID(2), live.ID)
	assert.True(t, live.UnitPrice.Equal(decimal.NewFromInt(20)))

	all, err := repo.ListByResource(ctx, db, "r1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := Provide()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	o := newOrder(1, domain.StatusRunning, base)
	require.NoError(t, repo.Insert(ctx, db, o))

	o.Status = domain.StatusSuspended
	o.UnitPrice = decimal.NewFromInt(10)
	o.UpdatedAt = base.Add(time.Minute)
	require.NoError(t, repo.Update(ctx, db, o))

	got, err := repo.FindByID(ctx, db, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, got.Status)
	assert.True(t, got.UnitPrice.Equal(decimal.NewFromInt(10)))

	missing, err := repo.FindByID(ctx, db, snowflake.ID(404))
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, repo.Update(ctx, db, nil), gorm.ErrInvalidData)
}
