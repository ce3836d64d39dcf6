package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert ignores events whose dedupe key already exists and reports
	// whether a row was written.
	Insert(ctx context.Context, db *gorm.DB, event *Event) (bool, error)
	FetchDue(ctx context.Context, db *gorm.DB, now time.Time, maxAttempts, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, nextAttemptAt time.Time) error
	ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]Event, error)
}
