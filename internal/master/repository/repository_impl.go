package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waiter/internal/master/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FetchDue returns due events, at most one per order: an event waits while an
// earlier event of its order is neither published nor abandoned.
func (r *repo) FetchDue(ctx context.Context, db *gorm.DB, now time.Time, maxAttempts, limit int) ([]domain.Event, error) {
	var items []domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT m.id, m.order_id, m.action, m.action_time, m.remarks, m.payload, m.dedupe_key, m.published,
			m.attempts, m.last_error, m.next_attempt_at, m.published_at, m.created_at
		 FROM master_events m
		 WHERE m.published = ? AND m.next_attempt_at <= ? AND m.attempts < ?
		   AND NOT EXISTS (
			SELECT 1 FROM master_events p
			WHERE p.order_id = m.order_id AND p.id < m.id AND p.published = ? AND p.attempts < ?
		   )
		 ORDER BY m.next_attempt_at ASC, m.id ASC
		 LIMIT ?`,
		false,
		now,
		maxAttempts,
		false,
		maxAttempts,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkPublished(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE master_events SET published = ?, published_at = ?, last_error = NULL WHERE id = ?`,
		true,
		at,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, nextAttemptAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE master_events SET attempts = ?, last_error = ?, next_attempt_at = ? WHERE id = ?`,
		attempts,
		lastError,
		nextAttemptAt,
		id,
	).Error
}

func (r *repo) ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.Event, error) {
	var items []domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, action, action_time, remarks, payload, dedupe_key, published,
			attempts, last_error, next_attempt_at, published_at, created_at
		 FROM master_events
		 WHERE order_id = ?
		 ORDER BY created_at ASC, id ASC`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
