package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/waiter/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, order_id, resource_id, resource_name, resource_type, resource_status,
	resource_volume, product_id, current_fee, cron_time, status, user_id, project_id, created_at, updated_at
	FROM subscriptions`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (id, order_id, resource_id, resource_name, resource_type, resource_status,
			resource_volume, product_id, current_fee, cron_time, status, user_id, project_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.OrderID,
		s.ResourceID,
		s.ResourceName,
		s.ResourceType,
		s.ResourceStatus,
		s.ResourceVolume,
		s.ProductID,
		s.CurrentFee,
		s.CronTime,
		s.Status,
		s.UserID,
		s.ProjectID,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

func (r *repo) FindByResourceStatus(ctx context.Context, db *gorm.DB, resourceID, status string) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE resource_id = ? AND status = ?`,
		resourceID,
		status,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) ListByResource(ctx context.Context, db *gorm.DB, resourceID, status string) ([]domain.Subscription, error) {
	var items []domain.Subscription
	query := selectColumns + ` WHERE resource_id = ?`
	args := []any{resourceID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Rebind(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET order_id = ?, resource_name = ?, resource_status = ?, resource_volume = ?,
			product_id = ?, user_id = ?, project_id = ?, updated_at = ?
		 WHERE id = ?`,
		s.OrderID,
		s.ResourceName,
		s.ResourceStatus,
		s.ResourceVolume,
		s.ProductID,
		s.UserID,
		s.ProjectID,
		s.UpdatedAt,
		s.ID,
	).Error
}

func (r *repo) UpdateVolume(ctx context.Context, db *gorm.DB, resourceID string, volume int64, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET resource_volume = ?, updated_at = ? WHERE resource_id = ?`,
		volume,
		now,
		resourceID,
	)
	return res.RowsAffected, res.Error
}
