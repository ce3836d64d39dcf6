package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waiter/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, resource_id, resource_name, resource_type, region_id, unit, unit_price,
	status, user_id, project_id, created_at, updated_at
	FROM orders`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (id, resource_id, resource_name, resource_type, region_id, unit, unit_price,
			status, user_id, project_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID,
		o.ResourceID,
		o.ResourceName,
		o.ResourceType,
		o.RegionID,
		o.Unit,
		o.UnitPrice,
		o.Status,
		o.UserID,
		o.ProjectID,
		o.CreatedAt,
		o.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var o domain.Order
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE id = ?`, id).Scan(&o).Error
	if err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

func (r *repo) FindLiveByResource(ctx context.Context, db *gorm.DB, resourceID string) (*domain.Order, error) {
	var o domain.Order
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE resource_id = ? AND status <> ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		resourceID,
		domain.StatusDeleted,
	).Scan(&o).Error
	if err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

func (r *repo) ListByResource(ctx context.Context, db *gorm.DB, resourceID string) ([]domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE resource_id = ? ORDER BY created_at ASC, id ASC`,
		resourceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	if o == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET resource_name = ?, unit_price = ?, status = ?, updated_at = ? WHERE id = ?`,
		o.ResourceName,
		o.UnitPrice,
		o.Status,
		o.UpdatedAt,
		o.ID,
	).Error
}
