package repository

import (
	"context"

	"github.com/smallbiznis/waiter/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (id, name, service, region_id, unit_price, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.Name,
		product.Service,
		product.RegionID,
		product.UnitPrice,
		product.Description,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, service, region_id, unit_price, description, created_at, updated_at
		 FROM products WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByLookup(ctx context.Context, db *gorm.DB, name, service, regionID string, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 2
	}
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, service, region_id, unit_price, description, created_at, updated_at
		 FROM products
		 WHERE name = ? AND service = ? AND region_id = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		name,
		service,
		regionID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdatePrice(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE products SET unit_price = ?, description = ?, updated_at = ? WHERE id = ?`,
		product.UnitPrice,
		product.Description,
		product.UpdatedAt,
		product.ID,
	).Error
}
