package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a priced catalog entry identified by (name, service, region).
type Product struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	Name        string          `json:"name" gorm:"size:255;not null;index:ix_products_lookup,priority:1"`
	Service     string          `json:"service" gorm:"size:255;not null;index:ix_products_lookup,priority:2"`
	RegionID    string          `json:"region_id" gorm:"column:region_id;size:255;not null;index:ix_products_lookup,priority:3"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:numeric(20,4);not null"`
	Description *string         `json:"description,omitempty" gorm:"type:text"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }
