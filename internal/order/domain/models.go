package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const (
	StatusRunning   = "running"
	StatusSuspended = "suspended"
	StatusDeleted   = "deleted"
)

// Order tracks the billable lifecycle of one resource.
type Order struct {
	ID           snowflake.ID    `json:"order_id" gorm:"primaryKey"`
	ResourceID   string          `json:"resource_id" gorm:"size:255;not null;index"`
	ResourceName string          `json:"resource_name" gorm:"type:text"`
	ResourceType string          `json:"resource_type" gorm:"type:text;not null"`
	RegionID     string          `json:"region_id" gorm:"type:text;not null"`
	Unit         string          `json:"unit" gorm:"type:text;not null"`
	UnitPrice    decimal.Decimal `json:"unit_price" gorm:"type:numeric(20,4);not null;default:0"`
	Status       string          `json:"status" gorm:"size:255;not null;index"`
	UserID       string          `json:"user_id" gorm:"type:text;not null"`
	ProjectID    string          `json:"project_id" gorm:"type:text;not null"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

func (o Order) Live() bool {
	return o.Status != StatusDeleted
}
