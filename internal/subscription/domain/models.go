// Package domain contains persistence models for priced resource components.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Component types. A subscription's Status holds one of these and never changes.
const (
	StatusRunning   = "running"
	StatusSuspended = "suspended"
)

// ComponentTypes lists the known component types.
var ComponentTypes = []string{StatusRunning, StatusSuspended}

// Subscription is one priced component of a resource.
type Subscription struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	OrderID        snowflake.ID    `gorm:"not null;index"`
	ResourceID     string          `gorm:"size:255;not null;uniqueIndex:ux_subscriptions_resource_status,priority:1"`
	ResourceName   string          `gorm:"type:text"`
	ResourceType   string          `gorm:"type:text;not null"`
	ResourceStatus string          `gorm:"type:text"`
	ResourceVolume int64           `gorm:"not null;default:0"`
	ProductID      int64           `gorm:"not null;index"`
	CurrentFee     decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	CronTime       *time.Time      `gorm:""`
	Status         string          `gorm:"size:255;not null;uniqueIndex:ux_subscriptions_resource_status,priority:2"`
	UserID         string          `gorm:"type:text;not null"`
	ProjectID      string          `gorm:"type:text;not null"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
