// Package domain holds the outbox of notifications owed to the billing master.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Actions reported to the billing master.
const (
	ActionCreated      = "created"
	ActionCreatedAgain = "created_again"
	ActionDeleted      = "deleted"
	ActionChanged      = "changed"
	ActionResized      = "resized"
)

// Event is one pending or delivered master notification. It is written in
// the same transaction as the order change it describes.
type Event struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	OrderID       snowflake.ID      `gorm:"not null;index"`
	Action        string            `gorm:"type:text;not null"`
	ActionTime    time.Time         `gorm:"not null"`
	Remarks       string            `gorm:"type:text;not null"`
	Payload       datatypes.JSONMap `gorm:"not null"`
	DedupeKey     string            `gorm:"size:255;not null;uniqueIndex:ux_master_events_dedupe"`
	Published     bool              `gorm:"not null;default:false;index:ix_master_events_due,priority:1"`
	Attempts      int               `gorm:"not null;default:0"`
	LastError     *string           `gorm:"type:text"`
	NextAttemptAt time.Time         `gorm:"not null;index:ix_master_events_due,priority:2"`
	PublishedAt   *time.Time        `gorm:""`
	CreatedAt     time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "master_events" }
