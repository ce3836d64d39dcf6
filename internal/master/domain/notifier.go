package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrInvalidAction = errors.New("invalid_master_action")

// Notification describes one order change owed to the billing master.
type Notification struct {
	OrderID    snowflake.ID
	Action     string
	ActionTime time.Time
	Remarks    string
	Family     string
	ResourceID string
	UnitPrice  decimal.Decimal
}

// Notifier records master notifications inside the caller's transaction.
type Notifier interface {
	Notify(ctx context.Context, db *gorm.DB, n Notification) error
}

func ValidAction(action string) bool {
	switch action {
	case ActionCreated, ActionCreatedAgain, ActionDeleted, ActionChanged, ActionResized:
		return true
	}
	return false
}
