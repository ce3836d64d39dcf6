package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByResourceStatus(ctx context.Context, db *gorm.DB, resourceID, status string) (*Subscription, error)
	// ListByResource returns every subscription of the resource when status is empty.
	ListByResource(ctx context.Context, db *gorm.DB, resourceID, status string) ([]Subscription, error)
	// Rebind points an existing subscription at a new order and resource snapshot.
	Rebind(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	UpdateVolume(ctx context.Context, db *gorm.DB, resourceID string, volume int64, now time.Time) (int64, error)
}
