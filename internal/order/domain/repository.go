package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	// FindLiveByResource returns the newest order of the resource that is not deleted.
	FindLiveByResource(ctx context.Context, db *gorm.DB, resourceID string) (*Order, error)
	ListByResource(ctx context.Context, db *gorm.DB, resourceID string) ([]Order, error)
	Update(ctx context.Context, db *gorm.DB, order *Order) error
}
