package domain

import (
	"context"
	"errors"

	subscriptiondomain "github.com/smallbiznis/waiter/internal/subscription/domain"
)

// Service exposes read access to orders for operators.
type Service interface {
	Get(ctx context.Context, id string) (*Response, error)
	ListByResource(ctx context.Context, resourceID string) ([]Order, error)
}

type Response struct {
	Order         Order                             `json:"order"`
	Subscriptions []subscriptiondomain.Subscription `json:"subscriptions"`
}

var (
	ErrOrderNotFound = errors.New("order_not_found")
	ErrInvalidID     = errors.New("invalid_id")
)
