package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/waiter/internal/order/domain"
	subscriptiondomain "github.com/smallbiznis/waiter/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Repo            orderdomain.Repository
	Subscriptionsvc subscriptiondomain.Service
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	repo          orderdomain.Repository
	subscriptions subscriptiondomain.Service
}

func New(p Params) orderdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("order.service"),
		repo:          p.Repo,
		subscriptions: p.Subscriptionsvc,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*orderdomain.Response, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, orderdomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, orderdomain.ErrOrderNotFound
	}

	subs, err := s.subscriptions.ListByResource(ctx, s.db, item.ResourceID, "")
	if err != nil {
		return nil, err
	}
	return &orderdomain.Response{Order: *item, Subscriptions: subs}, nil
}

func (s *Service) ListByResource(ctx context.Context, resourceID string) ([]orderdomain.Order, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return nil, orderdomain.ErrOrderNotFound
	}
	return s.repo.ListByResource(ctx, s.db, resourceID)
}
