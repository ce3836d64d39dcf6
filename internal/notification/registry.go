package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/smallbiznis/waiter/internal/config"
	"github.com/smallbiznis/waiter/internal/event"
	"github.com/smallbiznis/waiter/internal/lifecycle"
	subscriptiondomain "github.com/smallbiznis/waiter/internal/subscription/domain"
)

// Lifecycle actions a route can drive.
const (
	ActionCreate  = "create"
	ActionDelete  = "delete"
	ActionResize  = "resize"
	ActionSuspend = "suspend"
	ActionResume  = "resume"
)

var (
	ErrUnknownEventType = errors.New("unknown_event_type")
	ErrDuplicateRoute   = errors.New("duplicate_route")
)

// Handler applies one decoded notification.
type Handler func(ctx context.Context, at time.Time, res event.Resource) error

type Route struct {
	EventType    string
	Family       string
	ResourceType string
	Action       string
	Decode       event.PayloadDecoder
	Handler      Handler
}

// Registry maps event types to routes. It is filled at startup and only read
// afterwards.
type Registry struct {
	routes map[string]Route
}

func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]Route)}
}

func (r *Registry) Register(route Route) error {
	if route.EventType == "" {
		return errors.New("route event type cannot be empty")
	}
	if route.Decode == nil || route.Handler == nil {
		return fmt.Errorf("route %s: decoder and handler are required", route.EventType)
	}
	if existing, ok := r.routes[route.EventType]; ok {
		return fmt.Errorf("%w: %s already routed to %s/%s", ErrDuplicateRoute, route.EventType, existing.Family, existing.Action)
	}
	r.routes[route.EventType] = route
	return nil
}

func (r *Registry) Lookup(eventType string) (Route, error) {
	route, ok := r.routes[eventType]
	if !ok {
		return Route{}, ErrUnknownEventType
	}
	return route, nil
}

// EventTypes lists the registered event types in lexical order.
func (r *Registry) EventTypes() []string {
	types := make([]string, 0, len(r.routes))
	for t := range r.routes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// BuildRegistry routes the configured event types of every family to its
// lifecycle controller.
func BuildRegistry(cfg config.WaiterConfig, controllers *lifecycle.Controllers) (*Registry, error) {
	reg := NewRegistry()
	for _, family := range cfg.Families {
		ctrl, ok := controllers.Get(family.Name)
		if !ok {
			return nil, fmt.Errorf("family %s has no lifecycle controller", family.Name)
		}
		decode, ok := event.DecoderFor(family.ResourceType)
		if !ok {
			return nil, fmt.Errorf("family %s: no payload decoder for resource type %s", family.Name, family.ResourceType)
		}

		add := func(eventType, action string, h Handler) error {
			if eventType == "" {
				return nil
			}
			return reg.Register(Route{
				EventType:    eventType,
				Family:       family.Name,
				ResourceType: family.ResourceType,
				Action:       action,
				Decode:       decode,
				Handler:      h,
			})
		}

		if err := add(family.Events.Create, ActionCreate, func(ctx context.Context, at time.Time, res event.Resource) error {
			_, err := ctrl.Create(ctx, at, res, "")
			return err
		}); err != nil {
			return nil, err
		}
		if err := add(family.Events.Delete, ActionDelete, func(ctx context.Context, at time.Time, res event.Resource) error {
			_, err := ctrl.Delete(ctx, at, res)
			return err
		}); err != nil {
			return nil, err
		}
		for _, eventType := range family.Events.Resize {
			if err := add(eventType, ActionResize, func(ctx context.Context, at time.Time, res event.Resource) error {
				_, err := ctrl.Resize(ctx, at, res)
				return err
			}); err != nil {
				return nil, err
			}
		}
		if err := add(family.Events.Suspend, ActionSuspend, func(ctx context.Context, at time.Time, res event.Resource) error {
			_, err := ctrl.ChangeStatus(ctx, at, res, subscriptiondomain.StatusSuspended)
			return err
		}); err != nil {
			return nil, err
		}
		if err := add(family.Events.Resume, ActionResume, func(ctx context.Context, at time.Time, res event.Resource) error {
			_, err := ctrl.ChangeStatus(ctx, at, res, subscriptiondomain.StatusRunning)
			return err
		}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
