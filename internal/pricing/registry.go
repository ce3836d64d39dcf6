package pricing

import (
	"fmt"

	"github.com/smallbiznis/waiter/internal/collection"
	"github.com/smallbiznis/waiter/internal/config"
	subscriptiondomain "github.com/smallbiznis/waiter/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("pricing",
	fx.Provide(NewRegistry),
)

// Registry maps resource families to their aggregator. It is built once at
// startup and read-only afterwards.
type Registry struct {
	aggregators map[string]*Aggregator
}

type RegistryParams struct {
	fx.In

	Config          config.WaiterConfig
	Subscriptionsvc subscriptiondomain.Service
	Log             *zap.Logger
}

func NewRegistry(p RegistryParams) (*Registry, error) {
	r := &Registry{aggregators: make(map[string]*Aggregator, len(p.Config.Families))}
	for _, family := range p.Config.Families {
		extensions := make([]Extension, 0, len(family.Extensions))
		for _, ext := range family.Extensions {
			ref := collection.ProductRef{ProductName: ext.Product, Service: family.Service}
			extensions = append(extensions, NewSizeItem(ext.Name, ref, p.Config.RegionName, p.Subscriptionsvc))
		}
		agg, err := NewAggregator(family.Name, extensions, p.Subscriptionsvc, p.Log)
		if err != nil {
			return nil, err
		}
		if _, dup := r.aggregators[family.Name]; dup {
			return nil, fmt.Errorf("family %s registered twice", family.Name)
		}
		r.aggregators[family.Name] = agg
	}
	return r, nil
}

func (r *Registry) Get(family string) (*Aggregator, bool) {
	agg, ok := r.aggregators[family]
	return agg, ok
}
