package lifecycle

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waiter/internal/clock"
	"github.com/smallbiznis/waiter/internal/config"
	masterdomain "github.com/smallbiznis/waiter/internal/master/domain"
	obsmetrics "github.com/smallbiznis/waiter/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/waiter/internal/order/domain"
	"github.com/smallbiznis/waiter/internal/pricing"
	"github.com/smallbiznis/waiter/internal/resourcelock"
	subscriptiondomain "github.com/smallbiznis/waiter/internal/subscription/domain"
	"github.com/smallbiznis/waiter/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("lifecycle",
	fx.Provide(NewControllers),
)

type Params struct {
	fx.In

	Config          config.WaiterConfig
	DB              *gorm.DB
	Pricing         *pricing.Registry
	Orders          orderdomain.Repository
	Subscriptionsvc subscriptiondomain.Service
	Notifier        masterdomain.Notifier
	Locker          resourcelock.Locker
	GenID           *snowflake.Node
	Clock           clock.Clock
	Log             *zap.Logger
	Metrics         *obsmetrics.Metrics `optional:"true"`
	Prom            *telemetry.Metrics  `optional:"true"`
}

// Controllers holds one controller per configured family.
type Controllers struct {
	byFamily map[string]*Controller
	order    []string
}

func NewControllers(p Params) (*Controllers, error) {
	cs := &Controllers{byFamily: make(map[string]*Controller, len(p.Config.Families))}
	for _, family := range p.Config.Families {
		agg, ok := p.Pricing.Get(family.Name)
		if !ok {
			return nil, fmt.Errorf("family %s has no pricing aggregator", family.Name)
		}
		cs.byFamily[family.Name] = &Controller{
			family:        family,
			regionID:      p.Config.RegionName,
			aggregator:    agg,
			db:            p.DB,
			orders:        p.Orders,
			subscriptions: p.Subscriptionsvc,
			notifier:      p.Notifier,
			locker:        p.Locker,
			genID:         p.GenID,
			clock:         p.Clock,
			log:           p.Log.Named("lifecycle.controller").With(zap.String("family", family.Name)),
			metrics:       p.Metrics,
			prom:          p.Prom,
		}
		cs.order = append(cs.order, family.Name)
	}
	return cs, nil
}

func (cs *Controllers) Get(family string) (*Controller, bool) {
	c, ok := cs.byFamily[family]
	return c, ok
}

// Families lists the families in configuration order.
func (cs *Controllers) Families() []string {
	return append([]string(nil), cs.order...)
}
