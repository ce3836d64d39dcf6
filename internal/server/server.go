package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/waiter/internal/clock"
	"github.com/smallbiznis/waiter/internal/config"
	"github.com/smallbiznis/waiter/internal/lifecycle"
	"github.com/smallbiznis/waiter/internal/notification"
	"github.com/smallbiznis/waiter/internal/observability"
	obsmiddleware "github.com/smallbiznis/waiter/internal/observability/logger"
	obstracing "github.com/smallbiznis/waiter/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/waiter/internal/order/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	SetupValidator()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obstracing.MiddlewareConfig{
		SkipPaths:  []string{"/health", "/metrics"},
		Attributes: spanAttributes,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func spanAttributes(c *gin.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if eventType := c.GetString(contextEventTypeKey); eventType != "" {
		attrs = append(attrs, attribute.String("waiter.event_type", eventType))
	}
	if family := c.Param("family"); family != "" {
		attrs = append(attrs, attribute.String("waiter.family", family))
	}
	return attrs
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// Dispatcher applies one raw notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, raw []byte) (notification.Result, error)
}

type Server struct {
	engine      *gin.Engine
	dispatcher  Dispatcher
	controllers *lifecycle.Controllers
	orderSvc    orderdomain.Service
	clock       clock.Clock
	log         *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Dispatcher  *notification.Dispatcher
	Controllers *lifecycle.Controllers
	OrderSvc    orderdomain.Service
	Clock       clock.Clock
	Log         *zap.Logger
}

func NewServer(p ServerParams) *Server {
	return New(p.Gin, p.Dispatcher, p.Controllers, p.OrderSvc, p.Clock, p.Log)
}

// New registers the API routes on engine.
func New(engine *gin.Engine, dispatcher Dispatcher, controllers *lifecycle.Controllers, orders orderdomain.Service, clk clock.Clock, log *zap.Logger) *Server {
	s := &Server{
		engine:      engine,
		dispatcher:  dispatcher,
		controllers: controllers,
		orderSvc:    orders,
		clock:       clk,
		log:         log.Named("http.server"),
	}
	s.registerAPIRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")
	{
		api.POST("/notifications", LimitBody(maxNotificationBytes), s.IngestNotification)

		resources := api.Group("/resources")
		{
			resources.POST("/:family/recreate", s.RecreateResource)
		}

		orders := api.Group("/orders")
		{
			orders.GET("", s.ListOrders)
			orders.GET("/:id", s.GetOrder)
		}
	}
}
