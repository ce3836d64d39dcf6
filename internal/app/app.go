package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waiter/internal/clock"
	"github.com/smallbiznis/waiter/internal/config"
	"github.com/smallbiznis/waiter/internal/consumer"
	"github.com/smallbiznis/waiter/internal/lifecycle"
	"github.com/smallbiznis/waiter/internal/master"
	"github.com/smallbiznis/waiter/internal/migration"
	"github.com/smallbiznis/waiter/internal/notification"
	"github.com/smallbiznis/waiter/internal/observability"
	"github.com/smallbiznis/waiter/internal/order"
	"github.com/smallbiznis/waiter/internal/pricing"
	"github.com/smallbiznis/waiter/internal/product"
	"github.com/smallbiznis/waiter/internal/resourcelock"
	"github.com/smallbiznis/waiter/internal/server"
	"github.com/smallbiznis/waiter/internal/subscription"
	"github.com/smallbiznis/waiter/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const startTimeout = 30 * time.Second

// Core wires configuration, storage and the billing services without any
// inbound transport.
func Core() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		product.Module,
		subscription.Module,
		order.Module,
		pricing.Module,
		resourcelock.Module,
		master.Module,
		lifecycle.Module,
		notification.Module,
	)
}

// RunServer starts the HTTP ingest, the stream consumer and the master relay.
func RunServer(migrate bool) {
	opts := []fx.Option{Core()}
	if migrate {
		opts = append(opts, migration.Module)
	}
	opts = append(opts,
		server.Module,
		consumer.Module,
		master.RelayModule,
	)

	fx.New(opts...).Run()
}

// RunMigrations creates the schema and seeds the configured catalog.
func RunMigrations() error {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		product.Module,
		migration.Module,
		fx.NopLogger,
	)
	return startStop(app)
}

// Replay applies one stored notification through the dispatcher. Master
// events it produces stay queued for the relay.
func Replay(path, eventType string) (notification.Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read notification: %w", err)
	}

	var (
		dispatcher *notification.Dispatcher
		log        *zap.Logger
	)
	app := fx.New(
		Core(),
		fx.Populate(&dispatcher, &log),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return "", err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), startTimeout)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	result, err := dispatcher.Dispatch(context.Background(), eventType, raw)
	log.Info("notification replayed",
		zap.String("path", path),
		zap.String("result", string(result)),
	)
	return result, err
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func startStop(app *fx.App) error {
	startCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), startTimeout)
	defer stopCancel()
	return app.Stop(stopCtx)
}
