package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waiter/internal/clock"
	"github.com/smallbiznis/waiter/internal/master/domain"
	obsmetrics "github.com/smallbiznis/waiter/internal/observability/metrics"
	"github.com/smallbiznis/waiter/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Notifier writes master notifications to the outbox; the relay delivers them.
type Notifier struct {
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *obsmetrics.Metrics
}

func NewNotifier(p Params) domain.Notifier {
	return &Notifier{
		log:     p.Log.Named("master.notifier"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (n *Notifier) Notify(ctx context.Context, tx *gorm.DB, note domain.Notification) error {
	if !domain.ValidAction(note.Action) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidAction, note.Action)
	}

	payload := datatypes.JSONMap(correlation.Metadata(ctx))
	payload["family"] = note.Family
	payload["resource_id"] = note.ResourceID
	payload["unit_price"] = note.UnitPrice.StringFixed(4)

	now := n.clock.Now()
	event := &domain.Event{
		ID:            n.genID.Generate(),
		OrderID:       note.OrderID,
		Action:        note.Action,
		ActionTime:    note.ActionTime.UTC(),
		Remarks:       note.Remarks,
		Payload:       payload,
		DedupeKey:     DedupeKey(note),
		NextAttemptAt: now,
		CreatedAt:     now,
	}

	inserted, err := n.repo.Insert(ctx, tx, event)
	if err != nil {
		return err
	}
	if !inserted {
		n.log.Debug("master event already queued",
			zap.String("order_id", note.OrderID.String()),
			zap.String("action", note.Action),
		)
		n.metrics.RecordMasterEvent(ctx, note.Action, "duplicate")
		return nil
	}
	n.metrics.RecordMasterEvent(ctx, note.Action, "queued")
	return nil
}

// DedupeKey identifies a notification so redelivered events queue it once.
func DedupeKey(note domain.Notification) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s",
		note.ActionTime.UTC().UnixNano(),
		note.Remarks,
		note.UnitPrice.StringFixed(4),
	)))
	return note.OrderID.String() + ":" + note.Action + ":" + hex.EncodeToString(sum[:8])
}
