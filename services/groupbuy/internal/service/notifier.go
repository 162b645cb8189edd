package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sakashimaa/groupbuy/pkg/db"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/repository"
	"go.uber.org/zap"
)

// Notifier accepts events for asynchronous delivery. Callers treat it as
// fire-and-forget: an error is logged, never returned to the user.
type Notifier interface {
	Enqueue(ctx context.Context, event domain.NotificationEvent) error
}

type Clock func() time.Time

func notify(ctx context.Context, n Notifier, logger *zap.Logger, event domain.NotificationEvent) {
	if err := n.Enqueue(ctx, event); err != nil {
		mylogger.Warn(
			ctx,
			logger,
			"Failed to enqueue notification",
			zap.String("event_type", event.Type),
			zap.Int64("group_order_id", event.GroupOrderID),
			zap.Error(err),
		)
	}
}

type actorKey struct{}

// WithActor records the id of the authenticated user performing a request.
func WithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

func ActorFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(actorKey{}).(int64)
	return id
}

// activityRecorder writes audit entries for admin actions. Failures are
// logged and otherwise ignored.
type activityRecorder struct {
	repo   repository.ActivityRepository
	q      db.Querier
	logger *zap.Logger
}

func (r *activityRecorder) record(ctx context.Context, action, entityType string, entityID int64, details any) {
	if r == nil || r.repo == nil {
		return
	}

	entry := &domain.ActivityLog{
		UserID:     ActorFrom(ctx),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = raw
		}
	}

	if err := r.repo.Record(ctx, r.q, entry); err != nil {
		mylogger.Warn(
			ctx,
			r.logger,
			"Failed to record activity",
			zap.String("action", action),
			zap.Int64("entity_id", entityID),
			zap.Error(err),
		)
	}
}
