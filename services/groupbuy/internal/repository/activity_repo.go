package repository

import (
	"context"
	"fmt"

	"github.com/sakashimaa/groupbuy/pkg/db"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ActivityRepository interface {
	Record(ctx context.Context, q db.Querier, entry *domain.ActivityLog) error
}

type activityRepo struct {
	tracer trace.Tracer
}

func NewActivityRepository() ActivityRepository {
	return &activityRepo{
		tracer: otel.Tracer("groupbuy/activity_repo"),
	}
}

func (r *activityRepo) Record(ctx context.Context, q db.Querier, entry *domain.ActivityLog) error {
	ctx, span := r.tracer.Start(ctx, "ActivityRepository.Record")
	defer span.End()

	span.SetAttributes(
		attribute.String("action", entry.Action),
		attribute.String("entity_type", entry.EntityType),
		attribute.Int64("entity_id", entry.EntityID),
	)

	query := `
		INSERT INTO activity_logs (user_id, action, entity_type, entity_id, details)
		VALUES (NULLIF($1::bigint, 0), $2, $3, $4, $5)
		RETURNING id, created_at
	`

	var details any
	if len(entry.Details) > 0 {
		details = []byte(entry.Details)
	}

	if err := q.QueryRow(
		ctx,
		query,
		entry.UserID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		details,
	).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error recording activity: %w", err)
	}

	return nil
}
