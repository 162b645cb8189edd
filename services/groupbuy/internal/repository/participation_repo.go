package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/groupbuy/pkg/db"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ParticipationRepository interface {
	// Upsert creates the (user, group order) row or updates its total, and
	// reports whether a new row was inserted. It row-locks the participation
	// until the surrounding transaction ends.
	Upsert(ctx context.Context, q db.Querier, p *domain.Participation) (bool, error)
	ReplaceItems(ctx context.Context, q db.Querier, participationID int64, items []domain.LineItem) error
	Get(ctx context.Context, q db.Querier, userID, groupOrderID int64) (*domain.Participation, error)
	ListByGroupOrder(ctx context.Context, q db.Querier, groupOrderID int64) ([]domain.Participation, error)
	Delete(ctx context.Context, q db.Querier, userID, groupOrderID int64) (bool, error)
	DeleteByGroupOrder(ctx context.Context, q db.Querier, groupOrderID int64) (int64, error)
}

type participationRepo struct {
	tracer trace.Tracer
	logger *zap.Logger
}

func NewParticipationRepository(logger *zap.Logger) ParticipationRepository {
	return &participationRepo{
		logger: logger,
		tracer: otel.Tracer("groupbuy/participation_repo"),
	}
}

func (r *participationRepo) Upsert(ctx context.Context, q db.Querier, p *domain.Participation) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "ParticipationRepository.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", p.UserID),
		attribute.Int64("group_order_id", p.GroupOrderID),
	)

	query := `
		INSERT INTO orders (user_id, general_order_id, total_amount, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, general_order_id) DO UPDATE
		SET total_amount = EXCLUDED.total_amount, updated_at = NOW()
		RETURNING id, status, created_at, updated_at, (xmax = 0) AS inserted
	`

	if p.Status == "" {
		p.Status = domain.ParticipationPending
	}

	var (
		inserted bool
		status   string
	)
	err := q.QueryRow(
		ctx,
		query,
		p.UserID,
		p.GroupOrderID,
		p.TotalAmount,
		string(p.Status),
	).Scan(&p.ID, &status, &p.CreatedAt, &p.UpdatedAt, &inserted)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error upserting participation",
			zap.Int64("user_id", p.UserID),
			zap.Int64("group_order_id", p.GroupOrderID),
			zap.Error(err),
		)

		return false, fmt.Errorf("error upserting participation: %w", err)
	}
	p.Status = domain.ParticipationStatus(status)

	span.SetAttributes(attribute.Bool("inserted", inserted))
	return inserted, nil
}

func (r *participationRepo) ReplaceItems(ctx context.Context, q db.Querier, participationID int64, items []domain.LineItem) error {
	ctx, span := r.tracer.Start(ctx, "ParticipationRepository.ReplaceItems")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("participation_id", participationID),
		attribute.Int("items", len(items)),
	)

	if _, err := q.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, participationID); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error deleting line items",
			zap.Int64("participation_id", participationID),
			zap.Error(err),
		)

		return fmt.Errorf("error deleting line items: %w", err)
	}

	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	for i := range items {
		item := &items[i]
		item.ParticipationID = participationID

		err := q.QueryRow(
			ctx,
			query,
			participationID,
			item.ProductID,
			item.Quantity,
			item.UnitPrice,
			item.TotalPrice,
		).Scan(&item.ID)
		if err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Error inserting line item",
				zap.Int64("participation_id", participationID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err),
			)

			return fmt.Errorf("error inserting line item: %w", err)
		}
	}

	return nil
}

func (r *participationRepo) Get(ctx context.Context, q db.Querier, userID, groupOrderID int64) (*domain.Participation, error) {
	ctx, span := r.tracer.Start(ctx, "ParticipationRepository.Get")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int64("group_order_id", groupOrderID),
	)

	query := `
		SELECT id, user_id, general_order_id, total_amount, status, created_at, updated_at
		FROM orders
		WHERE user_id = $1 AND general_order_id = $2
	`

	p, err := scanParticipation(q.QueryRow(ctx, query, userID, groupOrderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipationNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error getting participation",
			zap.Int64("user_id", userID),
			zap.Int64("group_order_id", groupOrderID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting participation: %w", err)
	}

	items, err := r.loadItems(ctx, q, []int64{p.ID})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	p.Items = items[p.ID]

	return p, nil
}

// ListByGroupOrder returns participations ordered by creation time, with
// their line items and the product names they reference.
func (r *participationRepo) ListByGroupOrder(ctx context.Context, q db.Querier, groupOrderID int64) ([]domain.Participation, error) {
	ctx, span := r.tracer.Start(ctx, "ParticipationRepository.ListByGroupOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("group_order_id", groupOrderID),
	)

	query := `
		SELECT id, user_id, general_order_id, total_amount, status, created_at, updated_at
		FROM orders
		WHERE general_order_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := q.Query(ctx, query, groupOrderID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error listing participations",
			zap.Int64("group_order_id", groupOrderID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error listing participations: %w", err)
	}
	defer rows.Close()

	var (
		participations []domain.Participation
		ids            []int64
	)
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning rows: %w", err)
		}
		participations = append(participations, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	if len(ids) == 0 {
		return participations, nil
	}

	items, err := r.loadItems(ctx, q, ids)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for i := range participations {
		participations[i].Items = items[participations[i].ID]
	}

	return participations, nil
}

func (r *participationRepo) Delete(ctx context.Context, q db.Querier, userID, groupOrderID int64) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "ParticipationRepository.Delete")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int64("group_order_id", groupOrderID),
	)

	itemsQuery := `
		DELETE FROM order_items
		WHERE order_id IN (SELECT id FROM orders WHERE user_id = $1 AND general_order_id = $2)
	`
	if _, err := q.Exec(ctx, itemsQuery, userID, groupOrderID); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("error deleting line items: %w", err)
	}

	commandTag, err := q.Exec(ctx, `DELETE FROM orders WHERE user_id = $1 AND general_order_id = $2`, userID, groupOrderID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error deleting participation",
			zap.Int64("user_id", userID),
			zap.Int64("group_order_id", groupOrderID),
			zap.Error(err),
		)

		return false, fmt.Errorf("error deleting participation: %w", err)
	}

	return commandTag.RowsAffected() > 0, nil
}

func (r *participationRepo) DeleteByGroupOrder(ctx context.Context, q db.Querier, groupOrderID int64) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "ParticipationRepository.DeleteByGroupOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("group_order_id", groupOrderID),
	)

	itemsQuery := `
		DELETE FROM order_items
		WHERE order_id IN (SELECT id FROM orders WHERE general_order_id = $1)
	`
	if _, err := q.Exec(ctx, itemsQuery, groupOrderID); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("error deleting line items: %w", err)
	}

	commandTag, err := q.Exec(ctx, `DELETE FROM orders WHERE general_order_id = $1`, groupOrderID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error deleting participations of group order",
			zap.Int64("group_order_id", groupOrderID),
			zap.Error(err),
		)

		return 0, fmt.Errorf("error deleting participations: %w", err)
	}

	removed := commandTag.RowsAffected()
	span.SetAttributes(attribute.Int64("removed", removed))
	return removed, nil
}

func (r *participationRepo) loadItems(ctx context.Context, q db.Querier, participationIDs []int64) (map[int64][]domain.LineItem, error) {
	query := `
		SELECT oi.id, oi.order_id, oi.product_id, COALESCE(p.name, ''), COALESCE(p.category, ''),
			oi.quantity, oi.unit_price, oi.total_price
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id ASC, oi.id ASC
	`

	rows, err := q.Query(ctx, query, participationIDs)
	if err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Error getting line items",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting line items: %w", err)
	}
	defer rows.Close()

	items := make(map[int64][]domain.LineItem, len(participationIDs))
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(
			&item.ID,
			&item.ParticipationID,
			&item.ProductID,
			&item.ProductName,
			&item.Category,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalPrice,
		); err != nil {
			return nil, fmt.Errorf("error scanning line item: %w", err)
		}
		items[item.ParticipationID] = append(items[item.ParticipationID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return items, nil
}

func scanParticipation(row pgx.Row) (*domain.Participation, error) {
	var (
		p      domain.Participation
		status string
	)
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.GroupOrderID,
		&p.TotalAmount,
		&status,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = domain.ParticipationStatus(status)

	return &p, nil
}
