package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/groupbuy/pkg/db"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type GroupOrderFilter struct {
	Statuses []domain.Status
	Limit    int64
	Offset   int64
}

type GroupOrderRepository interface {
	Create(ctx context.Context, q db.Querier, order *domain.GroupOrder) error
	GetByID(ctx context.Context, q db.Querier, id int64) (*domain.GroupOrder, error)
	// GetForShare locks the row against concurrent update or delete until
	// the surrounding transaction ends.
	GetForShare(ctx context.Context, q db.Querier, id int64) (*domain.GroupOrder, error)
	GetForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.GroupOrder, error)
	List(ctx context.Context, q db.Querier, filter GroupOrderFilter) ([]domain.GroupOrder, error)
	Update(ctx context.Context, q db.Querier, order *domain.GroupOrder) error
	Delete(ctx context.Context, q db.Querier, id int64) error
	// CloseExpired and OpenDue return only the rows this call transitioned.
	CloseExpired(ctx context.Context, q db.Querier, now time.Time) ([]domain.GroupOrder, error)
	OpenDue(ctx context.Context, q db.Querier, now time.Time) ([]domain.GroupOrder, error)
}

type groupOrderRepo struct {
	tracer trace.Tracer
	logger *zap.Logger
}

func NewGroupOrderRepository(logger *zap.Logger) GroupOrderRepository {
	return &groupOrderRepo{
		logger: logger,
		tracer: otel.Tracer("groupbuy/group_order_repo"),
	}
}

const groupOrderColumns = `id, title, description, opening_time, deadline, status,
	COALESCE(created_by, 0), created_at, updated_at`

func scanGroupOrder(row pgx.Row) (*domain.GroupOrder, error) {
	var (
		order  domain.GroupOrder
		status string
	)
	if err := row.Scan(
		&order.ID,
		&order.Title,
		&order.Description,
		&order.OpeningTime,
		&order.Deadline,
		&status,
		&order.CreatedBy,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	order.Status = parsed

	return &order, nil
}

func (r *groupOrderRepo) Create(ctx context.Context, q db.Querier, order *domain.GroupOrder) error {
	ctx, span := r.tracer.Start(ctx, "GroupOrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("title", order.Title),
		attribute.String("status", string(order.Status)),
	)

	query := `
		INSERT INTO general_orders (title, description, opening_time, deadline, status, created_by)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6::bigint, 0))
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(
		ctx,
		query,
		order.Title,
		order.Description,
		order.OpeningTime,
		order.Deadline,
		string(order.Status),
		order.CreatedBy,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error creating group order",
			zap.Error(err),
		)

		return fmt.Errorf("error creating group order: %w", err)
	}

	return nil
}

func (r *groupOrderRepo) GetByID(ctx context.Context, q db.Querier, id int64) (*domain.GroupOrder, error) {
	return r.get(ctx, q, id, "GroupOrderRepository.GetByID", "")
}

func (r *groupOrderRepo) GetForShare(ctx context.Context, q db.Querier, id int64) (*domain.GroupOrder, error) {
	return r.get(ctx, q, id, "GroupOrderRepository.GetForShare", " FOR SHARE")
}

func (r *groupOrderRepo) GetForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.GroupOrder, error) {
	return r.get(ctx, q, id, "GroupOrderRepository.GetForUpdate", " FOR UPDATE")
}

func (r *groupOrderRepo) get(ctx context.Context, q db.Querier, id int64, spanName, lock string) (*domain.GroupOrder, error) {
	ctx, span := r.tracer.Start(ctx, spanName)
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	query := `SELECT ` + groupOrderColumns + ` FROM general_orders WHERE id = $1` + lock

	order, err := scanGroupOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupOrderNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error getting group order",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting group order: %w", err)
	}

	return order, nil
}

func (r *groupOrderRepo) List(ctx context.Context, q db.Querier, filter GroupOrderFilter) ([]domain.GroupOrder, error) {
	ctx, span := r.tracer.Start(ctx, "GroupOrderRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("limit", filter.Limit),
		attribute.Int64("offset", filter.Offset),
	)

	query := `SELECT ` + groupOrderColumns + ` FROM general_orders`

	var args []interface{}
	argId := 1

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
			if s == domain.StatusClosed {
				statuses = append(statuses, "completed")
			}
		}

		query += fmt.Sprintf(" WHERE status = ANY($%d)", argId)
		args = append(args, statuses)
		argId++
	}

	query += " ORDER BY deadline ASC, id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argId, argId+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error listing group orders",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error listing group orders: %w", err)
	}

	return r.collect(ctx, span, rows)
}

func (r *groupOrderRepo) Update(ctx context.Context, q db.Querier, order *domain.GroupOrder) error {
	ctx, span := r.tracer.Start(ctx, "GroupOrderRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", order.ID),
		attribute.String("status", string(order.Status)),
	)

	query := `
		UPDATE general_orders
		SET title = $1, description = $2, opening_time = $3, deadline = $4, status = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at
	`

	err := q.QueryRow(
		ctx,
		query,
		order.Title,
		order.Description,
		order.OpeningTime,
		order.Deadline,
		string(order.Status),
		order.ID,
	).Scan(&order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrGroupOrderNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update group order",
			zap.Int64("id", order.ID),
			zap.Error(err),
		)

		return fmt.Errorf("error updating group order: %w", err)
	}

	return nil
}

func (r *groupOrderRepo) Delete(ctx context.Context, q db.Querier, id int64) error {
	ctx, span := r.tracer.Start(ctx, "GroupOrderRepository.Delete")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	commandTag, err := q.Exec(ctx, `DELETE FROM general_orders WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error deleting group order",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return fmt.Errorf("error deleting group order: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrGroupOrderNotFound
	}

	return nil
}

func (r *groupOrderRepo) CloseExpired(ctx context.Context, q db.Querier, now time.Time) ([]domain.GroupOrder, error) {
	ctx, span := r.tracer.Start(ctx, "GroupOrderRepository.CloseExpired")
	defer span.End()

	query := `
		UPDATE general_orders
		SET status = 'closed', updated_at = NOW()
		WHERE status NOT IN ('closed', 'completed') AND deadline <= $1
		RETURNING ` + groupOrderColumns

	rows, err := q.Query(ctx, query, now)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error closing expired group orders",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error closing expired group orders: %w", err)
	}

	orders, err := r.collect(ctx, span, rows)
	span.SetAttributes(attribute.Int("closed", len(orders)))
	return orders, err
}

func (r *groupOrderRepo) OpenDue(ctx context.Context, q db.Querier, now time.Time) ([]domain.GroupOrder, error) {
	ctx, span := r.tracer.Start(ctx, "GroupOrderRepository.OpenDue")
	defer span.End()

	query := `
		UPDATE general_orders
		SET status = 'open', updated_at = NOW()
		WHERE status = 'scheduled'
			AND (opening_time IS NULL OR opening_time <= $1)
			AND deadline > $1
		RETURNING ` + groupOrderColumns

	rows, err := q.Query(ctx, query, now)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error opening due group orders",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error opening due group orders: %w", err)
	}

	orders, err := r.collect(ctx, span, rows)
	span.SetAttributes(attribute.Int("opened", len(orders)))
	return orders, err
}

func (r *groupOrderRepo) collect(ctx context.Context, span trace.Span, rows pgx.Rows) ([]domain.GroupOrder, error) {
	defer rows.Close()

	var orders []domain.GroupOrder
	for rows.Next() {
		order, err := scanGroupOrder(rows)
		if err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to scan rows",
				zap.Error(err),
			)

			return nil, fmt.Errorf("error scanning rows: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Rows iteration error",
			zap.Error(err),
		)

		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return orders, nil
}
