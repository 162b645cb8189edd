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

type UserRepository interface {
	GetByID(ctx context.Context, q db.Querier, id int64) (*domain.User, error)
	GetByIDs(ctx context.Context, q db.Querier, ids []int64) (map[int64]domain.User, error)
	List(ctx context.Context, q db.Querier, limit, offset int64) ([]domain.User, int64, error)
}

type userRepo struct {
	tracer trace.Tracer
	logger *zap.Logger
}

func NewUserRepository(logger *zap.Logger) UserRepository {
	return &userRepo{
		logger: logger,
		tracer: otel.Tracer("groupbuy/user_repo"),
	}
}

const userColumns = `id, full_name, email, phone, role, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.Phone,
		&u.Role,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}

	return &u, nil
}

func (r *userRepo) GetByID(ctx context.Context, q db.Querier, id int64) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("id", id))

	user, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error getting user",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting user: %w", err)
	}

	return user, nil
}

func (r *userRepo) GetByIDs(ctx context.Context, q db.Querier, ids []int64) (map[int64]domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.GetByIDs")
	defer span.End()

	span.SetAttributes(attribute.Int("count", len(ids)))

	users := make(map[int64]domain.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error getting users by ids",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning rows: %w", err)
		}
		users[u.ID] = *u
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return users, nil
}

func (r *userRepo) List(ctx context.Context, q db.Querier, limit, offset int64) ([]domain.User, int64, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("limit", limit),
		attribute.Int64("offset", offset),
	)

	rows, err := q.Query(
		ctx,
		`SELECT `+userColumns+` FROM users ORDER BY full_name ASC, id ASC LIMIT $1 OFFSET $2`,
		limit,
		offset,
	)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error listing users",
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("error listing users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			span.RecordError(err)
			return nil, 0, fmt.Errorf("error scanning rows: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	var total int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	return users, total, nil
}
