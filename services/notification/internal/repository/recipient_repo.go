package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/groupbuy/pkg/db"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/services/notification/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrRecipientNotFound = errors.New("recipient not found")

// RecipientRepository resolves who receives each kind of notification.
// Users without an email address are never returned.
type RecipientRepository interface {
	ByUserID(ctx context.Context, q db.Querier, userID int64) (*domain.Recipient, error)
	ParticipantsOf(ctx context.Context, q db.Querier, groupOrderID int64) ([]domain.Recipient, error)
	ActiveCustomers(ctx context.Context, q db.Querier) ([]domain.Recipient, error)
}

type recipientRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewRecipientRepository(logger *zap.Logger) RecipientRepository {
	return &recipientRepo{
		logger: logger,
		tracer: otel.Tracer("notification/recipient_repo"),
	}
}

func (r *recipientRepo) ByUserID(ctx context.Context, q db.Querier, userID int64) (*domain.Recipient, error) {
	ctx, span := r.tracer.Start(ctx, "RecipientRepository.ByUserID")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	query := `
		SELECT id, full_name, email
		FROM users
		WHERE id = $1 AND email <> ''
	`

	var recipient domain.Recipient
	err := q.QueryRow(ctx, query, userID).Scan(&recipient.UserID, &recipient.FullName, &recipient.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipientNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error loading recipient", zap.Int64("user_id", userID), zap.Error(err))

		return nil, fmt.Errorf("error loading recipient: %w", err)
	}

	return &recipient, nil
}

func (r *recipientRepo) ParticipantsOf(ctx context.Context, q db.Querier, groupOrderID int64) ([]domain.Recipient, error) {
	ctx, span := r.tracer.Start(ctx, "RecipientRepository.ParticipantsOf")
	defer span.End()

	span.SetAttributes(attribute.Int64("group_order_id", groupOrderID))

	query := `
		SELECT u.id, u.full_name, u.email
		FROM orders o
		JOIN users u ON u.id = o.user_id
		WHERE o.general_order_id = $1 AND u.email <> ''
		ORDER BY o.created_at, o.id
	`

	return r.list(ctx, span, q, "participants", query, groupOrderID)
}

func (r *recipientRepo) ActiveCustomers(ctx context.Context, q db.Querier) ([]domain.Recipient, error) {
	ctx, span := r.tracer.Start(ctx, "RecipientRepository.ActiveCustomers")
	defer span.End()

	query := `
		SELECT id, full_name, email
		FROM users
		WHERE is_active AND role <> 'admin' AND email <> ''
		ORDER BY id
	`

	return r.list(ctx, span, q, "active customers", query)
}

func (r *recipientRepo) list(ctx context.Context, span trace.Span, q db.Querier, what, query string, args ...any) ([]domain.Recipient, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error querying "+what, zap.Error(err))

		return nil, fmt.Errorf("error querying %s: %w", what, err)
	}

	recipients, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Recipient])
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error scanning "+what, zap.Error(err))

		return nil, fmt.Errorf("error scanning %s: %w", what, err)
	}

	span.SetAttributes(attribute.Int("recipients", len(recipients)))
	return recipients, nil
}
