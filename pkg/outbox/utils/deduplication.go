package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/groupbuy/pkg/db"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var errAlreadyProcessed = errors.New("event already processed")

type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: 500 * time.Millisecond}

// ProcessWithDeduplication runs action at most once per eventID. The
// processed_events marker and the action share one transaction, so a failed
// action leaves the event eligible for redelivery.
func ProcessWithDeduplication(
	ctx context.Context,
	tx db.Transactor,
	logger *zap.Logger,
	eventID int64,
	policy RetryPolicy,
	action func() error,
) error {
	span := trace.SpanFromContext(ctx)
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

	err := tx.InTx(ctx, pgx.TxOptions{}, func(q db.Querier) error {
		query := `
			INSERT INTO processed_events (event_id)
			VALUES ($1)
		`

		if _, err := q.Exec(ctx, query, eventID); err != nil {
			if db.IsUniqueViolation(err) {
				return errAlreadyProcessed
			}

			span.RecordError(err)
			return err
		}

		var err error
		for i := 0; i < policy.Attempts; i++ {
			err = action()
			if err == nil {
				return nil
			}

			if i < policy.Attempts-1 {
				time.Sleep(policy.Delay)
			}
		}

		mylogger.Error(ctx, logger, "Failed to send after retries", zap.Int64("event_id", eventID), zap.Error(err))
		return fmt.Errorf("failed to send: %w", err)
	})

	if errors.Is(err, errAlreadyProcessed) {
		mylogger.Info(
			ctx,
			logger,
			"Event already processed, skipping",
			zap.Int64("event_id", eventID),
		)

		return nil
	}

	return err
}
