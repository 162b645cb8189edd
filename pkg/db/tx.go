package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"go.uber.org/zap"
)

// Transactor runs fn inside a single database transaction. The transaction
// is committed when fn returns nil and rolled back otherwise.
type Transactor interface {
	InTx(ctx context.Context, opts pgx.TxOptions, fn func(q Querier) error) error
}

type poolTransactor struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewTransactor(pool *pgxpool.Pool, logger *zap.Logger) Transactor {
	return &poolTransactor{pool: pool, logger: logger}
}

func (t *poolTransactor) InTx(ctx context.Context, opts pgx.TxOptions, fn func(q Querier) error) error {
	tx, err := t.pool.BeginTx(ctx, opts)
	if err != nil {
		mylogger.Error(ctx, t.logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				t.logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, t.logger, "Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
