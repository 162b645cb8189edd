package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/groupbuy/pkg/db"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/pkg/outbox/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, q db.Querier, event *domain.OutboxEvent) error
	GetUnpublishedEvents(ctx context.Context, q db.Querier, batchSize, maxAttempts int) ([]*domain.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, q db.Querier, eventID int64) error
	MarkEventFailed(ctx context.Context, q db.Querier, eventID int64, errMsg string) error
}

type KafkaProducer interface {
	ProduceMessage(ctx context.Context, topic, key string, message interface{}) error
}

type Options struct {
	BatchSize   int
	Interval    time.Duration
	MaxAttempts int
}

type OutboxProcessor struct {
	tx            db.Transactor
	repo          OutboxRepository
	kafkaProducer KafkaProducer
	logger        *zap.Logger
	batchSize     int
	interval      time.Duration
	maxAttempts   int
	tracer        trace.Tracer
}

func NewOutboxProcessor(
	tx db.Transactor,
	repo OutboxRepository,
	producer KafkaProducer,
	logger *zap.Logger,
	opts Options,
) *OutboxProcessor {
	p := &OutboxProcessor{
		tx:            tx,
		repo:          repo,
		kafkaProducer: producer,
		logger:        logger,
		batchSize:     50,
		interval:      500 * time.Millisecond,
		maxAttempts:   10,
		tracer:        otel.Tracer("outbox-worker"),
	}
	if opts.BatchSize > 0 {
		p.batchSize = opts.BatchSize
	}
	if opts.Interval > 0 {
		p.interval = opts.Interval
	}
	if opts.MaxAttempts > 0 {
		p.maxAttempts = opts.MaxAttempts
	}

	return p
}

// Start polls the outbox until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) {
	mylogger.Info(
		ctx,
		p.logger,
		"Starting outbox processor",
		zap.Duration("interval", p.interval),
		zap.Int("batch_size", p.batchSize),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(
				ctx,
				p.logger,
				"Outbox processor stopping",
			)

			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				mylogger.Error(
					ctx,
					p.logger,
					"Error processing outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessBatch publishes one batch and returns how many events were
// published successfully.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.ProcessBatch")
	defer span.End()

	published := 0
	err := p.tx.InTx(ctx, pgx.TxOptions{}, func(q db.Querier) error {
		events, err := p.repo.GetUnpublishedEvents(ctx, q, p.batchSize, p.maxAttempts)
		if err != nil {
			return err
		}

		if len(events) == 0 {
			return nil
		}

		mylogger.Debug(
			ctx,
			p.logger,
			"Processing outbox events",
			zap.Int("count", len(events)),
		)

		for _, event := range events {
			if err := p.publish(ctx, event); err != nil {
				mylogger.Error(
					ctx,
					p.logger,
					"outbox worker produce message failed",
					zap.Int64("id", event.Id),
					zap.String("event_type", event.EventType),
					zap.Error(err),
				)

				if dbErr := p.repo.MarkEventFailed(ctx, q, event.Id, err.Error()); dbErr != nil {
					return fmt.Errorf("failed to mark event %d failed: %w", event.Id, dbErr)
				}
				continue
			}

			if err := p.repo.MarkEventPublished(ctx, q, event.Id); err != nil {
				return fmt.Errorf("failed to mark event %d published: %w", event.Id, err)
			}
			published++
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	span.SetAttributes(attribute.Int("published", published))
	return published, nil
}

func (p *OutboxProcessor) publish(ctx context.Context, event *domain.OutboxEvent) error {
	var payloadMap map[string]any
	if err := json.Unmarshal(event.Payload, &payloadMap); err != nil {
		return fmt.Errorf("unmarshal event payload: %w", err)
	}

	payloadMap["event_id"] = event.Id

	return p.kafkaProducer.ProduceMessage(ctx, event.Topic, event.MessageKey(), payloadMap)
}
