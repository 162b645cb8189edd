package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakashimaa/groupbuy/pkg/db"
	generalDomain "github.com/sakashimaa/groupbuy/pkg/domain"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	outboxUtils "github.com/sakashimaa/groupbuy/pkg/outbox/utils"
	"github.com/sakashimaa/groupbuy/services/notification/internal/domain"
	"github.com/sakashimaa/groupbuy/services/notification/internal/infrastructure/email"
	"github.com/sakashimaa/groupbuy/services/notification/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type NotificationService struct {
	emailSender email.Sender
	renderer    *email.Renderer
	recipients  repository.RecipientRepository
	pool        db.Querier
	tx          db.Transactor
	policy      outboxUtils.RetryPolicy
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewNotificationService(
	emailSender email.Sender,
	renderer *email.Renderer,
	recipients repository.RecipientRepository,
	pool db.Querier,
	tx db.Transactor,
	policy outboxUtils.RetryPolicy,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		emailSender: emailSender,
		renderer:    renderer,
		recipients:  recipients,
		pool:        pool,
		tx:          tx,
		policy:      policy,
		logger:      logger,
		tracer:      otel.Tracer("notification-service"),
	}
}

// HandleOrderConfirmation emails the participant a summary of their items.
// A participant without an email address is skipped.
func (s *NotificationService) HandleOrderConfirmation(ctx context.Context, eventID int64, event generalDomain.OrderConfirmationEvent) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandleOrderConfirmation")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.Int64("user_id", event.UserID),
	)

	return outboxUtils.ProcessWithDeduplication(ctx, s.tx, s.logger, eventID, s.policy, func() error {
		recipient, err := s.recipients.ByUserID(ctx, s.pool, event.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrRecipientNotFound) {
				mylogger.Warn(ctx, s.logger, "No recipient for confirmation", zap.Int64("user_id", event.UserID))
				return nil
			}
			return err
		}

		msg, err := s.renderer.Confirmation(*recipient, event)
		if err != nil {
			return err
		}

		return s.emailSender.Send(ctx, msg)
	})
}

// HandleOrderOpened announces a newly open order to every active customer.
func (s *NotificationService) HandleOrderOpened(ctx context.Context, eventID int64, event generalDomain.GroupOrderStatusEvent) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandleOrderOpened")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.Int64("group_order_id", event.GroupOrderID),
	)

	return outboxUtils.ProcessWithDeduplication(ctx, s.tx, s.logger, eventID, s.policy, func() error {
		recipients, err := s.recipients.ActiveCustomers(ctx, s.pool)
		if err != nil {
			return err
		}

		return s.broadcast(ctx, recipients, func(to domain.Recipient) (domain.Message, error) {
			return s.renderer.Opened(to, event)
		})
	})
}

// HandleOrderClosed tells every participant the order no longer accepts
// changes.
func (s *NotificationService) HandleOrderClosed(ctx context.Context, eventID int64, event generalDomain.GroupOrderStatusEvent) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandleOrderClosed")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.Int64("group_order_id", event.GroupOrderID),
	)

	return outboxUtils.ProcessWithDeduplication(ctx, s.tx, s.logger, eventID, s.policy, func() error {
		recipients, err := s.recipients.ParticipantsOf(ctx, s.pool, event.GroupOrderID)
		if err != nil {
			return err
		}

		return s.broadcast(ctx, recipients, func(to domain.Recipient) (domain.Message, error) {
			return s.renderer.Closed(to, event)
		})
	})
}

// broadcast sends one message per recipient. Individual failures are logged;
// the call fails only when nothing could be delivered, so a redelivery does
// not re-send to everyone after a single bad address.
func (s *NotificationService) broadcast(ctx context.Context, recipients []domain.Recipient, build func(domain.Recipient) (domain.Message, error)) error {
	if len(recipients) == 0 {
		return nil
	}

	var (
		sent    int
		lastErr error
	)
	for _, to := range recipients {
		msg, err := build(to)
		if err != nil {
			lastErr = err
			mylogger.Warn(ctx, s.logger, "Broadcast email render failed", zap.Int64("user_id", to.UserID), zap.Error(err))
			continue
		}

		if err := s.emailSender.Send(ctx, msg); err != nil {
			lastErr = err
			mylogger.Warn(ctx, s.logger, "Broadcast email failed", zap.Int64("user_id", to.UserID), zap.Error(err))
			continue
		}
		sent++
	}

	mylogger.Info(ctx, s.logger, "Broadcast finished", zap.Int("sent", sent), zap.Int("recipients", len(recipients)))

	if sent == 0 {
		return fmt.Errorf("no email delivered: %w", lastErr)
	}
	return nil
}
