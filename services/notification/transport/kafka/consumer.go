package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	generalDomain "github.com/sakashimaa/groupbuy/pkg/domain"
	"github.com/sakashimaa/groupbuy/pkg/kafka"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/services/notification/internal/domain"
	"go.uber.org/zap"
)

type EventHandler interface {
	HandleOrderConfirmation(ctx context.Context, eventID int64, event generalDomain.OrderConfirmationEvent) error
	HandleOrderOpened(ctx context.Context, eventID int64, event generalDomain.GroupOrderStatusEvent) error
	HandleOrderClosed(ctx context.Context, eventID int64, event generalDomain.GroupOrderStatusEvent) error
}

type Consumer struct {
	handler EventHandler
	groupID string
	topic   string
	logger  *zap.Logger
}

func NewConsumer(handler EventHandler, groupID, topic string, logger *zap.Logger) *Consumer {
	return &Consumer{
		handler: handler,
		groupID: groupID,
		topic:   topic,
		logger:  logger,
	}
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, brokers []string) error {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		c.groupID,
		[]string{c.topic},
		c.processMessage,
		c.logger,
	)

	return consumerGroup.Run(ctx)
}

// processMessage returns an error only for failures worth redelivering.
// Malformed messages are logged and dropped.
func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Info(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
		zap.Int64("offset", msg.Offset),
	)

	var envelope domain.RawEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		mylogger.Error(ctx, c.logger, "Error unmarshalling envelope", zap.Error(err))
		return nil
	}

	if envelope.EventID == 0 {
		mylogger.Warn(ctx, c.logger, "Message without event id dropped", zap.String("event", envelope.Event))
		return nil
	}

	switch envelope.Event {
	case generalDomain.EventOrderConfirmation:
		var event generalDomain.OrderConfirmationEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Error parsing confirmation event", zap.Error(err))
			return nil
		}

		return c.handler.HandleOrderConfirmation(ctx, envelope.EventID, event)
	case generalDomain.EventOrderOpened, generalDomain.EventOrderClosed:
		var event generalDomain.GroupOrderStatusEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Error parsing status event", zap.String("event", envelope.Event), zap.Error(err))
			return nil
		}

		if envelope.Event == generalDomain.EventOrderOpened {
			return c.handler.HandleOrderOpened(ctx, envelope.EventID, event)
		}
		return c.handler.HandleOrderClosed(ctx, envelope.EventID, event)
	default:
		mylogger.Debug(ctx, c.logger, "Ignored event type", zap.String("event", envelope.Event))
	}

	return nil
}
