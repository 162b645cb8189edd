package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sakashimaa/groupbuy/pkg/db"
	generalDomain "github.com/sakashimaa/groupbuy/pkg/domain"
	outboxDomain "github.com/sakashimaa/groupbuy/pkg/outbox/domain"
	"github.com/sakashimaa/groupbuy/pkg/outbox/worker"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
)

const aggregateGroupOrder = "GroupOrder"

// OutboxNotifier queues events in the outbox table. The outbox worker
// publishes them to Kafka, where the notification service picks them up.
type OutboxNotifier struct {
	repo  worker.OutboxRepository
	q     db.Querier
	topic string
}

func NewOutboxNotifier(repo worker.OutboxRepository, q db.Querier, topic string) *OutboxNotifier {
	return &OutboxNotifier{repo: repo, q: q, topic: topic}
}

func (n *OutboxNotifier) Enqueue(ctx context.Context, event domain.NotificationEvent) error {
	payload, err := json.Marshal(generalDomain.Envelope[any]{
		Event:   event.Type,
		Payload: event.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		Topic:         n.topic,
		AggregateType: aggregateGroupOrder,
		AggregateID:   strconv.FormatInt(event.GroupOrderID, 10),
		EventType:     event.Type,
		Payload:       payload,
	}

	if err := n.repo.SaveOutboxEvent(ctx, n.q, outboxEvent); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}
