package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/groupbuy/pkg/db"
	"github.com/sakashimaa/groupbuy/pkg/outbox/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type passthroughTx struct{}

func (passthroughTx) InTx(_ context.Context, _ pgx.TxOptions, fn func(q db.Querier) error) error {
	return fn(nil)
}

type memOutbox struct {
	events    []*domain.OutboxEvent
	published map[int64]bool
	failed    map[int64]string
}

func newMemOutbox(events ...*domain.OutboxEvent) *memOutbox {
	return &memOutbox{events: events, published: map[int64]bool{}, failed: map[int64]string{}}
}

func (m *memOutbox) SaveOutboxEvent(_ context.Context, _ db.Querier, event *domain.OutboxEvent) error {
	event.Id = int64(len(m.events) + 1)
	m.events = append(m.events, event)
	return nil
}

func (m *memOutbox) GetUnpublishedEvents(_ context.Context, _ db.Querier, batchSize, maxAttempts int) ([]*domain.OutboxEvent, error) {
	var out []*domain.OutboxEvent
	for _, e := range m.events {
		if !m.published[e.Id] && e.Attempts < int64(maxAttempts) && len(out) < batchSize {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memOutbox) MarkEventPublished(_ context.Context, _ db.Querier, eventID int64) error {
	m.published[eventID] = true
	return nil
}

func (m *memOutbox) MarkEventFailed(_ context.Context, _ db.Querier, eventID int64, errMsg string) error {
	m.failed[eventID] = errMsg
	for _, e := range m.events {
		if e.Id == eventID {
			e.Attempts++
		}
	}
	return nil
}

type sentMessage struct {
	topic   string
	key     string
	payload map[string]any
}

type fakeProducer struct {
	sent    []sentMessage
	failFor map[string]bool
}

func (f *fakeProducer) ProduceMessage(_ context.Context, topic, key string, message interface{}) error {
	payload := message.(map[string]any)
	if f.failFor[payload["event"].(string)] {
		return errors.New("broker unavailable")
	}
	f.sent = append(f.sent, sentMessage{topic: topic, key: key, payload: payload})
	return nil
}

func event(id int64, eventType string) *domain.OutboxEvent {
	payload, _ := json.Marshal(map[string]any{"event": eventType, "payload": map[string]any{"group_order_id": 3}})
	return &domain.OutboxEvent{
		Id:            id,
		AggregateType: "GroupOrder",
		AggregateID:   "3",
		EventType:     eventType,
		Payload:       payload,
		Topic:         "group_order_events",
	}
}

func TestProcessBatch_PublishesWithEventID(t *testing.T) {
	repo := newMemOutbox(event(1, "order_opened"), event(2, "order_closed"))
	producer := &fakeProducer{}
	p := NewOutboxProcessor(passthroughTx{}, repo, producer, zap.NewNop(), Options{})

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.Len(t, producer.sent, 2)
	require.Equal(t, "group_order_events", producer.sent[0].topic)
	require.Equal(t, "GroupOrder:3", producer.sent[0].key)
	require.EqualValues(t, 1, producer.sent[0].payload["event_id"])
	require.True(t, repo.published[1])
	require.True(t, repo.published[2])

	n, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, producer.sent, 2)
}

func TestProcessBatch_FailureIsRecordedAndRetried(t *testing.T) {
	repo := newMemOutbox(event(1, "order_confirmation"), event(2, "order_closed"))
	producer := &fakeProducer{failFor: map[string]bool{"order_confirmation": true}}
	p := NewOutboxProcessor(passthroughTx{}, repo, producer, zap.NewNop(), Options{MaxAttempts: 2})

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "broker unavailable", repo.failed[1])
	require.False(t, repo.published[1])

	_, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)

	// attempts exhausted
	events, err := repo.GetUnpublishedEvents(context.Background(), nil, 50, 2)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestProcessBatch_BadPayload(t *testing.T) {
	bad := &domain.OutboxEvent{Id: 1, Payload: json.RawMessage(`not-json`), Topic: "group_order_events"}
	repo := newMemOutbox(bad)
	p := NewOutboxProcessor(passthroughTx{}, repo, &fakeProducer{}, zap.NewNop(), Options{})

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Contains(t, repo.failed[1], "unmarshal event payload")
}
