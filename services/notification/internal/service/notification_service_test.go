package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sakashimaa/groupbuy/pkg/db"
	generalDomain "github.com/sakashimaa/groupbuy/pkg/domain"
	outboxUtils "github.com/sakashimaa/groupbuy/pkg/outbox/utils"
	"github.com/sakashimaa/groupbuy/services/notification/internal/domain"
	"github.com/sakashimaa/groupbuy/services/notification/internal/infrastructure/email"
	"github.com/sakashimaa/groupbuy/services/notification/internal/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memTx keeps processed_events in memory. Inserts made inside a failed
// transaction are discarded.
type memTx struct {
	processed map[int64]bool
}

func (m *memTx) InTx(_ context.Context, _ pgx.TxOptions, fn func(q db.Querier) error) error {
	q := &dedupQuerier{processed: m.processed, pending: map[int64]bool{}}
	if err := fn(q); err != nil {
		return err
	}
	for id := range q.pending {
		m.processed[id] = true
	}
	return nil
}

type dedupQuerier struct {
	processed map[int64]bool
	pending   map[int64]bool
}

func (q *dedupQuerier) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	id := args[0].(int64)
	if q.processed[id] || q.pending[id] {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
	}
	q.pending[id] = true
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (q *dedupQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

func (q *dedupQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

type memRecipients struct {
	users        map[int64]domain.Recipient
	participants map[int64][]domain.Recipient
}

func (m *memRecipients) ByUserID(_ context.Context, _ db.Querier, userID int64) (*domain.Recipient, error) {
	r, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrRecipientNotFound
	}
	return &r, nil
}

func (m *memRecipients) ParticipantsOf(_ context.Context, _ db.Querier, groupOrderID int64) ([]domain.Recipient, error) {
	return m.participants[groupOrderID], nil
}

func (m *memRecipients) ActiveCustomers(context.Context, db.Querier) ([]domain.Recipient, error) {
	var out []domain.Recipient
	for _, r := range m.users {
		out = append(out, r)
	}
	return out, nil
}

type recordingSender struct {
	sent    []domain.Message
	failFor map[string]bool
}

func (s *recordingSender) Send(_ context.Context, msg domain.Message) error {
	if s.failFor[msg.To] {
		return errors.New("mailbox unavailable")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) sentTo() []string {
	var out []string
	for _, m := range s.sent {
		out = append(out, m.To)
	}
	return out
}

var (
	dana = domain.Recipient{UserID: 1, FullName: "Dana", Email: "dana@example.com"}
	avi  = domain.Recipient{UserID: 2, FullName: "Avi", Email: "avi@example.com"}
)

func newService(sender *recordingSender) *NotificationService {
	recipients := &memRecipients{
		users:        map[int64]domain.Recipient{dana.UserID: dana, avi.UserID: avi},
		participants: map[int64][]domain.Recipient{10: {dana, avi}},
	}

	return NewNotificationService(
		sender,
		email.NewRenderer("https://shop.example"),
		recipients,
		nil,
		&memTx{processed: map[int64]bool{}},
		outboxUtils.RetryPolicy{Attempts: 1},
		zap.NewNop(),
	)
}

func TestHandleOrderConfirmation_DeduplicatesRedelivery(t *testing.T) {
	sender := &recordingSender{}
	svc := newService(sender)
	ctx := context.Background()

	event := generalDomain.OrderConfirmationEvent{GroupOrderID: 10, GroupOrderTitle: "May", UserID: dana.UserID, TotalAmount: 500}

	require.NoError(t, svc.HandleOrderConfirmation(ctx, 100, event))
	require.NoError(t, svc.HandleOrderConfirmation(ctx, 100, event))

	require.Equal(t, []string{"dana@example.com"}, sender.sentTo())
}

func TestHandleOrderConfirmation_UnknownRecipient(t *testing.T) {
	sender := &recordingSender{}
	svc := newService(sender)

	err := svc.HandleOrderConfirmation(context.Background(), 101, generalDomain.OrderConfirmationEvent{UserID: 99})
	require.NoError(t, err)
	require.Empty(t, sender.sent)
}

func TestHandleOrderOpened_BroadcastsToCustomers(t *testing.T) {
	sender := &recordingSender{}
	svc := newService(sender)

	err := svc.HandleOrderOpened(context.Background(), 102, generalDomain.GroupOrderStatusEvent{GroupOrderID: 11, Title: "June"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"dana@example.com", "avi@example.com"}, sender.sentTo())
}

func TestHandleOrderClosed_PartialFailureIsAccepted(t *testing.T) {
	sender := &recordingSender{failFor: map[string]bool{"avi@example.com": true}}
	svc := newService(sender)

	err := svc.HandleOrderClosed(context.Background(), 103, generalDomain.GroupOrderStatusEvent{GroupOrderID: 10, Title: "May"})
	require.NoError(t, err)
	require.Equal(t, []string{"dana@example.com"}, sender.sentTo())
}

func TestHandleOrderClosed_TotalFailureIsRetried(t *testing.T) {
	sender := &recordingSender{failFor: map[string]bool{"dana@example.com": true, "avi@example.com": true}}
	svc := newService(sender)
	ctx := context.Background()
	event := generalDomain.GroupOrderStatusEvent{GroupOrderID: 10, Title: "May"}

	require.Error(t, svc.HandleOrderClosed(ctx, 104, event))

	sender.failFor = nil
	require.NoError(t, svc.HandleOrderClosed(ctx, 104, event))
	require.ElementsMatch(t, []string{"dana@example.com", "avi@example.com"}, sender.sentTo())
}

func TestHandleOrderClosed_NoParticipants(t *testing.T) {
	sender := &recordingSender{}
	svc := newService(sender)

	err := svc.HandleOrderClosed(context.Background(), 105, generalDomain.GroupOrderStatusEvent{GroupOrderID: 77})
	require.NoError(t, err)
	require.Empty(t, sender.sent)
}

func TestBroadcast_RenderFailureSkipsOnlyThatRecipient(t *testing.T) {
	sender := &recordingSender{}
	svc := newService(sender)
	ctx := context.Background()

	build := func(to domain.Recipient) (domain.Message, error) {
		if to.UserID == dana.UserID {
			return domain.Message{}, errors.New("template: bad data")
		}
		return domain.Message{To: to.Email, Subject: "closed"}, nil
	}

	require.NoError(t, svc.broadcast(ctx, []domain.Recipient{dana, avi}, build))
	require.Equal(t, []string{"avi@example.com"}, sender.sentTo())

	failAll := func(domain.Recipient) (domain.Message, error) {
		return domain.Message{}, errors.New("template: bad data")
	}
	require.Error(t, svc.broadcast(ctx, []domain.Recipient{dana, avi}, failAll))
}
