package testutil

import (
	"context"
	"sync"

	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
)

// RecordingNotifier keeps every enqueued event. When Err is set the event is
// still recorded and Err is returned.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []domain.NotificationEvent
	Err    error
}

func (n *RecordingNotifier) Enqueue(_ context.Context, event domain.NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.events = append(n.events, event)
	return n.Err
}

func (n *RecordingNotifier) Events() []domain.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]domain.NotificationEvent(nil), n.events...)
}

func (n *RecordingNotifier) Count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	count := 0
	for _, e := range n.events {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.events = nil
}
