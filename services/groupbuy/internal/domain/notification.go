package domain

// NotificationEvent is handed to the notifier after a state change.
// Payload is one of the event payloads in pkg/domain.
type NotificationEvent struct {
	Type         string
	GroupOrderID int64
	Payload      any
}
