package domain

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
)

// legacyCompleted is accepted on read and treated as closed.
const legacyCompleted = "completed"

func ParseStatus(s string) (Status, error) {
	switch s {
	case string(StatusScheduled):
		return StatusScheduled, nil
	case string(StatusOpen):
		return StatusOpen, nil
	case string(StatusClosed), legacyCompleted:
		return StatusClosed, nil
	default:
		return "", fmt.Errorf("unknown group order status %q", s)
	}
}

type GroupOrder struct {
	ID          int64      `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	OpeningTime *time.Time `db:"opening_time" json:"opening_time,omitempty"`
	Deadline    time.Time  `db:"deadline" json:"deadline"`
	Status      Status     `db:"status" json:"status"`
	CreatedBy   int64      `db:"created_by" json:"created_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// ComputeStatus derives the status from the order's time window alone.
// The boundaries are half-open: now == openingTime is open, now == deadline
// is closed.
func ComputeStatus(order *GroupOrder, now time.Time) Status {
	if order.OpeningTime != nil && now.Before(*order.OpeningTime) {
		return StatusScheduled
	}
	if !now.Before(order.Deadline) {
		return StatusClosed
	}
	return StatusOpen
}

// ValidWindow reports whether an opening time, when set, is strictly
// before the deadline.
func ValidWindow(openingTime *time.Time, deadline time.Time) bool {
	return openingTime == nil || openingTime.Before(deadline)
}

// AcceptsParticipation is true only while the order's window is open,
// whatever the stored status says.
func (o *GroupOrder) AcceptsParticipation(now time.Time) bool {
	return o.Status != StatusClosed && ComputeStatus(o, now) == StatusOpen
}
