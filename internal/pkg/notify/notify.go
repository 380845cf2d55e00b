// Package notify delivers booking and subscription events to users. Sending
// is fire-and-forget: failures are logged and never reach the business flow.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one notification about a booking or subscription.
type Event struct {
	ID             string    `json:"id"`
	UserID         uint      `json:"user_id"`
	Type           string    `json:"type"`
	ReferenceID    uint      `json:"reference_id"`
	NotificationID uint      `json:"notification_id,omitempty"`
	Content        string    `json:"content,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewEvent stamps a fresh event id and time.
func NewEvent(eventType string, referenceID uint) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		ReferenceID: referenceID,
		OccurredAt:  time.Now().UTC(),
	}
}

// RoutingKey is the broker routing key for the event type.
func (e Event) RoutingKey() string {
	return "notification." + e.Type
}

// Dispatcher sends an event to a user. It never blocks on delivery.
type Dispatcher interface {
	Send(ctx context.Context, userID uint, event Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Send(context.Context, uint, Event) {}
