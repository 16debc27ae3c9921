package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType is the lifecycle tag the delivery service puts on each event.
type EventType string

const (
	EventSent       EventType = "email.sent" // submitted
	EventDelivered  EventType = "email.delivered"
	EventOpened     EventType = "email.opened"
	EventClicked    EventType = "email.clicked"
	EventBounced    EventType = "email.bounced"
	EventComplained EventType = "email.complained"
)

// Known reports whether t is one of the six lifecycle tags.
func (t EventType) Known() bool {
	switch t {
	case EventSent, EventDelivered, EventOpened, EventClicked, EventBounced, EventComplained:
		return true
	}
	return false
}

// Event is one lifecycle webhook delivery.
type Event struct {
	Type      EventType `json:"type"`
	CreatedAt string    `json:"created_at"`
	Data      EventData `json:"data"`
}

// EventData identifies the message the event is about.
type EventData struct {
	EmailID   string   `json:"email_id"`
	From      string   `json:"from"`
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	CreatedAt string   `json:"created_at"`
}

var ErrInvalidPayload = errors.New("tracking: invalid payload")

// ParseEvent decodes a webhook body. Unknown fields are ignored; a missing
// type is an error.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrInvalidPayload)
	}
	return ev, nil
}

// DeclaredAt is the time the delivery service stamped on the event, or the
// zero time if absent or unparseable.
func (e Event) DeclaredAt() time.Time {
	for _, s := range []string{e.CreatedAt, e.Data.CreatedAt} {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
