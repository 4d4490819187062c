package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of session event.
type EventType string

const (
	EventWindowAdded    EventType = "window_added"
	EventWindowRemoved  EventType = "window_removed"
	EventTabAdded       EventType = "tab_added"
	EventTabRemoved     EventType = "tab_removed"
	EventTabDetached    EventType = "tab_detached"
	EventWindowAttached EventType = "window_attached"
	EventSaved          EventType = "saved"
	EventRestored       EventType = "restored"
)

// Event is one change to the window/tab registry, exported to external
// systems for auditing and usage statistics.
// Index is the affected window or tab; ParentIndex is -1 for windows.
// Windows and Tabs are the registry totals after the change.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	OccurredAt  time.Time `json:"occurred_at"`
	Index       int       `json:"index"`
	ParentIndex int       `json:"parent_index"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	Container   string    `json:"container,omitempty"`
	Windows     int       `json:"windows"`
	Tabs        int       `json:"tabs"`
}

// NewEvent stamps an event with a fresh ID and the current UTC time.
func NewEvent(t EventType) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		OccurredAt:  time.Now().UTC(),
		ParentIndex: -1,
	}
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Multi sends every event to all sinks and joins their errors.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
