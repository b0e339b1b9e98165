package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aurora-dispenser/aurora-sync/internal/logging"
	"github.com/aurora-dispenser/aurora-sync/internal/schedule"
)

// Event is one dispensing outcome. ContainerSlot and ScheduleID are left off
// the wire when negative.
type Event struct {
	Status        string
	OccurredAt    time.Time
	ContainerSlot int
	ScheduleID    int
}

// NewEvent returns an event with no container or schedule attached.
func NewEvent(status string, occurredAt time.Time) Event {
	return Event{
		Status:        status,
		OccurredAt:    occurredAt,
		ContainerSlot: schedule.UnsetSlot,
		ScheduleID:    schedule.UnsetID,
	}
}

type eventPayload struct {
	Status        string `json:"status"`
	OccurredAt    string `json:"occurred_at"`
	ContainerSlot *int   `json:"container_slot,omitempty"`
	ScheduleID    *int   `json:"schedule_id,omitempty"`
}

// MarshalJSON renders the event in the backend's wire format.
func (e Event) MarshalJSON() ([]byte, error) {
	p := eventPayload{
		Status:     e.Status,
		OccurredAt: e.OccurredAt.Format(time.RFC3339),
	}
	if e.ContainerSlot >= 0 {
		slot := e.ContainerSlot
		p.ContainerSlot = &slot
	}
	if e.ScheduleID >= 0 {
		id := e.ScheduleID
		p.ScheduleID = &id
	}
	return json.Marshal(p)
}

// EventReporter posts dispensing events. Failed events are not queued.
type EventReporter struct {
	client  *Client
	pairing *Pairing
}

// NewEventReporter creates an event reporter sharing the pairing controller.
func NewEventReporter(client *Client, pairing *Pairing) *EventReporter {
	return &EventReporter{client: client, pairing: pairing}
}

// PostEvent sends one event. Success is HTTP 204 only.
func (r *EventReporter) PostEvent(ctx context.Context, ev Event) error {
	if err := r.pairing.EnsurePaired(ctx); err != nil {
		return err
	}

	secret, ok := r.pairing.Secret()
	if !ok {
		return NewAuthError("device secret is empty after pairing")
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	url := r.client.endpoints.Events()
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set(HeaderDeviceSecret, secret)

	resp, err := r.client.do(ctx, http.MethodPost, url, body, header)
	if err != nil {
		logging.Warn("Event dropped", zap.String("status", ev.Status), zap.Error(err))
		return err
	}
	if resp.StatusCode != http.StatusNoContent {
		err := NewProtocolError(resp.StatusCode, fmt.Sprintf("unexpected event status code: %d", resp.StatusCode), url)
		logging.Warn("Event dropped", zap.String("status", ev.Status), zap.Error(err))
		return err
	}

	logging.Info("Event posted",
		zap.String("status", ev.Status),
		zap.Int("container_slot", ev.ContainerSlot),
		zap.Int("schedule_id", ev.ScheduleID),
	)
	return nil
}
