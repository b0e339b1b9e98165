package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestEvent_MarshalJSON(t *testing.T) {
	at := time.Date(2024, 1, 1, 8, 0, 5, 0, time.UTC)

	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "slot and schedule omitted when unset",
			ev:   NewEvent("missed", at),
			want: `{"status":"missed","occurred_at":"2024-01-01T08:00:05Z"}`,
		},
		{
			name: "only schedule id",
			ev:   Event{Status: "dispensed", OccurredAt: at, ContainerSlot: -1, ScheduleID: 12},
			want: `{"status":"dispensed","occurred_at":"2024-01-01T08:00:05Z","schedule_id":12}`,
		},
		{
			name: "slot zero is sent",
			ev:   Event{Status: "dispensed", OccurredAt: at, ContainerSlot: 0, ScheduleID: 3},
			want: `{"status":"dispensed","occurred_at":"2024-01-01T08:00:05Z","container_slot":0,"schedule_id":3}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.ev)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPostEvent_Success(t *testing.T) {
	fb, server := newFakeBackend(t)
	client := newTestClient(t, server.URL)
	r := NewEventReporter(client, NewPairing(client, &memStore{secret: "abc123"}))

	ev := Event{
		Status:        "dispensed",
		OccurredAt:    time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		ContainerSlot: -1,
		ScheduleID:    5,
	}
	if err := r.PostEvent(context.Background(), ev); err != nil {
		t.Fatalf("PostEvent() error = %v", err)
	}

	secret, body, header := fb.snapshot()
	if secret != "abc123" {
		t.Errorf("X-Device-Secret = %q, want abc123", secret)
	}
	if ct := header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if _, ok := payload["container_slot"]; ok {
		t.Error("container_slot should be omitted for -1")
	}
	if payload["schedule_id"] != float64(5) {
		t.Errorf("schedule_id = %v, want 5", payload["schedule_id"])
	}
	if payload["status"] != "dispensed" || payload["occurred_at"] != "2024-01-01T08:00:00Z" {
		t.Errorf("payload = %v", payload)
	}
}

func TestPostEvent_OnlyNoContentSucceeds(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusBadRequest, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			fb, server := newFakeBackend(t)
			fb.set(func(fb *fakeBackend) { fb.eventStatus = status })
			client := newTestClient(t, server.URL)
			r := NewEventReporter(client, NewPairing(client, &memStore{secret: "abc123"}))

			err := r.PostEvent(context.Background(), NewEvent("dispensed", time.Now()))
			if !IsProtocolError(err) {
				t.Errorf("PostEvent() error = %v, want protocol error", err)
			}
			if fb.eventCalls.Load() != 1 {
				t.Errorf("events endpoint called %d times, want 1 (no retry)", fb.eventCalls.Load())
			}
		})
	}
}

func TestPostEvent_FailsFastWithoutPairing(t *testing.T) {
	fb, server := newFakeBackend(t)
	fb.set(func(fb *fakeBackend) { fb.pairStatus = http.StatusConflict })
	client := newTestClient(t, server.URL)
	r := NewEventReporter(client, NewPairing(client, &memStore{}))

	if err := r.PostEvent(context.Background(), NewEvent("dispensed", time.Now())); !IsConflict(err) {
		t.Errorf("PostEvent() error = %v, want conflict", err)
	}
	if err := r.PostEvent(context.Background(), NewEvent("dispensed", time.Now())); !IsConflict(err) {
		t.Errorf("second PostEvent() error = %v, want conflict", err)
	}
	if fb.eventCalls.Load() != 0 {
		t.Errorf("events endpoint called %d times, want 0", fb.eventCalls.Load())
	}
	if fb.pairCalls.Load() != 1 {
		t.Errorf("pair endpoint called %d times, want 1", fb.pairCalls.Load())
	}
}
