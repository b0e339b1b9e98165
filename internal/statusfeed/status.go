// Package statusfeed publishes the daemon's live state over a WebSocket.
//
// The daemon owns a Hub and calls Publish whenever pairing state, link state or
// the last poll changes. Each connected subscriber immediately receives the most
// recent status and then every later one. The `status` and `watch` commands are
// the subscribers.
//
// Messages are JSON envelopes:
//
//	{"type": "status", "data": {...}}
package statusfeed

import (
	"time"
)

// MessageTypeStatus is the envelope type carrying a Status.
const MessageTypeStatus = "status"

// Status is a point-in-time view of the daemon.
type Status struct {
	Serial          string    `json:"serial"`
	Backend         string    `json:"backend"`
	Pairing         string    `json:"pairing"`
	LinkUp          bool      `json:"link_up"`
	ScheduleVersion int64     `json:"schedule_version"`
	Containers      int       `json:"containers"`
	Entries         int       `json:"entries"`
	Schedule        []string  `json:"schedule,omitempty"`
	NextDue         *NextDue  `json:"next_due,omitempty"`
	LastPoll        *Poll     `json:"last_poll,omitempty"`
	Cycles          int       `json:"cycles"`
	Failures        int       `json:"failures"`
	PollInterval    string    `json:"poll_interval"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NextDue is the next dose the current schedule fires.
type NextDue struct {
	Slot    int       `json:"slot"`
	Pill    string    `json:"pill"`
	EntryID int       `json:"entry_id"`
	At      time.Time `json:"at"`
}

// Poll summarises the most recent attempted poll cycle.
type Poll struct {
	CycleID string    `json:"cycle_id"`
	Outcome string    `json:"outcome"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}

type envelope struct {
	Type  string  `json:"type"`
	Data  *Status `json:"data,omitempty"`
	Error string  `json:"error,omitempty"`
}
