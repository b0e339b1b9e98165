package schedule

import (
	"fmt"
	"sync/atomic"
)

// Sentinels used by the backend contract for "no value". They are carried
// through unchanged so that a backend literal -1 round-trips, but nothing in
// this module treats them as a meaningful slot or schedule id.
const (
	// UnsetSlot marks a container whose slot_number was missing or invalid.
	UnsetSlot = -1

	// UnsetID marks a schedule entry whose id was missing or invalid.
	UnsetID = -1
)

// Entry is one dosing time for a container.
type Entry struct {
	ID        int  `json:"id"`
	DayOfWeek int  `json:"day_of_week"` // 0 = Monday per backend contract
	Hour      int  `json:"hour"`
	Minute    int  `json:"minute"`
	Repeat    bool `json:"repeat"`
}

// Container is the schedule of one physical pill compartment.
type Container struct {
	SlotNumber int     `json:"slot_number"`
	PillName   string  `json:"pill_name"`
	Schedules  []Entry `json:"schedules"`
}

// Snapshot is a complete, versioned schedule configuration.
// A Snapshot obtained from a Model is shared and must be treated as read-only;
// use Clone before modifying it.
type Snapshot struct {
	Version    int64       `json:"schedule_version"`
	Containers []Container `json:"containers"`
}

// Model holds the currently applied schedule. The zero value is an empty
// model at version 0 and is ready to use.
//
// Apply swaps a whole Snapshot in one atomic store, so a reader never sees a
// version paired with the containers of a different apply.
type Model struct {
	current atomic.Pointer[Snapshot]
}

// NewModel returns an empty model (version 0, no containers).
func NewModel() *Model {
	return &Model{}
}

// Apply replaces the version and containers together. The containers are
// copied, so the caller may reuse its slice afterwards.
func (m *Model) Apply(version int64, containers []Container) {
	next := &Snapshot{
		Version:    version,
		Containers: cloneContainers(containers),
	}
	m.current.Store(next)
}

// Snapshot returns the current version/containers pair.
func (m *Model) Snapshot() Snapshot {
	if s := m.current.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

// Version returns the currently applied schedule version.
func (m *Model) Version() int64 {
	return m.Snapshot().Version
}

// Containers returns the currently applied containers.
func (m *Model) Containers() []Container {
	return m.Snapshot().Containers
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Version:    s.Version,
		Containers: cloneContainers(s.Containers),
	}
}

// EntryCount returns the total number of schedule entries across containers.
func (s Snapshot) EntryCount() int {
	n := 0
	for _, c := range s.Containers {
		n += len(c.Schedules)
	}
	return n
}

// Lines renders the snapshot one line per container and entry, the way the
// firmware printed it after each poll.
func (s Snapshot) Lines() []string {
	lines := make([]string, 0, len(s.Containers)+s.EntryCount())
	for _, c := range s.Containers {
		lines = append(lines, c.String())
		for _, e := range c.Schedules {
			lines = append(lines, "  "+e.String())
		}
	}
	return lines
}

// String returns a one-line summary of the container.
func (c Container) String() string {
	return fmt.Sprintf("Slot %d (%s): %d entries", c.SlotNumber, c.PillName, len(c.Schedules))
}

// String returns a one-line summary of the entry.
func (e Entry) String() string {
	return fmt.Sprintf("id=%d dow=%d %02d:%02d repeat=%t", e.ID, e.DayOfWeek, e.Hour, e.Minute, e.Repeat)
}

func cloneContainers(in []Container) []Container {
	if in == nil {
		return nil
	}
	out := make([]Container, len(in))
	for i, c := range in {
		out[i] = Container{
			SlotNumber: c.SlotNumber,
			PillName:   c.PillName,
		}
		if c.Schedules != nil {
			out[i].Schedules = append([]Entry(nil), c.Schedules...)
		}
	}
	return out
}
