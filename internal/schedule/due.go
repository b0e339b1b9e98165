package schedule

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// Due is the next occurrence of one schedule entry.
type Due struct {
	Slot     int
	PillName string
	Entry    Entry
	At       time.Time
}

// Valid reports whether the entry's day and time fall in their documented ranges.
// Out-of-range entries are still stored as received; they just have no next occurrence.
func (e Entry) Valid() bool {
	return e.DayOfWeek >= 0 && e.DayOfWeek <= 6 &&
		e.Hour >= 0 && e.Hour <= 23 &&
		e.Minute >= 0 && e.Minute <= 59
}

// CronExpr renders the entry as a five-field cron expression.
// The backend numbers weekdays from Monday = 0, cron from Sunday = 0.
func (e Entry) CronExpr() string {
	return fmt.Sprintf("%d %d * * %d", e.Minute, e.Hour, (e.DayOfWeek+1)%7)
}

// NextAfter returns the first time strictly after ref at which the entry is due,
// in ref's location.
func (e Entry) NextAfter(ref time.Time) (time.Time, error) {
	if !e.Valid() {
		return time.Time{}, fmt.Errorf("entry %d has out-of-range time %s", e.ID, e.String())
	}
	next, err := gronx.NextTickAfter(e.CronExpr(), ref, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("next tick for entry %d: %w", e.ID, err)
	}
	return next, nil
}

// NextDue returns the earliest upcoming entry across all containers.
// Invalid entries are skipped. ok is false when nothing is scheduled.
func (s Snapshot) NextDue(ref time.Time) (due Due, ok bool) {
	for _, c := range s.Containers {
		for _, e := range c.Schedules {
			at, err := e.NextAfter(ref)
			if err != nil {
				continue
			}
			if !ok || at.Before(due.At) {
				due = Due{Slot: c.SlotNumber, PillName: c.PillName, Entry: e, At: at}
				ok = true
			}
		}
	}
	return due, ok
}
