package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/aurora-dispenser/aurora-sync/internal/statusfeed"
)

// PairingStyle picks the style for a pairing state name.
func PairingStyle(state string) string {
	switch state {
	case "paired":
		return GoodStyle.Render(state)
	case "conflict":
		return BadStyle.Render(state)
	default:
		return WarnStyle.Render(state)
	}
}

// OutcomeStyle picks the style for a poll outcome name.
func OutcomeStyle(outcome string) string {
	switch outcome {
	case "applied":
		return GoodStyle.Render(outcome)
	case "failed":
		return BadStyle.Render(outcome)
	default:
		return WarnStyle.Render(outcome)
	}
}

// StatusDetails returns the key/value rows describing st, relative to now.
func StatusDetails(st statusfeed.Status, now time.Time) []Detail {
	link := BadStyle.Render("down")
	if st.LinkUp {
		link = GoodStyle.Render("up")
	}

	details := []Detail{
		{"Serial", st.Serial},
		{"Backend", st.Backend},
		{"Pairing", PairingStyle(st.Pairing)},
		{"Link", link},
		{"Schedule", fmt.Sprintf("v%d, %d containers, %d entries", st.ScheduleVersion, st.Containers, st.Entries)},
	}

	if st.NextDue != nil {
		details = append(details, Detail{"Next dose", fmt.Sprintf("%s (slot %d) at %s, in %s",
			st.NextDue.Pill, st.NextDue.Slot,
			st.NextDue.At.Local().Format("Mon 15:04"),
			humanizeDuration(st.NextDue.At.Sub(now)))})
	}

	if st.LastPoll != nil {
		poll := fmt.Sprintf("%s %s ago", OutcomeStyle(st.LastPoll.Outcome), humanizeDuration(now.Sub(st.LastPoll.At)))
		if st.LastPoll.Error != "" {
			poll += " " + ErrorMessageStyle.Render(st.LastPoll.Error)
		}
		details = append(details, Detail{"Last poll", poll})
	} else {
		details = append(details, Detail{"Last poll", PendingMarker + " none yet"})
	}

	details = append(details, Detail{"Polls", fmt.Sprintf("%d (%d failed), every %s", st.Cycles, st.Failures, st.PollInterval)})
	return details
}

// RenderStatus renders st as a bordered panel including the schedule dump.
func RenderStatus(st statusfeed.Status, now time.Time, width int) string {
	lines := []string{
		TitleStyle.Render("AURORA SYNC"),
		SubtitleStyle.Render("updated " + st.UpdatedAt.Local().Format("15:04:05")),
		"",
	}
	lines = append(lines, renderDetails(StatusDetails(st, now))...)

	if len(st.Schedule) > 0 {
		lines = append(lines, "")
		for _, l := range st.Schedule {
			lines = append(lines, ScheduleLineStyle.Render(l))
		}
	}

	return PanelStyle(width).Render(strings.Join(lines, "\n"))
}

// humanizeDuration renders d rounded to the largest sensible unit.
func humanizeDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Second:
		return "0s"
	case d < time.Hour:
		return d.Round(time.Second).String()
	case d < 48*time.Hour:
		return d.Round(time.Minute).String()
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
