package backend

import (
	"fmt"

	"github.com/valyala/fastjson"

	"github.com/aurora-dispenser/aurora-sync/internal/schedule"
)

// Field defaults applied when the backend omits a field or sends the wrong type.
const (
	defaultScheduleVersion = 0
	defaultDayOfWeek       = 0
	defaultHour            = 0
	defaultMinute          = 0
	defaultRepeat          = true
)

// parseObject parses body and requires a JSON object at the top level.
func parseObject(p *fastjson.Parser, body []byte) (*fastjson.Value, error) {
	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, NewParseError("malformed JSON", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, NewParseError(fmt.Sprintf("expected a JSON object, got %s", v.Type()), nil)
	}
	return v, nil
}

// parsePairResponse extracts a non-empty device_secret string.
func parsePairResponse(body []byte) (string, error) {
	var p fastjson.Parser
	v, err := parseObject(&p, body)
	if err != nil {
		return "", err
	}

	field := v.Get("device_secret")
	if field == nil {
		return "", NewParseError("pairing response has no device_secret", nil)
	}
	if field.Type() != fastjson.TypeString {
		return "", NewParseError(fmt.Sprintf("device_secret is a %s, not a string", field.Type()), nil)
	}
	secret := string(field.GetStringBytes())
	if secret == "" {
		return "", NewParseError("device_secret is empty", nil)
	}
	return secret, nil
}

// parseConfig builds a complete snapshot from a configuration body. Only a
// syntax error or a non-object root fails; every other field falls back to
// its default.
func parseConfig(body []byte) (schedule.Snapshot, error) {
	var p fastjson.Parser
	v, err := parseObject(&p, body)
	if err != nil {
		return schedule.Snapshot{}, err
	}

	snap := schedule.Snapshot{
		Version:    int64Or(v.Get("schedule_version"), defaultScheduleVersion),
		Containers: []schedule.Container{},
	}

	for _, cv := range arrayOf(v.Get("containers")) {
		snap.Containers = append(snap.Containers, parseContainer(cv))
	}
	return snap, nil
}

func parseContainer(v *fastjson.Value) schedule.Container {
	c := schedule.Container{
		SlotNumber: schedule.UnsetSlot,
		Schedules:  []schedule.Entry{},
	}
	if v.Type() != fastjson.TypeObject {
		return c
	}

	c.SlotNumber = intOr(v.Get("slot_number"), schedule.UnsetSlot)
	c.PillName = stringOr(v.Get("pill_name"), "")
	for _, ev := range arrayOf(v.Get("schedules")) {
		c.Schedules = append(c.Schedules, parseEntry(ev))
	}
	return c
}

func parseEntry(v *fastjson.Value) schedule.Entry {
	e := schedule.Entry{
		ID:        schedule.UnsetID,
		DayOfWeek: defaultDayOfWeek,
		Hour:      defaultHour,
		Minute:    defaultMinute,
		Repeat:    defaultRepeat,
	}
	if v.Type() != fastjson.TypeObject {
		return e
	}

	e.ID = intOr(v.Get("id"), schedule.UnsetID)
	e.DayOfWeek = intOr(v.Get("day_of_week"), defaultDayOfWeek)
	e.Hour = intOr(v.Get("hour"), defaultHour)
	e.Minute = intOr(v.Get("minute"), defaultMinute)
	e.Repeat = boolOr(v.Get("repeat"), defaultRepeat)
	return e
}

func arrayOf(v *fastjson.Value) []*fastjson.Value {
	if v == nil || v.Type() != fastjson.TypeArray {
		return nil
	}
	items, _ := v.Array()
	return items
}

// intOr returns def unless v is an integral number that fits in an int.
func intOr(v *fastjson.Value, def int) int {
	if v == nil || v.Type() != fastjson.TypeNumber {
		return def
	}
	n, err := v.Int()
	if err != nil {
		return def
	}
	return n
}

func int64Or(v *fastjson.Value, def int64) int64 {
	if v == nil || v.Type() != fastjson.TypeNumber {
		return def
	}
	n, err := v.Int64()
	if err != nil {
		return def
	}
	return n
}

func stringOr(v *fastjson.Value, def string) string {
	if v == nil || v.Type() != fastjson.TypeString {
		return def
	}
	return string(v.GetStringBytes())
}

func boolOr(v *fastjson.Value, def bool) bool {
	if v == nil {
		return def
	}
	switch v.Type() {
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return def
	}
}
