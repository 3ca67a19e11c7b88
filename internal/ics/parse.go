// Package ics turns provider calendar feeds into concrete occurrences:
// fetch with HTTP caching, parse VEVENTs, expand recurrences.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "studycal/internal/log"
)

// ParsedEvent is one VEVENT before recurrence expansion.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	Categories  []string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on a VEVENT that overrides one instance of a
	// recurring series.
	RecurrenceID *time.Time
}

func (p ParsedEvent) IsOverride() bool { return p.RecurrenceID != nil }

// Parse reads a feed body. VEVENTs that cannot be read are logged and
// skipped; only an unreadable calendar is an error.
func Parse(src Source, body []byte) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("ics: empty body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", src.ID, err)
	}

	var events []ParsedEvent
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(src, ve)
		if err != nil {
			appLog.Warn("ics: skipping vevent", "id", src.ID, "reason", err.Error())
			continue
		}
		events = append(events, ev)
	}
	appLog.Debug("ics parse done", "id", src.ID, "events", len(events))
	return events, nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func param(prop *ical.IANAProperty, name string) string {
	if prop == nil || prop.ICalParameters == nil {
		return ""
	}
	if vs := prop.ICalParameters[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	out.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	if out.UID == "" {
		return out, errors.New("missing UID")
	}
	if n, err := strconv.Atoi(strings.TrimSpace(propValue(ve, ical.ComponentPropertySequence))); err == nil {
		out.Seq = n
	}
	out.Summary = propValue(ve, ical.ComponentPropertySummary)
	out.Description = propValue(ve, ical.ComponentPropertyDescription)
	out.Location = propValue(ve, ical.ComponentPropertyLocation)
	for _, p := range ve.GetProperties("CATEGORIES") {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out.Categories = append(out.Categories, c)
			}
		}
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = strings.EqualFold(param(dtStart, "VALUE"), "DATE") || !strings.Contains(dtStart.Value, "T")

	start, err := parseICSTime(dtStart.Value, param(dtStart, "TZID"))
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start

	switch dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); {
	case dtEnd != nil:
		end, err := parseICSTime(dtEnd.Value, param(dtEnd, "TZID"))
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
	case out.AllDay:
		out.End = start.AddDate(0, 0, 1)
	default:
		out.End = start
	}

	out.RRule = propValue(ve, ical.ComponentPropertyRrule)

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		tzid := param(p, "TZID")
		for _, part := range strings.Split(p.Value, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			if t, err := parseICSTime(part, tzid); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty("RECURRENCE-ID"); rid != nil {
		if t, err := parseICSTime(rid.Value, param(rid, "TZID")); err == nil {
			out.RecurrenceID = &t
		}
	}
	return out, nil
}

// parseICSTime reads DATE and DATE-TIME values. Floating times and dates
// use tzid when it names a known zone, UTC otherwise.
func parseICSTime(v, tzid string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	loc := time.UTC
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
