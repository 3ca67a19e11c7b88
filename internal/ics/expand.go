package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "studycal/internal/log"
)

const defaultMaxPerEvent = 5000

// Occurrence is one concrete instance of a feed event. Times keep the zone
// the feed gave them so UTC due times stay UTC.
type Occurrence struct {
	SourceID    string
	UID         string
	InstanceKey string

	Summary     string
	Description string
	Location    string
	Categories  []string

	Start  time.Time
	End    time.Time
	AllDay bool
}

// Window bounds expansion. Occurrences overlapping [Start, End] are kept.
type Window struct {
	Start time.Time
	End   time.Time
	// MaxPerEvent caps instances per series; zero means 5000.
	MaxPerEvent int
}

// Expanded is the result of Expand.
type Expanded struct {
	Occurrences []Occurrence
	// Truncated lists UIDs whose series hit MaxPerEvent.
	Truncated []string
}

// Expand turns parsed events into occurrences inside w. It handles plain
// events, RRULE series with EXDATE, and RECURRENCE-ID overrides. Output is
// ordered by start.
func Expand(events []ParsedEvent, w Window) (Expanded, error) {
	var res Expanded
	if w.End.Before(w.Start) {
		return res, errors.New("ics: window end before start")
	}
	if w.MaxPerEvent <= 0 {
		w.MaxPerEvent = defaultMaxPerEvent
	}

	bases := make(map[string][]ParsedEvent)
	overrides := make(map[string][]ParsedEvent)
	var uids []string
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := bases[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		bases[ev.UID] = append(bases[ev.UID], ev)
	}

	for _, uid := range uids {
		for _, ev := range bases[uid] {
			occ, capped := expandOne(ev, overrides[uid], w)
			res.Occurrences = append(res.Occurrences, occ...)
			if capped {
				res.Truncated = append(res.Truncated, uid)
				appLog.Warn("ics: series truncated", "uid", uid, "cap", w.MaxPerEvent)
			}
		}
	}

	sort.SliceStable(res.Occurrences, func(i, j int) bool {
		return res.Occurrences[i].Start.Before(res.Occurrences[j].Start)
	})
	return res, nil
}

func expandOne(ev ParsedEvent, overrides []ParsedEvent, w Window) ([]Occurrence, bool) {
	if ev.RRule == "" {
		if !overlaps(ev.Start, ev.End, w.Start, w.End) {
			return nil, false
		}
		return []Occurrence{instance(ev, ev.Start, overrides)}, false
	}

	rule, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Warn("ics: bad RRULE", "uid", ev.UID, "rrule", ev.RRule, "reason", err.Error())
		return nil, false
	}
	rule.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Pull the lower bound back by the event length so instances that
	// started before the window but still run into it are kept.
	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	starts := set.Between(w.Start.Add(-dur).In(loc), w.End.In(loc), true)

	capped := false
	if len(starts) > w.MaxPerEvent {
		starts = starts[:w.MaxPerEvent]
		capped = true
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		out = append(out, instance(ev, s, overrides))
	}
	return out, capped
}

// instance builds the occurrence starting at start, swapping in an
// override whose RECURRENCE-ID equals start.
func instance(ev ParsedEvent, start time.Time, overrides []ParsedEvent) Occurrence {
	key := start.UTC().Format(time.RFC3339)
	end := start.Add(ev.End.Sub(ev.Start))
	src := ev

	for _, ov := range overrides {
		if ov.RecurrenceID != nil && ov.RecurrenceID.Equal(start) {
			src = ov
			start, end = ov.Start, ov.End
			break
		}
	}

	return Occurrence{
		SourceID:    src.Source.ID,
		UID:         src.UID,
		InstanceKey: key,
		Summary:     src.Summary,
		Description: src.Description,
		Location:    src.Location,
		Categories:  src.Categories,
		Start:       start,
		End:         end,
		AllDay:      src.AllDay,
	}
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
