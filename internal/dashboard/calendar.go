package dashboard

import (
	"context"
	"fmt"
	"time"

	"studycal/internal/bucket"
)

type View string

const (
	ViewDay   View = "day"
	ViewWeek  View = "week"
	ViewMonth View = "month"
)

func ParseView(s string) (View, error) {
	switch v := View(s); v {
	case ViewDay, ViewWeek, ViewMonth:
		return v, nil
	}
	return "", fmt.Errorf("dashboard: unknown calendar view %q", s)
}

// Calendar is a bucketed grid for one view.
type Calendar struct {
	View      View               `json:"view"`
	Date      bucket.Date        `json:"date"`
	Timezone  string             `json:"timezone"`
	WeekStart string             `json:"week_start"`
	Days      []bucket.DayBucket `json:"days"`
}

// Calendar buckets the user's events and tasks for the view containing
// date. A zero date means today in the user's zone.
func (s *Service) Calendar(ctx context.Context, userID string, view View, date bucket.Date) (Calendar, error) {
	data, err := s.fetch(ctx, userID)
	if err != nil {
		return Calendar{}, err
	}

	loc := s.location(data.settings.Preferences)
	if date == (bucket.Date{}) {
		date = bucket.DateOf(s.opts.Now().In(loc))
	}
	b := bucket.New(loc, bucket.ParseWeekStart(s.opts.WeekStart))
	entries := append(bucket.FromEvents(data.events), bucket.FromTasks(data.tasks)...)

	cal := Calendar{
		View:      view,
		Date:      date,
		Timezone:  loc.String(),
		WeekStart: weekStartName(b.WeekStart),
	}
	switch view {
	case ViewDay:
		cal.Days = []bucket.DayBucket{b.DayGrid(date, entries)}
	case ViewWeek:
		cal.Days = b.Week(date, entries)
	case ViewMonth:
		cal.Days = b.Month(date.Year, date.Month, entries)
	default:
		return Calendar{}, fmt.Errorf("dashboard: unknown calendar view %q", view)
	}
	return cal, nil
}

// Agenda returns the entries placed on one day, in slot order.
func (s *Service) Agenda(ctx context.Context, userID string, date bucket.Date) ([]bucket.Placed, *time.Location, error) {
	cal, err := s.Calendar(ctx, userID, ViewDay, date)
	if err != nil {
		return nil, nil, err
	}
	loc, err := time.LoadLocation(cal.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return cal.Days[0].Items, loc, nil
}

func weekStartName(d time.Weekday) string {
	if d == time.Monday {
		return "monday"
	}
	return "sunday"
}
