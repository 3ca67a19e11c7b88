// Package bucket places events and tasks into day/hour cells for the daily,
// weekly and monthly calendar grids.
package bucket

import (
	"fmt"
	"slices"
	"strings"
	"time"

	appLog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/timestamp"
)

type Kind string

const (
	KindEvent Kind = "event"
	KindTask  Kind = "task"
)

// Entry is the calendar view of an event or task.
type Entry struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"kind"`
	Title     string `json:"title"`
	Raw       string `json:"raw"`
	Provider  string `json:"source_provider,omitempty"`
	Completed bool   `json:"completed"`
}

func (e Entry) canvas() bool { return e.Provider == model.ProviderCanvas }

// FromEvents anchors events on their start.
func FromEvents(events []model.Event) []Entry {
	out := make([]Entry, 0, len(events))
	for _, ev := range events {
		out = append(out, Entry{
			ID:        ev.ID,
			Kind:      KindEvent,
			Title:     ev.Title,
			Raw:       ev.Start,
			Provider:  ev.SourceProvider,
			Completed: ev.Completed,
		})
	}
	return out
}

// FromTasks anchors tasks on their due time; tasks without one are left out.
func FromTasks(tasks []model.Task) []Entry {
	out := make([]Entry, 0, len(tasks))
	for _, t := range tasks {
		if t.Due == "" {
			continue
		}
		out = append(out, Entry{
			ID:        t.ID,
			Kind:      KindTask,
			Title:     t.Title,
			Raw:       t.Due,
			Provider:  t.SourceProvider,
			Completed: t.Status == model.TaskCompleted,
		})
	}
	return out
}

// Date is a calendar day with no zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate reads "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("bucket: invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// Slot is where an entry lands in local time.
type Slot struct {
	Date     Date `json:"date"`
	Hour     int  `json:"hour"`
	Minute   int  `json:"minute"`
	EndOfDay bool `json:"end_of_day,omitempty"`
}

// Label renders the slot time on a 12-hour clock ("11:59 PM").
func (s Slot) Label() string {
	return time.Date(2000, 1, 1, s.Hour, s.Minute, 0, 0, time.UTC).Format("3:04 PM")
}

// Place computes the slot for a raw timestamp. A Canvas value containing the
// end-of-day marker stays on its own date at 23:59 whatever loc is; that test
// runs on the raw string before parsing. Everything else is parsed and
// converted to loc.
func Place(raw string, canvas bool, loc *time.Location) (Slot, error) {
	if canvas && timestamp.IsEndOfDay(raw) {
		d, err := ParseDate(firstN(strings.TrimSpace(raw), 10))
		if err != nil {
			return Slot{}, err
		}
		return Slot{Date: d, Hour: 23, Minute: 59, EndOfDay: true}, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := timestamp.Parse(raw, loc)
	if err != nil {
		return Slot{}, err
	}
	local := t.In(loc)
	return Slot{Date: DateOf(local), Hour: local.Hour(), Minute: local.Minute()}, nil
}

func firstN(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

// Placed is an entry with its computed slot.
type Placed struct {
	Entry
	Slot  Slot   `json:"slot"`
	Label string `json:"label"`
}

// HourBucket holds the entries of one local hour.
type HourBucket struct {
	Hour  int      `json:"hour"`
	Items []Placed `json:"items"`
}

// DayBucket holds one local day. InRange is false for the leading/trailing
// days a month grid borrows from neighbouring months.
type DayBucket struct {
	Date    Date         `json:"date"`
	InRange bool         `json:"in_range"`
	Items   []Placed     `json:"items"`
	Hours   []HourBucket `json:"hours,omitempty"`
}

// Bucketer assigns entries to days and hours in one timezone.
type Bucketer struct {
	Location  *time.Location
	WeekStart time.Weekday
}

// New builds a Bucketer. A nil loc means UTC.
func New(loc *time.Location, weekStart time.Weekday) *Bucketer {
	if loc == nil {
		loc = time.UTC
	}
	return &Bucketer{Location: loc, WeekStart: weekStart}
}

// ParseWeekStart maps "monday"/"sunday" to a weekday; anything else is Sunday.
func ParseWeekStart(s string) time.Weekday {
	if strings.EqualFold(strings.TrimSpace(s), "monday") {
		return time.Monday
	}
	return time.Sunday
}

// PlaceAll places every entry, dropping unparseable ones, ordered by slot.
func (b *Bucketer) PlaceAll(entries []Entry) []Placed {
	out := make([]Placed, 0, len(entries))
	for _, e := range entries {
		slot, err := Place(e.Raw, e.canvas(), b.Location)
		if err != nil {
			appLog.Debug("bucket: skipping unparseable timestamp", "id", e.ID, "raw", e.Raw)
			continue
		}
		out = append(out, Placed{Entry: e, Slot: slot, Label: slot.Label()})
	}
	slices.SortStableFunc(out, func(x, y Placed) int {
		if c := strings.Compare(x.Slot.Date.String(), y.Slot.Date.String()); c != 0 {
			return c
		}
		if x.Slot.Hour != y.Slot.Hour {
			return x.Slot.Hour - y.Slot.Hour
		}
		return x.Slot.Minute - y.Slot.Minute
	})
	return out
}

// Day returns the entries that fall on d.
func (b *Bucketer) Day(d Date, entries []Entry) []Placed {
	var out []Placed
	for _, p := range b.PlaceAll(entries) {
		if p.Slot.Date == d {
			out = append(out, p)
		}
	}
	return out
}

// Hour returns the entries that fall on d within the given local hour.
func (b *Bucketer) Hour(d Date, hour int, entries []Entry) []Placed {
	var out []Placed
	for _, p := range b.Day(d, entries) {
		if p.Slot.Hour == hour {
			out = append(out, p)
		}
	}
	return out
}

// DayGrid returns d split into 24 hour buckets.
func (b *Bucketer) DayGrid(d Date, entries []Entry) DayBucket {
	return b.days(d, 1, nil, b.PlaceAll(entries), true)[0]
}

// Week returns the seven days of the week containing d, from WeekStart, each
// with hour buckets.
func (b *Bucketer) Week(d Date, entries []Entry) []DayBucket {
	return b.days(b.WeekOf(d), 7, nil, b.PlaceAll(entries), true)
}

// WeekOf returns the first day of the week containing d.
func (b *Bucketer) WeekOf(d Date) Date {
	offset := (int(d.Weekday()) - int(b.WeekStart) + 7) % 7
	return d.AddDays(-offset)
}

// Month returns whole weeks covering the month. Days of other months are
// included with InRange false so the grid stays rectangular.
func (b *Bucketer) Month(year int, month time.Month, entries []Entry) []DayBucket {
	first := Date{Year: year, Month: month, Day: 1}
	start := b.WeekOf(first)
	last := first.AddDays(daysIn(year, month) - 1)
	end := b.WeekOf(last).AddDays(6)

	n := 0
	for d := start; d != end.AddDays(1); d = d.AddDays(1) {
		n++
	}
	inMonth := func(d Date) bool { return d.Year == year && d.Month == month }
	return b.days(start, n, inMonth, b.PlaceAll(entries), false)
}

func (b *Bucketer) days(start Date, n int, inRange func(Date) bool, placed []Placed, hours bool) []DayBucket {
	byDate := make(map[Date][]Placed)
	for _, p := range placed {
		byDate[p.Slot.Date] = append(byDate[p.Slot.Date], p)
	}

	out := make([]DayBucket, 0, n)
	for i := 0; i < n; i++ {
		d := start.AddDays(i)
		day := DayBucket{Date: d, InRange: true, Items: byDate[d]}
		if inRange != nil {
			day.InRange = inRange(d)
		}
		if day.Items == nil {
			day.Items = []Placed{}
		}
		if hours {
			day.Hours = make([]HourBucket, 24)
			for h := range day.Hours {
				day.Hours[h] = HourBucket{Hour: h, Items: []Placed{}}
			}
			for _, p := range day.Items {
				day.Hours[p.Slot.Hour].Items = append(day.Hours[p.Slot.Hour].Items, p)
			}
		}
		out = append(out, day)
	}
	return out
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
