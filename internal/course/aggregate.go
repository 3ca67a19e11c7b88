package course

import (
	"cmp"
	"slices"
	"time"

	"studycal/internal/model"
	"studycal/internal/timestamp"
)

// Options controls one aggregation pass.
type Options struct {
	// Now decides which assignments are upcoming.
	Now time.Time

	// DefaultTerm is attached to tasks that name a course without a term.
	// Empty means TermFor(Now).
	DefaultTerm string

	// SavedOrder is the user's persisted course-code order, if any.
	SavedOrder []string

	// SemesterFilter keeps only the lexicographically greatest term when
	// more than one is present. "2025SU" > "2025SP" > "2025FA" under this
	// rule; it is a string heuristic, not a calendar comparison.
	SemesterFilter bool

	// Styles annotates each course. nil uses an empty Resolver.
	Styles *Resolver
}

type key struct {
	code string
	term string
}

// Aggregate groups Canvas events and course-bearing tasks into courses,
// computes their counters, and orders them. The result is rebuilt from the
// inputs on every call.
func Aggregate(events []model.Event, tasks []model.Task, opts Options) []model.Course {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.DefaultTerm == "" {
		opts.DefaultTerm = TermFor(opts.Now)
	}
	if opts.Styles == nil {
		opts.Styles = &Resolver{}
	}

	groups := make(map[key]*model.Course)
	get := func(m Match) *model.Course {
		k := key{code: m.Code, term: m.Term}
		c, ok := groups[k]
		if !ok {
			c = &model.Course{Code: m.Code, Term: m.Term}
			groups[k] = c
		}
		return c
	}

	for _, ev := range events {
		if !ev.IsCanvas() {
			continue
		}
		m, ok := Extract(ev.Title, true)
		if !ok {
			continue
		}
		c := get(m)
		c.Events = append(c.Events, ev)
	}

	for _, t := range tasks {
		m, ok := matchTask(t, opts.DefaultTerm)
		if !ok {
			continue
		}
		c := get(m)
		c.Tasks = append(c.Tasks, t)
	}

	foldTermless(groups)

	courses := make([]model.Course, 0, len(groups))
	for _, c := range groups {
		fillStats(c, opts.Now)
		c.Color = opts.Styles.Color(c.Code)
		c.Icon = opts.Styles.Icon(c.Code)
		courses = append(courses, *c)
	}

	if opts.SemesterFilter {
		courses = LatestTerm(courses)
	}
	Sort(courses, opts.SavedOrder)
	return courses
}

// matchTask prefers the explicit course name, wrapped as a bracketed title
// carrying the default term so it runs through the same rules as Canvas
// titles. Otherwise the task title is used, gated on the Canvas flag.
func matchTask(t model.Task, defaultTerm string) (Match, bool) {
	if t.CourseName != "" {
		if m, ok := Extract("["+defaultTerm+"-"+t.CourseName+"]", true); ok {
			return m, true
		}
		if m, ok := Extract("["+t.CourseName+"]", true); ok {
			if m.Term == "" {
				m.Term = defaultTerm
			}
			return m, true
		}
	}
	return Extract(t.Title, t.IsCanvas())
}

// foldTermless merges a term-less group into the single termed group with
// the same code. With zero or several termed candidates it stays separate.
func foldTermless(groups map[key]*model.Course) {
	termed := make(map[string][]key)
	for k := range groups {
		if k.term != "" {
			termed[k.code] = append(termed[k.code], k)
		}
	}
	for k, c := range groups {
		if k.term != "" || len(termed[k.code]) != 1 {
			continue
		}
		dst := groups[termed[k.code][0]]
		dst.Events = append(dst.Events, c.Events...)
		dst.Tasks = append(dst.Tasks, c.Tasks...)
		delete(groups, k)
	}
}

func fillStats(c *model.Course, now time.Time) {
	c.TotalAssignments = len(c.Events) + len(c.Tasks)
	c.CompletedAssignments = 0
	c.UpcomingAssignments = 0
	for _, ev := range c.Events {
		if ev.Completed {
			c.CompletedAssignments++
		}
		if notPast(ev.DueAt(), now) {
			c.UpcomingAssignments++
		}
	}
	for _, t := range c.Tasks {
		if t.Status == model.TaskCompleted {
			c.CompletedAssignments++
		}
		if notPast(t.Due, now) {
			c.UpcomingAssignments++
		}
	}
}

func notPast(raw string, now time.Time) bool {
	if raw == "" {
		return false
	}
	t, err := timestamp.Parse(raw, time.UTC)
	if err != nil {
		return false
	}
	return !t.Before(now)
}

// LatestTerm keeps the courses of the greatest term tag when more than one
// distinct tag is present. Courses without a term are dropped in that case.
func LatestTerm(courses []model.Course) []model.Course {
	terms := make(map[string]bool)
	latest := ""
	for _, c := range courses {
		if c.Term == "" {
			continue
		}
		terms[c.Term] = true
		if c.Term > latest {
			latest = c.Term
		}
	}
	if len(terms) < 2 {
		return courses
	}
	out := courses[:0:0]
	for _, c := range courses {
		if c.Term == latest {
			out = append(out, c)
		}
	}
	return out
}

// Sort orders courses by their position in saved; codes missing from saved
// follow, alphabetically. With no saved order everything is alphabetical.
// Equal codes order by term, newest first.
func Sort(courses []model.Course, saved []string) {
	pos := make(map[string]int, len(saved))
	for i, code := range saved {
		if _, dup := pos[code]; !dup {
			pos[code] = i
		}
	}
	slices.SortStableFunc(courses, func(a, b model.Course) int {
		pa, aListed := pos[a.Code]
		pb, bListed := pos[b.Code]
		switch {
		case aListed && bListed:
			if c := cmp.Compare(pa, pb); c != 0 {
				return c
			}
		case aListed:
			return -1
		case bListed:
			return 1
		default:
			if c := cmp.Compare(a.Code, b.Code); c != 0 {
				return c
			}
		}
		return cmp.Compare(b.Term, a.Term)
	})
}
