// Package dashboard assembles what the dashboard page shows for one user:
// events, tasks, settings and the derived course list. Reads go through the
// cache; a newer load for a user supersedes any load still in flight.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"studycal/internal/bus"
	"studycal/internal/cache"
	"studycal/internal/config"
	"studycal/internal/course"
	appLog "studycal/internal/log"
	"studycal/internal/metrics"
	"studycal/internal/model"
	"studycal/internal/store"
)

// ErrStale is returned by a Load that was superseded by a newer Load for
// the same user. Its result must be discarded.
var ErrStale = errors.New("dashboard: superseded by a newer load")

// Store is the part of store.Store the dashboard reads and writes.
type Store interface {
	ListEvents(ctx context.Context, userID string, f store.EventFilter) ([]model.Event, error)
	ListTasks(ctx context.Context, userID string, f store.TaskFilter) ([]model.Task, error)
	GetSetting(ctx context.Context, userID, settingsType string, dst any) (bool, error)
	UpsertSetting(ctx context.Context, userID, settingsType string, v any) error
}

// Settings are the per-user customisations that shape the course list.
type Settings struct {
	Colors      map[string]string `json:"colors"`
	Icons       map[string]string `json:"icons"`
	Order       []string          `json:"order"`
	Preferences model.Preferences `json:"preferences"`
}

// Snapshot is one consistent dashboard load.
type Snapshot struct {
	UserID   string         `json:"user_id"`
	Events   []model.Event  `json:"events"`
	Tasks    []model.Task   `json:"tasks"`
	Courses  []model.Course `json:"courses"`
	Settings Settings       `json:"settings"`
	Timezone string         `json:"timezone"`
	LoadedAt time.Time      `json:"loaded_at"`
}

type Options struct {
	DefaultTerm    string
	SemesterFilter bool
	Timezone       string
	WeekStart      string
	Now            func() time.Time
}

// OptionsFromConfig copies the dashboard-relevant fields of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DefaultTerm:    cfg.DefaultTerm,
		SemesterFilter: cfg.SemesterFilter,
		Timezone:       cfg.Timezone,
		WeekStart:      cfg.WeekStart,
	}
}

type inflight struct {
	gen    uint64
	cancel context.CancelFunc
}

type Service struct {
	store Store
	cache cache.Cache
	pub   bus.Publisher
	opts  Options

	mu       sync.Mutex
	gen      uint64
	loads    map[string]inflight
	lastGood map[string]Snapshot

	// cacheMu orders cache writes against invalidations; epochs counts
	// invalidations per user.
	cacheMu sync.Mutex
	epochs  map[string]uint64
}

// New builds a Service. cache may be nil to read the store directly.
func New(st Store, c cache.Cache, pub bus.Publisher, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    st,
		cache:    c,
		pub:      pub,
		opts:     opts,
		loads:    make(map[string]inflight),
		lastGood: make(map[string]Snapshot),
		epochs:   make(map[string]uint64),
	}
}

// Watch drops a user's cached reads whenever a change is published for
// them. It returns the unsubscribe function.
func (s *Service) Watch(b *bus.Bus) func() {
	return b.Subscribe(bus.All, func(m bus.Message) {
		if m.UserID == "" {
			return
		}
		if err := s.Invalidate(context.Background(), m.UserID); err != nil {
			appLog.Error("dashboard: cache invalidation failed", err, "user", m.UserID, "topic", m.Topic)
		}
	})
}

// Invalidate drops every cached read for userID. Loads that read the store
// before the call do not write their results back.
func (s *Service) Invalidate(ctx context.Context, userID string) error {
	s.cacheMu.Lock()
	s.epochs[userID]++
	s.cacheMu.Unlock()
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateUser(ctx, userID)
}

func (s *Service) epoch(userID string) uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.epochs[userID]
}

// storeCached writes v under key unless userID was invalidated since epoch.
func (s *Service) storeCached(ctx context.Context, userID string, epoch uint64, key cache.Key, v any) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.epochs[userID] != epoch {
		appLog.Debug("dashboard: skipping cache write after invalidation", "key", key.String())
		return
	}
	if err := s.cache.Set(ctx, key, v); err != nil {
		appLog.Warn("dashboard: cache write failed", "key", key.String(), "reason", err.Error())
	}
}

// Load reads everything for userID concurrently and derives the course
// list. Starting a Load cancels any earlier Load for the same user, which
// then returns ErrStale. On a store failure the last good snapshot (zero
// if there is none) is returned with the error.
func (s *Service) Load(ctx context.Context, userID string) (Snapshot, error) {
	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	gen := s.begin(userID, cancel)
	defer s.finish(userID, gen)

	data, err := s.fetch(loadCtx, userID)
	if !s.current(userID, gen) {
		metrics.DashboardLoads.WithLabelValues("stale").Inc()
		appLog.Debug("dashboard: discarding superseded load", "user", userID)
		return Snapshot{}, ErrStale
	}
	if err != nil {
		metrics.DashboardLoads.WithLabelValues("error").Inc()
		appLog.Error("dashboard: load failed", err, "user", userID)
		return s.LastGood(userID), err
	}

	snap := s.build(userID, data)
	s.mu.Lock()
	s.lastGood[userID] = snap
	s.mu.Unlock()
	metrics.DashboardLoads.WithLabelValues("ok").Inc()
	return snap, nil
}

// LastGood returns the most recent successful snapshot for userID.
func (s *Service) LastGood(userID string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastGood[userID]
}

func (s *Service) begin(userID string, cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.loads[userID]; ok {
		prev.cancel()
	}
	s.gen++
	s.loads[userID] = inflight{gen: s.gen, cancel: cancel}
	return s.gen
}

func (s *Service) current(userID string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[userID].gen == gen
}

func (s *Service) finish(userID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loads[userID].gen == gen {
		delete(s.loads, userID)
	}
}

type userData struct {
	events   []model.Event
	tasks    []model.Task
	settings Settings
}

func (s *Service) fetch(ctx context.Context, userID string) (userData, error) {
	var d userData
	epoch := s.epoch(userID)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.events, err = cached(gctx, s, userID, epoch, cache.ResourceEvents, func() ([]model.Event, error) {
			return s.store.ListEvents(gctx, userID, store.EventFilter{})
		})
		return err
	})
	g.Go(func() (err error) {
		d.tasks, err = cached(gctx, s, userID, epoch, cache.ResourceTasks, func() ([]model.Task, error) {
			return s.store.ListTasks(gctx, userID, store.TaskFilter{})
		})
		return err
	})
	g.Go(func() (err error) {
		d.settings, err = cached(gctx, s, userID, epoch, cache.ResourceSettings, func() (Settings, error) {
			return s.readSettings(gctx, userID)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return userData{}, err
	}
	return d, nil
}

// cached serves the user's resource from the cache when fresh, otherwise
// calls load and stores the result unless the user was invalidated after
// epoch was read. Cache failures are logged and treated as misses.
func cached[T any](ctx context.Context, s *Service, userID string, epoch uint64, res cache.Resource, load func() (T, error)) (T, error) {
	key := cache.Key{UserID: userID, Resource: res}
	resource := string(res)
	c := s.cache
	if c != nil {
		var v T
		ok, err := c.Get(ctx, key, &v)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues(resource, "error").Inc()
			appLog.Warn("dashboard: cache read failed", "key", key.String(), "reason", err.Error())
		case ok:
			metrics.CacheLookups.WithLabelValues(resource, "hit").Inc()
			return v, nil
		default:
			metrics.CacheLookups.WithLabelValues(resource, "miss").Inc()
		}
	}

	v, err := load()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("dashboard: load %s: %w", resource, err)
	}
	if c != nil {
		s.storeCached(ctx, userID, epoch, key, v)
	}
	return v, nil
}

func (s *Service) readSettings(ctx context.Context, userID string) (Settings, error) {
	var st Settings
	reads := []struct {
		typ string
		dst any
	}{
		{model.SettingCourseColors, &st.Colors},
		{model.SettingCourseIcons, &st.Icons},
		{model.SettingCourseOrder, &st.Order},
		{model.SettingPreferences, &st.Preferences},
	}
	for _, r := range reads {
		if _, err := s.store.GetSetting(ctx, userID, r.typ, r.dst); err != nil {
			return Settings{}, err
		}
	}
	return st, nil
}

func (s *Service) build(userID string, d userData) Snapshot {
	now := s.opts.Now()
	courses := course.Aggregate(d.events, d.tasks, course.Options{
		Now:            now,
		DefaultTerm:    s.opts.DefaultTerm,
		SavedOrder:     d.settings.Order,
		SemesterFilter: s.opts.SemesterFilter,
		Styles:         &course.Resolver{Colors: d.settings.Colors, Icons: d.settings.Icons},
	})
	if d.events == nil {
		d.events = []model.Event{}
	}
	if d.tasks == nil {
		d.tasks = []model.Task{}
	}
	if courses == nil {
		courses = []model.Course{}
	}
	return Snapshot{
		UserID:   userID,
		Events:   d.events,
		Tasks:    d.tasks,
		Courses:  courses,
		Settings: d.settings,
		Timezone: s.location(d.settings.Preferences).String(),
		LoadedAt: now,
	}
}

// location picks the user's zone, then the configured zone, then
// config.DefaultTimezone, then UTC.
func (s *Service) location(p model.Preferences) *time.Location {
	for _, name := range []string{p.Timezone, s.opts.Timezone, config.DefaultTimezone} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}
