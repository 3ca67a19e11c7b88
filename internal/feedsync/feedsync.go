// Package feedsync pulls each user's provider feeds into the store, on
// demand and on a cron schedule.
package feedsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"studycal/internal/bus"
	"studycal/internal/ics"
	appLog "studycal/internal/log"
	"studycal/internal/metrics"
	"studycal/internal/model"
	"studycal/internal/store"
	"studycal/internal/timestamp"
)

// ErrInProgress is returned when a sync for the same user is already running.
var ErrInProgress = errors.New("feedsync: sync already in progress")

// Store is the part of store.Store the syncer needs.
type Store interface {
	ListConnections(ctx context.Context, userID string) ([]model.CalendarConnection, error)
	ConnectedUsers(ctx context.Context) ([]string, error)
	UpsertProviderEvents(ctx context.Context, userID, provider string, events []model.Event) (store.SyncStats, error)
	RecordSyncResult(ctx context.Context, connID string, at time.Time, syncErr error) error
}

type Options struct {
	HorizonDays  int
	BackfillDays int
	Now          func() time.Time
}

// Result reports one SyncUser call per provider.
type Result struct {
	Stats  map[string]store.SyncStats `json:"stats"`
	Errors map[string]string          `json:"errors,omitempty"`
}

type Syncer struct {
	store   Store
	fetcher *ics.Fetcher
	pub     bus.Publisher
	opts    Options

	mu      sync.Mutex
	running map[string]bool
}

func New(st Store, fetcher *ics.Fetcher, pub bus.Publisher, opts Options) *Syncer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 120
	}
	if opts.BackfillDays < 0 {
		opts.BackfillDays = 0
	}
	return &Syncer{
		store:   st,
		fetcher: fetcher,
		pub:     pub,
		opts:    opts,
		running: make(map[string]bool),
	}
}

func (s *Syncer) begin(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[userID] {
		return false
	}
	s.running[userID] = true
	return true
}

func (s *Syncer) end(userID string) {
	s.mu.Lock()
	delete(s.running, userID)
	s.mu.Unlock()
}

// SyncUser syncs every connection of userID. One failing provider does not
// stop the others; their errors are joined. Subscribers get a dataRefresh
// when at least one provider synced.
func (s *Syncer) SyncUser(ctx context.Context, userID string) (Result, error) {
	if !s.begin(userID) {
		return Result{}, ErrInProgress
	}
	defer s.end(userID)

	conns, err := s.store.ListConnections(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	res := Result{Stats: make(map[string]store.SyncStats)}
	var errs []error
	for _, c := range conns {
		stats, err := s.syncConnection(ctx, c)
		if recErr := s.store.RecordSyncResult(ctx, c.ID, s.opts.Now(), err); recErr != nil {
			appLog.Error("feedsync: record result failed", recErr, "user", userID, "provider", c.Provider)
		}
		if err != nil {
			if res.Errors == nil {
				res.Errors = make(map[string]string)
			}
			res.Errors[c.Provider] = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", c.Provider, err))
			continue
		}
		res.Stats[c.Provider] = stats
	}

	if len(res.Stats) > 0 && s.pub != nil {
		s.pub.Publish(bus.Message{
			Topic:   bus.TopicDataRefresh,
			UserID:  userID,
			Payload: map[string]string{"reason": "sync"},
		})
	}
	return res, errors.Join(errs...)
}

func (s *Syncer) syncConnection(ctx context.Context, c model.CalendarConnection) (store.SyncStats, error) {
	started := time.Now()
	defer func() {
		metrics.SyncDuration.WithLabelValues(c.Provider).Observe(time.Since(started).Seconds())
	}()

	src := ics.Source{ID: c.UserID + "/" + c.Provider, URL: c.FeedURL, Token: c.AccessToken}
	stats, err := s.pull(ctx, c, src)
	if err != nil {
		metrics.SyncRuns.WithLabelValues(c.Provider, "error").Inc()
		appLog.Error("feedsync: provider sync failed", err, "id", src.ID, "url", ics.RedactURL(c.FeedURL))
		return stats, err
	}
	metrics.SyncRuns.WithLabelValues(c.Provider, "ok").Inc()
	appLog.Info("feedsync: provider synced", "id", src.ID,
		"created", stats.Created, "updated", stats.Updated, "removed", stats.Removed)
	return stats, nil
}

func (s *Syncer) pull(ctx context.Context, c model.CalendarConnection, src ics.Source) (store.SyncStats, error) {
	fetched, err := s.fetcher.FetchOne(ctx, src)
	if err != nil {
		return store.SyncStats{}, err
	}
	parsed, err := ics.Parse(src, fetched.Body)
	if err != nil {
		return store.SyncStats{}, err
	}

	now := s.opts.Now()
	expanded, err := ics.Expand(parsed, ics.Window{
		Start: now.AddDate(0, 0, -s.opts.BackfillDays),
		End:   now.AddDate(0, 0, s.opts.HorizonDays),
	})
	if err != nil {
		return store.SyncStats{}, err
	}

	events := make([]model.Event, 0, len(expanded.Occurrences))
	for _, occ := range expanded.Occurrences {
		events = append(events, ToEvent(c.Provider, occ))
	}
	return s.store.UpsertProviderEvents(ctx, c.UserID, c.Provider, events)
}

// ToEvent maps an occurrence to a stored event. Timed values are written
// in UTC so a Canvas end-of-day due time keeps its marker; all-day values
// are bare dates.
func ToEvent(provider string, occ ics.Occurrence) model.Event {
	ev := model.Event{
		Title:          occ.Summary,
		Description:    occ.Description,
		Location:       occ.Location,
		AllDay:         occ.AllDay,
		EventType:      eventType(provider, occ),
		SourceProvider: provider,
		ExternalID:     occ.UID + "|" + occ.InstanceKey,
	}
	if occ.AllDay {
		ev.Start = occ.Start.Format("2006-01-02")
		if occ.End.After(occ.Start) {
			ev.End = occ.End.Format("2006-01-02")
		}
		return ev
	}
	ev.Start = timestamp.Format(occ.Start)
	if occ.End.After(occ.Start) {
		ev.End = timestamp.Format(occ.End)
	}
	return ev
}

func eventType(provider string, occ ics.Occurrence) string {
	if provider == model.ProviderCanvas && strings.HasPrefix(occ.UID, "event-assignment-") {
		return "assignment"
	}
	for _, c := range occ.Categories {
		if strings.EqualFold(c, "assignment") {
			return "assignment"
		}
	}
	return "event"
}

// SyncAll syncs every connected user in turn and returns how many failed.
func (s *Syncer) SyncAll(ctx context.Context) (int, error) {
	users, err := s.store.ConnectedUsers(ctx)
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, u := range users {
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}
		if _, err := s.SyncUser(ctx, u); err != nil {
			failed++
		}
	}
	appLog.Info("feedsync: run complete", "users", len(users), "failed", failed)
	return failed, nil
}

// Start runs SyncAll on the cron spec until ctx is done.
func (s *Syncer) Start(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := s.SyncAll(ctx); err != nil {
			appLog.Error("feedsync: scheduled run failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("feedsync: bad schedule %q: %w", spec, err)
	}
	c.Start()
	appLog.Info("feedsync: scheduler started", "schedule", spec)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		appLog.Info("feedsync: scheduler stopped")
	}()
	return nil
}
