package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appLog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/timestamp"
)

// EventFilter narrows ListEvents. Zero fields do not filter.
type EventFilter struct {
	Provider string
	// From and To bound the event start (inclusive, exclusive). Events whose
	// start cannot be parsed are left out when either bound is set.
	From time.Time
	To   time.Time
}

func (f EventFilter) hasRange() bool { return !f.From.IsZero() || !f.To.IsZero() }

func (f EventFilter) inRange(raw string) bool {
	t, err := timestamp.Parse(raw, time.UTC)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && t.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.Before(f.To) {
		return false
	}
	return true
}

// ListEvents returns the user's events ordered by start.
func (s *Store) ListEvents(ctx context.Context, userID string, f EventFilter) ([]model.Event, error) {
	q := s.conn(ctx).Where("user_id = ?", userID)
	if f.Provider != "" {
		q = q.Where("source_provider = ?", f.Provider)
	}

	var events []model.Event
	if err := q.Order(clause.OrderByColumn{Column: clause.Column{Name: "start"}}).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	if !f.hasRange() {
		return events, nil
	}

	out := events[:0]
	for _, ev := range events {
		if f.inRange(ev.Start) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *Store) GetEvent(ctx context.Context, userID, id string) (*model.Event, error) {
	var ev model.Event
	err := s.conn(ctx).Where("user_id = ? AND id = ?", userID, id).First(&ev).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &ev, nil
}

// CreateEvent inserts ev, assigning an ID when it has none.
func (s *Store) CreateEvent(ctx context.Context, ev *model.Event) error {
	if ev.UserID == "" || strings.TrimSpace(ev.Title) == "" || ev.Start == "" {
		return fmt.Errorf("%w: event needs user, title and start", ErrInvalid)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := s.conn(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("store: create event: %w", err)
	}
	return nil
}

// SetEventCompleted flips the completed flag.
func (s *Store) SetEventCompleted(ctx context.Context, userID, id string, completed bool) error {
	res := s.conn(ctx).Model(&model.Event{}).
		Where("user_id = ? AND id = ?", userID, id).
		Update("completed", completed)
	if res.Error != nil {
		return fmt.Errorf("store: complete event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, userID, id string) error {
	res := s.conn(ctx).Where("user_id = ? AND id = ?", userID, id).Delete(&model.Event{})
	if res.Error != nil {
		return fmt.Errorf("store: delete event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearEvents bulk-deletes the user's events from one provider and returns
// how many were removed.
func (s *Store) ClearEvents(ctx context.Context, userID, provider string) (int64, error) {
	if provider == "" {
		return 0, fmt.Errorf("%w: provider required", ErrInvalid)
	}
	res := s.conn(ctx).Where("user_id = ? AND source_provider = ?", userID, provider).Delete(&model.Event{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: clear events: %w", res.Error)
	}
	appLog.Info("store: cleared provider events", "user", userID, "provider", provider, "count", res.RowsAffected)
	return res.RowsAffected, nil
}

// SyncStats summarises one UpsertProviderEvents call.
type SyncStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

// UpsertProviderEvents makes the user's events for provider match incoming,
// keyed by ExternalID. Rows keep their ID and Completed flag across syncs;
// provider rows missing from incoming are deleted.
func (s *Store) UpsertProviderEvents(ctx context.Context, userID, provider string, incoming []model.Event) (SyncStats, error) {
	var stats SyncStats
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []model.Event
		if err := tx.Where("user_id = ? AND source_provider = ?", userID, provider).Find(&existing).Error; err != nil {
			return err
		}
		byExt := make(map[string]model.Event, len(existing))
		for _, ev := range existing {
			byExt[ev.ExternalID] = ev
		}

		seen := make(map[string]bool, len(incoming))
		for _, ev := range incoming {
			if ev.ExternalID == "" || seen[ev.ExternalID] {
				continue
			}
			seen[ev.ExternalID] = true
			ev.UserID = userID
			ev.SourceProvider = provider

			if old, ok := byExt[ev.ExternalID]; ok {
				ev.ID = old.ID
				ev.Completed = old.Completed
				ev.CreatedAt = old.CreatedAt
				if err := tx.Save(&ev).Error; err != nil {
					return err
				}
				stats.Updated++
				continue
			}
			ev.ID = uuid.NewString()
			if err := tx.Create(&ev).Error; err != nil {
				return err
			}
			stats.Created++
		}

		var stale []string
		for ext, ev := range byExt {
			if !seen[ext] {
				stale = append(stale, ev.ID)
			}
		}
		if len(stale) > 0 {
			if err := tx.Where("id IN ?", stale).Delete(&model.Event{}).Error; err != nil {
				return err
			}
			stats.Removed = len(stale)
		}
		return nil
	})
	if err != nil {
		return SyncStats{}, fmt.Errorf("store: upsert %s events: %w", provider, err)
	}
	return stats, nil
}
