package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"studycal/internal/model"
)

// GetSetting decodes the user's settingsType blob into dst. It reports
// false when the user has never saved one.
func (s *Store) GetSetting(ctx context.Context, userID, settingsType string, dst any) (bool, error) {
	var row model.UserSetting
	err := s.conn(ctx).Where("user_id = ? AND settings_type = ?", userID, settingsType).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: get setting %s: %w", settingsType, err)
	}
	if err := json.Unmarshal([]byte(row.Value), dst); err != nil {
		return false, fmt.Errorf("store: decode setting %s: %w", settingsType, err)
	}
	return true, nil
}

// UpsertSetting stores v as the user's settingsType blob, replacing any
// previous value.
func (s *Store) UpsertSetting(ctx context.Context, userID, settingsType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode setting %s: %w", settingsType, err)
	}
	row := model.UserSetting{
		UserID:       userID,
		SettingsType: settingsType,
		Value:        string(data),
		UpdatedAt:    time.Now(),
	}
	err = s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "settings_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store: save setting %s: %w", settingsType, err)
	}
	return nil
}

// ListConnections returns the user's provider connections.
func (s *Store) ListConnections(ctx context.Context, userID string) ([]model.CalendarConnection, error) {
	var conns []model.CalendarConnection
	if err := s.conn(ctx).Where("user_id = ?", userID).Order("provider ASC").Find(&conns).Error; err != nil {
		return nil, fmt.Errorf("store: list connections: %w", err)
	}
	return conns, nil
}

// ConnectedUsers returns every user with at least one connection.
func (s *Store) ConnectedUsers(ctx context.Context) ([]string, error) {
	var users []string
	err := s.conn(ctx).Model(&model.CalendarConnection{}).Distinct().Order("user_id ASC").Pluck("user_id", &users).Error
	if err != nil {
		return nil, fmt.Errorf("store: list connected users: %w", err)
	}
	return users, nil
}

// UpsertConnection creates or replaces the user's connection for
// c.Provider and returns the stored row.
func (s *Store) UpsertConnection(ctx context.Context, c model.CalendarConnection) (*model.CalendarConnection, error) {
	if c.UserID == "" || c.Provider == "" || c.FeedURL == "" {
		return nil, fmt.Errorf("%w: connection needs user, provider and feed url", ErrInvalid)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"feed_url", "access_token", "updated_at"}),
	}).Create(&c).Error
	if err != nil {
		return nil, fmt.Errorf("store: save connection: %w", err)
	}

	var row model.CalendarConnection
	if err := s.conn(ctx).Where("user_id = ? AND provider = ?", c.UserID, c.Provider).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (s *Store) DeleteConnection(ctx context.Context, userID, provider string) error {
	res := s.conn(ctx).Where("user_id = ? AND provider = ?", userID, provider).Delete(&model.CalendarConnection{})
	if res.Error != nil {
		return fmt.Errorf("store: delete connection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordSyncResult stamps a connection with the outcome of a sync. A nil
// syncErr clears any previous error.
func (s *Store) RecordSyncResult(ctx context.Context, connID string, at time.Time, syncErr error) error {
	msg := ""
	if syncErr != nil {
		msg = syncErr.Error()
	}
	res := s.conn(ctx).Model(&model.CalendarConnection{}).Where("id = ?", connID).
		Updates(map[string]any{"last_synced_at": at, "last_error": msg})
	if res.Error != nil {
		return fmt.Errorf("store: record sync result: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
