package dashboard

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"studycal/internal/bus"
	appLog "studycal/internal/log"
	"studycal/internal/model"
)

// ErrInvalidSetting wraps every settings validation failure.
var ErrInvalidSetting = errors.New("dashboard: invalid setting")

var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Settings returns the user's settings through the cache.
func (s *Service) Settings(ctx context.Context, userID string) (Settings, error) {
	data, err := s.fetch(ctx, userID)
	if err != nil {
		return Settings{}, err
	}
	return data.settings, nil
}

// SaveColors replaces the user's course color overrides.
func (s *Service) SaveColors(ctx context.Context, userID string, colors map[string]string) error {
	clean := make(map[string]string, len(colors))
	for code, c := range colors {
		if !hexColorRe.MatchString(c) {
			return fmt.Errorf("%w: color %q for %s is not #RRGGBB", ErrInvalidSetting, c, code)
		}
		clean[strings.ToUpper(strings.TrimSpace(code))] = strings.ToLower(c)
	}
	return s.save(ctx, userID, model.SettingCourseColors, clean)
}

// SaveIcons replaces the user's course icon overrides.
func (s *Service) SaveIcons(ctx context.Context, userID string, icons map[string]string) error {
	clean := make(map[string]string, len(icons))
	for code, icon := range icons {
		if !model.IconID(icon).Valid() {
			return fmt.Errorf("%w: unknown icon %q for %s", ErrInvalidSetting, icon, code)
		}
		clean[strings.ToUpper(strings.TrimSpace(code))] = icon
	}
	return s.save(ctx, userID, model.SettingCourseIcons, clean)
}

// SaveOrder replaces the user's course order. Duplicates keep their first
// position.
func (s *Service) SaveOrder(ctx context.Context, userID string, order []string) error {
	seen := make(map[string]bool, len(order))
	clean := make([]string, 0, len(order))
	for _, code := range order {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		clean = append(clean, code)
	}
	return s.save(ctx, userID, model.SettingCourseOrder, clean)
}

// SavePreferences stores the user's preferences. An empty timezone clears
// the override.
func (s *Service) SavePreferences(ctx context.Context, userID string, p model.Preferences) error {
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSetting, p.Timezone)
		}
	}
	return s.save(ctx, userID, model.SettingPreferences, p)
}

func (s *Service) save(ctx context.Context, userID, typ string, v any) error {
	if err := s.store.UpsertSetting(ctx, userID, typ, v); err != nil {
		return err
	}
	if err := s.Invalidate(ctx, userID); err != nil {
		appLog.Warn("dashboard: cache invalidation failed", "user", userID, "reason", err.Error())
	}
	appLog.Info("dashboard: settings saved", "user", userID, "type", typ)
	if s.pub != nil {
		s.pub.Publish(bus.Message{
			Topic:   bus.TopicDataRefresh,
			UserID:  userID,
			Payload: map[string]string{"setting": typ},
		})
	}
	return nil
}
