// Package cache holds per-user snapshots of store reads. Entries are JSON
// encoded so the in-memory and Redis backends behave the same way.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Resource names one cached read for a user.
type Resource string

const (
	ResourceEvents   Resource = "events"
	ResourceTasks    Resource = "tasks"
	ResourceSettings Resource = "settings"
)

// Resources lists every resource kept per user.
var Resources = []Resource{ResourceEvents, ResourceTasks, ResourceSettings}

// Key identifies a cache entry. The same resource for two users never
// shares an entry.
type Key struct {
	UserID   string
	Resource Resource
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.UserID, k.Resource)
}

// Cache is implemented by Memory and Redis.
type Cache interface {
	// Get decodes a fresh entry into dst and reports whether one was found.
	Get(ctx context.Context, key Key, dst any) (bool, error)
	Set(ctx context.Context, key Key, v any) error
	Invalidate(ctx context.Context, key Key) error
	// InvalidateUser drops every entry for userID.
	InvalidateUser(ctx context.Context, userID string) error
}

// New picks Redis when redisURL is set, otherwise an in-process cache.
func New(redisURL string, ttl time.Duration) (Cache, error) {
	if redisURL == "" {
		return NewMemory(ttl), nil
	}
	return NewRedis(redisURL, ttl)
}
