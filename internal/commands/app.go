package commands

import (
	"fmt"
	"io"

	"studycal/internal/bus"
	"studycal/internal/cache"
	"studycal/internal/config"
	"studycal/internal/dashboard"
	"studycal/internal/feedsync"
	"studycal/internal/ics"
	appLog "studycal/internal/log"
	"studycal/internal/store"
)

// app holds the long-lived services every command shares.
type app struct {
	cfg     *config.Config
	store   *store.Store
	cache   cache.Cache
	bus     *bus.Bus
	dash    *dashboard.Service
	syncer  *feedsync.Syncer
	unwatch func()
}

func newApp(cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	c, err := cache.New(cfg.Cache.RedisURL, cfg.Cache.TTL)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}

	b := bus.New()
	dash := dashboard.New(st, c, b, dashboard.OptionsFromConfig(cfg))
	syncer := feedsync.New(st, ics.NewFetcher(cfg.CacheDir), b, feedsync.Options{
		HorizonDays:  cfg.HorizonDays,
		BackfillDays: cfg.BackfillDays,
	})

	appLog.Debug("app wired",
		"database", cfg.DatabasePath,
		"redis", cfg.Cache.RedisURL != "",
		"timezone", cfg.Timezone,
	)
	return &app{
		cfg:     cfg,
		store:   st,
		cache:   c,
		bus:     b,
		dash:    dash,
		syncer:  syncer,
		unwatch: dash.Watch(b),
	}, nil
}

func (a *app) Close() {
	a.unwatch()
	if cl, ok := a.cache.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			appLog.Warn("cache close failed", "reason", err.Error())
		}
	}
	if err := a.store.Close(); err != nil {
		appLog.Warn("store close failed", "reason", err.Error())
	}
}
