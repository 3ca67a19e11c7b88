// Package web serves the JSON API, the server-sent event stream and the
// printable week page.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studycal/internal/bus"
	"studycal/internal/config"
	"studycal/internal/dashboard"
	"studycal/internal/feedsync"
	appLog "studycal/internal/log"
)

// Deps are the services the server routes to.
type Deps struct {
	Config    *config.Config
	Store     Store
	Dashboard *dashboard.Service
	Bus       *bus.Bus
	// Syncer may be nil; POST /api/sync then answers 503.
	Syncer *feedsync.Syncer
}

type Server struct {
	cfg      *config.Config
	store    Store
	dash     *dashboard.Service
	bus      *bus.Bus
	syncer   *feedsync.Syncer
	validate *validator.Validate
	mux      *http.ServeMux

	// heartbeat is the SSE keep-alive interval.
	heartbeat time.Duration
}

func NewServer(d Deps) *Server {
	s := &Server{
		cfg:       d.Config,
		store:     d.Store,
		dash:      d.Dashboard,
		bus:       d.Bus,
		syncer:    d.Syncer,
		validate:  newValidator(),
		mux:       http.NewServeMux(),
		heartbeat: 25 * time.Second,
	}
	s.registerRoutes()
	return s
}

// Handler returns the mux wrapped in basic auth when it is configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled")
		h = s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.route("GET /api/dashboard", s.handleDashboard)
	s.route("GET /api/courses", s.handleCourses)
	s.route("GET /api/calendar/{view}", s.handleCalendar)

	s.route("GET /api/events", s.handleListEvents)
	s.route("POST /api/events", s.handleCreateEvent)
	s.route("DELETE /api/events", s.handleClearEvents)
	s.route("DELETE /api/events/{id}", s.handleDeleteEvent)
	s.route("POST /api/events/{id}/complete", s.handleCompleteEvent)

	s.route("GET /api/tasks", s.handleListTasks)
	s.route("POST /api/tasks", s.handleCreateTask)
	s.route("PATCH /api/tasks/{id}", s.handleUpdateTask)
	s.route("DELETE /api/tasks/{id}", s.handleDeleteTask)

	s.route("GET /api/settings/{kind}", s.handleGetSetting)
	s.route("PUT /api/settings/{kind}", s.handlePutSetting)

	s.route("GET /api/connections", s.handleListConnections)
	s.route("PUT /api/connections/{provider}", s.handlePutConnection)
	s.route("DELETE /api/connections/{provider}", s.handleDeleteConnection)
	s.route("POST /api/sync", s.handleSync)

	s.route("GET /api/stream", s.handleStream)
	s.route("GET /calendar/week", s.handleWeekPage)
}

// route registers an authenticated, instrumented handler.
func (s *Server) route(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, instrument(pattern, s.requireUser(h)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Serve runs the HTTP server until ctx is done, then shuts it down.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}
