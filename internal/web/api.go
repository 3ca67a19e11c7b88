package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"studycal/internal/bucket"
	"studycal/internal/bus"
	"studycal/internal/dashboard"
	"studycal/internal/feedsync"
	appLog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/store"
	"studycal/internal/timestamp"
)

// Store is the part of store.Store the handlers call directly.
type Store interface {
	ListEvents(ctx context.Context, userID string, f store.EventFilter) ([]model.Event, error)
	CreateEvent(ctx context.Context, ev *model.Event) error
	SetEventCompleted(ctx context.Context, userID, id string, completed bool) error
	DeleteEvent(ctx context.Context, userID, id string) error
	ClearEvents(ctx context.Context, userID, provider string) (int64, error)

	ListTasks(ctx context.Context, userID string, f store.TaskFilter) ([]model.Task, error)
	CreateTask(ctx context.Context, t *model.Task) error
	UpdateTask(ctx context.Context, userID, id string, u store.TaskUpdate) (*model.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error

	ListConnections(ctx context.Context, userID string) ([]model.CalendarConnection, error)
	UpsertConnection(ctx context.Context, c model.CalendarConnection) (*model.CalendarConnection, error)
	DeleteConnection(ctx context.Context, userID, provider string) error
}

// storeError maps store and service errors onto HTTP statuses.
func storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrInvalid), errors.Is(err, dashboard.ErrInvalidSetting):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dashboard.ErrStale):
		writeError(w, http.StatusConflict, "superseded by a newer request")
	case errors.Is(err, context.Canceled):
		appLog.Debug("request canceled", "path", r.URL.Path)
	default:
		appLog.Error("request failed", err, "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusBadGateway, "data store unavailable")
	}
}

func (s *Server) publish(topic bus.Topic, userID string, payload map[string]string) {
	if s.bus != nil {
		s.bus.Publish(bus.Message{Topic: topic, UserID: userID, Payload: payload})
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, err := s.dash.Load(r.Context(), userFrom(r.Context()))
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	snap, err := s.dash.Load(r.Context(), userFrom(r.Context()))
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Courses)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	view, err := dashboard.ParseView(r.PathValue("view"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	date, ok := queryDate(w, r)
	if !ok {
		return
	}
	cal, err := s.dash.Calendar(r.Context(), userFrom(r.Context()), view, date)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

// queryDate reads ?date=YYYY-MM-DD; absent means today.
func queryDate(w http.ResponseWriter, r *http.Request) (bucket.Date, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return bucket.Date{}, true
	}
	d, err := bucket.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return bucket.Date{}, false
	}
	return d, true
}

func queryTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return timestamp.Parse(raw, time.UTC)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := queryTime(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := queryTime(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to")
		return
	}
	events, err := s.store.ListEvents(r.Context(), userFrom(r.Context()), store.EventFilter{
		Provider: q.Get("provider"),
		From:     from,
		To:       to,
	})
	if err != nil {
		storeError(w, r, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

type createEventRequest struct {
	Title       string `json:"title" validate:"required,max=500"`
	Start       string `json:"start" validate:"required,timestamp"`
	End         string `json:"end" validate:"omitempty,timestamp"`
	AllDay      bool   `json:"all_day"`
	EventType   string `json:"event_type" validate:"max=64"`
	Description string `json:"description" validate:"max=10000"`
	Location    string `json:"location" validate:"max=500"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if !s.decode(w, r, &req) {
		return
	}
	userID := userFrom(r.Context())
	ev := &model.Event{
		UserID:         userID,
		Title:          strings.TrimSpace(req.Title),
		Start:          req.Start,
		End:            req.End,
		AllDay:         req.AllDay,
		EventType:      req.EventType,
		Description:    req.Description,
		Location:       req.Location,
		SourceProvider: model.ProviderManual,
	}
	if ev.EventType == "" {
		ev.EventType = "event"
	}
	if err := s.store.CreateEvent(r.Context(), ev); err != nil {
		storeError(w, r, err)
		return
	}
	s.publish(bus.TopicEventCreated, userID, map[string]string{"id": ev.ID})
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID, id := userFrom(r.Context()), r.PathValue("id")
	if err := s.store.DeleteEvent(r.Context(), userID, id); err != nil {
		storeError(w, r, err)
		return
	}
	s.publish(bus.TopicEventDeleted, userID, map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// handleClearEvents bulk-deletes one provider's events: DELETE /api/events?provider=canvas
func (s *Server) handleClearEvents(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		writeError(w, http.StatusBadRequest, "provider query parameter is required")
		return
	}
	userID := userFrom(r.Context())
	n, err := s.store.ClearEvents(r.Context(), userID, provider)
	if err != nil {
		storeError(w, r, err)
		return
	}
	s.publish(bus.TopicEventDeleted, userID, map[string]string{"provider": provider})
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

type completeEventRequest struct {
	Completed *bool `json:"completed"`
}

func (s *Server) handleCompleteEvent(w http.ResponseWriter, r *http.Request) {
	req := completeEventRequest{}
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	completed := req.Completed == nil || *req.Completed

	userID, id := userFrom(r.Context()), r.PathValue("id")
	if err := s.store.SetEventCompleted(r.Context(), userID, id, completed); err != nil {
		storeError(w, r, err)
		return
	}
	s.publish(bus.TopicDataRefresh, userID, map[string]string{"id": id})
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "completed": completed})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := model.TaskStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	tasks, err := s.store.ListTasks(r.Context(), userFrom(r.Context()), store.TaskFilter{
		Status:   status,
		Provider: q.Get("provider"),
	})
	if err != nil {
		storeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

type createTaskRequest struct {
	Title      string   `json:"title" validate:"required,max=500"`
	Due        string   `json:"due" validate:"omitempty,timestamp"`
	Priority   *float64 `json:"priority" validate:"omitempty,gte=0,lte=10"`
	Status     string   `json:"status" validate:"omitempty,taskstatus"`
	CourseName string   `json:"course_name" validate:"max=100"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !s.decode(w, r, &req) {
		return
	}
	userID := userFrom(r.Context())
	t := &model.Task{
		UserID:         userID,
		Title:          strings.TrimSpace(req.Title),
		Due:            req.Due,
		Priority:       req.Priority,
		Status:         model.TaskStatus(req.Status),
		CourseName:     strings.TrimSpace(req.CourseName),
		SourceProvider: model.ProviderManual,
	}
	if err := s.store.CreateTask(r.Context(), t); err != nil {
		storeError(w, r, err)
		return
	}
	s.publish(bus.TopicTaskCreated, userID, map[string]string{"id": t.ID})
	writeJSON(w, http.StatusCreated, t)
}

type updateTaskRequest struct {
	Title      *string  `json:"title" validate:"omitempty,min=1,max=500"`
	Due        *string  `json:"due" validate:"omitempty,timestamp"`
	Priority   *float64 `json:"priority" validate:"omitempty,gte=0,lte=10"`
	Status     *string  `json:"status" validate:"omitempty,taskstatus"`
	CourseName *string  `json:"course_name" validate:"omitempty,max=100"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if !s.decode(w, r, &req) {
		return
	}
	u := store.TaskUpdate{
		Title:      req.Title,
		Due:        req.Due,
		Priority:   req.Priority,
		CourseName: req.CourseName,
	}
	if req.Status != nil {
		st := model.TaskStatus(*req.Status)
		u.Status = &st
	}

	userID, id := userFrom(r.Context()), r.PathValue("id")
	t, err := s.store.UpdateTask(r.Context(), userID, id, u)
	if err != nil {
		storeError(w, r, err)
		return
	}
	s.publish(bus.TopicDataRefresh, userID, map[string]string{"id": id})
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, id := userFrom(r.Context()), r.PathValue("id")
	if err := s.store.DeleteTask(r.Context(), userID, id); err != nil {
		storeError(w, r, err)
		return
	}
	s.publish(bus.TopicTaskDeleted, userID, map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	st, err := s.dash.Settings(r.Context(), userFrom(r.Context()))
	if err != nil {
		storeError(w, r, err)
		return
	}
	switch r.PathValue("kind") {
	case "colors":
		writeJSON(w, http.StatusOK, nonNilMap(st.Colors))
	case "icons":
		writeJSON(w, http.StatusOK, nonNilMap(st.Icons))
	case "order":
		if st.Order == nil {
			st.Order = []string{}
		}
		writeJSON(w, http.StatusOK, st.Order)
	case "preferences":
		writeJSON(w, http.StatusOK, st.Preferences)
	default:
		writeError(w, http.StatusNotFound, "unknown setting")
	}
}

type colorsRequest map[string]string

type iconsRequest struct {
	Icons map[string]string `json:"icons" validate:"dive,keys,required,endkeys,icon"`
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	ctx, userID := r.Context(), userFrom(r.Context())
	var err error
	switch r.PathValue("kind") {
	case "colors":
		var body struct {
			Colors colorsRequest `json:"colors" validate:"dive,keys,required,endkeys,hexcolor"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		err = s.dash.SaveColors(ctx, userID, body.Colors)
	case "icons":
		var body iconsRequest
		if !s.decode(w, r, &body) {
			return
		}
		err = s.dash.SaveIcons(ctx, userID, body.Icons)
	case "order":
		var body struct {
			Order []string `json:"order" validate:"dive,required,max=64"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		err = s.dash.SaveOrder(ctx, userID, body.Order)
	case "preferences":
		var body model.Preferences
		if !s.decode(w, r, &body) {
			return
		}
		err = s.dash.SavePreferences(ctx, userID, body)
	default:
		writeError(w, http.StatusNotFound, "unknown setting")
		return
	}
	if err != nil {
		storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.store.ListConnections(r.Context(), userFrom(r.Context()))
	if err != nil {
		storeError(w, r, err)
		return
	}
	if conns == nil {
		conns = []model.CalendarConnection{}
	}
	writeJSON(w, http.StatusOK, conns)
}

type connectionRequest struct {
	FeedURL     string `json:"feed_url" validate:"required,url"`
	AccessToken string `json:"access_token"`
}

func (s *Server) handlePutConnection(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if provider != model.ProviderCanvas && provider != model.ProviderGoogle {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}
	var req connectionRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.store.UpsertConnection(r.Context(), model.CalendarConnection{
		UserID:      userFrom(r.Context()),
		Provider:    provider,
		FeedURL:     req.FeedURL,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConnection(r.Context(), userFrom(r.Context()), r.PathValue("provider")); err != nil {
		storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}
	res, err := s.syncer.SyncUser(r.Context(), userFrom(r.Context()))
	switch {
	case errors.Is(err, feedsync.ErrInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil && len(res.Stats) == 0 && len(res.Errors) == 0:
		storeError(w, r, err)
	case err != nil:
		writeJSON(w, http.StatusBadGateway, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}
