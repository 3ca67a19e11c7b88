package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/golang-jwt/jwt/v5"

	"studycal/internal/bus"
	"studycal/internal/cache"
	"studycal/internal/config"
	"studycal/internal/dashboard"
	"studycal/internal/model"
	"studycal/internal/store"
)

var now = time.Date(2025, time.November, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	cfg    *config.Config
	store  *store.Store
	bus    *bus.Bus
	server *Server

	mu   sync.Mutex
	msgs []bus.Message
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.DefaultConfig()
	cfg.Timezone = "America/New_York"
	if mutate != nil {
		mutate(cfg)
	}

	env := &testEnv{cfg: cfg, store: st, bus: bus.New()}
	env.bus.Subscribe(bus.All, func(m bus.Message) {
		env.mu.Lock()
		env.msgs = append(env.msgs, m)
		env.mu.Unlock()
	})

	opts := dashboard.OptionsFromConfig(cfg)
	opts.Now = func() time.Time { return now }
	dash := dashboard.New(st, cache.NewMemory(time.Minute), env.bus, opts)
	t.Cleanup(dash.Watch(env.bus))

	env.server = NewServer(Deps{Config: cfg, Store: st, Dashboard: dash, Bus: env.bus})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(UserHeader, "u1")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) topics() []bus.Topic {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]bus.Topic, len(e.msgs))
	for i, m := range e.msgs {
		out[i] = m.Topic
	}
	return out
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthNeedsNoIdentity(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestAPIRequiresUser(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestJWTIdentity(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Auth.JWTSecret = "s3cret" })
	if err := env.store.CreateEvent(context.Background(), &model.Event{UserID: "alice", Title: "Mine", Start: "2025-11-06T10:00:00+00:00"}); err != nil {
		t.Fatal(err)
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"valid", signToken(t, "s3cret", jwt.RegisteredClaims{Subject: "alice", ExpiresAt: exp}), http.StatusOK},
		{"wrong secret", signToken(t, "other", jwt.RegisteredClaims{Subject: "alice", ExpiresAt: exp}), http.StatusUnauthorized},
		{"no expiry", signToken(t, "s3cret", jwt.RegisteredClaims{Subject: "alice"}), http.StatusUnauthorized},
		{"no subject", signToken(t, "s3cret", jwt.RegisteredClaims{ExpiresAt: exp}), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			req.Header.Set(UserHeader, "mallory")
			rec := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			if tc.want == http.StatusOK {
				var events []model.Event
				decodeBody(t, rec, &events)
				if len(events) != 1 || events[0].Title != "Mine" {
					t.Errorf("events = %+v", events)
				}
			}
		})
	}
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	})
	h := env.server.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health behind basic auth = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set(UserHeader, "u1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || rec.Header().Get("WWW-Authenticate") == "" {
		t.Errorf("no credentials = %d", rec.Code)
	}

	req.SetBasicAuth("admin", "pw")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with credentials = %d", rec.Code)
	}
}

func TestEventLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/events", `{"title":"Lecture","start":"2025-11-06T15:00:00-05:00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	var created model.Event
	decodeBody(t, rec, &created)
	if created.ID == "" || created.UserID != "u1" || created.SourceProvider != model.ProviderManual || created.EventType != "event" {
		t.Errorf("created = %+v", created)
	}

	rec = env.do(t, http.MethodGet, "/api/events?provider=manual", "")
	var listed []model.Event
	decodeBody(t, rec, &listed)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("listed = %+v", listed)
	}

	rec = env.do(t, http.MethodPost, "/api/events/"+created.ID+"/complete", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("complete = %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/events/"+created.ID+"/complete", `{"completed":false}`)
	var toggled struct {
		Completed bool `json:"completed"`
	}
	decodeBody(t, rec, &toggled)
	if toggled.Completed {
		t.Error("explicit completed=false ignored")
	}

	rec = env.do(t, http.MethodDelete, "/api/events/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/api/events/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}

	want := []bus.Topic{bus.TopicEventCreated, bus.TopicDataRefresh, bus.TopicDataRefresh, bus.TopicEventDeleted}
	got := env.topics()
	if len(got) != len(want) {
		t.Fatalf("topics = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("topic[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCreateEventValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	bodies := []string{
		`{"title":"","start":"2025-11-06T15:00:00Z"}`,
		`{"title":"x","start":"soon"}`,
		`{"title":"x","start":"2025-11-06","end":"later"}`,
		`{"title":"x","start":"2025-11-06","colour":"red"}`,
		`not json`,
	}
	for _, body := range bodies {
		if rec := env.do(t, http.MethodPost, "/api/events", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rec.Code)
		}
	}
	if n := len(env.topics()); n != 0 {
		t.Errorf("%d messages published for rejected requests", n)
	}
}

func TestClearEventsByProvider(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for _, p := range []string{model.ProviderCanvas, model.ProviderCanvas, model.ProviderManual} {
		if err := env.store.CreateEvent(ctx, &model.Event{UserID: "u1", Title: "x", Start: "2025-11-06", SourceProvider: p}); err != nil {
			t.Fatal(err)
		}
	}

	if rec := env.do(t, http.MethodDelete, "/api/events", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing provider = %d", rec.Code)
	}
	rec := env.do(t, http.MethodDelete, "/api/events?provider=canvas", "")
	var res map[string]int64
	decodeBody(t, rec, &res)
	if res["deleted"] != 2 {
		t.Errorf("deleted = %d, want 2", res["deleted"])
	}
}

func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/tasks", `{"title":"Read ch. 4","due":"2025-11-08","course_name":"PSY-100","priority":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	var task model.Task
	decodeBody(t, rec, &task)
	if task.Status != model.TaskPending {
		t.Errorf("default status = %s", task.Status)
	}

	if rec := env.do(t, http.MethodPatch, "/api/tasks/"+task.ID, `{"status":"archived"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPatch, "/api/tasks/"+task.ID, `{"status":"completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch = %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/tasks?status=completed", "")
	var done []model.Task
	decodeBody(t, rec, &done)
	if len(done) != 1 || done[0].Title != "Read ch. 4" {
		t.Errorf("completed tasks = %+v", done)
	}
	if rec := env.do(t, http.MethodGet, "/api/tasks?status=nope", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status filter = %d", rec.Code)
	}

	if rec := env.do(t, http.MethodDelete, "/api/tasks/"+task.ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	got := env.topics()
	if got[0] != bus.TopicTaskCreated || got[len(got)-1] != bus.TopicTaskDeleted {
		t.Errorf("topics = %v", got)
	}
}

func TestDashboardAndCourses(t *testing.T) {
	env := newTestEnv(t, nil)
	ev := &model.Event{UserID: "u1", Title: "[2025FA-PSY-100-007] Essay", Start: "2025-11-06T23:59:59+00:00", SourceProvider: model.ProviderCanvas}
	if err := env.store.CreateEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/courses", "")
	var courses []model.Course
	decodeBody(t, rec, &courses)
	if len(courses) != 1 || courses[0].Code != "PSY-100" || courses[0].UpcomingAssignments != 1 {
		t.Fatalf("courses = %+v", courses)
	}

	// A new manual event invalidates the cached reads through the bus.
	env.do(t, http.MethodPost, "/api/events", `{"title":"PSY-100 study group","start":"2025-11-07T18:00:00Z"}`)
	rec = env.do(t, http.MethodGet, "/api/dashboard", "")
	var snap struct {
		Events   []model.Event `json:"events"`
		Timezone string        `json:"timezone"`
	}
	decodeBody(t, rec, &snap)
	if len(snap.Events) != 2 || snap.Timezone != "America/New_York" {
		t.Errorf("dashboard = %d events, tz %s", len(snap.Events), snap.Timezone)
	}
}

func TestCalendarWeek(t *testing.T) {
	env := newTestEnv(t, nil)
	ev := &model.Event{UserID: "u1", Title: "[2025FA-PSY-100-007] Essay", Start: "2025-11-06T23:59:59+00:00", SourceProvider: model.ProviderCanvas}
	if err := env.store.CreateEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/calendar/week?date=2025-11-06", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("week = %d %s", rec.Code, rec.Body.String())
	}
	var cal struct {
		View string `json:"view"`
		Days []struct {
			Date  string `json:"date"`
			Items []struct {
				ID    string `json:"id"`
				Label string `json:"label"`
				Slot  struct {
					Hour int `json:"hour"`
				} `json:"slot"`
			} `json:"items"`
		} `json:"days"`
	}
	decodeBody(t, rec, &cal)
	if cal.View != "week" || len(cal.Days) != 7 || cal.Days[0].Date != "2025-11-02" {
		t.Fatalf("calendar = %+v", cal)
	}
	thu := cal.Days[4]
	if thu.Date != "2025-11-06" || len(thu.Items) != 1 || thu.Items[0].Slot.Hour != 23 || thu.Items[0].Label != "11:59 PM" {
		t.Errorf("thursday = %+v", thu)
	}

	if rec := env.do(t, http.MethodGet, "/api/calendar/year", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown view = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/calendar/day?date=11/06/2025", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date = %d", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodPut, "/api/settings/colors", `{"colors":{"psy-100":"#AABBCC"}}`); rec.Code != http.StatusNoContent {
		t.Fatalf("put colors = %d %s", rec.Code, rec.Body.String())
	}
	rec := env.do(t, http.MethodGet, "/api/settings/colors", "")
	var colors map[string]string
	decodeBody(t, rec, &colors)
	if colors["PSY-100"] != "#aabbcc" {
		t.Errorf("colors = %v", colors)
	}

	if rec := env.do(t, http.MethodPut, "/api/settings/colors", `{"colors":{"PSY-100":"red"}}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad color = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/api/settings/icons", `{"icons":{"PSY-100":"rocket"}}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad icon = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/api/settings/preferences", `{"timezone":"Mars/Olympus"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad timezone = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/settings/fonts", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown kind = %d", rec.Code)
	}

	if rec := env.do(t, http.MethodPut, "/api/settings/order", `{"order":["bio-200","PSY-100","BIO-200"]}`); rec.Code != http.StatusNoContent {
		t.Fatalf("put order = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/settings/order", "")
	var order []string
	decodeBody(t, rec, &order)
	if strings.Join(order, ",") != "BIO-200,PSY-100" {
		t.Errorf("order = %v", order)
	}
}

func TestConnections(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodPut, "/api/connections/canvas", `{"feed_url":"not a url"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad url = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/api/connections/outlook", `{"feed_url":"https://example.com/feed.ics"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown provider = %d", rec.Code)
	}
	rec := env.do(t, http.MethodPut, "/api/connections/canvas", `{"feed_url":"https://canvas.example.edu/feeds/calendars/user_abc.ics","access_token":"tok"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put = %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "tok") {
		t.Error("access token leaked in response")
	}

	rec = env.do(t, http.MethodGet, "/api/connections", "")
	var conns []model.CalendarConnection
	decodeBody(t, rec, &conns)
	if len(conns) != 1 || conns[0].Provider != model.ProviderCanvas {
		t.Errorf("connections = %+v", conns)
	}
	if rec := env.do(t, http.MethodDelete, "/api/connections/canvas", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
}

func TestSyncWithoutSyncer(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec := env.do(t, http.MethodPost, "/api/sync", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestWeekPage(t *testing.T) {
	env := newTestEnv(t, nil)
	ev := &model.Event{UserID: "u1", Title: "Essay <draft>", Start: "2025-11-06T23:59:59+00:00", SourceProvider: model.ProviderCanvas}
	if err := env.store.CreateEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/calendar/week?date=2025-11-06", "")
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("page = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	for _, want := range []string{`data-ready="true"`, "Essay &lt;draft&gt;", "11:59 PM", `data-date="2025-11-06"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestStreamDeliversOwnMessages(t *testing.T) {
	env := newTestEnv(t, nil)
	env.server.heartbeat = time.Hour
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	req.Header.Set(UserHeader, "u1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %s", ct)
	}

	rd := bufio.NewReader(resp.Body)
	line, err := rd.ReadString('\n')
	if err != nil || line != ": connected\n" {
		t.Fatalf("first line = %q, %v", line, err)
	}

	env.bus.Publish(bus.Message{Topic: bus.TopicTaskCreated, UserID: "someone-else"})
	env.bus.Publish(bus.Message{Topic: bus.TopicEventCreated, UserID: "u1", Payload: map[string]string{"id": "e1"}})

	for {
		line, err = rd.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended: %v", err)
		}
		if strings.HasPrefix(line, "event: ") {
			break
		}
	}
	if line != "event: eventCreated\n" {
		t.Errorf("event line = %q; other users' messages must be filtered", line)
	}
	data, _ := rd.ReadString('\n')
	if !strings.Contains(data, `"id":"e1"`) {
		t.Errorf("data line = %q", data)
	}
}

func TestMetricsRecordRoutePattern(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/tasks", "")

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `studycal_http_requests_total{method="GET",route="GET /api/tasks",status="200"}`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics missing %s", want)
	}
}
