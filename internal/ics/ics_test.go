package ics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"
)

const canvasFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Instructure//Canvas//EN
BEGIN:VEVENT
UID:event-assignment-101
DTSTAMP:20251101T000000Z
DTSTART:20251106T235959Z
DTEND:20251106T235959Z
SUMMARY:[2025FA-PSY-100-007] Essay
END:VEVENT
BEGIN:VEVENT
UID:event-calendar-event-7
DTSTAMP:20251101T000000Z
DTSTART;VALUE=DATE:20251110
SUMMARY:Reading day
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20251101T000000Z
DTSTART:20251106T100000Z
SUMMARY:No uid
END:VEVENT
END:VCALENDAR
`

const recurringFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Google Inc//Google Calendar 70.9054//EN
BEGIN:VEVENT
UID:lecture-1
DTSTAMP:20251101T000000Z
DTSTART;TZID=America/New_York:20251103T100000
DTEND;TZID=America/New_York:20251103T111500
RRULE:FREQ=WEEKLY;BYDAY=MO,WE;COUNT=6
EXDATE;TZID=America/New_York:20251105T100000
SUMMARY:PSY-100 lecture
LOCATION:Room 12
END:VEVENT
BEGIN:VEVENT
UID:lecture-1
DTSTAMP:20251101T000000Z
RECURRENCE-ID;TZID=America/New_York:20251110T100000
DTSTART;TZID=America/New_York:20251110T130000
DTEND;TZID=America/New_York:20251110T141500
SUMMARY:PSY-100 lecture (moved)
END:VEVENT
END:VCALENDAR
`

func TestParseCanvasFeed(t *testing.T) {
	events, err := Parse(Source{ID: "u1/canvas"}, []byte(canvasFeed))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (uid-less VEVENT skipped)", len(events))
	}
	essay := events[0]
	if essay.UID != "event-assignment-101" || essay.Summary != "[2025FA-PSY-100-007] Essay" {
		t.Errorf("essay = %+v", essay)
	}
	if essay.Start.Location() != time.UTC || essay.Start.Hour() != 23 || essay.AllDay {
		t.Errorf("essay start = %v allDay=%v", essay.Start, essay.AllDay)
	}
	day := events[1]
	if !day.AllDay || !day.End.Equal(day.Start.AddDate(0, 0, 1)) {
		t.Errorf("all-day event = %+v", day)
	}
}

func TestParseRejectsEmptyBody(t *testing.T) {
	if _, err := Parse(Source{ID: "x"}, []byte("  \n")); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestExpandRecurring(t *testing.T) {
	events, err := Parse(Source{ID: "u1/google"}, []byte(recurringFeed))
	if err != nil {
		t.Fatal(err)
	}
	w := Window{
		Start: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	res, err := Expand(events, w)
	if err != nil {
		t.Fatal(err)
	}
	// COUNT=6 gives Nov 3,5,10,12,17,19; Nov 5 is excluded.
	if len(res.Occurrences) != 5 {
		t.Fatalf("got %d occurrences, want 5", len(res.Occurrences))
	}
	moved := res.Occurrences[1]
	if moved.Summary != "PSY-100 lecture (moved)" || moved.Start.Hour() != 13 {
		t.Errorf("override not applied: %+v", moved)
	}
	if moved.InstanceKey != "2025-11-10T15:00:00Z" {
		t.Errorf("instance key = %s, want original slot", moved.InstanceKey)
	}
	for i := 1; i < len(res.Occurrences); i++ {
		if res.Occurrences[i].Start.Before(res.Occurrences[i-1].Start) {
			t.Fatal("occurrences not ordered by start")
		}
	}
}

func TestExpandWindowAndCap(t *testing.T) {
	events, _ := Parse(Source{ID: "u1/google"}, []byte(recurringFeed))

	res, _ := Expand(events, Window{
		Start: time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC),
	})
	if len(res.Occurrences) != 2 {
		t.Errorf("windowed = %d occurrences, want 2", len(res.Occurrences))
	}

	res, _ = Expand(events, Window{
		Start:       time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		MaxPerEvent: 2,
	})
	if len(res.Occurrences) != 2 || len(res.Truncated) != 1 || res.Truncated[0] != "lecture-1" {
		t.Errorf("capped = %d occurrences, truncated %v", len(res.Occurrences), res.Truncated)
	}

	if _, err := Expand(events, Window{Start: time.Now(), End: time.Now().Add(-time.Hour)}); err == nil {
		t.Error("expected error for inverted window")
	}
}

func TestFetchUsesETagAndBearer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(canvasFeed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "u1/canvas", URL: srv.URL + "/feed.ics?secret=1", Token: "tok"}

	first, err := f.FetchOne(context.Background(), src)
	if err != nil || first.FromCache || !strings.Contains(string(first.Body), "Essay") {
		t.Fatalf("first fetch = %v, %v", first.FromCache, err)
	}
	second, err := f.FetchOne(context.Background(), src)
	if err != nil || !second.FromCache || string(second.Body) != string(first.Body) {
		t.Fatalf("second fetch = %v, %v", second.FromCache, err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d", hits.Load())
	}
}

func TestFetchFallsBackToCache(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(canvasFeed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "u1/canvas", URL: srv.URL + "/feed.ics"}
	if _, err := f.FetchOne(context.Background(), src); err != nil {
		t.Fatal(err)
	}

	fail.Store(true)
	res, err := f.FetchOne(context.Background(), src)
	if err != nil || !res.FromCache {
		t.Errorf("fallback = %v, %v", res.FromCache, err)
	}

	other := Source{ID: "u2/canvas", URL: srv.URL + "/other.ics"}
	if _, err := f.FetchOne(context.Background(), other); err == nil {
		t.Error("expected error with nothing cached")
	}
}

func TestRedactURL(t *testing.T) {
	got := RedactURL("https://canvas.example.edu/feeds/calendars/user_abc.ics?token=x")
	if got != "https://canvas.example.edu/(redacted)" {
		t.Errorf("RedactURL = %s", got)
	}
	if RedactURL("::") != "ics://(redacted)" {
		t.Error("unparseable url not redacted")
	}
}

func TestFetchCacheIsPerSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer alice-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nX-OWNER:alice\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	feed := srv.URL + "/shared.ics"
	alice := Source{ID: "alice/canvas", URL: feed, Token: "alice-token"}
	if _, err := f.FetchOne(context.Background(), alice); err != nil {
		t.Fatal(err)
	}

	mallory := Source{ID: "mallory/canvas", URL: feed, Token: "wrong"}
	res, err := f.FetchOne(context.Background(), mallory)
	if !errors.Is(err, ErrUnauthorized) || len(res.Body) != 0 {
		t.Fatalf("other user's fetch = %q, %v; want ErrUnauthorized and no body", res.Body, err)
	}

	// A revoked token on the same source is an error, not a cached success.
	alice.Token = "revoked"
	if _, err := f.FetchOne(context.Background(), alice); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("revoked token err = %v, want ErrUnauthorized", err)
	}

	if f.cacheDirFor(Source{ID: "a", URL: feed}) == f.cacheDirFor(Source{ID: "b", URL: feed}) {
		t.Error("cache dir ignores the source ID")
	}
}
