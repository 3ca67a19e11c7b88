package capture

import (
	"context"
	"testing"
)

func TestNormalizeDefaults(t *testing.T) {
	o := Options{URL: "http://127.0.0.1:8080/calendar/week", OutputPath: "week.png"}
	if err := o.normalize(); err != nil {
		t.Fatal(err)
	}
	if o.Width != DefaultWidth || o.Height != DefaultHeight || o.Timeout != DefaultTimeout || o.Selector != DefaultSelector {
		t.Errorf("defaults not applied: %+v", o)
	}
}

func TestSnapshotRequiresURLAndOutput(t *testing.T) {
	if err := Snapshot(context.Background(), Options{OutputPath: "x.png"}); err == nil {
		t.Error("expected error without URL")
	}
	if err := Snapshot(context.Background(), Options{URL: "http://localhost"}); err == nil {
		t.Error("expected error without output path")
	}
}

func TestWeekURL(t *testing.T) {
	got, err := WeekURL("http://127.0.0.1:8080/", "2025-11-06")
	if err != nil || got != "http://127.0.0.1:8080/calendar/week?date=2025-11-06" {
		t.Errorf("WeekURL = %q, %v", got, err)
	}
	got, err = WeekURL("http://127.0.0.1:8080", "")
	if err != nil || got != "http://127.0.0.1:8080/calendar/week" {
		t.Errorf("WeekURL without date = %q, %v", got, err)
	}
	if _, err := WeekURL("127.0.0.1:8080", ""); err == nil {
		t.Error("expected error for base without scheme")
	}
}
