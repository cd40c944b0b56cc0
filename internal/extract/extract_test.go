package extract

import (
	"testing"
	"time"
)

func TestFetchWindowStartsLocalSundayMidnight(t *testing.T) {
	// A Wednesday; the window must open on the preceding Sunday.
	now := time.Date(2025, time.June, 11, 15, 30, 0, 0, time.Local)
	start, end := FetchWindow(now)

	if start.Weekday() != time.Sunday {
		t.Errorf("expected window to start on Sunday, got %s", start.Weekday())
	}
	if start.Hour() != 0 || start.Minute() != 0 || start.Second() != 0 {
		t.Errorf("expected midnight start, got %s", start)
	}
	if start.Day() != 8 || start.Month() != time.June {
		t.Errorf("expected June 8, got %s", start.Format("2006-01-02"))
	}
	if got := end.Sub(start).Hours() / 24; got != 28 {
		t.Errorf("expected 28-day window, got %.0f days", got)
	}
}

func TestFetchWindowOnSunday(t *testing.T) {
	now := time.Date(2025, time.June, 8, 0, 0, 0, 0, time.Local)
	start, _ := FetchWindow(now)

	if start.Day() != 8 {
		t.Errorf("a Sunday should anchor its own week, got %s", start.Format("2006-01-02"))
	}
}

func TestWeekOf(t *testing.T) {
	now := time.Date(2025, time.June, 11, 9, 0, 0, 0, time.Local)
	if got := WeekOf(now); got != "2025-06-08" {
		t.Errorf("expected 2025-06-08, got %q", got)
	}
}

func TestNormalizeWallClock(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		start    string
		end      string
		ok       bool
		title    string
		evStart  string
		evEnd    string
		evDate   string
	}{
		{
			name:    "plain event",
			subject: "Standup",
			start:   "2025-06-09T09:30:00.0000000",
			end:     "2025-06-09T10:00:00.0000000",
			ok:      true, title: "Standup", evStart: "09:30", evEnd: "10:00", evDate: "2025-06-09",
		},
		{
			name:    "blank subject becomes Busy",
			subject: "  ",
			start:   "2025-06-09T14:00:00",
			end:     "2025-06-09T15:00:00",
			ok:      true, title: "Busy", evStart: "14:00", evEnd: "15:00", evDate: "2025-06-09",
		},
		{
			name:    "multi-day span dropped",
			subject: "Offsite",
			start:   "2025-06-09T09:00:00",
			end:     "2025-06-10T17:00:00",
			ok:      false,
		},
		{
			name:    "zero length dropped",
			subject: "Blip",
			start:   "2025-06-09T09:00:00",
			end:     "2025-06-09T09:00:00",
			ok:      false,
		},
		{
			name:    "truncated literal dropped",
			subject: "Broken",
			start:   "2025-06-09",
			end:     "2025-06-09T10:00:00",
			ok:      false,
		},
	}

	for _, tt := range tests {
		ev, ok := normalizeWallClock(tt.subject, tt.start, tt.end)
		if ok != tt.ok {
			t.Errorf("%s: ok = %v, want %v", tt.name, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if ev.Title != tt.title || ev.Start != tt.evStart || ev.End != tt.evEnd || ev.Date != tt.evDate {
			t.Errorf("%s: got %+v", tt.name, ev)
		}
	}
}

func TestIsFree(t *testing.T) {
	for _, v := range []string{"free", "Free", "FREE"} {
		if !isFree(v) {
			t.Errorf("expected %q to read as free", v)
		}
	}
	for _, v := range []string{"busy", "tentative", "oof", ""} {
		if isFree(v) {
			t.Errorf("expected %q to not read as free", v)
		}
	}
}
