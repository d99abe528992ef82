package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"pcal/internal/model"
)

func dt(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func calendar() []model.EventSeries {
	until := dt(2025, 12, 31, 23, 59)
	sync := model.EventSeries{
		ID: 1, Title: "Weekly Sync",
		Start: dt(2025, 12, 1, 10, 0), End: dt(2025, 12, 1, 11, 0),
		Frequency: model.FrequencyWeekly, Interval: 1, RecurrenceEnd: &until,
	}
	sync.AddDeleteException(dt(2025, 12, 15, 10, 0))
	lunch := model.EventSeries{ID: 2, Title: "Lunch", Start: dt(2025, 12, 8, 10, 20), End: dt(2025, 12, 8, 11, 0)}
	return []model.EventSeries{lunch, sync}
}

func TestCheck(t *testing.T) {
	n := New(30 * time.Minute)

	tests := []struct {
		name      string
		now       time.Time
		wantTitle string
		wantUntil time.Duration
	}{
		{"next within window", dt(2025, 12, 8, 9, 45), "Weekly Sync", 15 * time.Minute},
		{"earliest of two", dt(2025, 12, 8, 10, 0), "Lunch", 20 * time.Minute},
		{"start equal to now is not upcoming", dt(2025, 12, 8, 10, 20), "", 0},
		{"outside window", dt(2025, 12, 8, 9, 0), "", 0},
		{"window end is inclusive", dt(2025, 12, 1, 9, 30), "Weekly Sync", 30 * time.Minute},
		{"deleted occurrence", dt(2025, 12, 15, 9, 50), "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := n.Check(tt.now, calendar())
			if tt.wantTitle == "" {
				if r != nil {
					t.Fatalf("unexpected reminder %+v", r)
				}
				return
			}
			if r == nil {
				t.Fatal("no reminder")
			}
			if r.Occurrence.Title != tt.wantTitle || r.Until != tt.wantUntil {
				t.Errorf("got %q in %v, want %q in %v", r.Occurrence.Title, r.Until, tt.wantTitle, tt.wantUntil)
			}
		})
	}
}

func TestCheckSkipsInvalidSeries(t *testing.T) {
	bad := model.EventSeries{ID: 3, Title: "Broken", Start: dt(2025, 12, 8, 9, 50), End: dt(2025, 12, 8, 10, 0),
		Frequency: model.FrequencyDaily, Interval: 1}
	r := New(0).Check(dt(2025, 12, 8, 9, 45), append(calendar(), bad))
	if r == nil || r.Occurrence.Title != "Weekly Sync" {
		t.Errorf("got %+v", r)
	}
}

func TestFormatReminder(t *testing.T) {
	occ := model.Occurrence{Title: "Weekly Sync", Start: dt(2025, 12, 8, 10, 0)}

	tests := []struct {
		until time.Duration
		want  string
	}{
		{time.Minute, "in 1 minute!"},
		{15 * time.Minute, "in 15 minutes!"},
		{90 * time.Minute, "in 1 hour!"},
		{5 * time.Hour, "in 5 hours!"},
		{49 * time.Hour, "in 2 days!"},
	}
	for _, tt := range tests {
		got := FormatReminder(Reminder{Occurrence: occ, Until: tt.until})
		if !strings.Contains(got, tt.want) {
			t.Errorf("FormatReminder(%v) = %q, want %q", tt.until, got, tt.want)
		}
		if !strings.Contains(got, "Scheduled for: Dec 08, 2025 at 10:00 AM") {
			t.Errorf("missing schedule line: %q", got)
		}
	}

	if got := SettingsInfo(2 * time.Hour); got != "Current notification setting: 2 hour(s) before event" {
		t.Errorf("SettingsInfo = %q", got)
	}
}

func TestReminderJobDeliversOnce(t *testing.T) {
	now := dt(2025, 12, 8, 9, 45)
	var got []Reminder
	job := ReminderJob(New(30*time.Minute), calendar, func(r Reminder) { got = append(got, r) },
		func() time.Time { return now })

	job()
	now = now.Add(time.Minute)
	job()
	if len(got) != 1 {
		t.Fatalf("delivered %d reminders, want 1", len(got))
	}

	now = dt(2025, 12, 8, 10, 1)
	job()
	if len(got) != 2 || got[1].Occurrence.Title != "Lunch" {
		t.Errorf("second reminder = %+v", got)
	}
}

func TestScheduler(t *testing.T) {
	s := NewScheduler(time.UTC)
	if err := s.Add("bad", "not a schedule", func() {}); err == nil {
		t.Error("invalid schedule accepted")
	}

	ran := make(chan struct{}, 1)
	if err := s.Add("tick", "@every 1s", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d", s.Len())
	}

	s.Start()
	defer s.Stop(context.Background())

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
}
