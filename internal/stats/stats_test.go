package stats

import (
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
	sync.AddUpdateException(dt(2025, 12, 22, 10, 0), dt(2025, 12, 23, 10, 0))
	lunch := model.EventSeries{ID: 2, Title: "Lunch", Start: dt(2025, 12, 5, 12, 0), End: dt(2025, 12, 5, 13, 0)}
	return []model.EventSeries{sync, lunch}
}

func TestGenerate(t *testing.T) {
	r := Generate(calendar(), dt(2025, 12, 1, 0, 0))

	if r.Total != 2 || r.Single != 1 || r.Recurring != 1 {
		t.Errorf("counts = %d/%d/%d", r.Total, r.Single, r.Recurring)
	}
	// Mondays: Dec 1, 8, 29. The Dec 22 slot moved to Tuesday, Dec 15 deleted.
	tests := []struct {
		day  time.Weekday
		want int
	}{
		{time.Monday, 3},
		{time.Tuesday, 1},
		{time.Friday, 1},
		{time.Sunday, 0},
	}
	for _, tt := range tests {
		if got := r.ByWeekday[tt.day]; got != tt.want {
			t.Errorf("%s = %d, want %d", tt.day, got, tt.want)
		}
	}
	if r.Busiest != time.Monday || r.BusiestCount != 3 || r.BusiestName != "Monday" {
		t.Errorf("busiest = %s (%d)", r.Busiest, r.BusiestCount)
	}
	if r.Distribution["Friday"] != 1 {
		t.Errorf("distribution = %v", r.Distribution)
	}
}

func TestFormat(t *testing.T) {
	out := Format(Generate(calendar(), dt(2025, 12, 1, 0, 0)))
	for _, want := range []string{
		"Total Events: 2",
		"Single Events: 1",
		"Busiest Day of the Week: Monday (3 event occurrences in next year)",
		"   Mon:   3 events " + strings.Repeat("█", 20),
		"   Tue:   1 events " + strings.Repeat("█", 6) + "\n",
		"   Sun:   0 events \n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}

	if got := Format(Generate(nil, dt(2025, 1, 1, 0, 0))); !strings.Contains(got, "No events found") {
		t.Errorf("empty report = %q", got)
	}
}

func TestQuickSummaryAndUpcoming(t *testing.T) {
	if got := QuickSummary(calendar()); got != "Total: 2 events (1 single, 1 recurring)" {
		t.Errorf("QuickSummary = %q", got)
	}
	if got := UpcomingCount(calendar(), dt(2025, 12, 1, 0, 0), 7); got != 2 {
		t.Errorf("UpcomingCount(7 days) = %d, want 2", got)
	}
}
