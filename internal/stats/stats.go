// Package stats summarizes a calendar: series counts by type and how
// occurrences spread over the days of the week.
package stats

import (
	"fmt"
	"strings"
	"time"

	appLog "pcal/internal/log"
	"pcal/internal/model"
	"pcal/internal/recur"
)

// Weekdays is the report order, Monday first.
var Weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Report is the result of Generate.
type Report struct {
	Total     int `json:"total"`
	Single    int `json:"single"`
	Recurring int `json:"recurring"`

	// ByWeekday counts occurrences over the next year per weekday.
	ByWeekday map[time.Weekday]int `json:"-"`
	// Distribution mirrors ByWeekday keyed by weekday name for JSON output.
	Distribution map[string]int `json:"distribution"`

	// Busiest is the weekday with most occurrences; BusiestCount is zero
	// when there are none.
	Busiest      time.Weekday `json:"-"`
	BusiestName  string       `json:"busiest,omitempty"`
	BusiestCount int          `json:"busiest_count"`

	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Generate counts series and the weekday distribution of occurrences in
// [now, now+1 year].
func Generate(series []model.EventSeries, now time.Time) Report {
	r := Report{
		Total:        len(series),
		ByWeekday:    make(map[time.Weekday]int, 7),
		Distribution: make(map[string]int, 7),
		From:         now,
		To:           now.AddDate(1, 0, 0),
	}
	for i := range series {
		if series[i].IsRecurring() {
			r.Recurring++
		} else {
			r.Single++
		}
	}

	res, err := recur.ExpandAll(series, recur.ExpandConfig{RangeStart: r.From, RangeEnd: r.To})
	if err != nil {
		appLog.Error("stats expansion failed", err)
	}
	for _, inv := range res.Invalid {
		appLog.Warn("stats skipped invalid event", "id", inv.SeriesID, "err", inv.Err.Error())
	}
	for _, occ := range res.Occurrences {
		r.ByWeekday[occ.Start.Weekday()]++
	}

	for _, d := range Weekdays {
		r.Distribution[d.String()] = r.ByWeekday[d]
		if r.ByWeekday[d] > r.BusiestCount {
			r.BusiestCount = r.ByWeekday[d]
			r.Busiest = d
		}
	}
	if r.BusiestCount > 0 {
		r.BusiestName = r.Busiest.String()
	}
	return r
}

const barWidth = 20

func bar(count, peak int) string {
	if peak == 0 {
		return ""
	}
	return strings.Repeat("█", count*barWidth/peak)
}

// Format renders the text report.
func Format(r Report) string {
	if r.Total == 0 {
		return "EVENT STATISTICS\n\nNo events found in the system."
	}

	rule := strings.Repeat("=", 50)
	var b strings.Builder
	b.WriteString("EVENT STATISTICS\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "Total Events: %d\n\n", r.Total)
	b.WriteString("Events by Type:\n")
	fmt.Fprintf(&b, "   - Single Events: %d\n", r.Single)
	fmt.Fprintf(&b, "   - Recurring Events: %d\n\n", r.Recurring)
	if r.BusiestCount > 0 {
		fmt.Fprintf(&b, "Busiest Day of the Week: %s (%d event occurrences in next year)\n\n", r.Busiest, r.BusiestCount)
	}
	b.WriteString("Event Distribution by Day of Week (next year):\n")
	for _, d := range Weekdays {
		n := r.ByWeekday[d]
		fmt.Fprintf(&b, "   %-3s: %3d events %s\n", d.String()[:3], n, bar(n, r.BusiestCount))
	}
	b.WriteString("\n" + rule)
	return b.String()
}

// QuickSummary is a one-line count of series by type.
func QuickSummary(series []model.EventSeries) string {
	recurring := 0
	for i := range series {
		if series[i].IsRecurring() {
			recurring++
		}
	}
	return fmt.Sprintf("Total: %d events (%d single, %d recurring)", len(series), len(series)-recurring, recurring)
}

// UpcomingCount counts occurrences starting in [now, now+days].
func UpcomingCount(series []model.EventSeries, now time.Time, days int) int {
	res, err := recur.ExpandAll(series, recur.ExpandConfig{RangeStart: now, RangeEnd: now.AddDate(0, 0, days)})
	if err != nil {
		return 0
	}
	return len(res.Occurrences)
}
