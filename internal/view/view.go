// Package view renders month and week calendars from expanded occurrences.
package view

import (
	"fmt"
	"strings"
	"time"

	"pcal/internal/model"
	"pcal/internal/recur"
)

// ParseWeekStart maps the config week_start value to a weekday. Anything
// other than "monday" starts weeks on Sunday.
func ParseWeekStart(s string) time.Weekday {
	if strings.EqualFold(strings.TrimSpace(s), "monday") {
		return time.Monday
	}
	return time.Sunday
}

// Day is one cell of a month grid. Date is zero for padding cells.
type Day struct {
	Date        time.Time
	Occurrences []model.Occurrence
}

// Blank reports whether the cell is padding outside the month.
func (d Day) Blank() bool { return d.Date.IsZero() }

// Busy reports whether at least one occurrence starts on the day.
func (d Day) Busy() bool { return len(d.Occurrences) > 0 }

// MonthGrid is a month laid out in 7-day rows.
type MonthGrid struct {
	Year      int
	Month     time.Month
	WeekStart time.Weekday
	Weekdays  []time.Weekday
	Weeks     [][]Day
	// Invalid lists series that could not be expanded.
	Invalid []recur.InvalidSeries
}

// Grid expands series over the month and buckets occurrences per day.
func Grid(year int, month time.Month, series []model.EventSeries, weekStart time.Weekday, loc *time.Location) (MonthGrid, error) {
	if loc == nil {
		loc = time.Local
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)

	res, err := recur.ExpandAll(series, recur.ExpandConfig{
		RangeStart: first,
		RangeEnd:   time.Date(year, month, last.Day(), 23, 59, 59, 0, loc),
	})
	if err != nil {
		return MonthGrid{}, err
	}

	byDay := make(map[int][]model.Occurrence)
	for _, occ := range res.Occurrences {
		byDay[occ.Start.Day()] = append(byDay[occ.Start.Day()], occ)
	}

	g := MonthGrid{Year: year, Month: month, WeekStart: weekStart, Invalid: res.Invalid}
	for i := 0; i < 7; i++ {
		g.Weekdays = append(g.Weekdays, (weekStart+time.Weekday(i))%7)
	}

	offset := (int(first.Weekday()) - int(weekStart) + 7) % 7
	row := make([]Day, offset, 7)
	for d := 1; d <= last.Day(); d++ {
		row = append(row, Day{Date: time.Date(year, month, d, 0, 0, 0, 0, loc), Occurrences: byDay[d]})
		if len(row) == 7 {
			g.Weeks = append(g.Weeks, row)
			row = make([]Day, 0, 7)
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, Day{})
		}
		g.Weeks = append(g.Weeks, row)
	}
	return g, nil
}

const rule = "--------------------------------"

// Month renders the text calendar; "*" marks days with an occurrence.
func Month(year int, month time.Month, series []model.EventSeries, weekStart time.Weekday, loc *time.Location) (string, error) {
	g, err := Grid(year, month, series, weekStart, loc)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "        %s %d\n", g.Month, g.Year)
	b.WriteString(rule + "\n")
	for _, wd := range g.Weekdays {
		b.WriteString(" " + strings.ToUpper(wd.String()[:3]))
	}
	b.WriteString("\n")

	for i, week := range g.Weeks {
		var line strings.Builder
		for _, d := range week {
			if d.Blank() {
				line.WriteString("    ")
				continue
			}
			mark := " "
			if d.Busy() {
				mark = "*"
			}
			fmt.Fprintf(&line, "%2d%s ", d.Date.Day(), mark)
		}
		b.WriteString(strings.TrimRight(line.String(), " "))
		if i < len(g.Weeks)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n" + rule + "\n")
	b.WriteString("* indicates a day with at least one event.")
	return b.String(), nil
}

const weekRule = "-------------------------------------------------"

// Week lists occurrences of the 7 days starting at from's calendar day.
func Week(from time.Time, series []model.EventSeries) (string, error) {
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	end := start.AddDate(0, 0, 7).Add(-time.Second)

	res, err := recur.ExpandAll(series, recur.ExpandConfig{RangeStart: start, RangeEnd: end})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Showing events from %s to %s\n", start.Format("2006-01-02"), start.AddDate(0, 0, 6).Format("2006-01-02"))
	b.WriteString(weekRule + "\n")

	for i := 0; i < 7; i++ {
		day := start.AddDate(0, 0, i)
		fmt.Fprintf(&b, "\n%s, %s:\n", day.Weekday(), day.Format("2006-01-02"))

		found := false
		for _, occ := range res.Occurrences {
			y, m, d := occ.Start.Date()
			if y != day.Year() || m != day.Month() || d != day.Day() {
				continue
			}
			fmt.Fprintf(&b, "    - %s (Starts: %s)", occ.Title, occ.Start.Format("15:04"))
			if occ.Recurring {
				b.WriteString(" [Recurring]")
			}
			b.WriteString("\n")
			found = true
		}
		if !found {
			b.WriteString("    (No events scheduled)\n")
		}
	}

	if len(res.Occurrences) == 0 {
		b.WriteString("\n" + weekRule + "\n")
		b.WriteString("No events found in the next 7 days.")
	}
	return b.String(), nil
}
