package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"pcal/internal/model"
	"pcal/internal/recur"
)

const (
	floatingLayout = "20060102T150405"
	defaultProdID  = "-//pcal//personal calendar//EN"
)

// ExportOptions controls Export.
type ExportOptions struct {
	ProdID string
	// Name is written as X-WR-CALNAME when set.
	Name string
	// Now stamps DTSTAMP. Defaults to time.Now.
	Now time.Time
}

// UID is the stable iCalendar UID of a series.
func UID(seriesID int) string {
	return fmt.Sprintf("pcal-%d@pcal", seriesID)
}

// Export renders series as an iCalendar document: one VEVENT per series
// with floating DTSTART/DTEND, an RRULE for recurring series, one EXDATE
// per deleted occurrence and one RECURRENCE-ID override per moved
// occurrence.
func Export(series []model.EventSeries, opts ExportOptions) ([]byte, error) {
	if opts.ProdID == "" {
		opts.ProdID = defaultProdID
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(opts.ProdID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	for i := range series {
		if err := addSeries(cal, &series[i], opts.Now); err != nil {
			return nil, err
		}
	}
	return []byte(cal.Serialize()), nil
}

func addSeries(cal *ical.Calendar, s *model.EventSeries, now time.Time) error {
	uid := UID(s.ID)
	ev := newEvent(cal, uid, s, now, s.Start, s.End)

	if !s.IsRecurring() {
		return nil
	}

	rule, err := RuleString(s)
	if err != nil {
		return fmt.Errorf("series %d: %w", s.ID, err)
	}
	ev.AddProperty(ical.ComponentPropertyRrule, rule)

	seen := make(map[int64]bool, len(s.Exceptions))
	for _, ex := range s.Exceptions {
		// First exception per date wins, like the generator.
		k := ex.OriginalDate.UnixNano()
		if seen[k] {
			continue
		}
		seen[k] = true

		switch {
		case ex.IsDeleted:
			ev.AddProperty(ical.ComponentPropertyExdate, ex.OriginalDate.Format(floatingLayout))
		case ex.NewDate != nil:
			ov := newEvent(cal, uid, s, now, *ex.NewDate, ex.NewDate.Add(s.Duration()))
			ov.SetProperty(propRecurrenceID, ex.OriginalDate.Format(floatingLayout))
		}
	}
	return nil
}

func newEvent(cal *ical.Calendar, uid string, s *model.EventSeries, now, start, end time.Time) *ical.VEvent {
	ev := cal.AddEvent(uid)
	ev.SetDtStampTime(now)
	ev.SetProperty(ical.ComponentPropertyDtStart, start.Format(floatingLayout))
	ev.SetProperty(ical.ComponentPropertyDtEnd, end.Format(floatingLayout))
	ev.SetSummary(s.Title)
	if s.Description != "" {
		ev.SetDescription(s.Description)
	}
	return ev
}

// RuleString builds the RRULE value of a recurring series.
func RuleString(s *model.EventSeries) (string, error) {
	if !s.IsRecurring() || s.RecurrenceEnd == nil {
		return "", fmt.Errorf("series %d is not recurring", s.ID)
	}
	opt, err := recur.Rule(s)
	if err != nil {
		return "", err
	}
	opt.Dtstart = time.Time{}
	opt.Until = *s.RecurrenceEnd
	if s.MaxOccurrences != nil {
		opt.Count = *s.MaxOccurrences
	}
	return opt.RRuleString(), nil
}
