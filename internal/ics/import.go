package ics

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "pcal/internal/log"
	"pcal/internal/model"
	"pcal/internal/recur"
)

// DefaultHorizon bounds rules that carry neither UNTIL nor COUNT.
const DefaultHorizon = 365 * 24 * time.Hour

// ImportOptions controls Import.
type ImportOptions struct {
	// Location is where floating times are read and everything is
	// converted to. Defaults to time.Local.
	Location *time.Location
	// Horizon is the recurrence end of unbounded rules, counted from
	// DTSTART. Defaults to DefaultHorizon.
	Horizon time.Duration
}

// SkippedEvent is a VEVENT that could not be mapped onto a series.
type SkippedEvent struct {
	UID    string
	Reason string
}

// ImportResult holds the imported series (IDs unset) and the events left
// out.
type ImportResult struct {
	Series  []model.EventSeries
	Skipped []SkippedEvent
}

// Import converts an ICS payload into event series. Only FREQ=DAILY,
// WEEKLY or MONTHLY with INTERVAL, UNTIL and COUNT are representable.
// EXDATEs become delete exceptions and RECURRENCE-ID overrides become move
// exceptions.
func Import(body []byte, opts ImportOptions) (ImportResult, error) {
	var result ImportResult
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Horizon <= 0 {
		opts.Horizon = DefaultHorizon
	}

	events, skipped, err := ParseEvents(body, opts.Location)
	if err != nil {
		return result, err
	}
	result.Skipped = skipped

	var (
		order     []string
		baseByUID = make(map[string]ParsedEvent)
		overrides = make(map[string][]ParsedEvent)
	)
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, dup := baseByUID[ev.UID]; dup {
			result.Skipped = append(result.Skipped, SkippedEvent{UID: ev.UID, Reason: "duplicate UID"})
			continue
		}
		baseByUID[ev.UID] = ev
		order = append(order, ev.UID)
	}
	for uid := range overrides {
		if _, ok := baseByUID[uid]; !ok {
			result.Skipped = append(result.Skipped, SkippedEvent{UID: uid, Reason: "override without a base event"})
		}
	}

	for _, uid := range order {
		s, err := toSeries(baseByUID[uid], overrides[uid], opts)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedEvent{UID: uid, Reason: err.Error()})
			continue
		}
		result.Series = append(result.Series, s)
	}

	for _, sk := range result.Skipped {
		appLog.Warn("ics import skipped event", "uid", sk.UID, "reason", sk.Reason)
	}
	appLog.Info("ics import completed", "series", len(result.Series), "skipped", len(result.Skipped))
	return result, nil
}

// supportedFreq maps rrule-go frequencies onto the series cadence.
var supportedFreq = map[rrule.Frequency]model.Frequency{
	rrule.DAILY:   model.FrequencyDaily,
	rrule.WEEKLY:  model.FrequencyWeekly,
	rrule.MONTHLY: model.FrequencyMonthly,
}

func toSeries(base ParsedEvent, overrides []ParsedEvent, opts ImportOptions) (model.EventSeries, error) {
	s := model.EventSeries{
		Title:       base.Summary,
		Description: base.Description,
		Start:       base.Start,
		End:         base.End,
		Frequency:   model.FrequencyNone,
		Interval:    1,
	}
	if strings.TrimSpace(s.Title) == "" {
		s.Title = "(untitled)"
	}
	if s.End.Before(s.Start) {
		return s, errors.New("DTEND before DTSTART")
	}

	if base.RawRRule == "" {
		return s, nil
	}
	if err := applyRule(&s, base.RawRRule, opts); err != nil {
		return s, err
	}

	for _, ex := range base.ExDates {
		if ok, _ := recur.IsNaturalDate(&s, ex); !ok {
			appLog.Debug("ics import dropped EXDATE off the cadence", "uid", base.UID, "exdate", ex)
			continue
		}
		s.AddDeleteException(ex)
	}
	for _, ov := range overrides {
		natural := *ov.RecurrenceID
		if ok, _ := recur.IsNaturalDate(&s, natural); !ok {
			appLog.Debug("ics import dropped override off the cadence", "uid", base.UID, "recurrence_id", natural)
			continue
		}
		s.AddUpdateException(natural, ov.Start)
	}
	sort.SliceStable(s.Exceptions, func(i, j int) bool {
		return s.Exceptions[i].OriginalDate.Before(s.Exceptions[j].OriginalDate)
	})

	if err := recur.Validate(&s); err != nil {
		return s, err
	}
	return s, nil
}

// applyRule fills the recurrence fields of s from an RRULE value.
func applyRule(s *model.EventSeries, raw string, opts ImportOptions) error {
	loc := s.Start.Location()
	opt, err := rrule.StrToROptionInLocation(raw, loc)
	if err != nil {
		return fmt.Errorf("RRULE %q: %w", raw, err)
	}

	freq, ok := supportedFreq[opt.Freq]
	if !ok {
		return fmt.Errorf("RRULE %q: unsupported frequency", raw)
	}
	if err := checkByParts(opt, s.Start); err != nil {
		return fmt.Errorf("RRULE %q: %w", raw, err)
	}

	s.Frequency = freq
	s.Interval = opt.Interval
	if s.Interval <= 0 {
		s.Interval = 1
	}

	switch {
	case !opt.Until.IsZero():
		until := opt.Until.In(loc)
		s.RecurrenceEnd = &until
		if opt.Count > 0 {
			n := opt.Count
			s.MaxOccurrences = &n
		}
	case opt.Count > 0:
		n := opt.Count
		last, err := recur.NthNatural(s, n-1)
		if err != nil {
			return err
		}
		s.RecurrenceEnd = &last
		s.MaxOccurrences = &n
	default:
		end := s.Start.Add(opts.Horizon)
		s.RecurrenceEnd = &end
	}
	return nil
}

// checkByParts rejects BY* rule parts, except a weekly BYDAY naming only
// DTSTART's own weekday, which adds nothing to the cadence, and the month-end
// clamp that RuleString writes for monthly series anchored after the 28th.
func checkByParts(opt *rrule.ROption, start time.Time) error {
	n := len(opt.Bymonth) + len(opt.Byyearday) + len(opt.Byweekno) +
		len(opt.Byhour) + len(opt.Byminute) + len(opt.Bysecond) + len(opt.Byeaster)
	if !monthEnd(opt, start) {
		n += len(opt.Bysetpos) + len(opt.Bymonthday)
	}
	if n > 0 {
		return errors.New("BY* parts are not supported")
	}
	switch len(opt.Byweekday) {
	case 0:
		return nil
	case 1:
		// rrule-go numbers weekdays from Monday = 0.
		wd := time.Weekday((opt.Byweekday[0].Day() + 1) % 7)
		if opt.Freq == rrule.WEEKLY && opt.Byweekday[0].N() == 0 && wd == start.Weekday() {
			return nil
		}
	}
	return errors.New("BYDAY is only supported as the weekday of DTSTART")
}

// monthEnd reports whether opt carries BYMONTHDAY=28,...,d;BYSETPOS=-1 for a
// monthly series starting on day d.
func monthEnd(opt *rrule.ROption, start time.Time) bool {
	d := start.Day()
	if opt.Freq != rrule.MONTHLY || d <= 28 || len(opt.Bymonthday) != d-27 || !slices.Equal(opt.Bysetpos, []int{-1}) {
		return false
	}
	for i, day := range opt.Bymonthday {
		if day != 28+i {
			return false
		}
	}
	return true
}
