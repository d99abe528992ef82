// Package recur expands event series into concrete occurrences.
//
// The generator is a pure function of its inputs: it never logs, never
// mutates the series it is given and returns freshly allocated slices, so it
// may be called concurrently as long as the series are not being edited.
package recur

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"pcal/internal/model"
)

// MaxIterations bounds the walk over natural dates of a single series.
// A series that would need more steps is rejected as invalid.
const MaxIterations = 100000

// ErrInvalidSeries is the InvalidSeriesDefinition error class.
var ErrInvalidSeries = errors.New("invalid series definition")

// InvalidSeriesError describes why a series was rejected.
type InvalidSeriesError struct {
	SeriesID int
	Reason   string
}

func (e *InvalidSeriesError) Error() string {
	return fmt.Sprintf("%s (series %d): %s", ErrInvalidSeries, e.SeriesID, e.Reason)
}

func (e *InvalidSeriesError) Unwrap() error { return ErrInvalidSeries }

func invalid(s *model.EventSeries, format string, args ...any) error {
	return &InvalidSeriesError{SeriesID: s.ID, Reason: fmt.Sprintf(format, args...)}
}

// Validate performs the entry checks of the generator.
func Validate(s *model.EventSeries) error {
	switch s.Frequency {
	case model.FrequencyNone:
		return nil
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly:
	default:
		return invalid(s, "unknown frequency %d", int(s.Frequency))
	}

	if s.RecurrenceEnd == nil {
		return invalid(s, "%s series has no recurrence end date", s.Frequency)
	}
	if s.Interval <= 0 {
		return invalid(s, "interval must be positive, got %d", s.Interval)
	}
	if s.RecurrenceEnd.Location() != s.Start.Location() {
		return invalid(s, "recurrence end date in %s cannot be compared to start in %s",
			s.RecurrenceEnd.Location(), s.Start.Location())
	}
	if s.MaxOccurrences != nil && *s.MaxOccurrences < 0 {
		return invalid(s, "max occurrences must not be negative, got %d", *s.MaxOccurrences)
	}
	return nil
}

// frequencies maps recurring cadences onto rrule-go.
var frequencies = map[model.Frequency]rrule.Frequency{
	model.FrequencyDaily:   rrule.DAILY,
	model.FrequencyWeekly:  rrule.WEEKLY,
	model.FrequencyMonthly: rrule.MONTHLY,
}

// Rule is the cadence of a recurring series without an end bound.
//
// A monthly series anchored on day 29, 30 or 31 takes the last existing day
// of 28..d in every month, so Jan 31 yields Feb 28 (or 29), Mar 31, Apr 30
// and so on without drifting.
func Rule(s *model.EventSeries) (rrule.ROption, error) {
	freq, ok := frequencies[s.Frequency]
	if !ok {
		return rrule.ROption{}, invalid(s, "unknown frequency %d", int(s.Frequency))
	}
	if s.Interval <= 0 {
		return rrule.ROption{}, invalid(s, "interval must be positive, got %d", s.Interval)
	}

	opt := rrule.ROption{Freq: freq, Interval: s.Interval, Dtstart: s.Start}
	if d := s.Start.Day(); freq == rrule.MONTHLY && d > 28 {
		for day := 28; day <= d; day++ {
			opt.Bymonthday = append(opt.Bymonthday, day)
		}
		opt.Bysetpos = []int{-1}
	}
	return opt, nil
}

// NthNatural returns the natural date of slot n (0-based) of a recurring
// series, ignoring its end bounds. For a single event every slot is its
// start.
func NthNatural(s *model.EventSeries, n int) (time.Time, error) {
	if !s.IsRecurring() || n <= 0 {
		return s.Start, nil
	}
	opt, err := Rule(s)
	if err != nil {
		return time.Time{}, err
	}
	opt.Count = n + 1

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return time.Time{}, invalid(s, "%v", err)
	}
	all := r.All()
	if len(all) != n+1 {
		return time.Time{}, invalid(s, "cadence has no slot %d", n)
	}
	return all[n], nil
}

// overrides is the sparse exception index of one series, keyed by natural
// date. Only the first record for a date is kept.
type overrides map[int64]model.EventException

func indexExceptions(exceptions []model.EventException) overrides {
	if len(exceptions) == 0 {
		return nil
	}
	idx := make(overrides, len(exceptions))
	for _, ex := range exceptions {
		k := ex.OriginalDate.UnixNano()
		if _, seen := idx[k]; !seen {
			idx[k] = ex
		}
	}
	return idx
}

// slot is one step of the walk: the natural date and, unless the slot was
// deleted, the start it resolves to.
type slot struct {
	natural time.Time
	start   time.Time
	moved   bool
	deleted bool
}

// walk visits every natural slot of s in cadence order until fn returns
// false or a bound is reached.
func walk(s *model.EventSeries, fn func(slot) bool) error {
	if err := Validate(s); err != nil {
		return err
	}

	if !s.IsRecurring() {
		fn(slot{natural: s.Start, start: s.Start})
		return nil
	}

	opt, err := Rule(s)
	if err != nil {
		return err
	}
	opt.Until = *s.RecurrenceEnd
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return invalid(s, "%v", err)
	}
	next := r.Iterator()
	idx := indexExceptions(s.Exceptions)

	for count := 0; s.MaxOccurrences == nil || count < *s.MaxOccurrences; count++ {
		current, ok := next()
		if !ok {
			return nil
		}
		if count >= MaxIterations {
			return invalid(s, "expansion exceeds %d iterations", MaxIterations)
		}

		sl := slot{natural: current, start: current}
		if ex, ok := idx[current.UnixNano()]; ok {
			switch {
			case ex.IsDeleted:
				sl.deleted = true
			case ex.NewDate != nil:
				sl.start = *ex.NewDate
				sl.moved = true
			}
		}
		if !fn(sl) {
			return nil
		}
	}
	return nil
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

// Occurrences returns the starts of all visible occurrences of s whose
// (possibly moved) start lies in [viewStart, viewEnd], ascending.
func Occurrences(s *model.EventSeries, viewStart, viewEnd time.Time) ([]time.Time, error) {
	out := make([]time.Time, 0)
	err := walk(s, func(sl slot) bool {
		if !sl.deleted && inWindow(sl.start, viewStart, viewEnd) {
			out = append(out, sl.start)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// Expand is Occurrences with full occurrence records, each lasting the
// series duration.
func Expand(s *model.EventSeries, viewStart, viewEnd time.Time) ([]model.Occurrence, error) {
	dur := s.Duration()
	recurring := s.IsRecurring()

	out := make([]model.Occurrence, 0)
	err := walk(s, func(sl slot) bool {
		if sl.deleted || !inWindow(sl.start, viewStart, viewEnd) {
			return true
		}
		out = append(out, model.Occurrence{
			SeriesID:     s.ID,
			Title:        s.Title,
			Description:  s.Description,
			Start:        sl.start,
			End:          sl.start.Add(dur),
			NaturalStart: sl.natural,
			Moved:        sl.moved,
			Recurring:    recurring,
			InstanceKey:  model.InstanceKey(s.ID, sl.natural),
		})
		return true
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// IsNaturalDate reports whether t is one of the natural (pre-exception)
// dates of s, i.e. whether an exception on t could ever match.
func IsNaturalDate(s *model.EventSeries, t time.Time) (bool, error) {
	found := false
	err := walk(s, func(sl slot) bool {
		if sl.natural.Equal(t) {
			found = true
			return false
		}
		return !sl.natural.After(t)
	})
	return found, err
}

// DuplicateExceptions lists natural dates that carry more than one
// exception. The generator honors only the first of them.
func DuplicateExceptions(s *model.EventSeries) []time.Time {
	seen := make(map[int64]int, len(s.Exceptions))
	var dups []time.Time
	for _, ex := range s.Exceptions {
		k := ex.OriginalDate.UnixNano()
		seen[k]++
		if seen[k] == 2 {
			dups = append(dups, ex.OriginalDate)
		}
	}
	return dups
}
