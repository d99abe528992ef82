package model

import (
	"fmt"
	"strings"
	"time"
)

// Frequency is the cadence of a series. FrequencyNone marks a single event.
type Frequency int

const (
	FrequencyNone Frequency = iota
	FrequencyDaily
	FrequencyWeekly
	FrequencyMonthly
)

func (f Frequency) String() string {
	switch f {
	case FrequencyNone:
		return "NONE"
	case FrequencyDaily:
		return "DAILY"
	case FrequencyWeekly:
		return "WEEKLY"
	case FrequencyMonthly:
		return "MONTHLY"
	default:
		return fmt.Sprintf("Frequency(%d)", int(f))
	}
}

// Unit returns the human label of one period, e.g. "week".
func (f Frequency) Unit() string {
	switch f {
	case FrequencyDaily:
		return "day"
	case FrequencyWeekly:
		return "week"
	case FrequencyMonthly:
		return "month"
	default:
		return ""
	}
}

// ParseFrequency accepts the persisted names (case-insensitive).
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE", "":
		return FrequencyNone, nil
	case "DAILY":
		return FrequencyDaily, nil
	case "WEEKLY":
		return FrequencyWeekly, nil
	case "MONTHLY":
		return FrequencyMonthly, nil
	default:
		return FrequencyNone, fmt.Errorf("unknown frequency %q", s)
	}
}

// EventException overrides one natural occurrence of a series.
//
// OriginalDate must equal a date the base cadence produces. When IsDeleted
// is set the occurrence is suppressed and NewDate is ignored; otherwise a
// non-nil NewDate replaces the occurrence start and the duration is kept.
type EventException struct {
	OriginalDate time.Time
	NewDate      *time.Time
	IsDeleted    bool
}

// EventSeries is the root recurrence definition.
type EventSeries struct {
	ID          int
	Title       string
	Description string

	// Start / End of the first occurrence. End-Start is applied to every
	// occurrence of the series.
	Start time.Time
	End   time.Time

	Frequency Frequency
	Interval  int

	// RecurrenceEnd is an inclusive bound on occurrence starts.
	RecurrenceEnd *time.Time
	// MaxOccurrences caps natural occurrences, deleted ones included.
	MaxOccurrences *int

	Exceptions []EventException
}

// IsRecurring reports whether the series expands to more than its start.
func (s *EventSeries) IsRecurring() bool {
	return s.Frequency != FrequencyNone && s.RecurrenceEnd != nil
}

// Duration is the fixed length of every occurrence.
func (s *EventSeries) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

func (s *EventSeries) AddDeleteException(original time.Time) {
	s.Exceptions = append(s.Exceptions, EventException{OriginalDate: original, IsDeleted: true})
}

func (s *EventSeries) AddUpdateException(original, updated time.Time) {
	u := updated
	s.Exceptions = append(s.Exceptions, EventException{OriginalDate: original, NewDate: &u})
}

// Clone returns a deep copy; the exception slice and pointer fields are not
// shared with s.
func (s EventSeries) Clone() EventSeries {
	out := s
	if s.RecurrenceEnd != nil {
		t := *s.RecurrenceEnd
		out.RecurrenceEnd = &t
	}
	if s.MaxOccurrences != nil {
		n := *s.MaxOccurrences
		out.MaxOccurrences = &n
	}
	if s.Exceptions != nil {
		out.Exceptions = make([]EventException, len(s.Exceptions))
		for i, ex := range s.Exceptions {
			out.Exceptions[i] = ex
			if ex.NewDate != nil {
				t := *ex.NewDate
				out.Exceptions[i].NewDate = &t
			}
		}
	}
	return out
}

// String renders the multi-line listing used by the CLI.
func (s EventSeries) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event ID: %d | Title: %s", s.ID, s.Title)
	fmt.Fprintf(&b, "\n    Start: %s", s.Start.Format(DisplayLayout))
	fmt.Fprintf(&b, "\n    End: %s", s.End.Format(DisplayLayout))
	fmt.Fprintf(&b, "\n    Description: %s", s.Description)
	if s.IsRecurring() {
		fmt.Fprintf(&b, "\n    Recurrence: %s (every %d %s(s))", s.Frequency, s.Interval, s.Frequency.Unit())
		fmt.Fprintf(&b, "\n    Until: %s", s.RecurrenceEnd.Format(DisplayLayout))
		if s.MaxOccurrences != nil {
			fmt.Fprintf(&b, " (max %d occurrences)", *s.MaxOccurrences)
		}
	}
	return b.String()
}

// Occurrence is one concrete instance of a series after exceptions.
type Occurrence struct {
	SeriesID    int
	Title       string
	Description string

	Start time.Time
	End   time.Time

	// NaturalStart is the cadence date before any move was applied.
	NaturalStart time.Time
	Moved        bool
	Recurring    bool

	// InstanceKey identifies the slot within its series: "<id>@<natural start>".
	InstanceKey string
}

// ConflictInfo pairs an existing series with the occurrence interval that
// overlaps a candidate interval.
type ConflictInfo struct {
	Series          EventSeries
	OccurrenceStart time.Time
	OccurrenceEnd   time.Time
}

const (
	// StorageLayout is the persisted naive local date-time form.
	StorageLayout = "2006-01-02T15:04:05"
	// DisplayLayout is the form users type and read.
	DisplayLayout = "2006-01-02 15:04:05"
)

// InstanceKey builds the Occurrence.InstanceKey for a natural date.
func InstanceKey(seriesID int, natural time.Time) string {
	return fmt.Sprintf("%d@%s", seriesID, natural.Format(StorageLayout))
}

// ParseDateTime parses a naive local timestamp in either the storage or the
// display layout, interpreting it in loc (time.Local when nil).
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{StorageLayout, DisplayLayout, "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q (want %s)", s, DisplayLayout)
}
