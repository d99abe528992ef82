package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"pcal/internal/model"
)

// Header is the first line of events.csv.
var Header = []string{
	"eventId", "title", "description", "startDateTime", "endDateTime",
	"frequency", "interval", "recurrenceEndDate", "maxOccurrences", "exceptions",
}

// EncodeSeries writes the header and one record per series.
func EncodeSeries(w io.Writer, series []model.EventSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for i := range series {
		if err := cw.Write(seriesRecord(&series[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func seriesRecord(s *model.EventSeries) []string {
	recEnd := ""
	if s.RecurrenceEnd != nil {
		recEnd = s.RecurrenceEnd.Format(model.StorageLayout)
	}
	maxOcc := ""
	if s.MaxOccurrences != nil {
		maxOcc = strconv.Itoa(*s.MaxOccurrences)
	}
	return []string{
		strconv.Itoa(s.ID),
		s.Title,
		s.Description,
		s.Start.Format(model.StorageLayout),
		s.End.Format(model.StorageLayout),
		s.Frequency.String(),
		strconv.Itoa(s.Interval),
		recEnd,
		maxOcc,
		encodeExceptions(s.Exceptions),
	}
}

// encodeExceptions renders "original|new|deleted" entries joined by ";".
func encodeExceptions(exceptions []model.EventException) string {
	parts := make([]string, 0, len(exceptions))
	for _, ex := range exceptions {
		newStr := ""
		if ex.NewDate != nil {
			newStr = ex.NewDate.Format(model.StorageLayout)
		}
		parts = append(parts, ex.OriginalDate.Format(model.StorageLayout)+"|"+newStr+"|"+strconv.FormatBool(ex.IsDeleted))
	}
	return strings.Join(parts, ";")
}

// RecordError reports a malformed events.csv line.
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("events.csv line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// DecodeSeries reads events.csv. Timestamps are interpreted in loc.
// Malformed lines are skipped and returned as *RecordError values in bad,
// so one broken row does not lose the rest of the calendar.
func DecodeSeries(r io.Reader, loc *time.Location) (series []model.EventSeries, bad []error, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	n := 0
	for {
		rec, rerr := cr.Read()
		if errors.Is(rerr, io.EOF) {
			break
		}
		n++
		if rerr != nil {
			var perr *csv.ParseError
			if errors.As(rerr, &perr) {
				bad = append(bad, &RecordError{Line: perr.Line, Err: rerr})
				continue
			}
			return nil, nil, rerr
		}
		if n == 1 && len(rec) > 0 && rec[0] == Header[0] {
			continue
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		s, perr := parseRecord(rec, loc)
		if perr != nil {
			line, _ := cr.FieldPos(0)
			bad = append(bad, &RecordError{Line: line, Err: perr})
			continue
		}
		series = append(series, s)
	}
	return series, bad, nil
}

func parseRecord(rec []string, loc *time.Location) (model.EventSeries, error) {
	var s model.EventSeries
	if len(rec) < 9 {
		return s, fmt.Errorf("expected at least 9 fields, got %d", len(rec))
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}

	id, err := strconv.Atoi(rec[0])
	if err != nil {
		return s, fmt.Errorf("eventId: %w", err)
	}
	s.ID = id
	s.Title = rec[1]
	s.Description = rec[2]

	if s.Start, err = time.ParseInLocation(model.StorageLayout, rec[3], loc); err != nil {
		return s, fmt.Errorf("startDateTime: %w", err)
	}
	if s.End, err = time.ParseInLocation(model.StorageLayout, rec[4], loc); err != nil {
		return s, fmt.Errorf("endDateTime: %w", err)
	}
	if s.Frequency, err = model.ParseFrequency(rec[5]); err != nil {
		return s, err
	}
	if s.Interval, err = strconv.Atoi(rec[6]); err != nil {
		return s, fmt.Errorf("interval: %w", err)
	}
	if rec[7] != "" {
		t, err := time.ParseInLocation(model.StorageLayout, rec[7], loc)
		if err != nil {
			return s, fmt.Errorf("recurrenceEndDate: %w", err)
		}
		s.RecurrenceEnd = &t
	}
	if rec[8] != "" {
		n, err := strconv.Atoi(rec[8])
		if err != nil {
			return s, fmt.Errorf("maxOccurrences: %w", err)
		}
		s.MaxOccurrences = &n
	}
	if len(rec) > 9 && rec[9] != "" {
		if s.Exceptions, err = parseExceptions(rec[9], loc); err != nil {
			return s, err
		}
	}
	return s, nil
}

func parseExceptions(field string, loc *time.Location) ([]model.EventException, error) {
	var out []model.EventException
	for _, entry := range strings.Split(field, ";") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("exception %q: want original|new|deleted", entry)
		}

		orig, err := time.ParseInLocation(model.StorageLayout, strings.TrimSpace(parts[0]), loc)
		if err != nil {
			return nil, fmt.Errorf("exception original date: %w", err)
		}
		ex := model.EventException{OriginalDate: orig}
		if p := strings.TrimSpace(parts[1]); p != "" {
			nd, err := time.ParseInLocation(model.StorageLayout, p, loc)
			if err != nil {
				return nil, fmt.Errorf("exception new date: %w", err)
			}
			ex.NewDate = &nd
		}
		if ex.IsDeleted, err = strconv.ParseBool(strings.TrimSpace(parts[2])); err != nil {
			return nil, fmt.Errorf("exception deleted flag: %w", err)
		}
		out = append(out, ex)
	}
	return out, nil
}

func marshalSeries(series []model.EventSeries) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeSeries(&buf, series); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
