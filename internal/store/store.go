// Package store persists event series in events.csv and additional
// per-event fields in additional.csv.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"pcal/internal/fsutil"
	appLog "pcal/internal/log"
	"pcal/internal/model"
	"pcal/internal/recur"
)

var (
	// ErrNotFound is returned when no series has the requested id.
	ErrNotFound = errors.New("event not found")

	// ErrInvalidSeries wraps every validation failure on write.
	ErrInvalidSeries = errors.New("invalid event")

	// ErrNotOccurrence is returned when an exception targets a date the
	// series never produces.
	ErrNotOccurrence = errors.New("date is not an occurrence of the series")
)

// Store is the in-memory calendar backed by events.csv. All methods are
// safe for concurrent use. Returned series are deep copies.
type Store struct {
	mu     sync.RWMutex
	path   string
	loc    *time.Location
	series []model.EventSeries

	fields *FieldStore
}

// Option configures Open.
type Option func(*Store)

// WithLocation sets the zone timestamps in events.csv are read in.
// Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// WithFields attaches the additional-fields store so Delete also drops the
// fields of the deleted series.
func WithFields(f *FieldStore) Option {
	return func(s *Store) { s.fields = f }
}

// Open loads path. A missing file is an empty calendar.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, loc: time.Local}
	for _, o := range opts {
		o(s)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path is the events.csv location.
func (s *Store) Path() string { return s.path }

// Location is the zone timestamps are interpreted in.
func (s *Store) Location() *time.Location { return s.loc }

// Fields returns the attached field store, possibly nil.
func (s *Store) Fields() *FieldStore { return s.fields }

// Reload re-reads events.csv, replacing the in-memory state.
func (s *Store) Reload() error {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.mu.Lock()
			s.series = nil
			s.mu.Unlock()
			return nil
		}
		return err
	}
	defer f.Close()

	series, bad, err := DecodeSeries(f, s.loc)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	for _, e := range bad {
		appLog.Warn("skipping malformed event row", "path", s.path, "err", e.Error())
	}

	s.mu.Lock()
	s.series = series
	s.mu.Unlock()

	appLog.Debug("store loaded", "path", s.path, "events", len(series))
	return nil
}

func (s *Store) saveLocked() error {
	data, err := marshalSeries(s.series)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(s.path, data, ".pcal-events-*.tmp")
}

// List returns every series ordered by id.
func (s *Store) List() []model.EventSeries {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.EventSeries, len(s.series))
	for i := range s.series {
		out[i] = s.series[i].Clone()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the series with the given id.
func (s *Store) Get(id int) (model.EventSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(id)
	if i < 0 {
		return model.EventSeries{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return s.series[i].Clone(), nil
}

func (s *Store) indexLocked(id int) int {
	for i := range s.series {
		if s.series[i].ID == id {
			return i
		}
	}
	return -1
}

// Validate applies the write-time checks of the store.
func Validate(series *model.EventSeries) error {
	if strings.TrimSpace(series.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidSeries)
	}
	if series.End.Before(series.Start) {
		return fmt.Errorf("%w: end time is before start time", ErrInvalidSeries)
	}
	if err := recur.Validate(series); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSeries, err)
	}
	return nil
}

// Add stores a new series and assigns it the next free id. The series'
// own ID is ignored.
func (s *Store) Add(series model.EventSeries) (model.EventSeries, error) {
	series = series.Clone()
	if series.Frequency == model.FrequencyNone && series.Interval == 0 {
		series.Interval = 1
	}
	if err := Validate(&series); err != nil {
		return model.EventSeries{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := 1
	for i := range s.series {
		if s.series[i].ID >= next {
			next = s.series[i].ID + 1
		}
	}
	series.ID = next

	s.series = append(s.series, series)
	if err := s.saveLocked(); err != nil {
		s.series = s.series[:len(s.series)-1]
		return model.EventSeries{}, err
	}
	appLog.Info("event added", "id", series.ID, "title", series.Title)
	return series.Clone(), nil
}

// Update is a partial edit. Nil fields keep their stored values.
type Update struct {
	Title       *string
	Description *string
	Start       *time.Time
	End         *time.Time
}

// Update applies u to the series with the given id.
func (s *Store) Update(id int, u Update) (model.EventSeries, error) {
	return s.modify(id, func(series *model.EventSeries) error {
		if u.Title != nil && *u.Title != "" {
			series.Title = *u.Title
		}
		if u.Description != nil && *u.Description != "" {
			series.Description = *u.Description
		}
		moved := u.Start != nil && !u.Start.Equal(series.Start)
		if u.Start != nil {
			series.Start = *u.Start
		}
		if u.End != nil {
			series.End = *u.End
		}
		if moved {
			dropStrandedExceptions(series)
		}
		return nil
	})
}

// dropStrandedExceptions removes exceptions whose original date is no longer
// on the cadence of series. An invalid series is left alone for Validate to
// reject.
func dropStrandedExceptions(series *model.EventSeries) {
	if len(series.Exceptions) == 0 {
		return
	}
	kept := make([]model.EventException, 0, len(series.Exceptions))
	for _, ex := range series.Exceptions {
		ok, err := recur.IsNaturalDate(series, ex.OriginalDate)
		if err != nil {
			return
		}
		if !ok {
			appLog.Warn("dropping exception off the new cadence",
				"id", series.ID, "original", ex.OriginalDate.Format(time.RFC3339))
			continue
		}
		kept = append(kept, ex)
	}
	series.Exceptions = kept
}

// Replace overwrites the stored series that has series.ID.
func (s *Store) Replace(series model.EventSeries) (model.EventSeries, error) {
	repl := series.Clone()
	return s.modify(series.ID, func(cur *model.EventSeries) error {
		*cur = repl
		return nil
	})
}

// modify runs fn on a copy of the series, validates it and only then
// commits and saves.
func (s *Store) modify(id int, fn func(*model.EventSeries) error) (model.EventSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return model.EventSeries{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}

	edited := s.series[i].Clone()
	if err := fn(&edited); err != nil {
		return model.EventSeries{}, err
	}
	edited.ID = id
	if err := Validate(&edited); err != nil {
		return model.EventSeries{}, err
	}

	prev := s.series[i]
	s.series[i] = edited
	if err := s.saveLocked(); err != nil {
		s.series[i] = prev
		return model.EventSeries{}, err
	}
	appLog.Info("event updated", "id", id)
	return edited.Clone(), nil
}

// Delete removes a series and its additional fields.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}

	prev := s.series
	next := make([]model.EventSeries, 0, len(s.series)-1)
	next = append(next, s.series[:i]...)
	next = append(next, s.series[i+1:]...)
	s.series = next
	if err := s.saveLocked(); err != nil {
		s.series = prev
		return err
	}

	if s.fields != nil {
		if err := s.fields.RemoveAll(id); err != nil {
			appLog.Error("failed to remove additional fields", err, "id", id)
		}
	}
	appLog.Info("event deleted", "id", id)
	return nil
}

// DeleteOccurrence suppresses the occurrence whose natural start is
// natural.
func (s *Store) DeleteOccurrence(id int, natural time.Time) (model.EventSeries, error) {
	return s.setException(id, model.EventException{OriginalDate: natural, IsDeleted: true})
}

// MoveOccurrence moves the occurrence whose natural start is natural to
// newStart. The occurrence keeps the series duration.
func (s *Store) MoveOccurrence(id int, natural, newStart time.Time) (model.EventSeries, error) {
	ns := newStart
	return s.setException(id, model.EventException{OriginalDate: natural, NewDate: &ns})
}

func (s *Store) setException(id int, ex model.EventException) (model.EventSeries, error) {
	return s.modify(id, func(series *model.EventSeries) error {
		if !series.IsRecurring() {
			return fmt.Errorf("%w: event %d is not recurring", ErrInvalidSeries, id)
		}
		ok, err := recur.IsNaturalDate(series, ex.OriginalDate)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSeries, err)
		}
		if !ok {
			return fmt.Errorf("%s: %w", ex.OriginalDate.Format(model.DisplayLayout), ErrNotOccurrence)
		}

		kept := series.Exceptions[:0]
		for _, e := range series.Exceptions {
			if !e.OriginalDate.Equal(ex.OriginalDate) {
				kept = append(kept, e)
			}
		}
		series.Exceptions = append(kept, ex)
		sort.SliceStable(series.Exceptions, func(i, j int) bool {
			return series.Exceptions[i].OriginalDate.Before(series.Exceptions[j].OriginalDate)
		})
		return nil
	})
}

// SearchByDate returns the series with at least one occurrence starting on
// the calendar day of day.
func (s *Store) SearchByDate(day time.Time) ([]model.EventSeries, error) {
	all := s.List()
	res, err := recur.OnDate(all, day)
	if err != nil {
		return nil, err
	}
	for _, inv := range res.Invalid {
		appLog.Warn("skipping invalid event", "id", inv.SeriesID, "err", inv.Err.Error())
	}

	hit := make(map[int]bool, len(res.Occurrences))
	for _, o := range res.Occurrences {
		hit[o.SeriesID] = true
	}
	var out []model.EventSeries
	for _, series := range all {
		if hit[series.ID] {
			out = append(out, series)
		}
	}
	return out, nil
}

// SearchByTitle matches keyword case-insensitively against titles.
func (s *Store) SearchByTitle(keyword string) []model.EventSeries {
	return s.filter(func(series *model.EventSeries) string { return series.Title }, keyword)
}

// SearchByDescription matches keyword case-insensitively against
// descriptions.
func (s *Store) SearchByDescription(keyword string) []model.EventSeries {
	return s.filter(func(series *model.EventSeries) string { return series.Description }, keyword)
}

func (s *Store) filter(field func(*model.EventSeries) string, keyword string) []model.EventSeries {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	var out []model.EventSeries
	for _, series := range s.List() {
		if strings.Contains(strings.ToLower(field(&series)), kw) {
			out = append(out, series)
		}
	}
	return out
}
