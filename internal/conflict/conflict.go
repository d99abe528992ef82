// Package conflict reports overlaps between a candidate interval and the
// occurrences of existing series. Results are advisory; callers decide
// whether to block, warn or ignore.
package conflict

import (
	"fmt"
	"time"

	"pcal/internal/model"
	"pcal/internal/recur"
)

// DefaultPaddingDays widens the expansion window on both sides of the
// candidate so that occurrences whose cadence sits just outside a tight
// window are still expanded.
const DefaultPaddingDays = 7

// Detector expands series around a candidate interval. The zero value uses
// DefaultPaddingDays.
type Detector struct {
	PaddingDays int
}

// New returns a Detector padding by the given number of calendar days; a
// non-positive value selects DefaultPaddingDays.
func New(days int) *Detector {
	return &Detector{PaddingDays: days}
}

func (d *Detector) padding() int {
	if d == nil || d.PaddingDays <= 0 {
		return DefaultPaddingDays
	}
	return d.PaddingDays
}

// Window is the expansion range around [candStart, candEnd). Days are
// counted on the wall clock, so a DST change inside the padding does not
// shift the bounds by an hour.
func (d *Detector) Window(candStart, candEnd time.Time) (time.Time, time.Time) {
	days := d.padding()
	return candStart.AddDate(0, 0, -days), candEnd.AddDate(0, 0, days)
}

// Detect returns one ConflictInfo per occurrence overlapping
// [candStart, candEnd), in series order then occurrence order. The series
// whose ID equals *excludeID is skipped. A malformed series fails the call.
func (d *Detector) Detect(candStart, candEnd time.Time, all []model.EventSeries, excludeID *int) ([]model.ConflictInfo, error) {
	rangeStart, rangeEnd := d.Window(candStart, candEnd)

	conflicts := make([]model.ConflictInfo, 0)
	for i := range all {
		s := &all[i]
		if excludeID != nil && s.ID == *excludeID {
			continue
		}

		starts, err := recur.Occurrences(s, rangeStart, rangeEnd)
		if err != nil {
			return nil, fmt.Errorf("conflict check of series %d: %w", s.ID, err)
		}

		dur := s.Duration()
		for _, occStart := range starts {
			occEnd := occStart.Add(dur)
			if Overlaps(candStart, candEnd, occStart, occEnd) {
				conflicts = append(conflicts, model.ConflictInfo{
					Series:          s.Clone(),
					OccurrenceStart: occStart,
					OccurrenceEnd:   occEnd,
				})
			}
		}
	}
	return conflicts, nil
}

// Detect runs a Detector with DefaultPaddingDays.
func Detect(candStart, candEnd time.Time, all []model.EventSeries, excludeID *int) ([]model.ConflictInfo, error) {
	var d Detector
	return d.Detect(candStart, candEnd, all, excludeID)
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect. Touching
// intervals do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// ShouldPrevent reports whether the caller should ask before committing.
func ShouldPrevent(conflicts []model.ConflictInfo) bool {
	return len(conflicts) > 0
}
