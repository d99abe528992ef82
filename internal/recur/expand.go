package recur

import (
	"errors"
	"sort"
	"time"

	"pcal/internal/model"
)

// ExpandConfig controls a multi-series expansion.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive window for occurrence starts.
	RangeStart time.Time
	RangeEnd   time.Time
}

// InvalidSeries records a series that was skipped by ExpandAll.
type InvalidSeries struct {
	SeriesID int
	Err      error
}

// ExpandResult wraps the merged occurrence list and the series that could
// not be expanded.
type ExpandResult struct {
	Occurrences []model.Occurrence
	Invalid     []InvalidSeries
}

// ExpandAll expands every series over the configured range and merges the
// results ordered by start, then by series id. A malformed series does not
// hide the rest of the calendar; it is reported in Invalid instead.
func ExpandAll(series []model.EventSeries, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}

	all := make([]model.Occurrence, 0)
	for i := range series {
		occ, err := Expand(&series[i], cfg.RangeStart, cfg.RangeEnd)
		if err != nil {
			result.Invalid = append(result.Invalid, InvalidSeries{SeriesID: series[i].ID, Err: err})
			continue
		}
		all = append(all, occ...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Start.Equal(all[j].Start) {
			return all[i].Start.Before(all[j].Start)
		}
		return all[i].SeriesID < all[j].SeriesID
	})

	result.Occurrences = all
	return result, nil
}

// OnDate returns the occurrences of all series starting on the calendar day
// of day (midnight to 23:59:59 inclusive).
func OnDate(series []model.EventSeries, day time.Time) (ExpandResult, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1).Add(-time.Second)
	return ExpandAll(series, ExpandConfig{RangeStart: from, RangeEnd: to})
}
