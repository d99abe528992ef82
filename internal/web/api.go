package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pcal/internal/conflict"
	"pcal/internal/ics"
	appLog "pcal/internal/log"
	"pcal/internal/model"
	"pcal/internal/recur"
	"pcal/internal/stats"
	"pcal/internal/store"
)

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("POST /api/events/{id}/exceptions", s.handleException)
	s.mux.HandleFunc("GET /api/events/{id}/fields", s.handleGetFields)
	s.mux.HandleFunc("PUT /api/events/{id}/fields/{name}", s.handleSetField)

	s.mux.HandleFunc("GET /api/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("GET /api/conflicts", s.handleConflicts)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)

	s.mux.HandleFunc("GET /calendar.ics", s.handleICS)
	s.mux.HandleFunc("GET /calendar", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// exceptionDTO is the JSON form of model.EventException.
type exceptionDTO struct {
	Original string  `json:"original"`
	New      *string `json:"new,omitempty"`
	Deleted  bool    `json:"deleted"`
}

// seriesDTO is the JSON form of model.EventSeries. Times use the naive
// storage layout.
type seriesDTO struct {
	ID             int            `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Start          string         `json:"start"`
	End            string         `json:"end"`
	Frequency      string         `json:"frequency"`
	Interval       int            `json:"interval"`
	RecurrenceEnd  *string        `json:"recurrence_end,omitempty"`
	MaxOccurrences *int           `json:"max_occurrences,omitempty"`
	Exceptions     []exceptionDTO `json:"exceptions,omitempty"`
}

func formatTime(t time.Time) string { return t.Format(model.StorageLayout) }

func toSeriesDTO(s model.EventSeries) seriesDTO {
	d := seriesDTO{
		ID:             s.ID,
		Title:          s.Title,
		Description:    s.Description,
		Start:          formatTime(s.Start),
		End:            formatTime(s.End),
		Frequency:      s.Frequency.String(),
		Interval:       s.Interval,
		MaxOccurrences: s.MaxOccurrences,
	}
	if s.RecurrenceEnd != nil {
		v := formatTime(*s.RecurrenceEnd)
		d.RecurrenceEnd = &v
	}
	for _, ex := range s.Exceptions {
		e := exceptionDTO{Original: formatTime(ex.OriginalDate), Deleted: ex.IsDeleted}
		if ex.NewDate != nil {
			v := formatTime(*ex.NewDate)
			e.New = &v
		}
		d.Exceptions = append(d.Exceptions, e)
	}
	return d
}

func toSeriesDTOs(list []model.EventSeries) []seriesDTO {
	out := make([]seriesDTO, 0, len(list))
	for _, s := range list {
		out = append(out, toSeriesDTO(s))
	}
	return out
}

// occurrenceDTO is a JSON-friendly view of occurrences.
type occurrenceDTO struct {
	SeriesID     int    `json:"series_id"`
	InstanceKey  string `json:"instance_key"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Start        string `json:"start"`
	End          string `json:"end"`
	NaturalStart string `json:"natural_start"`
	Moved        bool   `json:"moved"`
	Recurring    bool   `json:"recurring"`
}

type conflictDTO struct {
	SeriesID int    `json:"series_id"`
	Title    string `json:"title"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

func toConflictDTOs(cs []model.ConflictInfo) []conflictDTO {
	out := make([]conflictDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, conflictDTO{
			SeriesID: c.Series.ID,
			Title:    c.Series.Title,
			Start:    formatTime(c.OccurrenceStart),
			End:      formatTime(c.OccurrenceEnd),
		})
	}
	return out
}

type conflictResponse struct {
	Error     string        `json:"error"`
	Summary   string        `json:"summary"`
	Conflicts []conflictDTO `json:"conflicts"`
}

// seriesRequest is the body of POST /api/events.
type seriesRequest struct {
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Start          string  `json:"start"`
	End            string  `json:"end"`
	Frequency      string  `json:"frequency"`
	Interval       int     `json:"interval"`
	RecurrenceEnd  *string `json:"recurrence_end"`
	MaxOccurrences *int    `json:"max_occurrences"`
}

func (req seriesRequest) toSeries(loc *time.Location) (model.EventSeries, error) {
	var s model.EventSeries
	var err error
	s.Title = req.Title
	s.Description = req.Description
	if s.Start, err = model.ParseDateTime(req.Start, loc); err != nil {
		return s, fmt.Errorf("start: %w", err)
	}
	if s.End, err = model.ParseDateTime(req.End, loc); err != nil {
		return s, fmt.Errorf("end: %w", err)
	}
	if s.Frequency, err = model.ParseFrequency(req.Frequency); err != nil {
		return s, err
	}
	s.Interval = req.Interval
	if s.Interval == 0 {
		s.Interval = 1
	}
	if req.RecurrenceEnd != nil {
		t, err := model.ParseDateTime(*req.RecurrenceEnd, loc)
		if err != nil {
			return s, fmt.Errorf("recurrence_end: %w", err)
		}
		s.RecurrenceEnd = &t
	}
	s.MaxOccurrences = req.MaxOccurrences
	return s, nil
}

// updateRequest is the body of PUT /api/events/{id}. Omitted or empty
// fields keep their stored values.
type updateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Start       *string `json:"start"`
	End         *string `json:"end"`
}

// exceptionRequest is the body of POST /api/events/{id}/exceptions.
type exceptionRequest struct {
	Original string `json:"original"`
	New      string `json:"new"`
	Deleted  bool   `json:"deleted"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid event id %q", r.PathValue("id"))
	}
	return id, nil
}

func forced(r *http.Request) bool {
	v := r.URL.Query().Get("force")
	return v == "1" || v == "true"
}

// writeStoreError maps store sentinel errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidSeries), errors.Is(err, store.ErrNotOccurrence):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("store operation failed", err)
		writeError(w, http.StatusInternalServerError, "store operation failed")
	}
}

// handleListEvents returns all series, optionally filtered.
//
// GET /api/events?title=..., ?description=... or ?date=YYYY-MM-DD
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var list []model.EventSeries
	switch {
	case q.Get("date") != "":
		day, err := time.ParseInLocation("2006-01-02", q.Get("date"), s.store.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		if list, err = s.store.SearchByDate(day); err != nil {
			writeStoreError(w, err)
			return
		}
	case q.Get("title") != "":
		list = s.store.SearchByTitle(q.Get("title"))
	case q.Get("description") != "":
		list = s.store.SearchByDescription(q.Get("description"))
	default:
		list = s.store.List()
	}
	writeJSON(w, http.StatusOK, toSeriesDTOs(list))
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	series, err := s.store.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeriesDTO(series))
}

// checkConflicts writes a 409 and returns false when [start, end) overlaps
// another series and the request is not forced.
func (s *Server) checkConflicts(w http.ResponseWriter, r *http.Request, start, end time.Time, exclude *int) bool {
	if forced(r) {
		return true
	}
	cs, err := s.detector.Detect(start, end, s.store.List(), exclude)
	if err != nil {
		appLog.Error("conflict check failed", err)
		writeError(w, http.StatusInternalServerError, "conflict check failed")
		return false
	}
	if conflict.ShouldPrevent(cs) {
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:     "scheduling conflict; retry with force=1 to save anyway",
			Summary:   conflict.Summary(cs),
			Conflicts: toConflictDTOs(cs),
		})
		return false
	}
	return true
}

// handleCreateEvent stores a new series.
//
// POST /api/events[?force=1]
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req seriesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	series, err := req.toSeries(s.store.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := store.Validate(&series); err != nil {
		writeStoreError(w, err)
		return
	}
	if !s.checkConflicts(w, r, series.Start, series.End, nil) {
		return
	}

	added, err := s.store.Add(series)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSeriesDTO(added))
}

// handleUpdateEvent applies a partial edit.
//
// PUT /api/events/{id}[?force=1]
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cur, err := s.store.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	u := store.Update{Title: req.Title, Description: req.Description}
	start, end := cur.Start, cur.End
	loc := s.store.Location()
	if req.Start != nil && *req.Start != "" {
		if start, err = model.ParseDateTime(*req.Start, loc); err != nil {
			writeError(w, http.StatusBadRequest, "start: "+err.Error())
			return
		}
		u.Start = &start
	}
	if req.End != nil && *req.End != "" {
		if end, err = model.ParseDateTime(*req.End, loc); err != nil {
			writeError(w, http.StatusBadRequest, "end: "+err.Error())
			return
		}
		u.End = &end
	}

	if (u.Start != nil || u.End != nil) && !s.checkConflicts(w, r, start, end, &id) {
		return
	}

	updated, err := s.store.Update(id, u)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeriesDTO(updated))
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.Delete(id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleException deletes or moves one occurrence of a recurring series.
//
// POST /api/events/{id}/exceptions {"original": "...", "deleted": true}
// POST /api/events/{id}/exceptions[?force=1] {"original": "...", "new": "..."}
func (s *Server) handleException(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req exceptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	loc := s.store.Location()
	original, err := model.ParseDateTime(req.Original, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "original: "+err.Error())
		return
	}

	var updated model.EventSeries
	switch {
	case req.Deleted:
		updated, err = s.store.DeleteOccurrence(id, original)
	case req.New != "":
		newStart, perr := model.ParseDateTime(req.New, loc)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "new: "+perr.Error())
			return
		}
		cur, gerr := s.store.Get(id)
		if gerr != nil {
			writeStoreError(w, gerr)
			return
		}
		if !s.checkConflicts(w, r, newStart, newStart.Add(cur.Duration()), &id) {
			return
		}
		updated, err = s.store.MoveOccurrence(id, original, newStart)
	default:
		writeError(w, http.StatusBadRequest, `either "deleted" or "new" is required`)
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeriesDTO(updated))
}

func (s *Server) handleGetFields(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.Get(id); err != nil {
		writeStoreError(w, err)
		return
	}
	fields := map[string]string{}
	if f := s.store.Fields(); f != nil {
		fields = f.All(id)
	}
	writeJSON(w, http.StatusOK, fields)
}

func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := s.store.Fields()
	if f == nil {
		writeError(w, http.StatusNotImplemented, "additional fields are not enabled")
		return
	}
	if _, err := s.store.Get(id); err != nil {
		writeStoreError(w, err)
		return
	}
	var body struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := f.Set(id, r.PathValue("name"), body.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f.All(id))
}

// handleOccurrences expands every series over a window.
//
// GET /api/occurrences?from=YYYY-MM-DD&to=YYYY-MM-DD
//   - from: defaults to today
//   - to:   inclusive day, defaults to from + 6 days
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	loc := s.store.Location()
	q := r.URL.Query()

	now := s.now().In(loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if v := q.Get("from"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = t
	}
	to := from.AddDate(0, 0, 6)
	if v := q.Get("to"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = t
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	res, err := recur.ExpandAll(s.store.List(), recur.ExpandConfig{
		RangeStart: from,
		RangeEnd:   to.Add(24*time.Hour - time.Second),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dtos := make([]occurrenceDTO, 0, len(res.Occurrences))
	for _, occ := range res.Occurrences {
		dtos = append(dtos, occurrenceDTO{
			SeriesID:     occ.SeriesID,
			InstanceKey:  occ.InstanceKey,
			Title:        occ.Title,
			Description:  occ.Description,
			Start:        formatTime(occ.Start),
			End:          formatTime(occ.End),
			NaturalStart: formatTime(occ.NaturalStart),
			Moved:        occ.Moved,
			Recurring:    occ.Recurring,
		})
	}
	invalid := make([]int, 0, len(res.Invalid))
	for _, inv := range res.Invalid {
		invalid = append(invalid, inv.SeriesID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":           from.Format("2006-01-02"),
		"to":             to.Format("2006-01-02"),
		"occurrences":    dtos,
		"invalid_series": invalid,
	})
}

// handleConflicts reports occurrences overlapping a candidate interval.
//
// GET /api/conflicts?start=...&end=...[&exclude=ID]
func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	loc := s.store.Location()
	q := r.URL.Query()
	start, err := model.ParseDateTime(q.Get("start"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start: "+err.Error())
		return
	}
	end, err := model.ParseDateTime(q.Get("end"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end: "+err.Error())
		return
	}
	var exclude *int
	if v := q.Get("exclude"); v != "" {
		id := parseIntDefault(v, 0)
		exclude = &id
	}

	cs, err := s.detector.Detect(start, end, s.store.List(), exclude)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":   conflict.Summary(cs),
		"conflicts": toConflictDTOs(cs),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stats.Generate(s.store.List(), s.now().In(s.store.Location())))
}

// handleICS publishes the whole store as an iCalendar feed.
func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	body, err := ics.Export(s.store.List(), ics.ExportOptions{Name: "pcal", Now: s.now()})
	if err != nil {
		appLog.Error("ics export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	_, _ = w.Write(body)
}
