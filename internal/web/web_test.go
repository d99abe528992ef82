package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pcal/internal/config"
	"pcal/internal/store"
)

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	fields, err := store.OpenFields(filepath.Join(dir, "additional.csv"))
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(filepath.Join(dir, "events.csv"), store.WithLocation(time.UTC), store.WithFields(fields))
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := NewServer(cfg, st)
	s.now = func() time.Time { return time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC) }
	return s, st
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const weeklyBody = `{"title":"Weekly Sync","start":"2025-12-01T10:00:00","end":"2025-12-01T11:00:00",` +
	`"frequency":"WEEKLY","interval":1,"recurrence_end":"2025-12-31T23:59:00"}`

func TestCreateAndListEvents(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/events", weeklyBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body)
	}
	var created seriesDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID != 1 || created.Frequency != "WEEKLY" {
		t.Errorf("created = %+v", created)
	}

	rec = do(t, h, http.MethodGet, "/api/events?title=sync", "")
	var list []seriesDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Title != "Weekly Sync" {
		t.Errorf("search = %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/api/events/1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/events/99", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing event status = %d", rec.Code)
	}
}

func TestCreateRejectsInvalidSeries(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"end before start", `{"title":"x","start":"2025-12-01T10:00:00","end":"2025-12-01T09:00:00"}`},
		{"recurring without end", `{"title":"x","start":"2025-12-01T10:00:00","end":"2025-12-01T11:00:00","frequency":"DAILY"}`},
		{"bad date", `{"title":"x","start":"tomorrow","end":"2025-12-01T11:00:00"}`},
		{"unknown field", `{"title":"x","colour":"red"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, "/api/events", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d body=%s", rec.Code, rec.Body)
			}
		})
	}
}

func TestCreateConflictNeedsForce(t *testing.T) {
	s, st := newTestServer(t, nil)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/events", weeklyBody)

	// Dec 8 10:30 overlaps the second weekly occurrence.
	clash := `{"title":"Dentist","start":"2025-12-08T10:30:00","end":"2025-12-08T11:30:00"}`
	rec := do(t, h, http.MethodPost, "/api/events", clash)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var resp conflictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Conflicts) != 1 || resp.Conflicts[0].Start != "2025-12-08T10:00:00" {
		t.Errorf("conflicts = %+v", resp.Conflicts)
	}
	if len(st.List()) != 1 {
		t.Fatalf("conflicting event was stored")
	}

	rec = do(t, h, http.MethodPost, "/api/events?force=1", clash)
	if rec.Code != http.StatusCreated {
		t.Errorf("forced status = %d", rec.Code)
	}
}

func TestUpdateExcludesItself(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/events", weeklyBody)

	rec := do(t, h, http.MethodPut, "/api/events/1", `{"start":"2025-12-01T10:30:00","end":"2025-12-01T11:30:00"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var got seriesDTO
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Start != "2025-12-01T10:30:00" || got.Title != "Weekly Sync" {
		t.Errorf("updated = %+v", got)
	}
}

func TestExceptionsAndOccurrences(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/events", weeklyBody)

	rec := do(t, h, http.MethodPost, "/api/events/1/exceptions", `{"original":"2025-12-08T10:00:00","deleted":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete occurrence status = %d body=%s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPost, "/api/events/1/exceptions", `{"original":"2025-12-15T10:00:00","new":"2025-12-16T09:00:00"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("move occurrence status = %d body=%s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPost, "/api/events/1/exceptions", `{"original":"2025-12-09T10:00:00","deleted":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("off-cadence exception status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/occurrences?from=2025-12-01&to=2025-12-31", "")
	var resp struct {
		Occurrences []occurrenceDTO `json:"occurrences"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	var starts []string
	for _, o := range resp.Occurrences {
		starts = append(starts, o.Start)
	}
	want := []string{"2025-12-01T10:00:00", "2025-12-16T09:00:00", "2025-12-22T10:00:00", "2025-12-29T10:00:00"}
	if strings.Join(starts, ",") != strings.Join(want, ",") {
		t.Errorf("occurrences = %v, want %v", starts, want)
	}
}

func TestMoveConflictNeedsForce(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/events", weeklyBody)
	do(t, h, http.MethodPost, "/api/events", `{"title":"Dentist","start":"2025-12-10T14:00:00","end":"2025-12-10T15:00:00"}`)

	move := `{"original":"2025-12-08T10:00:00","new":"2025-12-10T14:00:00"}`
	rec := do(t, h, http.MethodPost, "/api/events/1/exceptions", move)
	if rec.Code != http.StatusConflict {
		t.Fatalf("move onto another event status = %d body=%s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "Dentist") {
		t.Errorf("conflict body = %s", rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/api/occurrences?from=2025-12-10&to=2025-12-10", "")
	if strings.Contains(rec.Body.String(), "Weekly Sync") {
		t.Errorf("rejected move was committed: %s", rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/api/events/1/exceptions?force=1", move)
	if rec.Code != http.StatusOK {
		t.Fatalf("forced move status = %d body=%s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPost, "/api/events/9/exceptions", move)
	if rec.Code != http.StatusNotFound {
		t.Errorf("move on a missing event status = %d", rec.Code)
	}
}

func TestConflictsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/events", weeklyBody)

	rec := do(t, h, http.MethodGet, "/api/conflicts?start=2025-12-22T10:59:00&end=2025-12-22T12:00:00", "")
	if !strings.Contains(rec.Body.String(), `"series_id":1`) {
		t.Errorf("body = %s", rec.Body)
	}
	rec = do(t, h, http.MethodGet, "/api/conflicts?start=2025-12-22T11:00:00&end=2025-12-22T12:00:00", "")
	if !strings.Contains(rec.Body.String(), "No conflicts") {
		t.Errorf("touching interval reported: %s", rec.Body)
	}
	rec = do(t, h, http.MethodGet, "/api/conflicts?start=2025-12-22T10:00:00&end=2025-12-22T12:00:00&exclude=1", "")
	if !strings.Contains(rec.Body.String(), "No conflicts") {
		t.Errorf("excluded series reported: %s", rec.Body)
	}
}

func TestFieldsEndpoints(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/events", weeklyBody)

	rec := do(t, h, http.MethodPut, "/api/events/1/fields/location", `{"value":"Room 4"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set field status = %d body=%s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodGet, "/api/events/1/fields", "")
	if !strings.Contains(rec.Body.String(), `"location":"Room 4"`) {
		t.Errorf("fields = %s", rec.Body)
	}

	if rec := do(t, h, http.MethodDelete, "/api/events/1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/events/1/fields", ""); rec.Code != http.StatusNotFound {
		t.Errorf("fields of deleted event status = %d", rec.Code)
	}
}

func TestCalendarPageAndFeed(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	do(t, h, http.MethodPost, "/api/events", weeklyBody)

	rec := do(t, h, http.MethodGet, "/calendar?year=2025&month=12", "")
	body := rec.Body.String()
	for _, want := range []string{`data-ready="true"`, "December 2025", "10:00 Weekly Sync", "month=11", "month=1"} {
		if !strings.Contains(body, want) {
			t.Errorf("calendar page missing %q", want)
		}
	}
	if rec := do(t, h, http.MethodGet, "/calendar?month=13", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("month 13 status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/calendar.ics", "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "SUMMARY:Weekly Sync") {
		t.Errorf("feed = %s", rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/api/stats", "")
	if !strings.Contains(rec.Body.String(), `"recurring":1`) {
		t.Errorf("stats = %s", rec.Body)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "secret"}
	s, _ := newTestServer(t, cfg)
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/events", "")
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Header().Get("WWW-Authenticate"), `realm="pcal"`) {
		t.Errorf("unauthenticated status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("me", "secret")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Errorf("authenticated status = %d", ok.Code)
	}
}
