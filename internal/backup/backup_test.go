package backup

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	eventsBody = "eventId,title,description,startDateTime,endDateTime,frequency,interval,recurrenceEndDate,maxOccurrences,exceptions\n" +
		"1,Weekly Sync,,2025-12-01T10:00:00,2025-12-01T11:00:00,WEEKLY,1,2025-12-31T23:59:00,10,\n"
	fieldsBody = "eventId,fieldName,fieldValue\n1,location,Room 4\n"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestCreateFormat(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "data", "events.csv")
	missing := filepath.Join(dir, "data", "additional.csv")
	writeFile(t, events, eventsBody)

	out := filepath.Join(dir, "backup", "calendar_backup.txt")
	if err := Create(out, events, missing); err != nil {
		t.Fatalf("Create: %v", err)
	}

	want := "=== BEGIN FILE: " + events + " ===\n" + eventsBody + "=== END FILE: " + events + " ===\n\n" +
		"=== BEGIN FILE: " + missing + " ===\n=== END FILE: " + missing + " ===\n\n"
	if got := readFile(t, out); got != want {
		t.Errorf("backup =\n%s\nwant\n%s", got, want)
	}
}

func TestRestoreOverwrite(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "data", "events.csv")
	fields := filepath.Join(dir, "data", "additional.csv")
	writeFile(t, events, eventsBody)
	writeFile(t, fields, fieldsBody)

	out := filepath.Join(dir, "calendar_backup.txt")
	if err := Create(out, events, fields); err != nil {
		t.Fatal(err)
	}

	writeFile(t, events, "garbage\n")
	if err := os.Remove(fields); err != nil {
		t.Fatal(err)
	}

	res, err := Restore(out, Options{Overwrite: true})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(res.Files) != 2 || res.Files[0].Mode != ModeOverwrite || res.Files[0].Lines != 2 {
		t.Errorf("result = %+v", res)
	}
	if got := readFile(t, events); got != eventsBody {
		t.Errorf("events.csv =\n%s", got)
	}
	if got := readFile(t, fields); got != fieldsBody {
		t.Errorf("additional.csv =\n%s", got)
	}
}

func TestRestoreAppendSkipsHeader(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events.csv")
	writeFile(t, events, eventsBody)

	out := filepath.Join(dir, "calendar_backup.txt")
	if err := Create(out, events); err != nil {
		t.Fatal(err)
	}

	current := strings.Split(eventsBody, "\n")[0] + "\n2,Lunch,,2025-12-02T12:00:00,2025-12-02T13:00:00,NONE,1,,,"
	writeFile(t, events, current)

	res, err := Restore(out, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Files[0].Mode != ModeAppend || res.Files[0].Lines != 1 {
		t.Errorf("result = %+v", res.Files[0])
	}

	got := readFile(t, events)
	if n := strings.Count(got, "eventId,"); n != 1 {
		t.Errorf("header appears %d times:\n%s", n, got)
	}
	if !strings.Contains(got, "2,Lunch") || !strings.Contains(got, "1,Weekly Sync") {
		t.Errorf("append lost rows:\n%s", got)
	}
}

func TestRestoreAppendToMissingFileKeepsHeader(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events.csv")
	writeFile(t, events, eventsBody)
	out := filepath.Join(dir, "calendar_backup.txt")
	if err := Create(out, events); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(events); err != nil {
		t.Fatal(err)
	}

	res, err := Restore(out, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Files[0].Mode != ModeNew {
		t.Errorf("mode = %s, want new", res.Files[0].Mode)
	}
	if got := readFile(t, events); got != eventsBody {
		t.Errorf("events.csv =\n%s", got)
	}
}

func TestRestoreMissingBackup(t *testing.T) {
	_, err := Restore(filepath.Join(t.TempDir(), "nope.txt"), Options{Overwrite: true})
	if !errors.Is(err, ErrNoBackup) {
		t.Errorf("err = %v, want ErrNoBackup", err)
	}
}

func TestMarkerPath(t *testing.T) {
	tests := []struct {
		line, want string
	}{
		{"=== BEGIN FILE: ../data/event.csv ===", "../data/event.csv"},
		{"=== END FILE: data/additional.csv ===", "data/additional.csv"},
		{"=== BEGIN FILE: C:\\cal\\events.csv ===", "C:\\cal\\events.csv"},
		{"no colon", ""},
	}
	for _, tt := range tests {
		if got := markerPath(tt.line); got != tt.want {
			t.Errorf("markerPath(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
