package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"pcal/internal/fsutil"
	appLog "pcal/internal/log"
)

// FieldsHeader is the first line of additional.csv.
var FieldsHeader = []string{"eventId", "fieldName", "fieldValue"}

// FieldStore holds free-form name/value pairs attached to events.
type FieldStore struct {
	mu     sync.RWMutex
	path   string
	fields map[int]map[string]string
}

// OpenFields loads additional.csv. A missing file yields an empty store.
func OpenFields(path string) (*FieldStore, error) {
	f := &FieldStore{path: path, fields: make(map[int]map[string]string)}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload re-reads additional.csv.
func (f *FieldStore) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			f.mu.Lock()
			f.fields = make(map[int]map[string]string)
			f.mu.Unlock()
			return nil
		}
		return err
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	recs, err := cr.ReadAll()
	if err != nil {
		return fmt.Errorf("read %s: %w", f.path, err)
	}

	fields := make(map[int]map[string]string)
	for i, rec := range recs {
		if i == 0 && len(rec) > 0 && rec[0] == FieldsHeader[0] {
			continue
		}
		if len(rec) != 3 {
			appLog.Warn("skipping malformed field row", "path", f.path, "line", i+1)
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			appLog.Warn("skipping malformed field row", "path", f.path, "line", i+1)
			continue
		}
		if fields[id] == nil {
			fields[id] = make(map[string]string)
		}
		fields[id][strings.TrimSpace(rec[1])] = strings.TrimSpace(rec[2])
	}

	f.mu.Lock()
	f.fields = fields
	f.mu.Unlock()
	return nil
}

func (f *FieldStore) saveLocked() error {
	ids := make([]int, 0, len(f.fields))
	for id := range f.fields {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(FieldsHeader); err != nil {
		return err
	}
	for _, id := range ids {
		for _, name := range sortedKeys(f.fields[id]) {
			if err := cw.Write([]string{strconv.Itoa(id), name, f.fields[id][name]}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(f.path, buf.Bytes(), ".pcal-fields-*.tmp")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set adds or replaces one field. Name and value must be non-empty.
func (f *FieldStore) Set(id int, name, value string) error {
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)
	if name == "" || value == "" {
		return errors.New("field name and value cannot be empty")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fields[id] == nil {
		f.fields[id] = make(map[string]string)
	}
	f.fields[id][name] = value
	return f.saveLocked()
}

// Get returns one field value.
func (f *FieldStore) Get(id int, name string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.fields[id][name]
	return v, ok
}

// All returns a copy of every field of an event.
func (f *FieldStore) All(id int) map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]string, len(f.fields[id]))
	for k, v := range f.fields[id] {
		out[k] = v
	}
	return out
}

// Remove drops one field. Removing a missing field is not an error.
func (f *FieldStore) Remove(id int, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.fields[id]
	if !ok {
		return nil
	}
	if _, ok := m[name]; !ok {
		return nil
	}
	delete(m, name)
	if len(m) == 0 {
		delete(f.fields, id)
	}
	return f.saveLocked()
}

// RemoveAll drops every field of an event.
func (f *FieldStore) RemoveAll(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.fields[id]; !ok {
		return nil
	}
	delete(f.fields, id)
	return f.saveLocked()
}

// Has reports whether the event carries any field.
func (f *FieldStore) Has(id int) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.fields[id]) > 0
}

// Names lists every field name used by any event, sorted.
func (f *FieldStore) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	seen := make(map[string]string)
	for _, m := range f.fields {
		for k := range m {
			seen[k] = ""
		}
	}
	return sortedKeys(seen)
}

// Display renders "name: value" lines, or "No additional fields".
func (f *FieldStore) Display(id int) string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	m := f.fields[id]
	if len(m) == 0 {
		return "No additional fields"
	}
	lines := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		lines = append(lines, k+": "+m[k])
	}
	return strings.Join(lines, "\n")
}
