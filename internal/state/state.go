// Package state persists the small process-state document (budget counters,
// cycle timestamps, counters) as a single JSON file.
//
// Every operation re-reads the file; nothing is cached between calls, so
// several processes sharing the file agree to the granularity of one
// Load/Save. Saves are write-then-rename, so a reader never sees a partial
// document. Concurrent writers are last-writer-wins.
package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roguectrl/electricsheep/internal/logging"
)

// Document is the free-form state document.
type Document map[string]any

// String returns the string at key, or "".
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Int returns the integer at key, or 0. Values decoded from JSON arrive as
// float64; values set in-process may be any integer type.
func (d Document) Int(key string) int {
	switch v := d[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// Time parses the RFC 3339 timestamp at key.
func (d Document) Time(key string) (time.Time, bool) {
	s := d.String(key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetTime stores t as an RFC 3339 UTC timestamp.
func (d Document) SetTime(key string, t time.Time) {
	d[key] = t.UTC().Format(time.RFC3339)
}

// Store reads and writes the state document at one path.
type Store struct {
	path string
	fs   FS
	log  *logging.Logger
}

// New returns a Store for path and removes any temporary file left over by
// a previous crashed save. Failure to remove it is logged and otherwise
// ignored: correctness never depends on the temporary file being absent.
func New(path string, fsys FS, log *logging.Logger) *Store {
	if fsys == nil {
		fsys = OSFS{}
	}
	s := &Store{path: path, fs: fsys, log: logging.OrNop(log).With("component", "state", "path", path)}
	s.CleanupTemp()
	return s
}

// Path returns the document path.
func (s *Store) Path() string { return s.path }

// CleanupTemp removes a stale temporary sibling if one exists.
func (s *Store) CleanupTemp() {
	temporaryPath := s.path + TempSuffix
	exists, err := s.fs.Exists(temporaryPath)
	if err != nil || !exists {
		return
	}
	if err := s.fs.Remove(temporaryPath); err != nil {
		s.log.Warn("could not remove stale temporary state file", "error", err)
		return
	}
	s.log.Info("removed stale temporary state file")
}

// Load returns the last successfully saved document. A missing, unreadable,
// or unparseable file yields an empty document; the failure is logged,
// never returned.
func (s *Store) Load() Document {
	exists, err := s.fs.Exists(s.path)
	if err != nil {
		s.log.Warn("state file not accessible, using empty state", "error", err)
		return Document{}
	}
	if !exists {
		return Document{}
	}

	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		s.log.Warn("state file unreadable, using empty state", "error", err)
		return Document{}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		s.log.Error("state file corrupted, using empty state", "error", err, "bytes", len(data))
		return Document{}
	}
	return doc
}

// Save atomically replaces the document.
func (s *Store) Save(doc Document) error {
	if doc == nil {
		doc = Document{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	data = append(data, '\n')

	if err := WriteAtomic(s.fs, s.path, data, 0o600); err != nil {
		return fmt.Errorf("state: save: %w", err)
	}
	return nil
}

// Update loads the document, applies fn, and saves the result. If fn
// returns an error nothing is written.
func (s *Store) Update(fn func(Document) error) error {
	doc := s.Load()
	if err := fn(doc); err != nil {
		return err
	}
	return s.Save(doc)
}
