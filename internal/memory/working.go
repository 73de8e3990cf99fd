package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/roguectrl/electricsheep/internal/clock"
	"github.com/roguectrl/electricsheep/internal/logging"
	"github.com/roguectrl/electricsheep/internal/state"
)

// DefaultWorkingMaxEntries caps the working memory list.
const DefaultWorkingMaxEntries = 50

// InsightPrefix marks working-memory entries promoted from a dream.
const InsightPrefix = "[DREAM INSIGHT] "

// WorkingMemory is the readable, size-capped list of recent summaries. It
// is persisted as a JSON array with the same write-then-rename primitive as
// the state file.
type WorkingMemory struct {
	path       string
	fs         state.FS
	maxEntries int
	clock      clock.Clock
	log        *logging.Logger

	mu sync.Mutex
}

// NewWorkingMemory returns a working memory stored at path. maxEntries <= 0
// selects DefaultWorkingMaxEntries.
func NewWorkingMemory(path string, fsys state.FS, maxEntries int, clk clock.Clock, log *logging.Logger) *WorkingMemory {
	if fsys == nil {
		fsys = state.OSFS{}
	}
	if maxEntries <= 0 {
		maxEntries = DefaultWorkingMaxEntries
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &WorkingMemory{
		path:       path,
		fs:         fsys,
		maxEntries: maxEntries,
		clock:      clk,
		log:        logging.OrNop(log).With("component", "working_memory"),
	}
}

// Load returns all entries, oldest first. A missing or unparseable file
// yields an empty list.
func (w *WorkingMemory) Load() []Entry {
	exists, err := w.fs.Exists(w.path)
	if err != nil || !exists {
		return nil
	}
	data, err := w.fs.ReadFile(w.path)
	if err != nil {
		w.log.Warn("working memory unreadable, using empty list", "error", err)
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		w.log.Error("working memory corrupted, using empty list", "error", err)
		return nil
	}
	return entries
}

// Add appends an entry, pruning the oldest beyond the cap.
func (w *WorkingMemory) Add(summary, category string, metadata map[string]any) (Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if category == "" {
		category = DefaultCategory
	}
	entry := Entry{
		Timestamp: w.clock.Now().UTC(),
		Category:  category,
		Summary:   summary,
	}
	if len(metadata) > 0 {
		entry.Metadata = metadata
	}

	entries := append(w.Load(), entry)
	if len(entries) > w.maxEntries {
		entries = entries[len(entries)-w.maxEntries:]
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return entry, fmt.Errorf("working memory: encode: %w", err)
	}
	if err := state.WriteAtomic(w.fs, w.path, append(data, '\n'), 0o600); err != nil {
		return entry, fmt.Errorf("working memory: save: %w", err)
	}
	return entry, nil
}

// List returns the most recent limit entries in chronological order,
// optionally restricted to one category. limit <= 0 returns all.
func (w *WorkingMemory) List(limit int, category string) []Entry {
	entries := w.Load()
	if category != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

// Store promotes a dream insight into working memory.
func (w *WorkingMemory) Store(_ context.Context, body string, metadata map[string]any) error {
	_, err := w.Add(InsightPrefix+body, CategoryDreamConsolidation, metadata)
	return err
}
