// Package memory holds the two memory systems: the encrypted deep store,
// readable only by the dream cycle, and the plain working memory the waking
// side reads.
package memory

import "time"

// CategoryCorrupted marks a record whose payload could not be decrypted or
// decoded.
const CategoryCorrupted = "corrupted"

// CategoryDreamConsolidation is the working-memory category for insights
// promoted by a dream cycle.
const CategoryDreamConsolidation = "dream_consolidation"

// DefaultCategory is used when a writer names no category.
const DefaultCategory = "interaction"

// corruptedNote is the sentinel body of a record that failed to decrypt.
const corruptedNote = "This memory could not be recovered."

// Record is one deep memory, decrypted.
type Record struct {
	ID          int64          `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	Category    string         `json:"category"`
	Content     map[string]any `json:"content"`
	Fingerprint string         `json:"content_hash"`
	Dreamed     bool           `json:"dreamed"`
	DreamedAt   *time.Time     `json:"dream_date,omitempty"`
}

// Corrupted reports whether the record is the unrecoverable sentinel.
func (r Record) Corrupted() bool { return r.Category == CategoryCorrupted }

// Stats is an aggregate view of the deep store.
type Stats struct {
	Total      int            `json:"total_memories"`
	Undreamed  int            `json:"undreamed"`
	Dreamed    int            `json:"dreamed"`
	ByCategory map[string]int `json:"categories"`
}

// Filter narrows Query. Zero values mean "no restriction". Limit keeps the
// most recent Limit matches.
type Filter struct {
	Categories    []string
	Limit         int
	UndreamedOnly bool
}

// Entry is one working-memory line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Category  string         `json:"category"`
	Summary   string         `json:"summary"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
