package context

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roguectrl/electricsheep/internal/memory"
)

// recordSeparator sits between records in a dream prompt.
const recordSeparator = "\n---\n"

// Formatter renders memories into prompt-ready strings.
type Formatter struct{}

// NewFormatter creates a Formatter.
func NewFormatter() *Formatter { return &Formatter{} }

// FormatRecord renders one deep record as a header line followed by its
// content as indented JSON.
func (f *Formatter) FormatRecord(r memory.Record) string {
	body, err := json.MarshalIndent(r.Content, "", "  ")
	if err != nil {
		body = []byte(fmt.Sprintf("%v", r.Content))
	}
	return fmt.Sprintf("[%s] (%s)\n%s", minuteStamp(r.CreatedAt), r.Category, body)
}

// FormatRecords joins rendered records, oldest first, with a separator.
func (f *Formatter) FormatRecords(records []memory.Record) string {
	blocks := make([]string, 0, len(records))
	for _, r := range records {
		blocks = append(blocks, f.FormatRecord(r))
	}
	return strings.Join(blocks, recordSeparator)
}

// FormatEntry renders one working-memory line.
func (f *Formatter) FormatEntry(e memory.Entry) string {
	return fmt.Sprintf("[%s] (%s) %s", minuteStamp(e.Timestamp), e.Category, e.Summary)
}

// minuteStamp is the timestamp truncated to the minute: 2006-01-02T15:04.
func minuteStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04")
}
