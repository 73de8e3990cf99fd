package context

import (
	"fmt"
	"strings"

	"github.com/roguectrl/electricsheep/internal/memory"
)

// EmptyWorkingContext is returned when working memory holds nothing.
const EmptyWorkingContext = "No memories yet. This is my first day."

// DefaultWorkingContextTokens is the working-memory context budget.
const DefaultWorkingContextTokens = 2000

// DefaultMaxPromptTokens bounds the record listing of one dream prompt.
const DefaultMaxPromptTokens = 12000

// Builder assembles token-budgeted text from memories.
type Builder struct {
	formatter *Formatter
	counter   Counter
}

// NewBuilder creates a Builder. A nil counter uses EstimateCounter.
func NewBuilder(formatter *Formatter, counter Counter) *Builder {
	if formatter == nil {
		formatter = NewFormatter()
	}
	if counter == nil {
		counter = EstimateCounter{}
	}
	return &Builder{formatter: formatter, counter: counter}
}

// WorkingContext renders working memory for a system prompt. Entries are
// taken newest first until the next line would exceed maxTokens; whatever
// is left out is summarised in a leading "... (N older memories omitted)"
// line. The result reads oldest to newest.
func (b *Builder) WorkingContext(entries []memory.Entry, maxTokens int) string {
	if len(entries) == 0 {
		return EmptyWorkingContext
	}
	if maxTokens <= 0 {
		maxTokens = DefaultWorkingContextTokens
	}

	var lines []string
	used := 0
	for i := len(entries) - 1; i >= 0; i-- {
		line := b.formatter.FormatEntry(entries[i])
		tokens := b.counter.Count(line)
		if used+tokens > maxTokens {
			break
		}
		lines = append(lines, line)
		used += tokens
	}

	// lines is newest first; flip it.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	if omitted := len(entries) - len(lines); omitted > 0 {
		lines = append([]string{fmt.Sprintf("... (%d older memories omitted)", omitted)}, lines...)
	}
	return strings.Join(lines, "\n")
}

// DreamPrompt is the record listing of one dream cycle. Records is how many
// of the given records, counted from the oldest, the body carries; the rest
// were deferred whole.
type DreamPrompt struct {
	Body       string
	TokensUsed int
	Records    int
	Deferred   int
	Truncated  bool
}

// DreamPrompt renders records oldest first, taking whole records while the
// listing fits maxTokens. A record is never cut between records: whatever
// does not fit is left for a later prompt. The oldest record always goes
// in; if it alone exceeds maxTokens its rendering is truncated and
// Truncated is set. maxTokens <= 0 selects DefaultMaxPromptTokens.
func (b *Builder) DreamPrompt(records []memory.Record, maxTokens int) DreamPrompt {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxPromptTokens
	}
	var p DreamPrompt
	if len(records) == 0 {
		return p
	}

	blocks := make([]string, 0, len(records))
	used := 0
	for i, r := range records {
		block := b.formatter.FormatRecord(r)
		if i > 0 {
			block = recordSeparator + block
		}
		tokens := b.counter.Count(block)
		if i > 0 && used+tokens > maxTokens {
			break
		}
		blocks = append(blocks, block)
		used += tokens
	}

	p.Body = strings.Join(blocks, "")
	p.Records = len(blocks)
	p.Deferred = len(records) - len(blocks)
	if p.Records == 1 && used > maxTokens {
		p.Body = b.counter.Truncate(p.Body, maxTokens)
		p.Truncated = true
	}
	p.TokensUsed = b.counter.Count(p.Body)
	return p
}

// BuildWorkingContext is WorkingContext with a default builder.
func BuildWorkingContext(entries []memory.Entry, maxTokens int, counter Counter) string {
	return NewBuilder(nil, counter).WorkingContext(entries, maxTokens)
}
