// Package budget caps the tokens spent on generation calls per UTC calendar
// day. Counters live in the process state document under budget_date and
// budget_used, so every process sharing the state file shares the ceiling.
package budget

import (
	"context"
	"fmt"
	"sync"

	"github.com/roguectrl/electricsheep/internal/clock"
	"github.com/roguectrl/electricsheep/internal/logging"
	"github.com/roguectrl/electricsheep/internal/state"
)

// State document keys owned by the ledger.
const (
	KeyDate = "budget_date"
	KeyUsed = "budget_used"
)

const dateLayout = "2006-01-02"

// ExceededError is returned by Call when the day's ceiling has already been
// reached. The metered call is never placed.
type ExceededError struct {
	Used  int
	Limit int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("daily token budget exceeded: %d of %d tokens used today; the budget resets at the next UTC calendar day (00:00 UTC)", e.Used, e.Limit)
}

// Usage is the resource report of one metered call.
type Usage struct {
	InputUnits  int
	OutputUnits int
}

// Units charges input and output at the same rate.
func (u Usage) Units() int { return u.InputUnits + u.OutputUnits }

// Ledger is the per-day accounting view over the state store. Limit <= 0
// means unbounded.
type Ledger struct {
	state *state.Store
	limit int
	clock clock.Clock
	log   *logging.Logger

	// mu serialises read-modify-write within one process. Across
	// processes the state file is last-writer-wins.
	mu sync.Mutex
}

// New returns a ledger with the given daily limit.
func New(st *state.Store, limit int, clk clock.Clock, log *logging.Logger) *Ledger {
	if clk == nil {
		clk = clock.Real()
	}
	return &Ledger{
		state: st,
		limit: limit,
		clock: clk,
		log:   logging.OrNop(log).With("component", "budget"),
	}
}

// Limit returns the configured daily limit.
func (l *Ledger) Limit() int { return l.limit }

// Unbounded reports whether no ceiling is enforced.
func (l *Ledger) Unbounded() bool { return l.limit <= 0 }

// Today returns the current UTC calendar date as YYYY-MM-DD.
func (l *Ledger) Today() string {
	return l.clock.Now().UTC().Format(dateLayout)
}

// UsedToday returns the units consumed today. A stored date other than
// today reads as zero.
func (l *Ledger) UsedToday() int {
	return l.usedOn(l.state.Load(), l.Today())
}

func (l *Ledger) usedOn(doc state.Document, today string) int {
	if doc.String(KeyDate) != today {
		return 0
	}
	return doc.Int(KeyUsed)
}

// RemainingToday returns limit - used, floored at zero. unbounded is true
// when no limit is configured, in which case remaining is meaningless.
func (l *Ledger) RemainingToday() (remaining int, unbounded bool) {
	if l.Unbounded() {
		return 0, true
	}
	remaining = l.limit - l.UsedToday()
	if remaining < 0 {
		remaining = 0
	}
	return remaining, false
}

// RecordUsage adds units to today's counter, resetting it first if the
// date has rolled over.
func (l *Ledger) RecordUsage(units int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.Today()
	var used int
	err := l.state.Update(func(doc state.Document) error {
		used = l.usedOn(doc, today) + units
		doc[KeyDate] = today
		doc[KeyUsed] = used
		return nil
	})
	if err != nil {
		return fmt.Errorf("budget: record usage: %w", err)
	}
	l.log.Debug("recorded usage", "units", units, "used_today", used, "limit", l.limit)
	return nil
}

// Check returns *ExceededError if today's usage has reached the limit.
func (l *Ledger) Check() error {
	if l.Unbounded() {
		return nil
	}
	if used := l.UsedToday(); used >= l.limit {
		return &ExceededError{Used: used, Limit: l.limit}
	}
	return nil
}

// Call places one metered call under the ledger. The ceiling is checked
// before fn runs; a call already admitted is allowed to overshoot the limit
// and its usage is still recorded. Usage is recorded only when fn succeeds
// and reports it. Errors from fn are returned unchanged.
func Call[T any](ctx context.Context, l *Ledger, fn func(context.Context) (T, *Usage, error)) (T, error) {
	var zero T
	if err := l.Check(); err != nil {
		l.log.Warn("refusing metered call", "error", err)
		return zero, err
	}

	result, usage, err := fn(ctx)
	if err != nil {
		return zero, err
	}
	if usage == nil {
		l.log.Debug("metered call reported no usage")
		return result, nil
	}
	if err := l.RecordUsage(usage.Units()); err != nil {
		// The result is still returned; the ledger under-counts.
		l.log.Error("failed to record usage", "units", usage.Units(), "error", err)
	}
	return result, nil
}
