package dream

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roguectrl/electricsheep/internal/adapter"
	"github.com/roguectrl/electricsheep/internal/budget"
	"github.com/roguectrl/electricsheep/internal/cipher"
	"github.com/roguectrl/electricsheep/internal/clock"
	ctxbuild "github.com/roguectrl/electricsheep/internal/context"
	"github.com/roguectrl/electricsheep/internal/journal"
	"github.com/roguectrl/electricsheep/internal/memory"
	"github.com/roguectrl/electricsheep/internal/retry"
	"github.com/roguectrl/electricsheep/internal/state"
)

var cycleStart = time.Date(2026, 7, 4, 3, 0, 0, 0, time.UTC)

type step struct {
	resp adapter.Response
	err  error
}

// scriptedGenerator replays steps in order; the last step repeats.
type scriptedGenerator struct {
	mu     sync.Mutex
	steps  []step
	calls  []adapter.Request
	during func(call int)
}

func (g *scriptedGenerator) Generate(_ context.Context, req adapter.Request) (adapter.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	n := len(g.calls)
	s := g.steps[min(n, len(g.steps))-1]
	during := g.during
	g.mu.Unlock()

	if during != nil {
		during(n)
	}
	return s.resp, s.err
}

func (g *scriptedGenerator) Info() adapter.ModelInfo {
	return adapter.ModelInfo{Name: "scripted", Provider: "test"}
}

func (g *scriptedGenerator) Calls() []adapter.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]adapter.Request(nil), g.calls...)
}

func ok(text string, in, out int) step {
	return step{resp: adapter.Response{Text: text, Usage: &adapter.Usage{InputTokens: in, OutputTokens: out}}}
}

func fail(status int) step {
	return step{err: &adapter.Error{Provider: "test", StatusCode: status, Err: errors.New("boom")}}
}

type harness struct {
	dbPath  string
	deep    *memory.DeepStore
	working *memory.WorkingMemory
	state   *state.Store
	ledger  *budget.Ledger
	sink    *journal.MemorySink
	clock   *clock.FakeClock
	gen     *scriptedGenerator
	orch    *Orchestrator
	phases  []Phase
}

func newHarness(t *testing.T, limit int, steps ...step) *harness {
	t.Helper()
	key, err := cipher.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	c, err := cipher.New(key)
	if err != nil {
		t.Fatal(err)
	}
	clk := clock.Fake(cycleStart)
	dbPath := filepath.Join(t.TempDir(), "deep.db")
	deep, err := memory.OpenDeep(dbPath, c, clk, nil)
	if err != nil {
		t.Fatalf("OpenDeep: %v", err)
	}
	t.Cleanup(func() { deep.Close() })

	fsys := state.NewMemFS()
	st := state.New("state.json", fsys, nil)
	h := &harness{
		dbPath:  dbPath,
		deep:    deep,
		working: memory.NewWorkingMemory("working.json", fsys, 0, clk, nil),
		state:   st,
		ledger:  budget.New(st, limit, clk, nil),
		sink:    journal.NewMemorySink(),
		clock:   clk,
		gen:     &scriptedGenerator{steps: steps},
	}

	var gen adapter.Generator
	if len(steps) > 0 {
		gen = h.gen
	}
	h.orch, err = New(Deps{
		Deep:      deep,
		Generator: gen,
		Ledger:    h.ledger,
		Sink:      h.sink,
		Insights:  h.working,
		State:     st,
		Clock:     clk,
		Counter:   ctxbuild.EstimateCounter{},
	}, Options{Retry: retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.orch.OnPhase = func(p Phase) { h.phases = append(h.phases, p) }
	return h
}

func (h *harness) remember(t *testing.T, n int) []int64 {
	t.Helper()
	var ids []int64
	for i := 0; i < n; i++ {
		h.clock.Advance(time.Minute)
		id, err := h.deep.Store(map[string]any{"event": "thing happened", "n": i}, "interaction")
		if err != nil {
			t.Fatalf("Store: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func (h *harness) stats(t *testing.T) memory.Stats {
	t.Helper()
	s, err := h.deep.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	return s
}

const dreamText = "# The Paper Tide\nThe forum became an ocean of unsent replies.\nCONSOLIDATION: ignored inline line"

func TestRun_NoopWhenNothingUndreamed(t *testing.T) {
	h := newHarness(t, 0) // no generator at all

	res, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeNoop {
		t.Errorf("outcome = %v, want noop", res.Outcome)
	}
	doc := h.state.Load()
	if _, ok := doc.Time(KeyLastDream); !ok {
		t.Error("last_dream not stamped on a no-op cycle")
	}
	if doc.Int(KeyTotalDreams) != 0 {
		t.Error("no-op cycle incremented total_dreams")
	}
	if len(h.sink.Names()) != 0 {
		t.Error("no-op cycle wrote an artifact")
	}
	if !reflect.DeepEqual(h.phases, []Phase{PhaseCollecting, PhaseIdle}) {
		t.Errorf("phases = %v", h.phases)
	}
}

func TestRun_DreamCycle(t *testing.T) {
	h := newHarness(t, 0, ok(dreamText, 300, 120), ok("Unsent words still shape the sender.", 80, 10))
	ids := h.remember(t, 3)

	res, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeDreamed {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	if res.Title != "The Paper Tide" || res.Marked != 3 || !reflect.DeepEqual(res.RecordIDs, ids) {
		t.Errorf("result = %+v", res)
	}
	if len(res.CycleID) != 26 {
		t.Errorf("cycle id %q is not a ULID", res.CycleID)
	}

	// Artifact.
	arts := h.sink.Artifacts()
	body, found := arts["2026-07-04_The_Paper_Tide"]
	if !found {
		t.Fatalf("artifact names = %v", h.sink.Names())
	}
	wantBody := "# The Paper Tide\n*Dreamed: 2026-07-04*\n\nThe forum became an ocean of unsent replies.\n"
	if body != wantBody {
		t.Errorf("artifact body =\n%q\nwant\n%q", body, wantBody)
	}

	// Records are consumed.
	if s := h.stats(t); s.Undreamed != 0 || s.Dreamed != 3 {
		t.Errorf("stats = %+v", s)
	}

	// The prompt carried the records oldest first.
	calls := h.gen.Calls()
	if len(calls) != 2 {
		t.Fatalf("generator calls = %d, want 2", len(calls))
	}
	if !strings.Contains(calls[0].System, `"n": 0`) || strings.Index(calls[0].System, `"n": 0`) > strings.Index(calls[0].System, `"n": 2`) {
		t.Error("dream prompt does not list records oldest first")
	}
	if calls[0].MaxTokens != DefaultMaxOutputTokens || calls[1].MaxTokens != DefaultInsightMaxTokens {
		t.Errorf("max tokens = %d, %d", calls[0].MaxTokens, calls[1].MaxTokens)
	}

	// Insight forwarded to working memory.
	insights := h.working.List(0, memory.CategoryDreamConsolidation)
	if len(insights) != 1 || insights[0].Summary != memory.InsightPrefix+"Unsent words still shape the sender." {
		t.Errorf("insights = %+v", insights)
	}
	if insights[0].Metadata["dream_id"] != res.CycleID {
		t.Errorf("insight metadata = %v", insights[0].Metadata)
	}

	// Process state and budget.
	doc := h.state.Load()
	if doc.Int(KeyTotalDreams) != 1 || doc.String(KeyLatestDreamTitle) != "The Paper Tide" ||
		doc.String(KeyLatestDreamID) != res.CycleID || doc.String(KeyLatestDreamPath) != res.Location {
		t.Errorf("state = %v", doc)
	}
	if used := h.ledger.UsedToday(); used != 300+120+80+10 {
		t.Errorf("budget used = %d", used)
	}

	wantPhases := []Phase{PhaseCollecting, PhaseGenerating, PhasePersisting, PhaseDistilling, PhaseFinalizing, PhaseIdle}
	if !reflect.DeepEqual(h.phases, wantPhases) {
		t.Errorf("phases = %v, want %v", h.phases, wantPhases)
	}
	if h.orch.Phase() != PhaseIdle {
		t.Errorf("phase after run = %v", h.orch.Phase())
	}

	// A second cycle has nothing left.
	again, err := h.orch.Run(context.Background())
	if err != nil || again.Outcome != OutcomeNoop {
		t.Errorf("second run = %+v, %v", again, err)
	}
	if h.state.Load().Int(KeyTotalDreams) != 1 {
		t.Error("no-op cycle changed total_dreams")
	}
}

func TestRun_AllRetriesFailCommitsNothing(t *testing.T) {
	h := newHarness(t, 0, fail(503))
	h.remember(t, 2)
	before := h.stats(t)

	_, err := h.orch.Run(context.Background())
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want *retry.ExhaustedError", err)
	}
	if !adapter.IsTransient(err) {
		t.Error("the last provider error should be reachable through the chain")
	}
	if n := len(h.gen.Calls()); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
	if waits := h.clock.Waits(); !reflect.DeepEqual(waits, []time.Duration{time.Second, 2 * time.Second}) {
		t.Errorf("backoff waits = %v", waits)
	}
	if len(h.sink.Names()) != 0 {
		t.Error("artifact written despite failed generation")
	}
	if after := h.stats(t); !reflect.DeepEqual(before, after) {
		t.Errorf("stats changed: %+v -> %+v", before, after)
	}
	if h.state.Load().Int(KeyTotalDreams) != 0 {
		t.Error("total_dreams incremented on a failed cycle")
	}
	if h.ledger.UsedToday() != 0 {
		t.Error("failed calls were charged")
	}
}

func TestRun_NonTransientErrorNotRetried(t *testing.T) {
	h := newHarness(t, 0, fail(400))
	h.remember(t, 1)

	if _, err := h.orch.Run(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if n := len(h.gen.Calls()); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
	if s := h.stats(t); s.Undreamed != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRun_RecoversAfterTransientFailure(t *testing.T) {
	h := newHarness(t, 0, fail(529), ok(dreamText, 10, 10), ok("insight", 1, 1))
	h.remember(t, 1)

	res, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeDreamed || res.Insight != "insight" {
		t.Errorf("result = %+v", res)
	}
	if h.ledger.UsedToday() != 22 {
		t.Errorf("used = %d, want 22", h.ledger.UsedToday())
	}
}

func TestRun_BudgetExceededAbortsBeforeCalling(t *testing.T) {
	h := newHarness(t, 1000, ok(dreamText, 1, 1))
	h.remember(t, 2)
	if err := h.state.Save(state.Document{budget.KeyDate: "2026-07-04", budget.KeyUsed: 1000}); err != nil {
		t.Fatal(err)
	}

	_, err := h.orch.Run(context.Background())
	var exceeded *budget.ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("err = %v, want *budget.ExceededError", err)
	}
	if len(h.gen.Calls()) != 0 {
		t.Error("generator was called over budget")
	}
	if len(h.clock.Waits()) != 0 {
		t.Error("budget refusal was retried")
	}
	if s := h.stats(t); s.Undreamed != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRun_SinkFailureCommitsNothing(t *testing.T) {
	h := newHarness(t, 0, ok(dreamText, 1, 1))
	h.remember(t, 2)
	h.sink.Fail = errors.New("disk full")

	if _, err := h.orch.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v", err)
	}
	if s := h.stats(t); s.Undreamed != 2 {
		t.Errorf("records marked despite failed artifact write: %+v", s)
	}
	if len(h.gen.Calls()) != 1 {
		t.Error("distillation ran after a failed artifact write")
	}
}

func TestRun_DistillationFailureIsAbsorbed(t *testing.T) {
	h := newHarness(t, 0, ok(dreamText, 5, 5), fail(503))
	h.remember(t, 2)

	res, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeDreamed || res.Insight != "" || res.Marked != 2 {
		t.Errorf("result = %+v", res)
	}
	if n := len(h.gen.Calls()); n != 1+3 {
		t.Errorf("generator calls = %d, want 4 (dream + 3 distillation attempts)", n)
	}
	if len(h.working.List(0, memory.CategoryDreamConsolidation)) != 0 {
		t.Error("an insight was stored despite distillation failing")
	}
	if len(h.sink.Names()) != 1 {
		t.Error("artifact missing")
	}
}

func TestRun_DistillationOverBudgetIsAbsorbed(t *testing.T) {
	// The dream call itself pushes usage past the limit; distillation is
	// then refused, which must not abort the cycle.
	h := newHarness(t, 100, ok(dreamText, 90, 50), ok("never", 1, 1))
	h.remember(t, 1)

	res, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != OutcomeDreamed || res.Insight != "" {
		t.Errorf("result = %+v", res)
	}
	if h.ledger.UsedToday() != 140 {
		t.Errorf("used = %d, want 140 (soft ceiling by one call)", h.ledger.UsedToday())
	}
	if len(h.gen.Calls()) != 1 {
		t.Errorf("calls = %d, want 1", len(h.gen.Calls()))
	}
}

func TestRun_ConcurrentRecordsAreNotSwept(t *testing.T) {
	h := newHarness(t, 0, ok(dreamText, 1, 1), ok("insight", 1, 1))
	collected := h.remember(t, 2)

	var late int64
	h.gen.during = func(call int) {
		if call != 1 {
			return
		}
		id, err := h.deep.Store(map[string]any{"event": "arrived mid-cycle"}, "interaction")
		if err != nil {
			t.Errorf("Store during cycle: %v", err)
		}
		late = id
	}

	res, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(res.RecordIDs, collected) {
		t.Errorf("cycle consumed %v, want %v", res.RecordIDs, collected)
	}
	left, err := h.deep.RetrieveUndreamed()
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].ID != late {
		t.Errorf("undreamed after cycle = %+v, want only the late record %d", left, late)
	}
}

func TestRun_DefersRecordsBeyondPromptBudget(t *testing.T) {
	h := newHarness(t, 0,
		ok(dreamText, 1, 1), ok("first insight", 1, 1),
		ok(dreamText, 1, 1), ok("second insight", 1, 1))
	ids := h.remember(t, 5)

	recs, err := h.deep.RetrieveUndreamed()
	if err != nil {
		t.Fatal(err)
	}
	counter := ctxbuild.EstimateCounter{}
	// Two records fit; a third never does.
	h.orch.opts.MaxPromptTokens = counter.Count(ctxbuild.NewFormatter().FormatRecords(recs[:2])) + 1

	res, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(res.RecordIDs, ids[:2]) || res.Marked != 2 || res.Deferred != 3 || res.Truncated {
		t.Errorf("result = %+v, want records %v marked with 3 deferred", res, ids[:2])
	}
	system := h.gen.Calls()[0].System
	if !strings.Contains(system, `"n": 1`) || strings.Contains(system, `"n": 2`) {
		t.Errorf("prompt carries the wrong records:\n%s", system)
	}

	left, err := h.deep.RetrieveUndreamed()
	if err != nil {
		t.Fatal(err)
	}
	var leftIDs []int64
	for _, r := range left {
		leftIDs = append(leftIDs, r.ID)
	}
	if !reflect.DeepEqual(leftIDs, ids[2:]) {
		t.Errorf("undreamed after first cycle = %v, want %v", leftIDs, ids[2:])
	}

	res, err = h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !reflect.DeepEqual(res.RecordIDs, ids[2:4]) || res.Deferred != 1 {
		t.Errorf("second result = %+v, want records %v with 1 deferred", res, ids[2:4])
	}
	if s := h.stats(t); s.Dreamed != 4 || s.Undreamed != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRun_OverlappingRunIsRefused(t *testing.T) {
	h := newHarness(t, 0, ok(dreamText, 1, 1), ok("insight", 1, 1))
	ids := h.remember(t, 3)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.gen.during = func(call int) {
		if call == 1 {
			close(entered)
			<-release
		}
	}

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.orch.Run(context.Background())
		done <- outcome{res, err}
	}()

	<-entered
	if p := h.orch.Phase(); p != PhaseGenerating {
		t.Errorf("phase during generation = %v", p)
	}
	if _, err := h.orch.Run(context.Background()); !errors.Is(err, ErrCycleRunning) {
		t.Errorf("overlapping Run err = %v, want ErrCycleRunning", err)
	}
	close(release)

	first := <-done
	if first.err != nil {
		t.Fatalf("first Run: %v", first.err)
	}
	if !reflect.DeepEqual(first.res.RecordIDs, ids) || first.res.Marked != 3 {
		t.Errorf("first result = %+v", first.res)
	}
	if n := len(h.sink.Names()); n != 1 {
		t.Errorf("artifacts = %d, want 1", n)
	}
	if n := len(h.gen.Calls()); n != 2 {
		t.Errorf("generation calls = %d, want 2", n)
	}
	if h.ledger.UsedToday() != 4 {
		t.Errorf("used = %d, want 4", h.ledger.UsedToday())
	}

	// The lock is released once the cycle ends.
	res, err := h.orch.Run(context.Background())
	if err != nil || res.Outcome != OutcomeNoop {
		t.Errorf("Run after cycle = %+v, %v; want noop", res, err)
	}
}

func TestRun_NoGeneratorWithPendingRecords(t *testing.T) {
	h := newHarness(t, 0)
	h.remember(t, 1)

	if _, err := h.orch.Run(context.Background()); !errors.Is(err, ErrNoGenerator) {
		t.Fatalf("err = %v, want ErrNoGenerator", err)
	}
	if s := h.stats(t); s.Undreamed != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRun_EmptyDreamAborts(t *testing.T) {
	h := newHarness(t, 0, ok("   ", 3, 0))
	h.remember(t, 1)

	if _, err := h.orch.Run(context.Background()); !errors.Is(err, ErrEmptyDream) {
		t.Fatalf("err = %v, want ErrEmptyDream", err)
	}
	if len(h.sink.Names()) != 0 || h.stats(t).Undreamed != 1 {
		t.Error("an empty dream committed state")
	}
}

func TestRun_CorruptedRecordsStillConsumed(t *testing.T) {
	h := newHarness(t, 0, ok(dreamText, 1, 1), ok("insight", 1, 1))
	h.remember(t, 1)

	// A record sealed under another key reads back as a sentinel.
	otherKey, _ := cipher.GenerateKey()
	otherCipher, err := cipher.New(otherKey)
	if err != nil {
		t.Fatal(err)
	}
	other, err := memory.OpenDeep(h.dbPath, otherCipher, h.clock, nil)
	if err != nil {
		t.Fatalf("OpenDeep: %v", err)
	}
	defer other.Close()
	if _, err := other.Store(map[string]any{"event": "sealed elsewhere"}, "interaction"); err != nil {
		t.Fatal(err)
	}

	res, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Corrupted != 1 || res.Marked != 2 {
		t.Errorf("result = %+v, want 1 corrupted of 2 marked", res)
	}
	if !strings.Contains(h.gen.Calls()[0].System, memory.CategoryCorrupted) {
		t.Error("the corrupted sentinel was not shown to the generator")
	}
	if s := h.stats(t); s.Undreamed != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{}, Options{}); err == nil {
		t.Error("expected an error for missing collaborators")
	}
}
