// Package dream runs the dream cycle: collect undreamed deep memories,
// generate a dream from them, persist it, distill an insight, and only
// then mark the memories dreamed.
package dream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/roguectrl/electricsheep/internal/adapter"
	"github.com/roguectrl/electricsheep/internal/budget"
	"github.com/roguectrl/electricsheep/internal/clock"
	ctxbuild "github.com/roguectrl/electricsheep/internal/context"
	"github.com/roguectrl/electricsheep/internal/journal"
	"github.com/roguectrl/electricsheep/internal/logging"
	"github.com/roguectrl/electricsheep/internal/memory"
	"github.com/roguectrl/electricsheep/internal/retry"
	"github.com/roguectrl/electricsheep/internal/state"
)

// State document keys written by a cycle.
const (
	KeyLastDream        = "last_dream"
	KeyTotalDreams      = "total_dreams"
	KeyLatestDreamTitle = "latest_dream_title"
	KeyLatestDreamID    = "latest_dream_id"
	KeyLatestDreamPath  = "latest_dream_path"
)

// Defaults for Options.
const (
	DefaultMaxOutputTokens  = 2000
	DefaultInsightMaxTokens = 150
)

var (
	// ErrNoGenerator is returned when records are waiting but no provider
	// is configured.
	ErrNoGenerator = errors.New("dream: no generation provider configured")

	// ErrEmptyDream is returned when the provider answered with no text.
	ErrEmptyDream = errors.New("dream: provider returned an empty dream")

	// ErrCycleRunning is returned when Run is called while another cycle
	// is in progress on the same Orchestrator.
	ErrCycleRunning = errors.New("dream: a cycle is already running")
)

// DeepStore is the part of the record store a cycle needs.
type DeepStore interface {
	RetrieveUndreamed() ([]memory.Record, error)
	MarkDreamed(ids []int64) (int, error)
}

// InsightSink receives the distilled insight of a cycle. It is optional.
type InsightSink interface {
	Store(ctx context.Context, body string, metadata map[string]any) error
}

// Options tune a cycle.
type Options struct {
	Model            string
	MaxOutputTokens  int
	InsightMaxTokens int
	MaxPromptTokens  int
	Retry            retry.Policy
}

// Deps are the collaborators of an Orchestrator. Generator and Insights
// may be nil; the rest are required.
type Deps struct {
	Deep      DeepStore
	Generator adapter.Generator
	Ledger    *budget.Ledger
	Sink      journal.Sink
	Insights  InsightSink
	State     *state.Store
	Clock     clock.Clock
	Logger    *logging.Logger
	Counter   ctxbuild.Counter
}

// Result describes a finished cycle.
type Result struct {
	Outcome   Outcome `json:"outcome"`
	CycleID   string  `json:"cycle_id,omitempty"`
	Title     string  `json:"title,omitempty"`
	Narrative string  `json:"-"`
	Location  string  `json:"location,omitempty"`
	Insight   string  `json:"insight,omitempty"`
	RecordIDs []int64 `json:"record_ids,omitempty"`
	Corrupted int     `json:"corrupted,omitempty"`
	Marked    int     `json:"marked,omitempty"`
	Deferred  int     `json:"deferred,omitempty"`
	Truncated bool    `json:"prompt_truncated,omitempty"`
}

// Orchestrator runs dream cycles, one at a time. A Run that overlaps
// another returns ErrCycleRunning.
type Orchestrator struct {
	deep     DeepStore
	gen      adapter.Generator
	ledger   *budget.Ledger
	sink     journal.Sink
	insights InsightSink
	state    *state.Store
	clock    clock.Clock
	log      *logging.Logger
	builder  *ctxbuild.Builder
	opts     Options

	// OnPhase, if set, is called on every phase transition.
	OnPhase func(Phase)

	running sync.Mutex

	mu    sync.Mutex
	phase Phase
}

// New validates deps and returns an Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Deep == nil:
		return nil, errors.New("dream: deep store is required")
	case deps.Ledger == nil:
		return nil, errors.New("dream: budget ledger is required")
	case deps.Sink == nil:
		return nil, errors.New("dream: artifact sink is required")
	case deps.State == nil:
		return nil, errors.New("dream: state store is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if opts.InsightMaxTokens <= 0 {
		opts.InsightMaxTokens = DefaultInsightMaxTokens
	}
	if opts.MaxPromptTokens <= 0 {
		opts.MaxPromptTokens = ctxbuild.DefaultMaxPromptTokens
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultPolicy()
	}

	return &Orchestrator{
		deep:     deps.Deep,
		gen:      deps.Generator,
		ledger:   deps.Ledger,
		sink:     deps.Sink,
		insights: deps.Insights,
		state:    deps.State,
		clock:    deps.Clock,
		log:      logging.OrNop(deps.Logger).With("component", "dream"),
		builder:  ctxbuild.NewBuilder(nil, deps.Counter),
		opts:     opts,
	}, nil
}

// Phase returns the phase of the running cycle, or PhaseIdle.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) enter(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.log.Debug("phase", "phase", p.String())
	if o.OnPhase != nil {
		o.OnPhase(p)
	}
}

// Run executes one cycle. Records are marked dreamed only after their
// artifact has been written; any error returned before FINALIZING means
// nothing was committed. A cycle with no undreamed records returns
// OutcomeNoop and a nil error. Records that do not fit the prompt budget
// stay undreamed and are counted in Result.Deferred.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	if !o.running.TryLock() {
		return Result{}, ErrCycleRunning
	}
	defer o.running.Unlock()
	defer o.enter(PhaseIdle)

	o.enter(PhaseCollecting)
	records, err := o.deep.RetrieveUndreamed()
	if err != nil {
		return Result{}, fmt.Errorf("dream: collect: %w", err)
	}
	if len(records) == 0 {
		o.log.Info("no undreamed memories, dreamless night")
		if err := o.state.Update(func(doc state.Document) error {
			doc.SetTime(KeyLastDream, o.clock.Now())
			return nil
		}); err != nil {
			return Result{Outcome: OutcomeNoop}, fmt.Errorf("dream: save state: %w", err)
		}
		return Result{Outcome: OutcomeNoop}, nil
	}

	now := o.clock.Now()
	res := Result{
		CycleID: ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
	}
	log := o.log.With("cycle_id", res.CycleID)

	o.enter(PhaseGenerating)
	if o.gen == nil {
		return Result{}, ErrNoGenerator
	}

	// Only records that made it into the prompt are carried forward.
	prompt := o.builder.DreamPrompt(records, o.opts.MaxPromptTokens)
	records = records[:prompt.Records]
	res.Deferred = prompt.Deferred
	res.Truncated = prompt.Truncated
	res.RecordIDs = make([]int64, 0, len(records))
	for _, r := range records {
		res.RecordIDs = append(res.RecordIDs, r.ID)
		if r.Corrupted() {
			res.Corrupted++
		}
	}
	log.Info("collected undreamed memories", "count", len(records), "deferred", res.Deferred, "corrupted", res.Corrupted)
	if prompt.Truncated {
		log.Warn("oldest record exceeds the prompt budget, sent truncated", "max_tokens", o.opts.MaxPromptTokens, "record_id", res.RecordIDs[0])
	}
	text, err := o.generate(ctx, log, adapter.Request{
		System:    dreamSystemPrompt(prompt.Body),
		Prompt:    dreamInstruction,
		Model:     o.opts.Model,
		MaxTokens: o.opts.MaxOutputTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("dream: generate: %w", err)
	}
	title, narrative := parseDream(text)
	if narrative == "" && title == UntitledDream {
		return Result{}, ErrEmptyDream
	}
	res.Title, res.Narrative = title, narrative

	o.enter(PhasePersisting)
	d := journal.Dream{Title: title, Narrative: narrative, Date: now}
	loc, err := o.sink.WriteArtifact(journal.NameHint(now, title), journal.RenderMarkdown(d))
	if err != nil {
		return Result{}, fmt.Errorf("dream: write artifact: %w", err)
	}
	res.Location = loc
	log.Info("dream written", "title", title, "location", loc)

	o.enter(PhaseDistilling)
	res.Insight = o.distill(ctx, log, res)

	o.enter(PhaseFinalizing)
	marked, err := o.deep.MarkDreamed(res.RecordIDs)
	if err != nil {
		return Result{}, fmt.Errorf("dream: mark dreamed: %w", err)
	}
	res.Marked = marked
	res.Outcome = OutcomeDreamed

	if err := o.state.Update(func(doc state.Document) error {
		doc.SetTime(KeyLastDream, o.clock.Now())
		doc[KeyTotalDreams] = doc.Int(KeyTotalDreams) + 1
		doc[KeyLatestDreamTitle] = title
		doc[KeyLatestDreamID] = res.CycleID
		doc[KeyLatestDreamPath] = loc
		return nil
	}); err != nil {
		// The dream is committed; only the counters are stale.
		log.Error("dream committed but state not saved", "error", err)
	}

	log.Info("dream cycle complete", "marked", marked, "insight", res.Insight != "")
	return res, nil
}

// generate places one metered, retried generation call.
func (o *Orchestrator) generate(ctx context.Context, log *logging.Logger, req adapter.Request) (string, error) {
	return retry.Do(ctx, o.opts.Retry, o.clock, log, retryable,
		func(ctx context.Context, attempt int) (string, error) {
			return budget.Call(ctx, o.ledger, func(ctx context.Context) (string, *budget.Usage, error) {
				resp, err := o.gen.Generate(ctx, req)
				if err != nil {
					return "", nil, err
				}
				if resp.Usage == nil {
					return resp.Text, nil, nil
				}
				return resp.Text, &budget.Usage{
					InputUnits:  resp.Usage.InputTokens,
					OutputUnits: resp.Usage.OutputTokens,
				}, nil
			})
		})
}

// retryable retries transient provider failures only. A refused budget
// will still be refused a second later.
func retryable(err error) bool {
	var exceeded *budget.ExceededError
	if errors.As(err, &exceeded) {
		return false
	}
	return adapter.IsTransient(err)
}

// distill derives the insight and forwards it. Every failure is logged and
// absorbed; the result is "" when there is no insight.
func (o *Orchestrator) distill(ctx context.Context, log *logging.Logger, res Result) string {
	text, err := o.generate(ctx, log, adapter.Request{
		System:    distillSystemPrompt,
		Prompt:    distillPrompt(res.Title, res.Narrative),
		Model:     o.opts.Model,
		MaxTokens: o.opts.InsightMaxTokens,
	})
	if err != nil {
		log.Warn("distillation failed, continuing without insight", "error", err)
		return ""
	}
	insight := cleanInsight(text)
	if insight == "" {
		log.Warn("distillation returned no insight")
		return ""
	}

	if o.insights == nil {
		return insight
	}
	meta := map[string]any{
		"dream_id":    res.CycleID,
		"dream_title": res.Title,
		"created_at":  o.clock.Now().UTC().Format(time.RFC3339),
	}
	if err := o.insights.Store(ctx, insight, meta); err != nil {
		log.Warn("could not store insight", "error", err)
	}
	return insight
}
