// Package app wires configuration into the collaborators both host
// surfaces (CLI and MCP server) share.
package app

import (
	"fmt"
	"time"

	"github.com/roguectrl/electricsheep/internal/adapter"
	"github.com/roguectrl/electricsheep/internal/budget"
	"github.com/roguectrl/electricsheep/internal/cipher"
	"github.com/roguectrl/electricsheep/internal/clock"
	"github.com/roguectrl/electricsheep/internal/config"
	ctxbuild "github.com/roguectrl/electricsheep/internal/context"
	"github.com/roguectrl/electricsheep/internal/dream"
	"github.com/roguectrl/electricsheep/internal/journal"
	"github.com/roguectrl/electricsheep/internal/logging"
	"github.com/roguectrl/electricsheep/internal/memory"
	"github.com/roguectrl/electricsheep/internal/retry"
	"github.com/roguectrl/electricsheep/internal/state"
)

// State keys written by the waking side.
const (
	KeyLastRemember  = "last_remember"
	KeyRememberCount = "remember_count"
)

// ProviderNone disables generation.
const ProviderNone = "none"

// App holds the opened collaborators. Generator is nil when no provider is
// usable; everything but a dream cycle still works.
type App struct {
	Config    config.Config
	Log       *logging.Logger
	Clock     clock.Clock
	KeySource cipher.KeySource
	Deep      *memory.DeepStore
	Working   *memory.WorkingMemory
	State     *state.Store
	Ledger    *budget.Ledger
	Generator adapter.Generator
	Sink      *journal.FileSink
	Counter   ctxbuild.Counter
	Dreamer   *dream.Orchestrator
}

// Overrides replace collaborators Open would otherwise build. Zero fields
// are ignored.
type Overrides struct {
	Clock     clock.Clock
	Generator adapter.Generator
	Counter   ctxbuild.Counter
}

// Open builds an App from cfg. The caller must Close it.
func Open(cfg config.Config, log *logging.Logger) (*App, error) {
	return OpenWith(cfg, log, Overrides{})
}

// OpenWith is Open with injected collaborators.
func OpenWith(cfg config.Config, log *logging.Logger, o Overrides) (*App, error) {
	log = logging.OrNop(log)
	cfg.Paths.Resolve()

	a := &App{Config: cfg, Log: log, Clock: o.Clock}
	if a.Clock == nil {
		a.Clock = clock.Real()
	}

	key, source, err := cipher.LoadOrCreateKey(cfg.Dream.EncryptionKey, cfg.Paths.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("app: key: %w", err)
	}
	a.KeySource = source
	if source == cipher.KeySourceGenerated {
		log.Warn("generated a new dream key; back it up, memories are unreadable without it", "path", cfg.Paths.KeyFile)
	}
	c, err := cipher.New(key)
	if err != nil {
		return nil, fmt.Errorf("app: cipher: %w", err)
	}

	a.Deep, err = memory.OpenDeep(cfg.Paths.DeepDB, c, a.Clock, log)
	if err != nil {
		return nil, fmt.Errorf("app: deep store: %w", err)
	}

	a.State = state.New(cfg.Paths.StateFile, state.OSFS{}, log)
	a.Working = memory.NewWorkingMemory(cfg.Paths.WorkingFile, state.OSFS{}, cfg.Memory.WorkingMaxEntries, a.Clock, log)
	a.Ledger = budget.New(a.State, cfg.Budget.DailyTokenLimit, a.Clock, log)
	a.Sink = journal.NewFileSink(cfg.Paths.DreamsDir)

	a.Counter = o.Counter
	if a.Counter == nil {
		counter, err := ctxbuild.NewCounter()
		if err != nil {
			log.Debug("tiktoken unavailable, estimating tokens", "error", err)
		}
		a.Counter = counter
	}

	a.Generator = o.Generator
	if a.Generator == nil {
		a.Generator, err = newGenerator(cfg, log)
		if err != nil {
			a.Deep.Close()
			return nil, err
		}
	}

	a.Dreamer, err = dream.New(dream.Deps{
		Deep:      a.Deep,
		Generator: a.Generator,
		Ledger:    a.Ledger,
		Sink:      a.Sink,
		Insights:  a.Working,
		State:     a.State,
		Clock:     a.Clock,
		Logger:    log,
		Counter:   a.Counter,
	}, dream.Options{
		Model:            cfg.Agent.Model,
		MaxOutputTokens:  cfg.Dream.MaxOutputTokens,
		InsightMaxTokens: cfg.Dream.InsightMaxTokens,
		MaxPromptTokens:  cfg.Dream.MaxPromptTokens,
		Retry: retry.Policy{
			MaxAttempts: cfg.Dream.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Dream.BaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Dream.MaxDelayMS) * time.Millisecond,
			Multiplier:  2,
		},
	})
	if err != nil {
		a.Deep.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	return a, nil
}

// newGenerator returns nil without error when the provider needs an API
// key that is not configured.
func newGenerator(cfg config.Config, log *logging.Logger) (adapter.Generator, error) {
	provider := cfg.Agent.Provider
	switch provider {
	case "", ProviderNone:
		return nil, nil
	case adapter.ProviderClaude, adapter.ProviderOpenAI, adapter.ProviderGemini:
		if cfg.APIKey(provider) == "" {
			log.Info("no API key configured, dreaming disabled", "provider", provider)
			return nil, nil
		}
	case adapter.ProviderOllama:
	default:
		return nil, fmt.Errorf("app: unknown provider %q", provider)
	}
	gen, err := adapter.New(provider, cfg.Agent.Model, cfg.APIKey(provider), cfg.Agent.OllamaHost)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return gen, nil
}

// Close releases the deep store and flushes the logger.
func (a *App) Close() error {
	err := a.Deep.Close()
	a.Log.Sync()
	return err
}

// Remember stores one experience in both memory systems and stamps the
// waking-side counters.
func (a *App) Remember(summary string, fullContext map[string]any, category string) (memory.RememberResult, error) {
	res, err := memory.Remember(a.Working, a.Deep, summary, fullContext, category)
	if err != nil {
		return res, err
	}
	if err := a.State.Update(func(doc state.Document) error {
		doc.SetTime(KeyLastRemember, a.Clock.Now())
		doc[KeyRememberCount] = doc.Int(KeyRememberCount) + 1
		return nil
	}); err != nil {
		a.Log.Warn("remember counters not saved", "error", err)
	}
	return res, nil
}

// WorkingContext renders the most recent working memory within the
// configured token budget.
func (a *App) WorkingContext(category string) string {
	entries := a.Working.List(0, category)
	return ctxbuild.BuildWorkingContext(entries, a.Config.Memory.ContextTokens, a.Counter)
}
