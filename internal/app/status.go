package app

import (
	"time"

	"github.com/roguectrl/electricsheep/internal/dream"
	"github.com/roguectrl/electricsheep/internal/memory"
)

// BudgetStatus is today's budget ledger.
type BudgetStatus struct {
	Date      string `json:"date"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Unbounded bool   `json:"unbounded"`
}

// Status is the waking-side view of the agent. It never includes deep
// record content.
type Status struct {
	Agent         string       `json:"agent"`
	Provider      string       `json:"provider"`
	Model         string       `json:"model,omitempty"`
	Dreaming      bool         `json:"dreaming_enabled"`
	Deep          memory.Stats `json:"deep_memory"`
	WorkingCount  int          `json:"working_memory_entries"`
	RememberCount int          `json:"remember_count"`
	LastRemember  *time.Time   `json:"last_remember,omitempty"`
	TotalDreams   int          `json:"total_dreams"`
	LastDream     *time.Time   `json:"last_dream,omitempty"`
	LatestDream   string       `json:"latest_dream_title,omitempty"`
	LatestPath    string       `json:"latest_dream_path,omitempty"`
	Budget        BudgetStatus `json:"budget"`
	KeyFile       string       `json:"key_file"`
	DataDir       string       `json:"data_dir"`
}

// Budget reports today's ledger.
func (a *App) Budget() BudgetStatus {
	remaining, unbounded := a.Ledger.RemainingToday()
	return BudgetStatus{
		Date:      a.Ledger.Today(),
		Used:      a.Ledger.UsedToday(),
		Limit:     a.Ledger.Limit(),
		Remaining: remaining,
		Unbounded: unbounded,
	}
}

// Status gathers counters from every store.
func (a *App) Status() (Status, error) {
	stats, err := a.Deep.Stats()
	if err != nil {
		return Status{}, err
	}
	doc := a.State.Load()

	st := Status{
		Agent:         a.Config.Agent.Name,
		Provider:      a.Config.Agent.Provider,
		Model:         a.Config.Agent.Model,
		Dreaming:      a.Generator != nil,
		Deep:          stats,
		WorkingCount:  len(a.Working.Load()),
		RememberCount: doc.Int(KeyRememberCount),
		TotalDreams:   doc.Int(dream.KeyTotalDreams),
		LatestDream:   doc.String(dream.KeyLatestDreamTitle),
		LatestPath:    doc.String(dream.KeyLatestDreamPath),
		Budget:        a.Budget(),
		KeyFile:       a.Config.Paths.KeyFile,
		DataDir:       a.Config.Paths.DataDir,
	}
	if a.Generator != nil {
		st.Model = a.Generator.Info().Name
	}
	if t, ok := doc.Time(KeyLastRemember); ok {
		st.LastRemember = &t
	}
	if t, ok := doc.Time(dream.KeyLastDream); ok {
		st.LastDream = &t
	}
	return st, nil
}
