package memory

import "fmt"

// RememberResult is what the waking side gets back from Remember. It never
// includes the deep record's content.
type RememberResult struct {
	Entry  Entry `json:"entry"`
	DeepID int64 `json:"deep_id"`
	Stats  Stats `json:"deep_stats"`
}

// Remember stores one experience in both systems: fullContext encrypted in
// the deep store, then the summary in working memory. A nil fullContext
// stores the summary alone. If the deep write fails, working memory is left
// untouched.
func Remember(working *WorkingMemory, deep *DeepStore, summary string, fullContext map[string]any, category string) (RememberResult, error) {
	var res RememberResult
	if summary == "" {
		return res, fmt.Errorf("remember: summary is required")
	}
	if fullContext == nil {
		fullContext = map[string]any{"summary": summary}
	}
	if category == "" {
		category = DefaultCategory
	}

	id, err := deep.Store(fullContext, category)
	if err != nil {
		return res, fmt.Errorf("remember: %w", err)
	}
	res.DeepID = id

	entry, err := working.Add(summary, category, nil)
	if err != nil {
		return res, fmt.Errorf("remember: %w", err)
	}
	res.Entry = entry

	stats, err := deep.Stats()
	if err != nil {
		return res, fmt.Errorf("remember: %w", err)
	}
	res.Stats = stats
	return res, nil
}
