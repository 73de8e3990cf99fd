package journal

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Exporter renders a journal listing to a string in a specific format.
type Exporter interface {
	Export(entries []Entry) (string, error)
}

// registry maps format names to Exporter implementations.
var registry = map[string]Exporter{
	"markdown": &MarkdownExporter{},
	"json":     &JSONExporter{},
}

// Get returns the Exporter registered under name, and whether it was found.
func Get(name string) (Exporter, bool) {
	e, ok := registry[name]
	return e, ok
}

// ValidFormats returns the sorted list of supported export format names.
func ValidFormats() []string {
	formats := make([]string, 0, len(registry))
	for k := range registry {
		formats = append(formats, k)
	}
	sort.Strings(formats)
	return formats
}

// MarkdownExporter concatenates artifacts under one heading, newest first.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(entries []Entry) (string, error) {
	var b strings.Builder
	b.WriteString("# Dream Journal\n\n")
	if len(entries) == 0 {
		b.WriteString("_No dreams yet._\n")
		return b.String(), nil
	}
	for i, en := range entries {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "## %s\n", en.Title)
		if en.Date != "" {
			fmt.Fprintf(&b, "*Dreamed: %s*\n", en.Date)
		}
		if en.Dream.Narrative != "" {
			fmt.Fprintf(&b, "\n%s\n", en.Dream.Narrative)
		}
	}
	return b.String(), nil
}

// JSONExporter renders the listing as a JSON array.
type JSONExporter struct{}

type jsonDream struct {
	Name      string `json:"name"`
	Title     string `json:"title"`
	Date      string `json:"date,omitempty"`
	Path      string `json:"path"`
	Narrative string `json:"narrative"`
}

func (e *JSONExporter) Export(entries []Entry) (string, error) {
	out := make([]jsonDream, 0, len(entries))
	for _, en := range entries {
		out = append(out, jsonDream{
			Name:      en.Name,
			Title:     en.Title,
			Date:      en.Date,
			Path:      en.Path,
			Narrative: en.Dream.Narrative,
		})
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
