// Package journal persists dream artifacts as markdown files and reads
// them back for listing and export.
package journal

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DateLayout is the calendar-date format used in artifact names and bodies.
const DateLayout = "2006-01-02"

// maxSlugRunes bounds the title part of an artifact name.
const maxSlugRunes = 40

// Dream is the content of one artifact.
type Dream struct {
	Title     string
	Narrative string
	Date      time.Time
}

// Slug turns the first 40 runes of title into a filename-safe fragment.
// Spaces and separators become underscores; other punctuation is dropped.
func Slug(title string) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) > maxSlugRunes {
		runes = runes[:maxSlugRunes]
	}
	var b strings.Builder
	for _, r := range runes {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '/', r == '\\', r == '.', r == ':':
			b.WriteRune('_')
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		return "untitled"
	}
	return slug
}

// NameHint is "<YYYY-MM-DD>_<slug>" for the artifact of a dream.
func NameHint(date time.Time, title string) string {
	return date.UTC().Format(DateLayout) + "_" + Slug(title)
}

// RenderMarkdown renders the artifact body.
func RenderMarkdown(d Dream) string {
	return fmt.Sprintf("# %s\n*Dreamed: %s*\n\n%s\n", d.Title, d.Date.UTC().Format(DateLayout), strings.TrimSpace(d.Narrative))
}

// ParseMarkdown reads an artifact body back. Missing parts come back
// empty rather than as an error.
func ParseMarkdown(body string) Dream {
	var d Dream
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return d
	}
	d.Title = strings.TrimSpace(strings.TrimLeft(lines[0], "# "))

	rest := lines[1:]
	if len(rest) > 0 {
		stamp := strings.TrimSpace(rest[0])
		if strings.HasPrefix(stamp, "*Dreamed:") && strings.HasSuffix(stamp, "*") {
			date := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(stamp, "*Dreamed:"), "*"))
			if t, err := time.Parse(DateLayout, date); err == nil {
				d.Date = t
			}
			rest = rest[1:]
		}
	}
	d.Narrative = strings.TrimSpace(strings.Join(rest, "\n"))
	return d
}
