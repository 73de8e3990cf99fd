package journal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is one artifact found on disk.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Title   string    `json:"title"`
	Date    string    `json:"date,omitempty"`
	ModTime time.Time `json:"modified"`
	Dream   Dream     `json:"-"`
}

// List returns the artifacts in dir, newest first. A missing directory is
// an empty journal.
func List(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}

	var entries []Entry
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, Extension) || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("journal: read %s: %w", name, err)
		}
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("journal: stat %s: %w", name, err)
		}
		d := ParseMarkdown(string(data))
		e := Entry{
			Name:    strings.TrimSuffix(name, Extension),
			Path:    path,
			Title:   d.Title,
			ModTime: info.ModTime(),
			Dream:   d,
		}
		if !d.Date.IsZero() {
			e.Date = d.Date.Format(DateLayout)
		}
		entries = append(entries, e)
	}

	// Names start with the date, so name order is date order; same-day
	// artifacts fall back to modification time.
	sort.SliceStable(entries, func(i, j int) bool {
		di, dj := entries[i].datePrefix(), entries[j].datePrefix()
		if di != dj {
			return di > dj
		}
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.After(entries[j].ModTime)
		}
		return entries[i].Name > entries[j].Name
	})
	return entries, nil
}

func (e Entry) datePrefix() string {
	if e.Date != "" {
		return e.Date
	}
	if len(e.Name) >= len(DateLayout) {
		return e.Name[:len(DateLayout)]
	}
	return e.Name
}

// Latest returns the newest artifact, or false if there is none.
func Latest(dir string) (Entry, bool, error) {
	entries, err := List(dir)
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[0], true, nil
}
