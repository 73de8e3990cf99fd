package journal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Extension is the file extension of artifacts written by FileSink.
const Extension = ".md"

// maxCollisions bounds the -2, -3, ... suffix search.
const maxCollisions = 1000

// Sink receives finished artifacts. WriteArtifact returns where the
// artifact was written. An error means nothing durable was written.
type Sink interface {
	WriteArtifact(nameHint, body string) (location string, err error)
}

// FileSink writes each artifact to <dir>/<name_hint>.md. It never
// overwrites: a taken name gets a -2, -3, ... suffix. Each file is written
// to a temporary sibling, synced, then linked into place, so a reader
// never sees a partial artifact.
type FileSink struct {
	dir string
}

// NewFileSink returns a sink rooted at dir. The directory is created on
// first write.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Dir returns the artifact directory.
func (s *FileSink) Dir() string { return s.dir }

func (s *FileSink) WriteArtifact(nameHint, body string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("journal: create dir: %w", err)
	}
	nameHint = strings.TrimSuffix(filepath.Base(nameHint), Extension)
	if nameHint == "" || nameHint == "." {
		nameHint = "untitled"
	}

	tmp, err := os.CreateTemp(s.dir, "."+nameHint+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("journal: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("journal: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("journal: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("journal: close: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return "", fmt.Errorf("journal: chmod: %w", err)
	}

	for i := 1; i <= maxCollisions; i++ {
		name := nameHint
		if i > 1 {
			name = fmt.Sprintf("%s-%d", nameHint, i)
		}
		target := filepath.Join(s.dir, name+Extension)

		err := os.Link(tmpPath, target)
		if err == nil {
			return target, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return "", fmt.Errorf("journal: link %s: %w", target, err)
	}
	return "", fmt.Errorf("journal: no free name for %q after %d attempts", nameHint, maxCollisions)
}

// MemorySink keeps artifacts in memory. Fail, when set, is returned by
// every write.
type MemorySink struct {
	mu        sync.Mutex
	artifacts map[string]string
	Fail      error
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{artifacts: map[string]string{}}
}

func (m *MemorySink) WriteArtifact(nameHint, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return "", m.Fail
	}
	name := nameHint
	for i := 2; ; i++ {
		if _, taken := m.artifacts[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s-%d", nameHint, i)
	}
	m.artifacts[name] = body
	return "mem://" + name, nil
}

// Artifacts returns a copy of everything written, keyed by name.
func (m *MemorySink) Artifacts() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.artifacts))
	for k, v := range m.artifacts {
		out[k] = v
	}
	return out
}

// Names returns the sorted artifact names.
func (m *MemorySink) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.artifacts))
	for k := range m.artifacts {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
