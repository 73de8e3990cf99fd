package journal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileSink_WritesArtifact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dreams")
	sink := NewFileSink(dir)

	loc, err := sink.WriteArtifact("2026-04-09_Salt", "# Salt\n")
	if err != nil {
		t.Fatalf("WriteArtifact: %v", err)
	}
	if loc != filepath.Join(dir, "2026-04-09_Salt.md") {
		t.Errorf("location = %q", loc)
	}
	data, err := os.ReadFile(loc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "# Salt\n" {
		t.Errorf("content = %q", data)
	}

	des, _ := os.ReadDir(dir)
	for _, de := range des {
		if strings.HasSuffix(de.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", de.Name())
		}
	}
}

func TestFileSink_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	var locs []string
	for _, body := range []string{"first", "second", "third"} {
		loc, err := sink.WriteArtifact("2026-04-09_Same", body)
		if err != nil {
			t.Fatalf("WriteArtifact: %v", err)
		}
		locs = append(locs, loc)
	}

	wantNames := []string{"2026-04-09_Same.md", "2026-04-09_Same-2.md", "2026-04-09_Same-3.md"}
	for i, loc := range locs {
		if filepath.Base(loc) != wantNames[i] {
			t.Errorf("write %d went to %s, want %s", i, filepath.Base(loc), wantNames[i])
		}
	}
	if data, _ := os.ReadFile(locs[0]); string(data) != "first" {
		t.Errorf("first artifact was overwritten: %q", data)
	}
}

func TestFileSink_SanitisesHint(t *testing.T) {
	dir := t.TempDir()
	loc, err := NewFileSink(dir).WriteArtifact("../../escape.md", "x")
	if err != nil {
		t.Fatalf("WriteArtifact: %v", err)
	}
	if filepath.Dir(loc) != dir {
		t.Errorf("artifact escaped the sink directory: %s", loc)
	}
}

func TestMemorySink(t *testing.T) {
	m := NewMemorySink()
	if _, err := m.WriteArtifact("a", "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.WriteArtifact("a", "2"); err != nil {
		t.Fatal(err)
	}
	if got := m.Names(); len(got) != 2 || got[0] != "a" || got[1] != "a-2" {
		t.Errorf("names = %v", got)
	}

	m.Fail = errors.New("disk full")
	if _, err := m.WriteArtifact("b", "3"); err == nil {
		t.Error("expected injected failure")
	}
	if len(m.Artifacts()) != 2 {
		t.Error("failed write was recorded")
	}
}

func TestList_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)
	for _, d := range []Dream{
		{Title: "Older", Narrative: "one", Date: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{Title: "Newest", Narrative: "three", Date: time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC)},
		{Title: "Middle", Narrative: "two", Date: time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)},
	} {
		if _, err := sink.WriteArtifact(NameHint(d.Date, d.Title), RenderMarkdown(d)); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var titles []string
	for _, e := range entries {
		titles = append(titles, e.Title)
	}
	if strings.Join(titles, ",") != "Newest,Middle,Older" {
		t.Errorf("titles = %v", titles)
	}
	if entries[0].Date != "2026-04-09" || entries[0].Dream.Narrative != "three" {
		t.Errorf("entry = %+v", entries[0])
	}

	latest, ok, err := Latest(dir)
	if err != nil || !ok || latest.Title != "Newest" {
		t.Errorf("Latest = %+v, %v, %v", latest, ok, err)
	}
}

func TestList_MissingDir(t *testing.T) {
	entries, err := List(filepath.Join(t.TempDir(), "nope"))
	if err != nil || len(entries) != 0 {
		t.Errorf("List = %v, %v", entries, err)
	}
	if _, ok, err := Latest(filepath.Join(t.TempDir(), "nope")); ok || err != nil {
		t.Errorf("Latest on missing dir: ok=%v err=%v", ok, err)
	}
}
