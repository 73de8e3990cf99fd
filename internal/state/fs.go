package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FS is the set of file primitives the state layer needs. Rename is the only
// operation assumed to be atomic. Tests substitute MemFS.
type FS interface {
	Exists(path string) (bool, error)
	ReadFile(path string) ([]byte, error)
	// WriteFile writes data and flushes it to stable storage before
	// returning.
	WriteFile(path string, data []byte, perm os.FileMode) error
	Rename(oldPath, newPath string) error
	Remove(path string) error
}

// TempSuffix is appended to a target path to form its temporary sibling.
const TempSuffix = ".tmp"

// WriteAtomic replaces path with data: write to path+".tmp", then rename
// over path. A reader of path sees either the old content or the new
// content, never a mix. The temporary file is removed if any step fails.
func WriteAtomic(fsys FS, path string, data []byte, perm os.FileMode) error {
	temporaryPath := path + TempSuffix

	if err := fsys.WriteFile(temporaryPath, data, perm); err != nil {
		_ = fsys.Remove(temporaryPath)
		return fmt.Errorf("writing %s: %w", temporaryPath, err)
	}
	if err := fsys.Rename(temporaryPath, path); err != nil {
		_ = fsys.Remove(temporaryPath)
		return fmt.Errorf("renaming %s: %w", temporaryPath, err)
	}
	return nil
}

// OSFS is the real filesystem.
type OSFS struct{}

func (OSFS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes, syncs, and closes, in that order. Parent directories
// are created as needed.
func (OSFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (OSFS) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (OSFS) Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// MemFS is an in-memory FS for tests. FailRename makes the next Rename
// calls fail after the temporary file has been written, which is the same
// observable state as a crash between write and rename.
type MemFS struct {
	mu         sync.Mutex
	files      map[string][]byte
	FailRename error
	// KeepTempOnFailure leaves the temporary file behind when a write or
	// rename fails, as a killed process would.
	KeepTempOnFailure bool
}

// NewMemFS returns an empty MemFS.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemFS) WriteFile(path string, data []byte, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.files[path] = buf
	return nil
}

func (m *MemFS) Rename(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRename != nil {
		return m.FailRename
	}
	data, ok := m.files[oldPath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldPath, Err: fs.ErrNotExist}
	}
	m.files[newPath] = data
	delete(m.files, oldPath)
	return nil
}

func (m *MemFS) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.KeepTempOnFailure {
		return nil
	}
	delete(m.files, path)
	return nil
}

// Put seeds a file directly, bypassing WriteAtomic.
func (m *MemFS) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), data...)
}
