// Package fsutil abstracts the output directory that exports and plots are
// written into, so writers can be tested without touching disk.
package fsutil

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing/fstest"
)

// FileSystem is what the artifact writers need: a directory to put files
// in and a way to stream each file.
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	Create(name string) (io.WriteCloser, error)
}

// OSFileSystem writes to disk.
type OSFileSystem struct{}

func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (OSFileSystem) Create(name string) (io.WriteCloser, error) { return os.Create(name) }

// MemoryFileSystem keeps written artifacts in an fstest.MapFS. A file
// created through Create is empty until its writer is closed.
type MemoryFileSystem struct {
	mu    sync.Mutex
	files fstest.MapFS
}

// NewMemoryFileSystem returns an empty in-memory filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{files: fstest.MapFS{}}
}

// key maps an OS-style path onto an fs.ValidPath.
func key(op, name string) (string, error) {
	k := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(name)), "/")
	if !fs.ValidPath(k) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return k, nil
}

func (m *MemoryFileSystem) MkdirAll(path string, perm os.FileMode) error {
	k, err := key("mkdir", path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for ; k != "."; k = parent(k) {
		if f, ok := m.files[k]; ok && !f.Mode.IsDir() {
			return &fs.PathError{Op: "mkdir", Path: path, Err: fs.ErrExist}
		}
		m.files[k] = &fstest.MapFile{Mode: fs.ModeDir | perm}
	}
	return nil
}

func parent(k string) string {
	if i := strings.LastIndexByte(k, '/'); i >= 0 {
		return k[:i]
	}
	return "."
}

func (m *MemoryFileSystem) Create(name string) (io.WriteCloser, error) {
	k, err := key("create", name)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[k] = &fstest.MapFile{Mode: 0o644}
	return &memFile{fs: m, key: k}, nil
}

// ReadFile returns a copy of the named file.
func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	k, err := key("read", name)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fs.ReadFile(m.files, k)
}

// Exists reports whether name was written or created as a directory, or
// is the parent of something that was.
func (m *MemoryFileSystem) Exists(name string) bool {
	k, err := key("stat", name)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if k == "." {
		return len(m.files) > 0
	}
	_, err = fs.Stat(m.files, k)
	return err == nil
}

// Files lists the stored regular files, sorted.
func (m *MemoryFileSystem) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k, f := range m.files {
		if !f.Mode.IsDir() {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of the current tree as an fs.FS.
func (m *MemoryFileSystem) Snapshot() fs.FS {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(fstest.MapFS, len(m.files))
	for k, f := range m.files {
		c := *f
		c.Data = bytes.Clone(f.Data)
		out[k] = &c
	}
	return out
}

type memFile struct {
	fs  *MemoryFileSystem
	key string
	buf bytes.Buffer
}

func (f *memFile) Write(p []byte) (int, error) { return f.buf.Write(p) }

func (f *memFile) Close() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.fs.files[f.key] = &fstest.MapFile{Data: bytes.Clone(f.buf.Bytes()), Mode: 0o644}
	return nil
}
