package omafs

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemFileSystem is an in-memory FileSystem for tests, generalized from the
// teacher's MemFileSystem with append/symlink/walk support.
type MemFileSystem struct {
	mu    sync.RWMutex
	files map[string]*memFile
}

type memFile struct {
	data    []byte
	mode    os.FileMode
	modTime time.Time
	isDir   bool
	link    string // symlink target, when mode&os.ModeSymlink != 0
}

func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{files: make(map[string]*memFile)}
}

func normalizePath(path string) string {
	path = filepath.Clean(path)
	if path == "." {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func (mfs *MemFileSystem) ReadFile(path string) ([]byte, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	path = normalizePath(path)
	file, exists := mfs.files[path]
	if !exists {
		return nil, &os.PathError{Op: "read", Path: path, Err: os.ErrNotExist}
	}
	if file.isDir {
		return nil, &os.PathError{Op: "read", Path: path, Err: fmt.Errorf("is a directory")}
	}
	data := make([]byte, len(file.data))
	copy(data, file.data)
	return data, nil
}

func (mfs *MemFileSystem) Stat(path string) (os.FileInfo, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	path = normalizePath(path)
	file, exists := mfs.files[path]
	if !exists {
		return nil, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
	}
	return &memFileInfo{
		name: filepath.Base(path), size: int64(len(file.data)),
		mode: file.mode, modTime: file.modTime, isDir: file.isDir,
	}, nil
}

func (mfs *MemFileSystem) Open(path string) (io.ReadCloser, error) {
	mfs.mu.RLock()
	defer mfs.mu.RUnlock()

	path = normalizePath(path)
	file, exists := mfs.files[path]
	if !exists {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	if file.isDir {
		return nil, &os.PathError{Op: "open", Path: path, Err: fmt.Errorf("is a directory")}
	}
	data := make([]byte, len(file.data))
	copy(data, file.data)
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (mfs *MemFileSystem) Create(path string) (io.WriteCloser, error) {
	path = normalizePath(path)
	return &memFileWriter{fs: mfs, path: path, buf: new(bytes.Buffer)}, nil
}

// OpenAppend returns a writer that appends to an existing file's bytes (or
// creates it), used to simulate resumable downloads in tests.
func (mfs *MemFileSystem) OpenAppend(path string) (io.WriteCloser, error) {
	path = normalizePath(path)
	mfs.mu.RLock()
	var existing []byte
	if f, ok := mfs.files[path]; ok && !f.isDir {
		existing = append(existing, f.data...)
	}
	mfs.mu.RUnlock()
	buf := bytes.NewBuffer(existing)
	return &memFileWriter{fs: mfs, path: path, buf: buf}, nil
}

func (mfs *MemFileSystem) MkdirAll(path string, perm os.FileMode) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	path = normalizePath(path)
	if path == "/" {
		return nil
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	current := ""
	for _, part := range parts {
		current = current + "/" + part
		if _, exists := mfs.files[current]; !exists {
			mfs.files[current] = &memFile{mode: perm | os.ModeDir, modTime: time.Now(), isDir: true}
		}
	}
	return nil
}

func (mfs *MemFileSystem) Remove(path string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	path = normalizePath(path)
	if _, exists := mfs.files[path]; !exists {
		return nil
	}
	delete(mfs.files, path)
	return nil
}

func (mfs *MemFileSystem) Rename(oldPath, newPath string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	oldPath = normalizePath(oldPath)
	newPath = normalizePath(newPath)

	file, exists := mfs.files[oldPath]
	if !exists {
		return &os.PathError{Op: "rename", Path: oldPath, Err: os.ErrNotExist}
	}
	mfs.files[newPath] = file
	delete(mfs.files, oldPath)
	return nil
}

func (mfs *MemFileSystem) Link(oldPath, newPath string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	oldPath = normalizePath(oldPath)
	newPath = normalizePath(newPath)

	file, exists := mfs.files[oldPath]
	if !exists {
		return &os.PathError{Op: "link", Path: oldPath, Err: os.ErrNotExist}
	}
	if file.isDir {
		return &os.PathError{Op: "link", Path: oldPath, Err: fmt.Errorf("is a directory")}
	}
	mfs.files[newPath] = &memFile{data: file.data, mode: file.mode, modTime: file.modTime}
	return nil
}

func (mfs *MemFileSystem) Symlink(oldPath, newPath string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	newPath = normalizePath(newPath)
	mfs.files[newPath] = &memFile{mode: os.ModeSymlink, modTime: time.Now(), link: oldPath}
	return nil
}

func (mfs *MemFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	root = normalizePath(root)

	mfs.mu.RLock()
	var paths []string
	for p := range mfs.files {
		if p == root || strings.HasPrefix(p, root+"/") {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	entries := make(map[string]*memFile, len(paths))
	for _, p := range paths {
		entries[p] = mfs.files[p]
	}
	mfs.mu.RUnlock()

	for _, p := range paths {
		f := entries[p]
		de := &memDirEntry{name: filepath.Base(p), isDir: f.isDir, mode: f.mode}
		if err := fn(p, de, nil); err != nil {
			if err == fs.SkipDir {
				continue
			}
			return err
		}
	}
	return nil
}

// --- supporting fs.DirEntry/fs.FileInfo/io.WriteCloser implementations ---

type memFileWriter struct {
	fs   *MemFileSystem
	path string
	buf  *bytes.Buffer
}

func (w *memFileWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memFileWriter) Close() error {
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()
	w.fs.files[w.path] = &memFile{data: w.buf.Bytes(), mode: 0o644, modTime: time.Now()}
	return nil
}

type memFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

func (fi *memFileInfo) Name() string       { return fi.name }
func (fi *memFileInfo) Size() int64        { return fi.size }
func (fi *memFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *memFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *memFileInfo) IsDir() bool        { return fi.isDir }
func (fi *memFileInfo) Sys() interface{}   { return nil }

type memDirEntry struct {
	name  string
	isDir bool
	mode  os.FileMode
}

func (d *memDirEntry) Name() string               { return d.name }
func (d *memDirEntry) IsDir() bool                { return d.isDir }
func (d *memDirEntry) Type() os.FileMode          { return d.mode.Type() }
func (d *memDirEntry) Info() (os.FileInfo, error) {
	return &memFileInfo{name: d.name, isDir: d.isDir, mode: d.mode}, nil
}
