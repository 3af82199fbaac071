// Package omafs generalizes the teacher's repo.FileSystem abstraction
// (ReadFile/Stat/Open/Create/MkdirAll/Remove/Rename/Link) with the
// additional operations the fetch engine and refresh pipeline need: a
// WalkDir for orphan cleanup, an OpenAppend for resumable downloads, and a
// Symlink for the fetch engine's "symlink_only" local-source mode.
package omafs

import (
	"io"
	"io/fs"
	"os"
)

// FileSystem abstracts every filesystem operation the rest of omacore
// needs, so production code runs against the OS and tests run against an
// in-memory fake.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (os.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
	Create(path string) (io.WriteCloser, error)
	// OpenAppend opens an existing file for writing additional bytes at
	// its end, used by the fetch engine to resume a partial download.
	OpenAppend(path string) (io.WriteCloser, error)
	MkdirAll(path string, perm os.FileMode) error
	Remove(path string) error
	Rename(oldPath, newPath string) error
	Link(oldPath, newPath string) error
	Symlink(oldPath, newPath string) error
	WalkDir(root string, fn fs.WalkDirFunc) error
}
