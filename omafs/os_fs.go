package omafs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// OsFileSystem implements FileSystem against the real OS filesystem,
// generalizing the teacher's OsFileSystem with append/symlink/walk support.
type OsFileSystem struct{}

func NewOsFileSystem() FileSystem {
	return &OsFileSystem{}
}

func (o *OsFileSystem) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }
func (o *OsFileSystem) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }
func (o *OsFileSystem) Open(path string) (io.ReadCloser, error) { return os.Open(path) }
func (o *OsFileSystem) Create(path string) (io.WriteCloser, error) { return os.Create(path) }

func (o *OsFileSystem) OpenAppend(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
}

func (o *OsFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
func (o *OsFileSystem) Remove(path string) error              { return os.Remove(path) }
func (o *OsFileSystem) Rename(oldPath, newPath string) error   { return os.Rename(oldPath, newPath) }
func (o *OsFileSystem) Link(oldPath, newPath string) error     { return os.Link(oldPath, newPath) }
func (o *OsFileSystem) Symlink(oldPath, newPath string) error  { return os.Symlink(oldPath, newPath) }
func (o *OsFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}
