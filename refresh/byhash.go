package refresh

import (
	"io"
	"os"
	"path/filepath"

	"github.com/aosc-dev/omacore/checksum"
	"github.com/aosc-dev/omacore/omafs"
)

// publishByHash generalizes the teacher's createByHashLink: it hardlinks
// (falling back to a copy across devices) originalPath into
// <dir>/by-hash/<ALGO>/<hex digest>, the acquire-by-hash layout index
// files MUST additionally be published under when a Release advertises
// Acquire-By-Hash: yes.
func publishByHash(fs omafs.FileSystem, originalPath string, digest checksum.Checksum) error {
	dir := filepath.Dir(originalPath)
	byHashDir := filepath.Join(dir, "by-hash", digest.Algo.String())

	if err := fs.MkdirAll(byHashDir, 0o755); err != nil {
		return err
	}

	targetPath := filepath.Join(byHashDir, digest.Hex())

	if err := fs.Remove(targetPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	if err := fs.Link(originalPath, targetPath); err == nil {
		return nil
	}

	src, err := fs.Open(originalPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := fs.Create(targetPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
