package fetch

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// publishExtract decompresses dest (the just-published download) into
// entry.Extract.TargetPath, per the source project's decompress-same-path
// short circuit: if the target already equals the source (nothing to do),
// skip the copy entirely instead of producing a spurious duplicate.
func (e *Engine) publishExtract(entry DownloadEntry, dest string) error {
	target := entry.Extract.TargetPath
	if target == dest {
		return nil
	}

	r, err := e.FS.Open(dest)
	if err != nil {
		return err
	}
	defer r.Close()

	dr, err := decompressReader(entry.Extract.Format, r)
	if err != nil {
		return err
	}
	if closer, ok := dr.(io.Closer); ok {
		defer closer.Close()
	}

	if err := e.FS.MkdirAll(dirOf(target), 0o755); err != nil {
		return err
	}
	tmp := target + ".part"
	w, err := e.FS.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, dr); err != nil {
		w.Close()
		e.FS.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return e.FS.Rename(tmp, target)
}

func decompressReader(format ExtractFormat, r io.Reader) (io.Reader, error) {
	switch format {
	case ExtractGzip:
		return gzip.NewReader(r)
	case ExtractXz:
		return xz.NewReader(r)
	case ExtractLz4:
		return lz4.NewReader(r), nil
	case ExtractZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported compression format %d", format)
	}
}
