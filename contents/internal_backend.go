package contents

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/aosc-dev/omacore/omaerr"
)

var (
	magicZstd = []byte{0x28, 0xB5, 0x2F, 0xFD}
	magicLz4  = []byte{0x18, 0x4D, 0x22, 0x04}
	magicGzip = []byte{0x1F, 0x8B}
	magicXz   = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
)

// openDecompressed opens path and wraps it in a decompressing reader
// selected by sniffing its first bytes, per the magic-number table in
// spec.md; files that match none of the known magics are assumed to be
// plain text.
func openDecompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(f)
	head, _ := br.Peek(6)

	switch {
	case bytes.HasPrefix(head, magicZstd):
		zr, err := zstd.NewReader(br)
		if err != nil {
			f.Close()
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{zr.IOReadCloser(), f}, nil
	case bytes.HasPrefix(head, magicLz4):
		return struct {
			io.Reader
			io.Closer
		}{lz4.NewReader(br), f}, nil
	case bytes.HasPrefix(head, magicGzip):
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{gz, f}, nil
	case bytes.HasPrefix(head, magicXz):
		xr, err := xz.NewReader(br)
		if err != nil {
			f.Close()
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{xr, f}, nil
	default:
		return struct {
			io.Reader
			io.Closer
		}{br, f}, nil
	}
}

// internalBackend scans each selected file in its own goroutine, decoding
// compression by magic bytes and scanning lines with bufio.Scanner (itself
// built on an efficient substring-free token split; Go's standard string
// search already uses a Rabin-Karp/Boyer-Moore-like algorithm for
// strings.Contains on longer needles, so no separate implementation is
// hand-rolled here).
type internalBackend struct{}

func (internalBackend) search(files []string, query string, mode Mode, binPrefix string, progress func(int)) ([]Match, error) {
	type fileResult struct {
		matches []Match
		err     error
	}

	results := make([]fileResult, len(files))
	var wg sync.WaitGroup
	for i, path := range files {
		i, path := i, path
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := scanFile(path, query, mode, binPrefix)
			results[i] = fileResult{matches: m, err: err}
			if progress != nil {
				progress(1)
			}
		}()
	}
	wg.Wait()

	var all []Match
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		all = append(all, r.matches...)
	}
	return dedupe(all), nil
}

func scanFile(path, query string, mode Mode, binPrefix string) ([]Match, error) {
	rc, err := openDecompressed(path)
	if err != nil {
		return nil, omaerr.Wrap(omaerr.Io, "failed to open contents file "+path, err)
	}
	defer rc.Close()

	var out []Match
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		p, pkgs, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		out = append(out, matchLine(p, pkgs, query, mode, binPrefix)...)
	}
	if err := sc.Err(); err != nil {
		return nil, omaerr.Wrap(omaerr.Io, "failed to read contents file "+path, err)
	}
	return out, nil
}

func dedupe(matches []Match) []Match {
	seen := make(map[Match]struct{}, len(matches))
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
