package contents

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// SelectFiles lists the Contents index files under dir whose basename
// matches the mode's naming convention for the given architectures:
// "*_Contents-<arch>" for Files/Provides, "*_BinContents-<arch>" for
// Binary, skipping any "-source" component since a binary query never
// wants the one that lists source packages' paths.
func SelectFiles(dir string, mode Mode, archs []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	marker := "_Contents-"
	if mode == Binary {
		marker = "_BinContents-"
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		base := stripCompressionSuffix(name)
		if mode == Binary && strings.Contains(strings.ToLower(base), "source") {
			continue
		}
		for _, arch := range archs {
			if strings.HasSuffix(base, marker+arch) {
				out = append(out, filepath.Join(dir, name))
				break
			}
		}
	}
	return out, nil
}

func stripCompressionSuffix(name string) string {
	for _, ext := range []string{".gz", ".xz", ".zst", ".lz4"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// Search runs a Files, Provides, or Binary query over dir's Contents index
// files using the requested backend. binPrefix overrides the distribution's
// binary directory for Binary-mode queries; an empty string uses
// "/usr/bin". progress, if non-nil, is called with 1 once per file processed
// by the Internal backend, and once per rg output line by the External one.
//
// Returns ErrNoResult (not an empty, successful slice) when nothing
// matches, per the zero-matches boundary.
func Search(ctx context.Context, dir, query string, mode Mode, archs []string, backend BackendKind, binPrefix string, progress func(int)) ([]Match, error) {
	if binPrefix == "" {
		binPrefix = defaultBinPrefix
	}

	files, err := SelectFiles(dir, mode, archs)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoResult
	}

	var matches []Match
	switch backend {
	case External:
		matches, err = externalBackend{}.search(ctx, files, query, mode, binPrefix, progress)
	default:
		matches, err = internalBackend{}.search(files, query, mode, binPrefix, progress)
	}
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoResult
	}
	return matches, nil
}
