package refresh

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/aosc-dev/omacore/omafs"
	"github.com/aosc-dev/omacore/omalog"
)

// CleanupOrphans removes index files left behind under Paths.DownloadRoot
// that were superseded by a newer Release (a renamed or recompressed index,
// for instance). Only the dist directory of each source whose Result in
// report is Done is walked; directories of sources that are absent from
// report, or that failed, are left untouched. It generalizes the teacher's cleanupOrphanedPackages, which
// walked the .deb pool directory against a set of packages the current
// mirror run had marked valid; here the "pool" is the per-source index
// cache and "valid" is every file named Fetched, Skipped, or decompressed
// to during the run that produced report.
//
// by-hash/ subtrees are never pruned: unlike the teacher's single-generation
// pool, Acquire-By-Hash intentionally keeps multiple historical digests
// live so clients mid-download against a slightly stale Release still
// resolve, and per-digest retention is its own housekeeping concern.
func CleanupOrphans(fsys omafs.FileSystem, downloadRoot string, report Report, logger omalog.Logger) error {
	if logger == nil {
		logger = omalog.New()
	}

	for _, res := range report.Results {
		if res.State != Done {
			continue
		}
		localDir := filepath.Join(downloadRoot, sourceDirName(res.Source), "dists", res.Source.Dist)
		if _, err := fsys.Stat(localDir); err != nil {
			continue
		}

		valid := validIndexNames(res)

		var toRemove []string
		err := fsys.WalkDir(localDir, func(path string, de fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if de.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(localDir, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if strings.HasPrefix(rel, "by-hash/") {
				return nil
			}
			if !valid[rel] {
				toRemove = append(toRemove, path)
			}
			return nil
		})
		if err != nil {
			return err
		}

		if len(toRemove) == 0 {
			continue
		}
		logger.Info("removing orphaned index files", "source", res.Source.Name, "count", len(toRemove))
		for _, path := range toRemove {
			if err := fsys.Remove(path); err != nil {
				logger.Warn("failed to remove orphaned index file", "path", path, "err", err.Error())
			}
		}
	}
	return nil
}

// validIndexNames computes the set of file names (relative to a source's
// local dist directory) that a refresh run legitimately produced: the
// Release family, every fetched or incrementally-skipped index, and each
// index's decompressed sibling.
func validIndexNames(res Result) map[string]bool {
	valid := map[string]bool{
		"InRelease":   true,
		"Release":     true,
		"Release.gpg": true,
	}
	for _, name := range res.Fetched {
		addIndexName(valid, name)
	}
	for _, name := range res.Skipped {
		addIndexName(valid, name)
	}
	return valid
}

func addIndexName(valid map[string]bool, name string) {
	valid[name] = true
	if suf := compressedSuffix(name); suf != "" {
		valid[strings.TrimSuffix(name, suf)] = true
	}
}

func compressedSuffix(name string) string {
	for _, suf := range []string{".gz", ".xz", ".zst", ".lz4"} {
		if strings.HasSuffix(name, suf) {
			return suf
		}
	}
	return ""
}
