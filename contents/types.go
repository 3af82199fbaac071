// Package contents implements the Contents-file searcher (C7): locating
// which package owns a file (Provides mode), which files a package owns
// (Files mode), or restricting either to a distribution's binary
// directory (Binary mode), over the repository's *_Contents-<arch> and
// *_BinContents-<arch> index files. Two functionally equivalent backends
// are supported: an External one that shells out to ripgrep (as the
// teacher's own package-index scanning favors external, well-tested
// tools over hand-rolled parsers for bulk text search) and an Internal
// one that decompresses and scans in-process.
package contents

import "github.com/aosc-dev/omacore/omaerr"

// Mode selects which query semantics and which index-file family to search.
type Mode int

const (
	// Files matches a package name exactly and returns its owned paths.
	Files Mode = iota
	// Provides matches a substring of a path and returns the owning packages.
	Provides
	// Binary behaves like Provides but only searches *_BinContents-<arch>
	// files and restricts results to paths under the distribution's bin
	// prefix (default /usr/bin).
	Binary
)

// Match is one (package, path) search result.
type Match struct {
	Package string
	Path    string
}

// BackendKind selects which search implementation Search uses.
type BackendKind int

const (
	Internal BackendKind = iota
	External
)

// ErrNoResult is returned by Search (wrapped in an *omaerr.Error) when a
// query matches nothing, per spec.md's "zero matches overall is returned
// as NoResult" boundary, kept distinct from an empty, successful result.
var ErrNoResult = omaerr.New(omaerr.NotFound, "no result")

const defaultBinPrefix = "/usr/bin"
