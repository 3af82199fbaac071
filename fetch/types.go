// Package fetch implements the parallel, resumable, checksum-verified,
// multi-source download engine (C4), generalizing the teacher's
// worker-pool-over-channel download loop into a full per-task state
// machine with retry, resume, and progress events.
package fetch

import (
	"github.com/aosc-dev/omacore/checksum"
)

// SourceKind distinguishes an HTTP source from a local one.
type SourceKind int

const (
	SourceHTTP SourceKind = iota
	SourceLocal
)

// DownloadSource is one candidate location for a DownloadEntry's content.
type DownloadSource struct {
	URL  string
	Kind SourceKind

	// Auth carries optional HTTP basic-auth credentials (SourceHTTp only).
	AuthUser     string
	AuthPassword string
	HasAuth      bool

	// SymlinkOnly applies to SourceLocal: when set, the engine must
	// symlink rather than copy, failing instead of falling back to a
	// copy when a copy would be required (e.g. cross-device).
	SymlinkOnly bool
}

// ExtractFormat names a supported decompression format for DownloadEntry.Extract.
type ExtractFormat int

const (
	ExtractGzip ExtractFormat = iota
	ExtractXz
	ExtractLz4
	ExtractZstd
)

// Extract describes post-download decompression.
type Extract struct {
	Format     ExtractFormat
	TargetPath string
}

// DownloadEntry is one unit of work submitted to the engine.
type DownloadEntry struct {
	Sources     []DownloadSource
	Filename    string
	Dir         string
	Hash        *checksum.Checksum
	AllowResume bool
	TotalHint   *uint64
	Message     string
	Extract     *Extract
}

// DestPath is the entry's final on-disk path.
func (e DownloadEntry) DestPath() string {
	if e.Dir == "" {
		return e.Filename
	}
	return e.Dir + "/" + e.Filename
}

// EventKind enumerates the FetchEvent variants from spec.md's data model.
type EventKind int

const (
	EvNewGlobalBar EventKind = iota
	EvNewTaskBar
	EvNewTaskSpinner
	EvTaskInc
	EvTaskSet
	EvTaskDone
	EvGlobalSet
	EvChecksumMismatchRetry
	EvNextURL
	EvNotFound
	EvAllDone
)

// FetchEvent is one progress event emitted by the engine.
type FetchEvent struct {
	Kind       EventKind
	Index      int
	Msg        string
	Size       int64
	Delta      int64
	Pos        int64
	BytesSoFar int64
	Filename   string
	Attempt    int
	Err        error
}

// TaskRecord is a per-task entry in a FetchSummary.
type TaskRecord struct {
	Index      int
	Filename   string
	WroteBytes int64
	Err        error
}

// FetchSummary is the result of a full Engine.Run call.
type FetchSummary struct {
	Success []TaskRecord
	Failed  []TaskRecord
}
