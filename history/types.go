// Package history implements the transaction history store (C8): a
// SQLite-backed, append-only log of completed operations, queryable by id
// and by "most recent successful upgrade" for freshness reporting.
package history

import "github.com/aosc-dev/omacore/operation"

// SummaryType classifies what kind of transaction an Entry records, beyond
// the free-form command string, for callers that want to filter or render
// without re-parsing the command line.
type SummaryType int

const (
	SummaryInstall SummaryType = iota
	SummaryUpgrade
	SummaryRemove
	SummaryFixBroken
	SummaryTopicsChanged
	SummaryUndo
)

func (s SummaryType) String() string {
	switch s {
	case SummaryInstall:
		return "Install"
	case SummaryUpgrade:
		return "Upgrade"
	case SummaryRemove:
		return "Remove"
	case SummaryFixBroken:
		return "FixBroken"
	case SummaryTopicsChanged:
		return "TopicsChanged"
	case SummaryUndo:
		return "Undo"
	default:
		return "Unknown"
	}
}

// TopicChange records one topic opt-in/opt-out decision bundled into a
// transaction (e.g. "oma topics --opt-in foo --opt-out bar").
type TopicChange struct {
	Topic  string
	Enable bool
}

// Entry is one full transaction record, joining the summary row with its
// child install/remove/topic rows.
type Entry struct {
	ID                int64
	Command           string
	Typ               SummaryType
	Time              int64
	IsSuccess         bool
	DiskSize          int64
	TotalDownloadSize int64
	InstallCount      int
	RemoveCount       int
	UpgradeCount      int
	DowngradeCount    int
	ReinstallCount    int
	IsFixBroken       bool
	IsUndo            bool

	Install []operation.InstallPkgEntry
	Remove  []operation.RemovePkgEntry
	Topics  []TopicChange
}
