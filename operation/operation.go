// Package operation defines the data types handed off between the (external)
// transaction planner and both the history store and summary formatter
// (C11), plus the install/remove entry types referenced by the data model.
package operation

import (
	"fmt"
	"strings"
)

// InstallOp identifies how a package is being installed.
type InstallOp int

const (
	Install InstallOp = iota
	Reinstall
	Upgrade
	Downgrade
)

func (o InstallOp) String() string {
	switch o {
	case Install:
		return "Install"
	case Reinstall:
		return "Reinstall"
	case Upgrade:
		return "Upgrade"
	case Downgrade:
		return "Downgrade"
	default:
		return "Unknown"
	}
}

// InstallPkgEntry describes one package being installed/upgraded/downgraded.
type InstallPkgEntry struct {
	Pkg          string
	OldVersion   string // empty if absent
	NewVersion   string
	OldSize      int64 // -1 if absent
	NewSize      int64
	DownloadSize int64
	Arch         string
	Op           InstallOp
}

// RemoveTag carries the extra accounting the source project attaches to a
// removal beyond the bare package name.
type RemoveTag struct {
	Pkg        string
	Autoremove bool
	Purge      bool
	Resolver   bool
}

// RemovePkgEntry describes one package being removed.
type RemovePkgEntry struct {
	Pkg     string
	Version string
	Size    int64
	Arch    string
	Tag     RemoveTag
}

// SizeDelta is a signed byte delta stored as (sign, magnitude) at the
// source boundary but carried as a plain signed integer internally.
type SizeDelta int64

// OmaOperation is the in-memory hand-off type between the planner and both
// the history store and the summary formatter.
type OmaOperation struct {
	Install             []InstallPkgEntry
	Remove              []RemovePkgEntry
	SizeDelta           SizeDelta
	AutoremovableCount  int
	AutoremovableBytes  int64
	TotalDownloadSize   int64
}

// String renders a human-readable summary grouping installs and removals
// the way the source project's Display implementation does: one line per
// package, grouped by operation kind, with a closing totals line.
func (op OmaOperation) String() string {
	var b strings.Builder

	groups := map[InstallOp][]InstallPkgEntry{}
	var order []InstallOp
	for _, e := range op.Install {
		if _, seen := groups[e.Op]; !seen {
			order = append(order, e.Op)
		}
		groups[e.Op] = append(groups[e.Op], e)
	}
	for _, kind := range order {
		fmt.Fprintf(&b, "%s:\n", kind)
		for _, e := range groups[kind] {
			if e.OldVersion != "" {
				fmt.Fprintf(&b, "  %s (%s -> %s)\n", e.Pkg, e.OldVersion, e.NewVersion)
			} else {
				fmt.Fprintf(&b, "  %s (%s)\n", e.Pkg, e.NewVersion)
			}
		}
	}

	if len(op.Remove) > 0 {
		b.WriteString("Remove:\n")
		for _, e := range op.Remove {
			tags := []string{}
			if e.Tag.Purge {
				tags = append(tags, "purge")
			}
			if e.Tag.Autoremove {
				tags = append(tags, "autoremove")
			}
			if len(tags) > 0 {
				fmt.Fprintf(&b, "  %s (%s) [%s]\n", e.Pkg, e.Version, strings.Join(tags, ","))
			} else {
				fmt.Fprintf(&b, "  %s (%s)\n", e.Pkg, e.Version)
			}
		}
	}

	fmt.Fprintf(&b, "Size delta: %+d bytes, download: %d bytes\n", op.SizeDelta, op.TotalDownloadSize)
	return b.String()
}
