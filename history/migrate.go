package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aosc-dev/omacore/omaerr"
)

// legacyInstallEntry/legacyRemoveEntry mirror the JSON shape the old
// single-table format stored install_packages/remove_packages as.
type legacyInstallEntry struct {
	PkgName      string `json:"pkg_name"`
	OldVersion   string `json:"old_version"`
	NewVersion   string `json:"new_version"`
	OldSize      int64  `json:"old_size"`
	NewSize      int64  `json:"new_size"`
	DownloadSize int64  `json:"download_size"`
	Arch         string `json:"arch"`
	Operation    int    `json:"operation"`
}

type legacyRemoveEntry struct {
	PkgName string   `json:"pkg_name"`
	Version string   `json:"version"`
	Size    int64    `json:"size"`
	Arch    string   `json:"arch"`
	Tags    []string `json:"tags"`
}

type legacyRow struct {
	id                int64
	time              int64
	installPackages   string
	removePackages    string
	diskSize          int64
	totalDownloadSize int64
	isSuccess         bool
	typ               string
}

// legacySummary mirrors the old OldSummaryType enum, decoded from its
// tagged-JSON serialization ({"Install": [...]}, "FixBroken", etc).
type legacySummary struct {
	kind    string
	items   []string
	added   []string
	removed []string
}

func parseLegacySummary(raw string) (legacySummary, error) {
	raw = strings.TrimSpace(raw)
	if raw == `"Changes"` {
		return legacySummary{kind: "Changes"}, nil
	}
	if raw == `"FixBroken"` {
		return legacySummary{kind: "FixBroken"}, nil
	}
	if raw == `"Undo"` {
		return legacySummary{kind: "Undo"}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return legacySummary{}, err
	}
	for key, val := range obj {
		switch key {
		case "Install", "Upgrade", "Remove":
			var items []string
			if err := json.Unmarshal(val, &items); err != nil {
				return legacySummary{}, err
			}
			return legacySummary{kind: key, items: items}, nil
		case "TopicsChanged":
			var tc struct {
				Add    []string `json:"add"`
				Remove []string `json:"remove"`
			}
			if err := json.Unmarshal(val, &tc); err != nil {
				return legacySummary{}, err
			}
			return legacySummary{kind: "TopicsChanged", added: tc.Add, removed: tc.Remove}, nil
		}
	}
	return legacySummary{}, fmt.Errorf("unrecognized legacy summary type: %s", raw)
}

// handlePackagesItems drops each legacy item's trailing version field
// ("foo 1.0" -> "foo"), matching handle_packages_items's split_once(" ").
func handlePackagesItems(items []string) string {
	names := make([]string, len(items))
	for i, it := range items {
		if idx := strings.IndexByte(it, ' '); idx >= 0 {
			names[i] = it[:idx]
		} else {
			names[i] = it
		}
	}
	return strings.Join(names, " ")
}

func legacyCommand(s legacySummary) string {
	switch s.kind {
	case "Install":
		return "oma install " + handlePackagesItems(s.items)
	case "Upgrade":
		return "oma upgrade " + handlePackagesItems(s.items)
	case "Remove":
		return "oma remove " + handlePackagesItems(s.items)
	case "Changes":
		return "oma tui"
	case "FixBroken":
		return "oma fix-broken"
	case "Undo":
		return "oma undo"
	case "TopicsChanged":
		var b strings.Builder
		b.WriteString("oma topics")
		if len(s.added) > 0 {
			b.WriteString(" --opt-in ")
			b.WriteString(strings.Join(s.added, " "))
		}
		if len(s.removed) > 0 {
			b.WriteString(" --opt-out ")
			b.WriteString(strings.Join(s.removed, " "))
		}
		return b.String()
	default:
		return "oma"
	}
}

// migrateLegacy copies every row of the history_oma_1.2 table into the
// history_oma_1.14 table family, translating its JSON-blob summary into a
// rendered command string the way the source project's one-shot
// migration does.
func migrateLegacy(db *sql.DB) error {
	rows, err := db.Query(`SELECT id, time, install_packages, remove_packages, disk_size, total_download_size, is_success, typ FROM ` + legacyMainTable + ` ORDER BY id ASC`)
	if err != nil {
		return omaerr.Wrap(omaerr.DbMigration, "failed to read legacy history rows", err)
	}
	defer rows.Close()

	var legacyRows []legacyRow
	for rows.Next() {
		var r legacyRow
		var isSuccess int64
		if err := rows.Scan(&r.id, &r.time, &r.installPackages, &r.removePackages, &r.diskSize, &r.totalDownloadSize, &isSuccess, &r.typ); err != nil {
			return omaerr.Wrap(omaerr.DbMigration, "failed to scan legacy history row", err)
		}
		r.isSuccess = isSuccess != 0
		legacyRows = append(legacyRows, r)
	}
	if err := rows.Err(); err != nil {
		return omaerr.Wrap(omaerr.DbMigration, "failed to iterate legacy history rows", err)
	}

	for _, r := range legacyRows {
		var installs []legacyInstallEntry
		if err := json.Unmarshal([]byte(r.installPackages), &installs); err != nil {
			continue
		}
		var removes []legacyRemoveEntry
		if err := json.Unmarshal([]byte(r.removePackages), &removes); err != nil {
			continue
		}
		summary, err := parseLegacySummary(r.typ)
		if err != nil {
			continue
		}

		var installCount, upgradeCount, downgradeCount, reinstallCount int
		for _, i := range installs {
			switch i.Operation {
			case 0:
				installCount++
			case 1:
				reinstallCount++
			case 2:
				upgradeCount++
			case 3:
				downgradeCount++
			}
		}

		res, err := db.Exec(
			`INSERT INTO `+mainTable+` (command, time, is_success, disk_size, total_download_size, install_count, remove_count, upgrade_count, downgrade_count, reinstall_count, is_fixbroken, is_undo) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			legacyCommand(summary), r.time, boolToInt(r.isSuccess), r.diskSize, r.totalDownloadSize,
			installCount, len(removes), upgradeCount, downgradeCount, reinstallCount,
			boolToInt(summary.kind == "FixBroken"), boolToInt(summary.kind == "Undo"),
		)
		if err != nil {
			return omaerr.Wrap(omaerr.DbMigration, "failed to insert migrated history row", err)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return omaerr.Wrap(omaerr.DbMigration, "failed to read migrated row id", err)
		}

		for _, i := range installs {
			if _, err := db.Exec(
				`INSERT INTO `+installTable+` (history_id, package_name, old_version, new_version, old_size, new_size, download_size, arch, operation) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				newID, i.PkgName, i.OldVersion, i.NewVersion, i.OldSize, i.NewSize, i.DownloadSize, i.Arch, i.Operation,
			); err != nil {
				return omaerr.Wrap(omaerr.DbMigration, "failed to insert migrated install row", err)
			}
		}
		for _, rm := range removes {
			if _, err := db.Exec(
				`INSERT INTO `+removeTable+` (history_id, package_name, version, size, arch) VALUES (?, ?, ?, ?, ?)`,
				newID, rm.PkgName, rm.Version, rm.Size, rm.Arch,
			); err != nil {
				return omaerr.Wrap(omaerr.DbMigration, "failed to insert migrated remove row", err)
			}
			autoremove, purge, resolver := 0, 0, 0
			for _, tag := range rm.Tags {
				switch tag {
				case "AutoRemove":
					autoremove = 1
				case "Purge":
					purge = 1
				case "Resolver":
					resolver = 1
				}
			}
			if _, err := db.Exec(
				`INSERT INTO `+removeDetailTable+` (history_id, package_name, autoremove, purge, resolver) VALUES (?, ?, ?, ?, ?)`,
				newID, rm.PkgName, autoremove, purge, resolver,
			); err != nil {
				return omaerr.Wrap(omaerr.DbMigration, "failed to insert migrated remove detail row", err)
			}
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
