package history

import (
	"database/sql"

	"github.com/aosc-dev/omacore/omaerr"
)

const (
	mainTable         = `"history_oma_1.14"`
	installTable      = `"history_install_package_oma_1.14"`
	removeTable       = `"history_remove_package_oma_1.14"`
	removeDetailTable = `"history_remove_package_detail_oma_1.14"`
	topicTable        = `"history_topic_oma_1.14"`
	legacyMainTable   = `"history_oma_1.2"`
)

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + mainTable + ` (
			id INTEGER PRIMARY KEY,
			command TEXT,
			time INTEGER NOT NULL,
			is_success INTEGER NOT NULL,
			disk_size INTEGER NOT NULL,
			total_download_size INTEGER,
			install_count INTEGER NOT NULL,
			remove_count INTEGER NOT NULL,
			upgrade_count INTEGER NOT NULL,
			downgrade_count INTEGER NOT NULL,
			reinstall_count INTEGER NOT NULL,
			is_fixbroken INTEGER NOT NULL,
			is_undo INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + installTable + ` (
			history_id INTEGER NOT NULL,
			package_name TEXT NOT NULL,
			old_version TEXT,
			new_version TEXT NOT NULL,
			old_size INTEGER,
			new_size INTEGER NOT NULL,
			download_size INTEGER NOT NULL,
			arch TEXT NOT NULL,
			operation INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + removeTable + ` (
			history_id INTEGER NOT NULL,
			package_name TEXT NOT NULL,
			version TEXT NOT NULL,
			size INTEGER NOT NULL,
			arch TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + removeDetailTable + ` (
			history_id INTEGER NOT NULL,
			package_name TEXT NOT NULL,
			autoremove INTEGER NOT NULL,
			purge INTEGER NOT NULL,
			resolver INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + topicTable + ` (
			history_id INTEGER NOT NULL,
			topic_name TEXT NOT NULL,
			enable INTEGER NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return omaerr.Wrap(omaerr.DbMigration, "failed to create history tables", err)
		}
	}
	return nil
}

// maybeMigrateLegacy runs the one-shot migration from the old
// history_oma_1.2 single-table JSON format into the history_oma_1.14
// family, only when the old table has rows and the new one is still
// empty, matching the forward-only, idempotent check the source project
// performs on every open.
func maybeMigrateLegacy(db *sql.DB) error {
	var legacyExists int
	err := db.QueryRow(`SELECT COUNT(name) FROM sqlite_schema WHERE name = 'history_oma_1.2'`).Scan(&legacyExists)
	if err != nil {
		return omaerr.Wrap(omaerr.DbMigration, "failed to probe for legacy history table", err)
	}
	if legacyExists == 0 {
		return nil
	}

	var oldCount, newCount int
	if err := db.QueryRow(`SELECT COUNT(id) FROM ` + legacyMainTable).Scan(&oldCount); err != nil {
		return omaerr.Wrap(omaerr.DbMigration, "failed to count legacy history rows", err)
	}
	if err := db.QueryRow(`SELECT COUNT(id) FROM ` + mainTable).Scan(&newCount); err != nil {
		return omaerr.Wrap(omaerr.DbMigration, "failed to count history rows", err)
	}
	if oldCount == 0 || newCount != 0 {
		return nil
	}

	return migrateLegacy(db)
}
