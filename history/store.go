package history

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/aosc-dev/omacore/omaerr"
	"github.com/aosc-dev/omacore/operation"
)

// Store is a handle on the on-disk transaction history database, opened
// at <sysroot>/var/log/oma/history.db per the source project's layout.
type Store struct {
	db *sql.DB
}

// Open creates the history directory and database file if missing,
// ensures the current schema exists, and runs the one-shot legacy
// migration if an old-format table is present with data.
func Open(sysroot string) (*Store, error) {
	dir := filepath.Join(sysroot, "var/log/oma")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, omaerr.Wrap(omaerr.Io, "failed to create history directory "+dir, err)
	}
	dbPath := filepath.Join(dir, "history.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, omaerr.Wrap(omaerr.Io, "failed to open history database", err)
	}
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := maybeMigrateLegacy(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory history database (for tests), skipping
// legacy-migration probing since there is no legacy table to find.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, omaerr.Wrap(omaerr.Io, "failed to open in-memory history database", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one completed transaction and its child install/remove/
// topic rows, returning the assigned, monotonically increasing id.
func (s *Store) Append(command string, typ SummaryType, op operation.OmaOperation, success bool, isFixBroken, isUndo bool, topics []TopicChange, at int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, omaerr.Wrap(omaerr.Io, "failed to begin history transaction", err)
	}
	defer tx.Rollback()

	var installCount, upgradeCount, downgradeCount, reinstallCount int
	for _, e := range op.Install {
		switch e.Op {
		case operation.Install:
			installCount++
		case operation.Upgrade:
			upgradeCount++
		case operation.Downgrade:
			downgradeCount++
		case operation.Reinstall:
			reinstallCount++
		}
	}

	res, err := tx.Exec(
		`INSERT INTO `+mainTable+` (command, time, is_success, disk_size, total_download_size, install_count, remove_count, upgrade_count, downgrade_count, reinstall_count, is_fixbroken, is_undo) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		command, at, boolToInt(success), int64(op.SizeDelta), op.TotalDownloadSize,
		installCount, len(op.Remove), upgradeCount, downgradeCount, reinstallCount,
		boolToInt(isFixBroken), boolToInt(isUndo),
	)
	if err != nil {
		return 0, omaerr.Wrap(omaerr.Io, "failed to insert history row", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, omaerr.Wrap(omaerr.Io, "failed to read history row id", err)
	}

	for _, e := range op.Install {
		if _, err := tx.Exec(
			`INSERT INTO `+installTable+` (history_id, package_name, old_version, new_version, old_size, new_size, download_size, arch, operation) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, e.Pkg, e.OldVersion, e.NewVersion, e.OldSize, e.NewSize, e.DownloadSize, e.Arch, int(e.Op),
		); err != nil {
			return 0, omaerr.Wrap(omaerr.Io, "failed to insert install row", err)
		}
	}
	for _, e := range op.Remove {
		if _, err := tx.Exec(
			`INSERT INTO `+removeTable+` (history_id, package_name, version, size, arch) VALUES (?, ?, ?, ?, ?)`,
			id, e.Pkg, e.Version, e.Size, e.Arch,
		); err != nil {
			return 0, omaerr.Wrap(omaerr.Io, "failed to insert remove row", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO `+removeDetailTable+` (history_id, package_name, autoremove, purge, resolver) VALUES (?, ?, ?, ?, ?)`,
			id, e.Pkg, boolToInt(e.Tag.Autoremove), boolToInt(e.Tag.Purge), boolToInt(e.Tag.Resolver),
		); err != nil {
			return 0, omaerr.Wrap(omaerr.Io, "failed to insert remove detail row", err)
		}
	}
	for _, tc := range topics {
		if _, err := tx.Exec(
			`INSERT INTO `+topicTable+` (history_id, topic_name, enable) VALUES (?, ?, ?)`,
			id, tc.Topic, boolToInt(tc.Enable),
		); err != nil {
			return 0, omaerr.Wrap(omaerr.Io, "failed to insert topic row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, omaerr.Wrap(omaerr.Io, "failed to commit history transaction", err)
	}
	return id, nil
}

// List returns every transaction, most recent first, matching the source
// project's ORDER BY id DESC.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, command, time, is_success, disk_size, total_download_size, install_count, remove_count, upgrade_count, downgrade_count, reinstall_count, is_fixbroken, is_undo FROM ` + mainTable + ` ORDER BY id DESC`,
	)
	if err != nil {
		return nil, omaerr.Wrap(omaerr.Io, "failed to list history", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var isSuccess, isFixBroken, isUndo int64
		if err := rows.Scan(&e.ID, &e.Command, &e.Time, &isSuccess, &e.DiskSize, &e.TotalDownloadSize,
			&e.InstallCount, &e.RemoveCount, &e.UpgradeCount, &e.DowngradeCount, &e.ReinstallCount,
			&isFixBroken, &isUndo); err != nil {
			return nil, omaerr.Wrap(omaerr.Io, "failed to scan history row", err)
		}
		e.IsSuccess = isSuccess != 0
		e.IsFixBroken = isFixBroken != 0
		e.IsUndo = isUndo != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, omaerr.Wrap(omaerr.Io, "failed to iterate history", err)
	}
	return entries, nil
}

// Get loads one transaction by id, including its install/remove/topic
// child rows.
func (s *Store) Get(id int64) (Entry, error) {
	var e Entry
	var isSuccess, isFixBroken, isUndo int64
	row := s.db.QueryRow(
		`SELECT id, command, time, is_success, disk_size, total_download_size, install_count, remove_count, upgrade_count, downgrade_count, reinstall_count, is_fixbroken, is_undo FROM `+mainTable+` WHERE id = ?`,
		id,
	)
	if err := row.Scan(&e.ID, &e.Command, &e.Time, &isSuccess, &e.DiskSize, &e.TotalDownloadSize,
		&e.InstallCount, &e.RemoveCount, &e.UpgradeCount, &e.DowngradeCount, &e.ReinstallCount,
		&isFixBroken, &isUndo); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, omaerr.New(omaerr.NotFound, "no history entry with that id")
		}
		return Entry{}, omaerr.Wrap(omaerr.Io, "failed to load history entry", err)
	}
	e.IsSuccess = isSuccess != 0
	e.IsFixBroken = isFixBroken != 0
	e.IsUndo = isUndo != 0

	installRows, err := s.db.Query(
		`SELECT package_name, old_version, new_version, old_size, new_size, download_size, arch, operation FROM `+installTable+` WHERE history_id = ?`,
		id,
	)
	if err != nil {
		return Entry{}, omaerr.Wrap(omaerr.Io, "failed to load install rows", err)
	}
	defer installRows.Close()
	for installRows.Next() {
		var ie operation.InstallPkgEntry
		var op int
		if err := installRows.Scan(&ie.Pkg, &ie.OldVersion, &ie.NewVersion, &ie.OldSize, &ie.NewSize, &ie.DownloadSize, &ie.Arch, &op); err != nil {
			return Entry{}, omaerr.Wrap(omaerr.Io, "failed to scan install row", err)
		}
		ie.Op = operation.InstallOp(op)
		e.Install = append(e.Install, ie)
	}

	removeRows, err := s.db.Query(
		`SELECT r.package_name, r.version, r.size, r.arch, d.autoremove, d.purge, d.resolver
		 FROM `+removeTable+` r LEFT JOIN `+removeDetailTable+` d
		   ON r.history_id = d.history_id AND r.package_name = d.package_name
		 WHERE r.history_id = ?`,
		id,
	)
	if err != nil {
		return Entry{}, omaerr.Wrap(omaerr.Io, "failed to load remove rows", err)
	}
	defer removeRows.Close()
	for removeRows.Next() {
		var re operation.RemovePkgEntry
		var autoremove, purge, resolver sql.NullInt64
		if err := removeRows.Scan(&re.Pkg, &re.Version, &re.Size, &re.Arch, &autoremove, &purge, &resolver); err != nil {
			return Entry{}, omaerr.Wrap(omaerr.Io, "failed to scan remove row", err)
		}
		re.Tag.Pkg = re.Pkg
		re.Tag.Autoremove = autoremove.Int64 != 0
		re.Tag.Purge = purge.Int64 != 0
		re.Tag.Resolver = resolver.Int64 != 0
		e.Remove = append(e.Remove, re)
	}

	topicRows, err := s.db.Query(`SELECT topic_name, enable FROM `+topicTable+` WHERE history_id = ?`, id)
	if err != nil {
		return Entry{}, omaerr.Wrap(omaerr.Io, "failed to load topic rows", err)
	}
	defer topicRows.Close()
	for topicRows.Next() {
		var tc TopicChange
		var enable int64
		if err := topicRows.Scan(&tc.Topic, &enable); err != nil {
			return Entry{}, omaerr.Wrap(omaerr.Io, "failed to scan topic row", err)
		}
		tc.Enable = enable != 0
		e.Topics = append(e.Topics, tc)
	}

	return e, nil
}

// LastUpgradeTimestamp returns the time of the most recent successful
// transaction that performed at least one upgrade, and whether any such
// transaction exists, for the "time since last full-system upgrade"
// freshness report.
func (s *Store) LastUpgradeTimestamp() (int64, bool, error) {
	var t int64
	err := s.db.QueryRow(
		`SELECT time FROM `+mainTable+` WHERE is_success = 1 AND upgrade_count > 0 ORDER BY id DESC LIMIT 1`,
	).Scan(&t)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, omaerr.Wrap(omaerr.Io, "failed to read last upgrade timestamp", err)
	}
	return t, true, nil
}
