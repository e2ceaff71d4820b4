package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/rpawatch/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// migration is one embedded SQL file. Version is the numeric prefix
// before the first underscore (000_create_schema_migrations.sql -> "000").
type migration struct {
	Version  string
	Filename string
}

// loadMigrations lists embedded migrations in apply order.
func loadMigrations() ([]migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, errors.Newf("migration %s has no version prefix", name)
		}
		out = append(out, migration{Version: version, Filename: name})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate runs all pending migrations.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	pending, err := loadMigrations()
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range pending {
		// schema_migrations is created by 000, so its absence is only legal there
		var exists bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", m.Version).Scan(&exists)
		if err != nil {
			if IsDatabaseClosed(err) {
				return errors.Wrap(ErrDatabaseClosed, "check schema_migrations")
			}
			if m.Version != "000" {
				return errors.Newf("schema_migrations table missing, but migration is not 000: %s", m.Filename)
			}
		} else if exists {
			if logger != nil {
				logger.Debugw("Skipping migration (already applied)", "migration", m.Filename)
			}
			continue
		}

		if err := apply(db, m); err != nil {
			return err
		}
		applied++

		if logger != nil {
			logger.Infow("Applied migration", "migration", m.Filename, "version", m.Version)
		}
	}

	if logger != nil {
		logger.Infow("Migrations complete",
			"total_migrations", len(pending),
			"applied", applied,
		)
	}

	return nil
}

// apply executes one migration and records it in the same transaction.
func apply(db *sql.DB, m migration) error {
	sqlBytes, err := migrations.ReadFile(path.Join(migrationsDir, m.Filename))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.Filename)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.Filename)
	}

	if _, err := tx.Exec(string(sqlBytes)); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "execute %s", m.Filename)
	}

	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record %s", m.Filename)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit %s", m.Filename)
	}
	return nil
}

// AppliedVersions returns the recorded migration versions in order.
func AppliedVersions(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, errors.Wrap(err, "query schema_migrations")
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan schema_migrations")
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// TableCounts returns row counts for the pipeline tables, for `db stats`.
func TableCounts(db *sql.DB) (map[string]int, error) {
	tables := []string{"executions", "execution_logs", "jobs", "rca_records", "audit_logs"}
	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, errors.Wrapf(err, "count %s", table)
		}
		counts[table] = n
	}
	return counts, nil
}
