package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaTooNew is returned when the index was migrated by a newer build.
var ErrSchemaTooNew = errors.New("session index schema is newer than this build")

type migration struct {
	Version int
	Name    string
	Apply   func(tx *sql.Tx) error
}

// journalModes lists the SQLite journal modes accepted in configuration.
var journalModes = map[string]bool{
	"WAL": true, "DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "OFF": true,
}

// MigrationRunner brings a session index database up to the latest schema.
type MigrationRunner struct {
	db         *sql.DB
	migrations []migration

	// JournalMode is applied before migrating. Empty means WAL.
	JournalMode string
}

// NewMigrationRunner creates a MigrationRunner with all registered migrations.
func NewMigrationRunner(db *sql.DB) *MigrationRunner {
	return &MigrationRunner{
		db: db,
		migrations: []migration{
			{Version: 1, Name: "session_index", Apply: migrateV001},
		},
	}
}

// Latest returns the schema version this build migrates to.
func (r *MigrationRunner) Latest() int {
	if len(r.migrations) == 0 {
		return 0
	}
	return r.migrations[len(r.migrations)-1].Version
}

// Run configures the connection, then applies every migration not yet
// recorded in schema_migrations, each in its own transaction. An index last
// migrated past Latest is refused with ErrSchemaTooNew.
func (r *MigrationRunner) Run() error {
	if err := r.configure(); err != nil {
		return err
	}

	if _, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	applied, err := r.applied()
	if err != nil {
		return err
	}
	for v := range applied {
		if v > r.Latest() {
			return fmt.Errorf("%w: found v%d, supported up to v%d", ErrSchemaTooNew, v, r.Latest())
		}
	}

	for _, m := range r.migrations {
		if applied[m.Version] {
			continue
		}
		if err := r.apply(m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// Version returns the highest applied schema version. Run must have been
// called on the database at least once.
func (r *MigrationRunner) Version() (int, error) {
	var v sql.NullInt64
	err := r.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}

func (r *MigrationRunner) configure() error {
	mode := strings.ToUpper(r.JournalMode)
	if mode == "" {
		mode = "WAL"
	}
	if !journalModes[mode] {
		return fmt.Errorf("unsupported journal mode %q", r.JournalMode)
	}
	if _, err := r.db.Exec("PRAGMA journal_mode = " + mode); err != nil {
		return fmt.Errorf("set %s mode: %w", mode, err)
	}
	// Trials and stimuli cascade with their session.
	if _, err := r.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	return nil
}

func (r *MigrationRunner) applied() (map[int]bool, error) {
	rows, err := r.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func (r *MigrationRunner) apply(m migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := m.Apply(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
