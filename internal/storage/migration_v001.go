package storage

import "database/sql"

// migrateV001 creates the session index schema. Every statement uses
// IF NOT EXISTS for idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id               TEXT PRIMARY KEY,
			participant      TEXT NOT NULL DEFAULT '',
			log_path         TEXT NOT NULL,
			driver           TEXT NOT NULL DEFAULT '',
			device_id        TEXT NOT NULL DEFAULT '',
			channels         INTEGER NOT NULL DEFAULT 0,
			frame_length     INTEGER NOT NULL DEFAULT 1,
			test_signal      BOOLEAN NOT NULL DEFAULT 0,
			repetitions      INTEGER NOT NULL DEFAULT 0,
			seed             INTEGER NOT NULL DEFAULT 0,
			display_seconds  REAL NOT NULL DEFAULT 0,
			gap_seconds      REAL NOT NULL DEFAULT 0,
			started_at       DATETIME NOT NULL,
			ended_at         DATETIME,
			status           TEXT NOT NULL DEFAULT 'running'
			                 CHECK (status IN ('running', 'completed', 'aborted', 'failed')),
			error            TEXT NOT NULL DEFAULT '',
			idle_rows        INTEGER NOT NULL DEFAULT 0,
			stimulus_rows    INTEGER NOT NULL DEFAULT 0,
			frames_dropped   INTEGER NOT NULL DEFAULT 0,
			trials           INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS stimuli (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			ordinal    INTEGER NOT NULL,
			path       TEXT NOT NULL,
			class      TEXT NOT NULL DEFAULT '',
			condition  TEXT NOT NULL,
			PRIMARY KEY (session_id, ordinal)
		)`,

		`CREATE TABLE IF NOT EXISTS trials (
			session_id     TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq            INTEGER NOT NULL,
			repetition     INTEGER NOT NULL,
			block_index    INTEGER NOT NULL,
			stimulus       TEXT NOT NULL,
			condition      TEXT NOT NULL,
			onset_seconds  REAL NOT NULL,
			offset_seconds REAL NOT NULL,
			row_count      INTEGER NOT NULL DEFAULT 0,
			completed      BOOLEAN NOT NULL DEFAULT 1,
			PRIMARY KEY (session_id, seq)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_started     ON sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_participant ON sessions(participant)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status      ON sessions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_trials_stimulus      ON trials(stimulus)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
