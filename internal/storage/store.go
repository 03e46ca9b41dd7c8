package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store defines the session index operations.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	RecordStimuli(ctx context.Context, sessionID string, entries []StimulusEntry) error
	RecordTrial(ctx context.Context, t *Trial) error
	FinishSession(ctx context.Context, id string, result SessionResult) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, q SessionQuery) ([]Session, error)
	ListTrials(ctx context.Context, sessionID string) ([]Trial, error)
	ListStimuli(ctx context.Context, sessionID string) ([]StimulusEntry, error)
	DeleteSession(ctx context.Context, id string) error
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	// Prepared statements
	insertSession *sql.Stmt
	insertTrial   *sql.Stmt
	finishSession *sql.Stmt
	getSession    *sql.Stmt
	deleteSession *sql.Stmt
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

const sessionColumns = `id, participant, log_path, driver, device_id, channels, frame_length,
	test_signal, repetitions, seed, display_seconds, gap_seconds, started_at, ended_at,
	status, error, idle_rows, stimulus_rows, frames_dropped, trials`

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.insertSession, err = s.db.Prepare(`
		INSERT INTO sessions (id, participant, log_path, driver, device_id, channels, frame_length,
			test_signal, repetitions, seed, display_seconds, gap_seconds, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	s.insertTrial, err = s.db.Prepare(`
		INSERT INTO trials (session_id, seq, repetition, block_index, stimulus, condition,
			onset_seconds, offset_seconds, row_count, completed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	s.finishSession, err = s.db.Prepare(`
		UPDATE sessions
		SET ended_at = ?, status = ?, error = ?, idle_rows = ?, stimulus_rows = ?,
		    frames_dropped = ?, trials = ?
		WHERE id = ?
	`)
	if err != nil {
		return err
	}

	s.getSession, err = s.db.Prepare(`SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`)
	if err != nil {
		return err
	}

	s.deleteSession, err = s.db.Prepare(`DELETE FROM sessions WHERE id = ?`)
	if err != nil {
		return err
	}

	return nil
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.999999999-07:00",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func seconds(d time.Duration) float64 { return d.Seconds() }

func fromSeconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second)).Round(time.Microsecond)
}

// CreateSession inserts a new running session. ID and StartedAt are filled
// in when empty.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	sess.Status = StatusRunning

	_, err := s.insertSession.ExecContext(ctx,
		sess.ID, sess.Participant, sess.LogPath, sess.Driver, sess.DeviceID,
		sess.Channels, sess.FrameLength, sess.TestSignal, sess.Repetitions, sess.Seed,
		seconds(sess.DisplayDuration), seconds(sess.InterTrialGap),
		formatTimestamp(sess.StartedAt), sess.Status,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// RecordStimuli stores the catalogue a session draws from, in a single transaction.
func (s *SQLiteStore) RecordStimuli(ctx context.Context, sessionID string, entries []StimulusEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stimuli (session_id, ordinal, path, class, condition) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare stimulus insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, sessionID, i, e.Path, e.Class, e.Condition); err != nil {
			return fmt.Errorf("insert stimulus %s: %w", e.Path, err)
		}
	}

	return tx.Commit()
}

// RecordTrial stores one presentation.
func (s *SQLiteStore) RecordTrial(ctx context.Context, t *Trial) error {
	_, err := s.insertTrial.ExecContext(ctx,
		t.SessionID, t.Seq, t.Repetition, t.Index, t.Stimulus, t.Condition,
		seconds(t.Onset), seconds(t.Offset), t.Rows, t.Completed,
	)
	if err != nil {
		return fmt.Errorf("insert trial: %w", err)
	}
	return nil
}

// FinishSession records the outcome of a session.
func (s *SQLiteStore) FinishSession(ctx context.Context, id string, r SessionResult) error {
	if r.EndedAt.IsZero() {
		r.EndedAt = time.Now()
	}
	res, err := s.finishSession.ExecContext(ctx,
		formatTimestamp(r.EndedAt), r.Status, r.Error,
		r.IdleRows, r.StimulusRows, r.FramesDropped, r.Trials, id,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetSession retrieves a session by full ID or by a unique ID prefix.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	sess, err := scanSession(s.getSession.QueryRowContext(ctx, id))
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get session: %w", err)
	}

	// Fall back to prefix match, as printed by the sessions listing.
	matches, err := s.scanSessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id LIKE ? ESCAPE '\' LIMIT 2`,
		escapeLike(id)+"%",
	)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("session prefix %q is ambiguous", id)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ListSessions queries sessions with optional filters, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, q SessionQuery) ([]Session, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	var clauses []string
	var args []interface{}

	if q.Participant != "" {
		clauses = append(clauses, "participant = ?")
		args = append(args, q.Participant)
	}
	if q.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, q.Status)
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, formatTimestamp(q.Since))
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	fullQuery := `SELECT ` + sessionColumns + ` FROM sessions` + where + " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	return s.scanSessions(ctx, fullQuery, args...)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(r rowScanner) (*Session, error) {
	var sess Session
	var startedStr string
	var endedStr sql.NullString
	var display, gap float64

	err := r.Scan(
		&sess.ID, &sess.Participant, &sess.LogPath, &sess.Driver, &sess.DeviceID,
		&sess.Channels, &sess.FrameLength, &sess.TestSignal, &sess.Repetitions, &sess.Seed,
		&display, &gap, &startedStr, &endedStr,
		&sess.Status, &sess.Error, &sess.IdleRows, &sess.StimulusRows, &sess.FramesDropped, &sess.Trials,
	)
	if err != nil {
		return nil, err
	}

	sess.DisplayDuration = fromSeconds(display)
	sess.InterTrialGap = fromSeconds(gap)
	sess.StartedAt, _ = parseTimestamp(startedStr)
	if endedStr.Valid {
		sess.EndedAt, _ = parseTimestamp(endedStr.String)
	}
	return &sess, nil
}

// scanSessions executes a query and scans results into a Session slice.
func (s *SQLiteStore) scanSessions(ctx context.Context, query string, args ...interface{}) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// ListTrials returns a session's trials in presentation order.
func (s *SQLiteStore) ListTrials(ctx context.Context, sessionID string) ([]Trial, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, repetition, block_index, stimulus, condition,
		       onset_seconds, offset_seconds, row_count, completed
		FROM trials WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	trials := []Trial{}
	for rows.Next() {
		var t Trial
		var onset, offset float64
		if err := rows.Scan(
			&t.SessionID, &t.Seq, &t.Repetition, &t.Index, &t.Stimulus, &t.Condition,
			&onset, &offset, &t.Rows, &t.Completed,
		); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		t.Onset = fromSeconds(onset)
		t.Offset = fromSeconds(offset)
		trials = append(trials, t)
	}
	return trials, rows.Err()
}

// ListStimuli returns a session's catalogue in the order it was recorded.
func (s *SQLiteStore) ListStimuli(ctx context.Context, sessionID string) ([]StimulusEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, class, condition FROM stimuli WHERE session_id = ? ORDER BY ordinal`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stimuli: %w", err)
	}
	defer rows.Close()

	entries := []StimulusEntry{}
	for rows.Next() {
		var e StimulusEntry
		if err := rows.Scan(&e.Path, &e.Class, &e.Condition); err != nil {
			return nil, fmt.Errorf("scan stimulus: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteSession removes a session from the index. Trials and stimuli are
// cascade-deleted by the schema; the session CSV is left untouched.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.deleteSession.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetStats returns aggregate statistics about the index.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(idle_rows + stimulus_rows), 0) FROM sessions",
	).Scan(&stats.TotalSessions, &stats.TotalRows)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trials").Scan(&stats.TotalTrials)
	if err != nil {
		return nil, fmt.Errorf("count trials: %w", err)
	}

	// Oldest and newest (handle empty DB)
	if stats.TotalSessions > 0 {
		var oldestStr, newestStr string
		err = s.db.QueryRowContext(ctx, "SELECT MIN(started_at), MAX(started_at) FROM sessions").Scan(&oldestStr, &newestStr)
		if err != nil {
			return nil, fmt.Errorf("session time range: %w", err)
		}
		stats.OldestSession, _ = parseTimestamp(oldestStr)
		stats.NewestSession, _ = parseTimestamp(newestStr)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) AS cnt FROM sessions GROUP BY status ORDER BY cnt DESC, status",
	)
	if err != nil {
		return nil, fmt.Errorf("sessions by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		stats.ByStatus = append(stats.ByStatus, sc)
	}

	return stats, rows.Err()
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed; that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.insertSession, s.insertTrial, s.finishSession,
		s.getSession, s.deleteSession,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
