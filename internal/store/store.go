// Package store persists the audit trail of pipeline runs: which stages
// ran, what verdicts they produced, which escalations were raised and how
// they resolved. The workspace holds the artifacts themselves; the store
// answers "what happened, when" without replaying git history.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the quintet audit database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		workspace   TEXT NOT NULL,
		task        TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'running',
		iterations  INTEGER NOT NULL DEFAULT 0,
		started_at  DATETIME NOT NULL,
		ended_at    DATETIME
	);

	CREATE TABLE IF NOT EXISTS stages (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id       TEXT NOT NULL REFERENCES runs(id),
		iteration    INTEGER NOT NULL,
		role         TEXT NOT NULL,
		verdict      TEXT NOT NULL,
		artifact     TEXT DEFAULT '',
		failed       INTEGER NOT NULL DEFAULT 0,
		duration_ms  INTEGER NOT NULL DEFAULT 0,
		timestamp    DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS escalations (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL REFERENCES runs(id),
		iteration   INTEGER NOT NULL,
		role        TEXT NOT NULL,
		question    TEXT NOT NULL,
		resolution  TEXT DEFAULT '',
		timestamp   DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL REFERENCES runs(id),
		event_type  TEXT NOT NULL,
		content     TEXT DEFAULT '',
		timestamp   DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// StartRun records a new pipeline run and returns it with a generated ID.
func (s *Store) StartRun(workspace, task string) (*Run, error) {
	now := time.Now().UTC()
	id := uuid.NewString()

	_, err := s.db.Exec(
		`INSERT INTO runs (id, workspace, task, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, workspace, task, string(StatusRunning), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	s.AddEvent(id, "started", fmt.Sprintf("run started in workspace %s", workspace))

	return &Run{
		ID:        id,
		Workspace: workspace,
		Task:      task,
		Status:    StatusRunning,
		StartedAt: now,
	}, nil
}

// EndRun marks a run's terminal status and final iteration count.
func (s *Store) EndRun(runID string, status RunStatus, iterations int) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, iterations = ?, ended_at = ? WHERE id = ?`,
		string(status), iterations, now, runID,
	)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	s.AddEvent(runID, "ended", fmt.Sprintf("run ended %s after %d iteration(s)", status, iterations))
	return nil
}

// runColumns is the standard column list for run queries.
const runColumns = `id, workspace, task, status, iterations, started_at, ended_at`

// GetRun returns a single run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns all runs, optionally filtered by status, newest first.
func (s *Store) ListRuns(status string) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent run for a workspace, or nil if the
// workspace has never run.
func (s *Store) LatestRun(workspace string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE workspace = ? ORDER BY started_at DESC LIMIT 1`,
		workspace,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// AddStage records one stage execution.
func (s *Store) AddStage(runID string, iteration int, role, verdict, artifact string, failed bool, duration time.Duration) error {
	now := time.Now().UTC()
	failedInt := 0
	if failed {
		failedInt = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO stages (run_id, iteration, role, verdict, artifact, failed, duration_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, iteration, role, verdict, artifact, failedInt, duration.Milliseconds(), now,
	)
	if err != nil {
		return fmt.Errorf("insert stage: %w", err)
	}
	return nil
}

// ListStages returns all stages for a run in execution order.
func (s *Store) ListStages(runID string) ([]Stage, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, iteration, role, verdict, artifact, failed, duration_ms, timestamp
		 FROM stages WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()

	var stages []Stage
	for rows.Next() {
		var st Stage
		var failed int
		if err := rows.Scan(&st.ID, &st.RunID, &st.Iteration, &st.Role, &st.Verdict,
			&st.Artifact, &failed, &st.DurationMS, &st.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		st.Failed = failed != 0
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

// AddEscalation records a raised escalation and its resolution.
func (s *Store) AddEscalation(runID string, iteration int, role, question, resolution string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO escalations (run_id, iteration, role, question, resolution, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, iteration, role, question, resolution, now,
	)
	if err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}
	s.AddEvent(runID, "escalation", fmt.Sprintf("%s escalated: %s", role, question))
	return nil
}

// ListEscalations returns all escalations for a run in raise order.
func (s *Store) ListEscalations(runID string) ([]Escalation, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, iteration, role, question, resolution, timestamp
		 FROM escalations WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query escalations: %w", err)
	}
	defer rows.Close()

	var escs []Escalation
	for rows.Next() {
		var e Escalation
		if err := rows.Scan(&e.ID, &e.RunID, &e.Iteration, &e.Role, &e.Question,
			&e.Resolution, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		escs = append(escs, e)
	}
	return escs, rows.Err()
}

// AddEvent records an audit event for a run. Best-effort: audit entries
// never fail a run.
func (s *Store) AddEvent(runID, eventType, content string) {
	now := time.Now().UTC()
	s.db.Exec(
		`INSERT INTO events (run_id, event_type, content, timestamp) VALUES (?, ?, ?, ?)`,
		runID, eventType, content, now,
	)
}

// GetEvents returns all events for a run in order.
func (s *Store) GetEvents(runID string) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, event_type, content, timestamp FROM events WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.Content, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// scanRun scans a single run from a *sql.Row.
func scanRun(row *sql.Row) (*Run, error) {
	var r Run
	var endedAt sql.NullTime
	err := row.Scan(&r.ID, &r.Workspace, &r.Task, &r.Status, &r.Iterations, &r.StartedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if endedAt.Valid {
		r.EndedAt = endedAt.Time
	}
	return &r, nil
}

// scanRunRows scans a single run from *sql.Rows.
func scanRunRows(rows *sql.Rows) (*Run, error) {
	var r Run
	var endedAt sql.NullTime
	err := rows.Scan(&r.ID, &r.Workspace, &r.Task, &r.Status, &r.Iterations, &r.StartedAt, &endedAt)
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if endedAt.Valid {
		r.EndedAt = endedAt.Time
	}
	return &r, nil
}
