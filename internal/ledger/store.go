package ledger

import (
	"database/sql"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS load_runs (
	id TEXT PRIMARY KEY,
	input TEXT NOT NULL,
	database TEXT NOT NULL,
	state TEXT NOT NULL,
	predicates INTEGER NOT NULL DEFAULT 0,
	stats_path TEXT,
	started_at DATETIME NOT NULL,
	started_ns INTEGER NOT NULL,
	finished_at DATETIME,
	error TEXT
);

CREATE INDEX IF NOT EXISTS idx_load_runs_started ON load_runs(started_ns);
CREATE INDEX IF NOT EXISTS idx_load_runs_database ON load_runs(database);
`

// Run is one recorded load.
type Run struct {
	ID         string
	Input      string
	Database   string
	State      string
	Predicates int
	StatsPath  string
	StartedAt  time.Time
	FinishedAt *time.Time
	Error      string
}

// Store persists load runs in the warehouse metastore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Start records a run that has just begun.
func (s *Store) Start(id, input, database, statsPath string) error {
	now := s.now()

	_, err := s.db.Exec(
		`INSERT INTO load_runs (id, input, database, state, stats_path, started_at, started_ns) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		input,
		database,
		"Init",
		nullString(statsPath),
		now,
		now.UnixNano(),
	)

	return err
}

// Finish stores the final state of a run. runErr may be nil.
func (s *Store) Finish(id, state string, predicates int, runErr error) error {
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE load_runs SET state = ?, predicates = ?, finished_at = ?, error = ? WHERE id = ?`,
		state,
		predicates,
		s.now(),
		msg,
		id,
	)

	return err
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, input, database, state, predicates, stats_path, started_at, finished_at, error
		FROM load_runs
		ORDER BY started_ns DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var statsPath, runErr sql.NullString
		var finishedAt sql.NullTime

		if err := rows.Scan(&r.ID, &r.Input, &r.Database, &r.State, &r.Predicates, &statsPath, &r.StartedAt, &finishedAt, &runErr); err != nil {
			return nil, err
		}

		r.StatsPath = statsPath.String
		r.Error = runErr.String
		if finishedAt.Valid {
			t := finishedAt.Time
			r.FinishedAt = &t
		}

		runs = append(runs, r)
	}

	return runs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
