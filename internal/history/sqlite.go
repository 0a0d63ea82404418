package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS ticks (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	status      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_ticks_project ON ticks(project_id, started_at);
`

// SQLite is the default Sink. WAL mode plus a busy timeout lets several
// workers append concurrently to the one machine-wide database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the tick database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY churn inside one process.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Append(ctx context.Context, t Tick) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticks (id, project_id, started_at, finished_at, status, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.StartedAt.Unix(), t.FinishedAt.Unix(), string(t.Status), t.Detail)
	if err != nil {
		return fmt.Errorf("history: append tick for %s: %w", t.ProjectID, err)
	}
	return nil
}

func (s *SQLite) Last(ctx context.Context, projectID string) (Tick, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, started_at, finished_at, status, detail
		 FROM ticks WHERE project_id = ?
		 ORDER BY started_at DESC, id DESC LIMIT 1`, projectID)

	var t Tick
	var started, finished int64
	var status string
	err := row.Scan(&t.ID, &t.ProjectID, &started, &finished, &status, &t.Detail)
	if errors.Is(err, sql.ErrNoRows) {
		return Tick{}, ErrNoTicks
	}
	if err != nil {
		return Tick{}, fmt.Errorf("history: last tick for %s: %w", projectID, err)
	}
	t.StartedAt = time.Unix(started, 0)
	t.FinishedAt = time.Unix(finished, 0)
	t.Status = Status(status)
	return t, nil
}

// Prune deletes records older than the retention window.
func (s *SQLite) Prune(ctx context.Context, keep time.Duration) error {
	cutoff := time.Now().Add(-keep).Unix()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ticks WHERE started_at < ?`, cutoff); err != nil {
		return fmt.Errorf("history: prune: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
