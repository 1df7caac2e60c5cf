// Package storage provides SQLite persistence for portage job history.
package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/user/portage/internal/model"
)

// History is an append-only store of finished-job summaries. Construct
// one at startup and pass it by reference; there is no package-level
// instance.
type History struct {
	db *sql.DB
}

// Open creates or opens the history database under dataDir.
func Open(dataDir string) (*History, error) {
	dbPath := filepath.Join(dataDir, "portage.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}
	if err := h.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return h, nil
}

func (h *History) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS job_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			source_host TEXT,
			dest_host TEXT,
			error_message TEXT,
			created_at DATETIME NOT NULL,
			completed_at DATETIME NOT NULL,
			duration_ns INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_history_completed_at ON job_history(completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_job_history_job_id ON job_history(job_id)`,
	}
	for _, table := range tables {
		if _, err := h.db.Exec(table); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", table, err)
		}
	}
	return nil
}

// Append records one finished job.
func (h *History) Append(s model.JobSummary) error {
	_, err := h.db.Exec(
		`INSERT INTO job_history (job_id, type, status, source_host, dest_host, error_message, created_at, completed_at, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.JobID, string(s.Type), string(s.Status), s.SourceHost, s.DestHost, s.ErrorMessage,
		s.CreatedAt.UTC(), s.CompletedAt.UTC(), int64(s.Duration),
	)
	if err != nil {
		return fmt.Errorf("failed to append job summary: %w", err)
	}
	return nil
}

// Recent returns the n most recently completed jobs, newest first.
func (h *History) Recent(n int) ([]model.JobSummary, error) {
	rows, err := h.db.Query(
		`SELECT job_id, type, status, source_host, dest_host, error_message, created_at, completed_at, duration_ns
		 FROM job_history ORDER BY completed_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []model.JobSummary
	for rows.Next() {
		var s model.JobSummary
		var typ, status string
		var created, completed time.Time
		var dur int64
		if err := rows.Scan(&s.JobID, &typ, &status, &s.SourceHost, &s.DestHost, &s.ErrorMessage, &created, &completed, &dur); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		s.Type = model.JobType(typ)
		s.Status = model.JobStatus(status)
		s.CreatedAt = created
		s.CompletedAt = completed
		s.Duration = time.Duration(dur)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}
