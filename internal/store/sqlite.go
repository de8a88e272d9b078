// Package store provides SQLite-backed transfer history.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the database at dbPath, creating parent directories as needed,
// and runs pending migrations.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// CreateRun inserts a new TransferRun and sets its ID.
func (s *Store) CreateRun(run *TransferRun) error {
	const query = `
		INSERT INTO transfer_runs (
			peer, base_url, start_time, status
		) VALUES (?, ?, ?, ?)
	`
	result, err := s.db.Exec(query, run.Peer, run.BaseURL, run.StartTime, run.Status)
	if err != nil {
		return fmt.Errorf("failed to insert transfer run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// FinishRun records the terminal state of a run.
func (s *Store) FinishRun(run *TransferRun) error {
	const query = `
		UPDATE transfer_runs SET
			end_time = ?, files_completed = ?, files_failed = ?,
			bytes_transferred = ?, status = ?, error_message = ?
		WHERE id = ?
	`
	_, err := s.db.Exec(
		query,
		run.EndTime, run.FilesCompleted, run.FilesFailed,
		run.BytesTransferred, run.Status, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transfer run: %w", err)
	}
	return nil
}

// RecordFile appends a per-file outcome to a run.
func (s *Store) RecordFile(rec *FileRecord) error {
	const query = `
		INSERT INTO transfer_files (
			run_id, remote_path, local_path, size, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.Exec(
		query,
		rec.RunID, rec.RemotePath, rec.LocalPath, rec.Size, rec.Status, rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert file record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]TransferRun, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT id, peer, base_url, start_time, end_time,
			files_completed, files_failed, bytes_transferred,
			status, error_message
		FROM transfer_runs
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfer runs: %w", err)
	}
	defer rows.Close()

	var runs []TransferRun
	for rows.Next() {
		var run TransferRun
		var endTime sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(
			&run.ID, &run.Peer, &run.BaseURL, &run.StartTime, &endTime,
			&run.FilesCompleted, &run.FilesFailed, &run.BytesTransferred,
			&run.Status, &errMsg,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transfer run: %w", err)
		}
		if endTime.Valid {
			run.EndTime = endTime.Time
		}
		run.ErrorMessage = errMsg.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunFiles returns the per-file records of one run in insertion order.
func (s *Store) RunFiles(runID int64) ([]FileRecord, error) {
	const query = `
		SELECT id, run_id, remote_path, local_path, size, status, error_message
		FROM transfer_files
		WHERE run_id = ?
		ORDER BY id ASC
	`
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file records: %w", err)
	}
	defer rows.Close()

	var recs []FileRecord
	for rows.Next() {
		var rec FileRecord
		var errMsg sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.RemotePath, &rec.LocalPath,
			&rec.Size, &rec.Status, &errMsg,
		); err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		rec.ErrorMessage = errMsg.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
