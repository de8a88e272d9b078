package store

import (
	"fmt"
)

// migrate runs all pending migrations
func (s *Store) migrate() error {
	createMigrationsTableSQL := `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := s.db.Exec(createMigrationsTableSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	s.logger.Debug("current schema version", "version", currentVersion)

	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
				CREATE TABLE transfer_runs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					peer TEXT NOT NULL,
					base_url TEXT NOT NULL,
					start_time DATETIME NOT NULL,
					end_time DATETIME,
					files_completed INTEGER DEFAULT 0,
					files_failed INTEGER DEFAULT 0,
					bytes_transferred INTEGER DEFAULT 0,
					status TEXT DEFAULT 'running',
					error_message TEXT
				);

				CREATE TABLE transfer_files (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id INTEGER NOT NULL,
					remote_path TEXT NOT NULL,
					local_path TEXT,
					size INTEGER DEFAULT 0,
					status TEXT NOT NULL,
					error_message TEXT,
					FOREIGN KEY(run_id) REFERENCES transfer_runs(id)
				);

				CREATE INDEX idx_transfer_files_run ON transfer_files(run_id);
			`,
		},
	}

	for _, mig := range migrations {
		if mig.version > currentVersion {
			s.logger.Info("running migration", "version", mig.version)
			if err := s.runMigration(mig.version, mig.sql); err != nil {
				return fmt.Errorf("failed to run migration %d: %w", mig.version, err)
			}
		}
	}
	return nil
}

// runMigration executes a migration and records it
func (s *Store) runMigration(version int, sql string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
