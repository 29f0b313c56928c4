package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Users table
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT UNIQUE NOT NULL,
				email TEXT UNIQUE NOT NULL,
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'viewer',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				last_login_at DATETIME
			);

			-- Refresh tokens table
			CREATE TABLE IF NOT EXISTS refresh_tokens (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				token_hash TEXT UNIQUE NOT NULL,
				expires_at DATETIME NOT NULL,
				created_at DATETIME NOT NULL,
				revoked INTEGER NOT NULL DEFAULT 0,
				revoked_at DATETIME,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			);

			-- Uploads table
			CREATE TABLE IF NOT EXISTS uploads (
				id TEXT PRIMARY KEY,
				filename TEXT NOT NULL,
				sha256 TEXT NOT NULL,
				format TEXT NOT NULL,
				size_bytes INTEGER NOT NULL DEFAULT 0,
				entry_count INTEGER NOT NULL DEFAULT 0,
				skipped_lines INTEGER NOT NULL DEFAULT 0,
				alert_count INTEGER NOT NULL DEFAULT 0,
				metrics_json TEXT,
				received_at DATETIME NOT NULL
			);

			-- Alerts table
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				upload_id TEXT NOT NULL,
				timestamp DATETIME NOT NULL,
				client_ip TEXT NOT NULL,
				attack_type TEXT NOT NULL,
				endpoint TEXT NOT NULL DEFAULT '',
				user_agent TEXT NOT NULL DEFAULT '',
				status_code INTEGER NOT NULL DEFAULT 0,
				confidence REAL NOT NULL,
				details TEXT NOT NULL DEFAULT '',
				raw_sample TEXT NOT NULL DEFAULT '',
				country TEXT NOT NULL DEFAULT '',
				city TEXT NOT NULL DEFAULT '',
				FOREIGN KEY (upload_id) REFERENCES uploads(id) ON DELETE CASCADE
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
			CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			CREATE INDEX IF NOT EXISTS idx_tokens_user ON refresh_tokens(user_id);
			CREATE INDEX IF NOT EXISTS idx_tokens_hash ON refresh_tokens(token_hash);
			CREATE INDEX IF NOT EXISTS idx_uploads_sha256 ON uploads(sha256);
			CREATE INDEX IF NOT EXISTS idx_uploads_received ON uploads(received_at);
			CREATE INDEX IF NOT EXISTS idx_alerts_upload ON alerts(upload_id);
			CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(attack_type);
			CREATE INDEX IF NOT EXISTS idx_alerts_client ON alerts(client_ip);
			CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts(timestamp);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
