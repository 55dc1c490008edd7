// Package db provides the sqlite-backed stores for preferences,
// notification logs and durable pending reminders.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the reminder service.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// One row per user; creation and update are unified as an upsert.
		`CREATE TABLE IF NOT EXISTS notification_preferences (
            user_id INTEGER PRIMARY KEY,
            email_enabled BOOLEAN NOT NULL DEFAULT 1,
            push_enabled BOOLEAN NOT NULL DEFAULT 1,
            reminder_time TEXT NOT NULL DEFAULT '09:00',
            reminder_days TEXT NOT NULL DEFAULT '[]',
            reminder_frequency TEXT NOT NULL DEFAULT 'daily',
            timezone TEXT NOT NULL DEFAULT 'Europe/Moscow',
            last_reminded_at DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,

		// Append-only; never mutated or deleted by this subsystem.
		`CREATE TABLE IF NOT EXISTS notification_logs (
            id TEXT PRIMARY KEY,
            user_id INTEGER NOT NULL,
            type TEXT NOT NULL,
            sent_at DATETIME NOT NULL,
            metadata TEXT
        )`,

		// Armed reminders; rows back the startup recovery scan.
		`CREATE TABLE IF NOT EXISTS pending_reminders (
            id TEXT PRIMARY KEY,
            user_id INTEGER NOT NULL,
            tag TEXT NOT NULL,
            title TEXT NOT NULL,
            body TEXT,
            fire_at DATETIME NOT NULL,
            created_at DATETIME NOT NULL
        )`,

		// Email addresses collected for the email reminder channel.
		`CREATE TABLE IF NOT EXISTS user_emails (
            user_id INTEGER PRIMARY KEY,
            email TEXT NOT NULL,
            updated_at DATETIME NOT NULL
        )`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_logs_user ON notification_logs(user_id, sent_at)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_tag ON pending_reminders(tag)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_fire_at ON pending_reminders(fire_at)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
