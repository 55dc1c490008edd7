package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EmailAddress returns the user's email, or "" when none is on file.
func (db *DB) EmailAddress(ctx context.Context, userID int64) (string, error) {
	row := db.QueryRowContext(ctx, `SELECT email FROM user_emails WHERE user_id = ?`, userID)

	var email string
	if err := row.Scan(&email); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("get email address: %w", err)
	}
	return email, nil
}

// SetEmailAddress records or replaces the user's email.
func (db *DB) SetEmailAddress(ctx context.Context, userID int64, email string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO user_emails (user_id, email, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			updated_at = excluded.updated_at`,
		userID, email, time.Now())
	if err != nil {
		return fmt.Errorf("set email address: %w", err)
	}
	return nil
}
