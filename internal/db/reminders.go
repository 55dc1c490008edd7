package db

import (
	"context"
	"fmt"

	"revia/internal/model"
)

// InsertPendingReminder persists an armed reminder.
func (db *DB) InsertPendingReminder(ctx context.Context, r *model.PendingReminder) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO pending_reminders (id, user_id, tag, title, body, fire_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Tag, r.Title, r.Body, r.FireAt, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pending reminder: %w", err)
	}
	return nil
}

// DeletePendingReminder removes one armed reminder by id.
func (db *DB) DeletePendingReminder(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM pending_reminders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete pending reminder: %w", err)
	}
	return nil
}

// DeletePendingByTag removes every armed reminder in a tag family.
func (db *DB) DeletePendingByTag(ctx context.Context, tag string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM pending_reminders WHERE tag = ?`, tag)
	if err != nil {
		return fmt.Errorf("delete pending reminders by tag: %w", err)
	}
	return nil
}

// ClearPendingReminders removes all armed reminders.
func (db *DB) ClearPendingReminders(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `DELETE FROM pending_reminders`)
	if err != nil {
		return fmt.Errorf("clear pending reminders: %w", err)
	}
	return nil
}

// PendingReminders returns all armed reminders ordered by fire time, for
// the startup recovery scan.
func (db *DB) PendingReminders(ctx context.Context) ([]model.PendingReminder, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, tag, title, body, fire_at, created_at
		FROM pending_reminders
		ORDER BY fire_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("load pending reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.PendingReminder
	for rows.Next() {
		var r model.PendingReminder
		if err := rows.Scan(&r.ID, &r.UserID, &r.Tag, &r.Title, &r.Body, &r.FireAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending reminder: %w", err)
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}
