package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"revia/internal/model"
)

// AppendNotificationLog inserts one log entry. Entries are never updated
// or deleted by the reminder core.
func (db *DB) AppendNotificationLog(ctx context.Context, entry *model.NotificationLog) error {
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode log metadata: %w", err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO notification_logs (id, user_id, type, sent_at, metadata)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Type, entry.SentAt, string(metadata))
	if err != nil {
		return fmt.Errorf("append notification log: %w", err)
	}
	return nil
}

// ListNotificationLogs returns log entries for a user, newest first.
// userID 0 lists entries for all users.
func (db *DB) ListNotificationLogs(ctx context.Context, userID int64, limit int) ([]model.NotificationLog, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if userID != 0 {
		rows, err = db.QueryContext(ctx, `
			SELECT id, user_id, type, sent_at, metadata
			FROM notification_logs
			WHERE user_id = ?
			ORDER BY sent_at DESC
			LIMIT ?`, userID, limit)
	} else {
		rows, err = db.QueryContext(ctx, `
			SELECT id, user_id, type, sent_at, metadata
			FROM notification_logs
			ORDER BY sent_at DESC
			LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list notification logs: %w", err)
	}
	defer rows.Close()

	var entries []model.NotificationLog
	for rows.Next() {
		var entry model.NotificationLog
		var metadata sql.NullString
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Type, &entry.SentAt, &metadata); err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode log metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
