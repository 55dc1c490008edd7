package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"revia/internal/model"
)

// GetPreferences returns the user's stored preferences, or nil when the
// user has never configured notifications.
func (db *DB) GetPreferences(ctx context.Context, userID int64) (*model.NotificationPreferences, error) {
	row := db.QueryRowContext(ctx, `
		SELECT user_id, email_enabled, push_enabled, reminder_time,
		       reminder_days, reminder_frequency, timezone,
		       last_reminded_at, created_at, updated_at
		FROM notification_preferences
		WHERE user_id = ?`, userID)

	var p model.NotificationPreferences
	var days string
	var lastReminded sql.NullTime
	err := row.Scan(&p.UserID, &p.EmailEnabled, &p.PushEnabled, &p.ReminderTime,
		&days, &p.ReminderFrequency, &p.Timezone,
		&lastReminded, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	if err := json.Unmarshal([]byte(days), &p.ReminderDays); err != nil {
		return nil, fmt.Errorf("decode reminder days: %w", err)
	}
	if lastReminded.Valid {
		t := lastReminded.Time
		p.LastRemindedAt = &t
	}
	return &p, nil
}

// UpsertPreferences writes the full record, creating or replacing the
// user's single row.
func (db *DB) UpsertPreferences(ctx context.Context, p *model.NotificationPreferences) error {
	days, err := json.Marshal(model.NormalizeDays(p.ReminderDays))
	if err != nil {
		return fmt.Errorf("encode reminder days: %w", err)
	}

	var lastReminded sql.NullTime
	if p.LastRemindedAt != nil {
		lastReminded = sql.NullTime{Time: *p.LastRemindedAt, Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO notification_preferences
			(user_id, email_enabled, push_enabled, reminder_time, reminder_days,
			 reminder_frequency, timezone, last_reminded_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email_enabled = excluded.email_enabled,
			push_enabled = excluded.push_enabled,
			reminder_time = excluded.reminder_time,
			reminder_days = excluded.reminder_days,
			reminder_frequency = excluded.reminder_frequency,
			timezone = excluded.timezone,
			last_reminded_at = excluded.last_reminded_at,
			updated_at = excluded.updated_at`,
		p.UserID, p.EmailEnabled, p.PushEnabled, p.ReminderTime, string(days),
		p.ReminderFrequency, p.Timezone, lastReminded, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}
