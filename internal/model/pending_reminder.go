package model

import "time"

// PendingReminder is the durable form of an armed reminder. Rows exist so
// a restart can re-arm future reminders and immediately fire overdue ones;
// they are deleted when the reminder fires or is cancelled.
type PendingReminder struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Tag       string    `json:"tag"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	FireAt    time.Time `json:"fire_at"`
	CreatedAt time.Time `json:"created_at"`
}
