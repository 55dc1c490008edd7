package model

import "time"

// NotificationType defines the delivery channel recorded in the log.
type NotificationType string

const (
	TypeEmailReminder    NotificationType = "email_reminder"
	TypePushNotification NotificationType = "push_notification"
	TypeInApp            NotificationType = "in_app"
)

// NotificationLog is an append-only record of one emitted notification.
// Entries are created only after a dispatch attempt and never mutated.
type NotificationLog struct {
	ID       string            `json:"id"`
	UserID   int64             `json:"user_id"`
	Type     NotificationType  `json:"type"`
	SentAt   time.Time         `json:"sent_at"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
