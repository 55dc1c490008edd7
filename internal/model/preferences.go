package model

import (
	"sort"
	"time"
)

// ReminderFrequency defines how often day-based reminders recur.
type ReminderFrequency string

const (
	FrequencyDaily       ReminderFrequency = "daily"
	FrequencyTwiceWeekly ReminderFrequency = "twice_weekly"
	FrequencyWeekly      ReminderFrequency = "weekly"
)

// NotificationPreferences stores per-user reminder settings.
// At most one record exists per user; writes always go through an upsert.
type NotificationPreferences struct {
	UserID            int64             `json:"user_id"`
	EmailEnabled      bool              `json:"email_enabled"`
	PushEnabled       bool              `json:"push_enabled"`
	ReminderTime      string            `json:"reminder_time"` // "HH:MM"
	ReminderDays      []int             `json:"reminder_days"` // weekday indices 0-6
	ReminderFrequency ReminderFrequency `json:"reminder_frequency"`
	Timezone          string            `json:"timezone"` // IANA zone name
	LastRemindedAt    *time.Time        `json:"last_reminded_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// DefaultPreferences returns the defaults applied when a user has never
// configured notifications.
func DefaultPreferences(userID int64) *NotificationPreferences {
	return &NotificationPreferences{
		UserID:            userID,
		EmailEnabled:      true,
		PushEnabled:       true,
		ReminderTime:      "09:00",
		ReminderDays:      []int{1, 3, 5},
		ReminderFrequency: FrequencyDaily,
		Timezone:          "Europe/Moscow",
	}
}

// PreferencesPatch is a partial preference update. Nil fields are absent
// and leave the stored value untouched.
type PreferencesPatch struct {
	EmailEnabled      *bool              `json:"email_enabled,omitempty"`
	PushEnabled       *bool              `json:"push_enabled,omitempty"`
	ReminderTime      *string            `json:"reminder_time,omitempty"`
	ReminderDays      *[]int             `json:"reminder_days,omitempty"`
	ReminderFrequency *ReminderFrequency `json:"reminder_frequency,omitempty"`
	Timezone          *string            `json:"timezone,omitempty"`
	LastRemindedAt    *time.Time         `json:"last_reminded_at,omitempty"`
}

// Apply merges the patch into p field-by-field. Fields absent from the
// patch keep their current value.
func (patch *PreferencesPatch) Apply(p *NotificationPreferences) {
	if patch.EmailEnabled != nil {
		p.EmailEnabled = *patch.EmailEnabled
	}
	if patch.PushEnabled != nil {
		p.PushEnabled = *patch.PushEnabled
	}
	if patch.ReminderTime != nil {
		p.ReminderTime = *patch.ReminderTime
	}
	if patch.ReminderDays != nil {
		p.ReminderDays = NormalizeDays(*patch.ReminderDays)
	}
	if patch.ReminderFrequency != nil {
		p.ReminderFrequency = *patch.ReminderFrequency
	}
	if patch.Timezone != nil {
		p.Timezone = *patch.Timezone
	}
	if patch.LastRemindedAt != nil {
		p.LastRemindedAt = patch.LastRemindedAt
	}
}

// NormalizeDays collapses duplicates, drops out-of-range indices and
// returns the set in ascending order.
func NormalizeDays(days []int) []int {
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
