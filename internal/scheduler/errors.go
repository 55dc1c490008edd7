package scheduler

import "errors"

var (
	// ErrPastReminder means the computed fire time is not in the future.
	ErrPastReminder = errors.New("reminder fire time is in the past")

	// ErrPreferencesDisabled means the user has no preferences configured
	// or push reminders are switched off.
	ErrPreferencesDisabled = errors.New("push reminders are disabled in preferences")

	// ErrScheduling is the catch-all for scheduler invariant violations.
	ErrScheduling = errors.New("reminder scheduling failed")
)
