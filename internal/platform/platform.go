// Package platform abstracts the host notification primitive and its
// permission model behind injectable ports.
package platform

import (
	"context"
	"errors"
	"fmt"
)

// Permission is the host's notification authorization value for a user.
type Permission string

const (
	PermissionUnsupported Permission = "unsupported"
	PermissionDefault     Permission = "default"
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
)

// Notification is the payload accepted by the platform primitive.
type Notification struct {
	Title              string
	Body               string
	Icon               string
	Badge              string
	Tag                string
	RequireInteraction bool
}

// Live is a handle to a displayed notification.
type Live interface {
	// Tag returns the cancellation tag the notification was shown with.
	Tag() string
	// Close removes the notification from the user's view. Closing an
	// already-closed notification is a no-op.
	Close(ctx context.Context) error
}

// API is the platform notification primitive. Implementations are expected
// to be safe for concurrent use.
type API interface {
	// Permission returns the current authorization value for the user.
	Permission(ctx context.Context, userID int64) (Permission, error)

	// Request asks the user for notification authorization and returns
	// the resulting value. "default" never comes back from a request.
	Request(ctx context.Context, userID int64) (Permission, error)

	// Show displays a notification and returns a live handle to it.
	Show(ctx context.Context, userID int64, n Notification) (Live, error)
}

// ErrUnsupportedEnvironment is returned when no notification primitive is
// available in the host environment.
var ErrUnsupportedEnvironment = errors.New("notifications are not supported in this environment")

// ErrPermissionDenied is returned when the user refused notification
// authorization and a notification-requiring path cannot proceed.
var ErrPermissionDenied = errors.New("notification permission denied")

// PermissionRequestError records an unexpected platform failure during a
// permission request. It is retrievable from the gate rather than thrown,
// so callers keep a plain boolean path for the common "user declined" case.
type PermissionRequestError struct {
	UserID int64
	Err    error
}

func (e *PermissionRequestError) Error() string {
	return fmt.Sprintf("permission request for user %d failed: %v", e.UserID, e.Err)
}

func (e *PermissionRequestError) Unwrap() error {
	return e.Err
}
