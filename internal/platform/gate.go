package platform

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"revia/internal/events"
	"revia/internal/metrics"
)

// Gate normalizes the host permission model. A nil API means the
// environment has no notification primitive at all; that state is
// absorbing, there is no transition out of it.
type Gate struct {
	api    API
	bus    *events.Bus
	logger *zerolog.Logger

	mu      sync.Mutex
	lastErr *PermissionRequestError
}

// NewGate creates a permission gate over the given platform API.
// api may be nil for unsupported environments.
func NewGate(api API, bus *events.Bus, logger *zerolog.Logger) *Gate {
	return &Gate{api: api, bus: bus, logger: logger}
}

// Supported reports whether the host exposes a notification primitive.
func (g *Gate) Supported() bool {
	return g.api != nil
}

// Current returns the normalized permission value for the user.
// Platform lookup failures are logged and reported as "default" so that a
// later Request can resolve the real value.
func (g *Gate) Current(ctx context.Context, userID int64) Permission {
	if g.api == nil {
		return PermissionUnsupported
	}

	perm, err := g.api.Permission(ctx, userID)
	if err != nil {
		g.logger.Warn().Err(err).Int64("user_id", userID).Msg("permission lookup failed")
		return PermissionDefault
	}
	return perm
}

// Request asks the platform for notification authorization. It returns
// true on "granted" and false on "denied". An unexpected platform failure
// also returns false: the error is recorded and retrievable via
// LastRequestError instead of forcing callers into error handling for the
// common declined path. The only returned error is ErrUnsupportedEnvironment.
func (g *Gate) Request(ctx context.Context, userID int64) (bool, error) {
	if g.api == nil {
		return false, ErrUnsupportedEnvironment
	}

	perm, err := g.api.Request(ctx, userID)
	if err != nil {
		reqErr := &PermissionRequestError{UserID: userID, Err: err}
		g.mu.Lock()
		g.lastErr = reqErr
		g.mu.Unlock()

		g.logger.Error().Err(err).Int64("user_id", userID).Msg("permission request failed")
		metrics.IncPermissionRequest("error")
		return false, nil
	}

	granted := perm == PermissionGranted
	if granted {
		metrics.IncPermissionRequest("granted")
		g.publish(events.TypePermissionGranted, userID, "notifications enabled")
	} else {
		metrics.IncPermissionRequest("denied")
		g.publish(events.TypePermissionRefused, userID, "notifications refused")
	}

	g.logger.Info().
		Int64("user_id", userID).
		Str("permission", string(perm)).
		Msg("permission request resolved")

	return granted, nil
}

// LastRequestError returns the most recent unexpected platform failure
// recorded by Request, or nil.
func (g *Gate) LastRequestError() *PermissionRequestError {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

func (g *Gate) publish(eventType string, userID int64, msg string) {
	if g.bus == nil {
		return
	}
	g.bus.Publish(events.Event{Type: eventType, UserID: userID, Message: msg})
}
