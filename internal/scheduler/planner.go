package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"revia/internal/notify"
	"revia/internal/platform"
)

// DefaultLeadTime is subtracted from the session start when the caller
// does not specify a lead time.
const DefaultLeadTime = 15 * time.Minute

// SessionOptions tunes a single session reminder.
type SessionOptions struct {
	// MinutesBefore is the lead time in minutes. Zero means the default.
	MinutesBefore int
	// CustomMessage replaces the generated reminder body when set.
	CustomMessage string
}

// Planner derives reminder fire times from session start times and
// delegates the actual arming to the Scheduler.
type Planner struct {
	sched  *Scheduler
	gate   PermissionGate
	prefs  PreferenceSource
	lead   time.Duration
	logger *zerolog.Logger
}

// NewPlanner creates a session reminder planner.
func NewPlanner(sched *Scheduler, gate PermissionGate, prefs PreferenceSource, logger *zerolog.Logger) *Planner {
	return &Planner{sched: sched, gate: gate, prefs: prefs, lead: DefaultLeadTime, logger: logger}
}

// SetDefaultLead overrides the lead time applied when the caller does not
// specify one. Values <= 0 are ignored.
func (p *Planner) SetDefaultLead(d time.Duration) {
	if d > 0 {
		p.lead = d
	}
}

// ScheduleSessionReminder arms a reminder minutesBefore the session start.
// Unlike Schedule, this path never escalates permission: push must already
// be enabled and granted, otherwise it fails fast with
// ErrPreferencesDisabled. The fire time must be strictly in the future.
//
// The cancellation tag is derived from the session start time, so two
// sessions scheduled at the exact same instant share a tag.
func (p *Planner) ScheduleSessionReminder(ctx context.Context, userID int64, sessionName string, scheduledAt time.Time, opts SessionOptions) (*Handle, error) {
	prefs, err := p.prefs.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScheduling, err)
	}
	if prefs == nil || !prefs.PushEnabled {
		return nil, ErrPreferencesDisabled
	}
	if p.gate.Current(ctx, userID) != platform.PermissionGranted {
		return nil, ErrPreferencesDisabled
	}

	lead := p.lead
	if opts.MinutesBefore > 0 {
		lead = time.Duration(opts.MinutesBefore) * time.Minute
	}
	minutes := int(lead / time.Minute)

	fireAt := scheduledAt.Add(-lead)
	if !fireAt.After(time.Now()) {
		return nil, fmt.Errorf("session at %s with %d minute lead: %w",
			scheduledAt.Format(time.RFC3339), minutes, ErrPastReminder)
	}

	body := opts.CustomMessage
	if body == "" {
		body = fmt.Sprintf("%s starts in %d minutes", sessionName, minutes)
	}

	handle, err := p.sched.Schedule(ctx, userID, "Session reminder", notify.Options{
		Body: body,
		Tag:  sessionTag(scheduledAt),
	}, fireAt)
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Int64("user_id", userID).
		Str("session", sessionName).
		Time("session_at", scheduledAt).
		Time("fire_at", fireAt).
		Msg("session reminder planned")

	return handle, nil
}

func sessionTag(scheduledAt time.Time) string {
	return fmt.Sprintf("session-%d", scheduledAt.Unix())
}
