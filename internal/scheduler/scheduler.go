// Package scheduler turns absolute fire times into deferred notification
// dispatches, tracks pending reminders by tag and supports best-effort
// cancellation.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"revia/internal/events"
	"revia/internal/metrics"
	"revia/internal/model"
	"revia/internal/notify"
	"revia/internal/platform"
)

// PermissionGate is the permission side of the platform boundary.
type PermissionGate interface {
	Current(ctx context.Context, userID int64) platform.Permission
	Request(ctx context.Context, userID int64) (bool, error)
}

// PreferenceSource reads the user's notification preferences.
// nil means never configured.
type PreferenceSource interface {
	Get(ctx context.Context, userID int64) (*model.NotificationPreferences, error)
}

// Dispatcher emits the notification when a reminder fires and closes live
// notifications on cancellation.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID int64, title string, opts notify.Options) error
	CloseTag(tag string)
	CloseAll()
}

// EmailChannel delivers the email copy of a fired reminder.
type EmailChannel interface {
	SendReminder(ctx context.Context, userID int64, subject, body string) error
}

// ReminderStore persists armed reminders for the startup recovery scan.
type ReminderStore interface {
	InsertPendingReminder(ctx context.Context, r *model.PendingReminder) error
	DeletePendingReminder(ctx context.Context, id string) error
	DeletePendingByTag(ctx context.Context, tag string) error
	ClearPendingReminders(ctx context.Context) error
	PendingReminders(ctx context.Context) ([]model.PendingReminder, error)
}

// Handle describes one scheduled reminder as returned to the caller.
type Handle struct {
	Tag       string        `json:"tag"`
	FireAt    time.Time     `json:"fire_at"`
	Delay     time.Duration `json:"delay"`
	Cancelled bool          `json:"cancelled"`
}

type entry struct {
	id     string
	userID int64
	tag    string
	title  string
	opts   notify.Options
	fireAt time.Time
	timer  *time.Timer
}

// Scheduler holds the in-memory registry of armed reminders. Entries are
// keyed by a unique id with a tag index for O(1) cancellation; colliding
// tags produce independent entries, not coalesced ones.
type Scheduler struct {
	gate       PermissionGate
	prefs      PreferenceSource
	dispatcher Dispatcher
	email      EmailChannel  // nil disables the email copy
	store      ReminderStore // nil disables durability
	bus        *events.Bus   // nil disables lifecycle events
	logger     *zerolog.Logger
	clock      func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	byTag   map[string][]*entry
}

// New creates a scheduler. email and store are optional.
func New(
	gate PermissionGate,
	prefs PreferenceSource,
	dispatcher Dispatcher,
	email EmailChannel,
	store ReminderStore,
	logger *zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		gate:       gate,
		prefs:      prefs,
		dispatcher: dispatcher,
		email:      email,
		store:      store,
		logger:     logger,
		clock:      time.Now,
		entries:    make(map[string]*entry),
		byTag:      make(map[string][]*entry),
	}
}

// UseBus publishes reminder lifecycle events on the bus.
func (s *Scheduler) UseBus(bus *events.Bus) {
	s.bus = bus
}

func (s *Scheduler) publish(eventType string, userID int64, msg string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: eventType, UserID: userID, Message: msg})
}

// Schedule arms a reminder for fireAt. Preconditions are checked before
// any timer or platform call, so a failed schedule has no side effects:
// fireAt must not be in the past, permission must be granted (one
// escalation through the gate is attempted from "default"), and the user's
// preferences must have push enabled. A zero delay is valid and fires
// immediately.
func (s *Scheduler) Schedule(ctx context.Context, userID int64, title string, opts notify.Options, fireAt time.Time) (*Handle, error) {
	now := s.clock()
	if fireAt.Before(now) {
		return nil, fmt.Errorf("fire at %s: %w", fireAt.Format(time.RFC3339), ErrPastReminder)
	}

	if err := s.ensurePermission(ctx, userID); err != nil {
		return nil, err
	}

	p, err := s.prefs.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScheduling, err)
	}
	if p == nil || !p.PushEnabled {
		return nil, ErrPreferencesDisabled
	}

	if opts.Tag == "" {
		opts.Tag = notify.DefaultTag
	}
	delay := fireAt.Sub(now)

	e := &entry{
		id:     uuid.NewString(),
		userID: userID,
		tag:    opts.Tag,
		title:  title,
		opts:   opts,
		fireAt: fireAt,
	}
	s.persist(ctx, e)
	s.arm(e, delay)

	metrics.IncScheduled(sourceForTag(e.tag))
	s.publish(events.TypeReminderScheduled, userID, "reminder scheduled: "+title)
	s.logger.Info().
		Int64("user_id", userID).
		Str("tag", e.tag).
		Time("fire_at", fireAt).
		Dur("delay", delay).
		Msg("reminder scheduled")

	return &Handle{Tag: e.tag, FireAt: fireAt, Delay: delay, Cancelled: false}, nil
}

// ensurePermission escalates through the gate at most once.
func (s *Scheduler) ensurePermission(ctx context.Context, userID int64) error {
	perm := s.gate.Current(ctx, userID)
	if perm == platform.PermissionGranted {
		return nil
	}
	if perm == platform.PermissionUnsupported {
		return platform.ErrUnsupportedEnvironment
	}

	granted, err := s.gate.Request(ctx, userID)
	if err != nil {
		return err
	}
	if !granted {
		return platform.ErrPermissionDenied
	}
	return nil
}

// Cancel suppresses every pending reminder armed with the tag and closes
// any live notification in the same tag family. Nothing matching is a
// normal outcome, not an error. A cancel racing an in-flight firing timer
// may lose the race.
func (s *Scheduler) Cancel(tag string) {
	s.mu.Lock()
	group := s.byTag[tag]
	delete(s.byTag, tag)
	for _, e := range group {
		e.timer.Stop()
		delete(s.entries, e.id)
	}
	pending := len(s.entries)
	s.mu.Unlock()

	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.DeletePendingByTag(ctx, tag); err != nil {
			s.logger.Warn().Err(err).Str("tag", tag).Msg("delete pending reminders failed")
		}
		cancel()
	}

	s.dispatcher.CloseTag(tag)

	if len(group) > 0 {
		metrics.IncCancelled(len(group))
		metrics.SetPending(pending)
		s.logger.Info().Str("tag", tag).Int("cancelled", len(group)).Msg("reminders cancelled")
	}
}

// CancelAll cancels every tracked pending reminder and closes every live
// notification associated with this subsystem.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	count := len(s.entries)
	for _, e := range s.entries {
		e.timer.Stop()
	}
	s.entries = make(map[string]*entry)
	s.byTag = make(map[string][]*entry)
	s.mu.Unlock()

	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.ClearPendingReminders(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("clear pending reminders failed")
		}
		cancel()
	}

	s.dispatcher.CloseAll()

	if count > 0 {
		metrics.IncCancelled(count)
		metrics.SetPending(0)
		s.logger.Info().Int("cancelled", count).Msg("all reminders cancelled")
	}
}

// Pending returns the number of armed reminders.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Recover re-arms persisted reminders after a restart. Future rows get a
// fresh timer; overdue rows fire immediately. Rows whose user has since
// disabled push are dropped.
func (s *Scheduler) Recover(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	rows, err := s.store.PendingReminders(ctx)
	if err != nil {
		return fmt.Errorf("load pending reminders: %w", err)
	}

	now := s.clock()
	rearmed, fired, dropped, retained := 0, 0, 0, 0
	for i := range rows {
		row := rows[i]

		p, err := s.prefs.Get(ctx, row.UserID)
		if err != nil {
			// A store hiccup must not lose the reminder; leave the row
			// for the next start.
			s.logger.Warn().Err(err).
				Int64("user_id", row.UserID).
				Str("tag", row.Tag).
				Msg("preference lookup failed during recovery, row retained")
			retained++
			continue
		}
		if p == nil || !p.PushEnabled {
			s.dropRow(ctx, row.ID)
			dropped++
			continue
		}

		e := &entry{
			id:     row.ID,
			userID: row.UserID,
			tag:    row.Tag,
			title:  row.Title,
			opts:   notify.Options{Body: row.Body, Tag: row.Tag},
			fireAt: row.FireAt,
		}

		delay := row.FireAt.Sub(now)
		if delay <= 0 {
			delay = 0
			fired++
		} else {
			rearmed++
		}
		s.arm(e, delay)
	}

	s.logger.Info().
		Int("rearmed", rearmed).
		Int("overdue", fired).
		Int("dropped", dropped).
		Int("retained", retained).
		Msg("reminder recovery scan complete")

	return nil
}

func (s *Scheduler) arm(e *entry, delay time.Duration) {
	s.mu.Lock()
	s.entries[e.id] = e
	s.byTag[e.tag] = append(s.byTag[e.tag], e)
	// The timer must exist before the entry is visible to Cancel.
	e.timer = time.AfterFunc(delay, func() { s.fire(e) })
	pending := len(s.entries)
	s.mu.Unlock()

	metrics.SetPending(pending)
}

// fire runs on the timer goroutine, decoupled from the call that created
// the reminder.
func (s *Scheduler) fire(e *entry) {
	s.mu.Lock()
	if _, armed := s.entries[e.id]; !armed {
		// Lost the race against Cancel/CancelAll.
		s.mu.Unlock()
		return
	}
	delete(s.entries, e.id)
	group := s.byTag[e.tag]
	for i, candidate := range group {
		if candidate == e {
			s.byTag[e.tag] = append(group[:i], group[i+1:]...)
			break
		}
	}
	if len(s.byTag[e.tag]) == 0 {
		delete(s.byTag, e.tag)
	}
	pending := len(s.entries)
	s.mu.Unlock()

	metrics.SetPending(pending)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.dropRow(ctx, e.id)

	if err := s.dispatcher.Dispatch(ctx, e.userID, e.title, e.opts); err != nil {
		metrics.IncFired("error")
		s.logger.Error().Err(err).
			Int64("user_id", e.userID).
			Str("tag", e.tag).
			Msg("reminder dispatch failed")
		return
	}
	metrics.IncFired("ok")
	s.publish(events.TypeReminderFired, e.userID, "reminder fired: "+e.title)

	s.sendEmailCopy(ctx, e)
}

// sendEmailCopy delivers the email channel best-effort when the user has
// it enabled.
func (s *Scheduler) sendEmailCopy(ctx context.Context, e *entry) {
	if s.email == nil {
		return
	}

	p, err := s.prefs.Get(ctx, e.userID)
	if err != nil || p == nil || !p.EmailEnabled {
		return
	}

	if err := s.email.SendReminder(ctx, e.userID, e.title, e.opts.Body); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", e.userID).Msg("email reminder failed")
	}
}

func (s *Scheduler) persist(ctx context.Context, e *entry) {
	if s.store == nil {
		return
	}

	row := &model.PendingReminder{
		ID:        e.id,
		UserID:    e.userID,
		Tag:       e.tag,
		Title:     e.title,
		Body:      e.opts.Body,
		FireAt:    e.fireAt,
		CreatedAt: time.Now(),
	}
	if err := s.store.InsertPendingReminder(ctx, row); err != nil {
		// Keep the in-memory timer; durability is best-effort.
		s.logger.Warn().Err(err).Str("tag", e.tag).Msg("persist pending reminder failed")
	}
}

func sourceForTag(tag string) string {
	if strings.HasPrefix(tag, "session-") {
		return "session"
	}
	return "direct"
}

func (s *Scheduler) dropRow(ctx context.Context, id string) {
	if s.store == nil {
		return
	}
	if err := s.store.DeletePendingReminder(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("delete pending reminder failed")
	}
}
