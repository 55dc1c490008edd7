// Package notify emits reminder notifications through the platform
// primitive and records emissions to the notification log.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"revia/internal/metrics"
	"revia/internal/model"
	"revia/internal/platform"
)

// DefaultTag is the cancellation tag family applied when the caller does
// not override it.
const DefaultTag = "revia-reminder"

// LogStore appends notification log entries. Failures are non-fatal.
type LogStore interface {
	AppendNotificationLog(ctx context.Context, entry *model.NotificationLog) error
}

// Shower is the display half of the platform API.
type Shower interface {
	Show(ctx context.Context, userID int64, n platform.Notification) (platform.Live, error)
}

// Toucher stamps the last-reminded timestamp on the user's preferences.
type Toucher interface {
	StampLastReminded(ctx context.Context, userID int64, at time.Time)
}

// Options carries the caller-supplied parts of a notification.
type Options struct {
	Body string
	Tag  string // defaults to DefaultTag
	Icon string // overrides the configured icon
}

// DispatcherConfig holds display settings.
type DispatcherConfig struct {
	Icon      string
	Badge     string
	AutoClose time.Duration // close without interaction after this long
}

// DefaultDispatcherConfig returns the default display settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Icon:      "/icon-192.png",
		Badge:     "/badge-72.png",
		AutoClose: 10 * time.Second,
	}
}

type liveEntry struct {
	live  platform.Live
	timer *time.Timer
}

// Dispatcher builds and emits single notification payloads. It tracks live
// notifications by tag so pending groups can be closed best-effort.
type Dispatcher struct {
	api    Shower
	logs   LogStore
	prefs  Toucher
	config DispatcherConfig
	logger *zerolog.Logger

	mu   sync.Mutex
	live map[string][]*liveEntry
}

// NewDispatcher creates a dispatcher. logs and prefs may be nil; both
// paths are bookkeeping and never gate display.
func NewDispatcher(api Shower, logs LogStore, prefs Toucher, config DispatcherConfig, logger *zerolog.Logger) *Dispatcher {
	if config.AutoClose <= 0 {
		config.AutoClose = 10 * time.Second
	}
	return &Dispatcher{
		api:    api,
		logs:   logs,
		prefs:  prefs,
		config: config,
		logger: logger,
		live:   make(map[string][]*liveEntry),
	}
}

// Dispatch shows one notification. Display is prioritized over
// bookkeeping: once the platform accepted the payload, log and preference
// failures are swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, userID int64, title string, opts Options) error {
	start := time.Now()

	tag := opts.Tag
	if tag == "" {
		tag = DefaultTag
	}
	icon := d.config.Icon
	if opts.Icon != "" {
		icon = opts.Icon
	}

	n := platform.Notification{
		Title:              title,
		Body:               opts.Body,
		Icon:               icon,
		Badge:              d.config.Badge,
		Tag:                tag,
		RequireInteraction: true,
	}

	live, err := d.api.Show(ctx, userID, n)
	if err != nil {
		metrics.IncDispatched("error")
		return err
	}

	d.track(tag, live)
	metrics.IncDispatched("ok")
	metrics.ObserveDispatchDuration(time.Since(start).Seconds())

	d.appendLog(userID, title, n)
	if d.prefs != nil {
		d.prefs.StampLastReminded(ctx, userID, time.Now())
	}

	d.logger.Info().
		Int64("user_id", userID).
		Str("tag", tag).
		Str("title", title).
		Msg("notification dispatched")

	return nil
}

// CloseTag closes every live notification shown with the tag. No-op when
// nothing matches.
func (d *Dispatcher) CloseTag(tag string) {
	d.mu.Lock()
	entries := d.live[tag]
	delete(d.live, tag)
	d.mu.Unlock()

	d.closeEntries(entries)
}

// CloseAll closes every live notification tracked by this dispatcher.
func (d *Dispatcher) CloseAll() {
	d.mu.Lock()
	var entries []*liveEntry
	for _, group := range d.live {
		entries = append(entries, group...)
	}
	d.live = make(map[string][]*liveEntry)
	d.mu.Unlock()

	d.closeEntries(entries)
}

func (d *Dispatcher) track(tag string, live platform.Live) {
	entry := &liveEntry{live: live}
	entry.timer = time.AfterFunc(d.config.AutoClose, func() {
		d.untrack(tag, entry)
		d.closeEntries([]*liveEntry{entry})
	})

	d.mu.Lock()
	d.live[tag] = append(d.live[tag], entry)
	d.mu.Unlock()
}

func (d *Dispatcher) untrack(tag string, entry *liveEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	group := d.live[tag]
	for i, e := range group {
		if e == entry {
			d.live[tag] = append(group[:i], group[i+1:]...)
			break
		}
	}
	if len(d.live[tag]) == 0 {
		delete(d.live, tag)
	}
}

func (d *Dispatcher) closeEntries(entries []*liveEntry) {
	for _, e := range entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.live.Close(ctx); err != nil {
			d.logger.Debug().Err(err).Str("tag", e.live.Tag()).Msg("close notification failed")
		}
		cancel()
	}
}

// appendLog records the emission fire-and-forget. A logging failure must
// never retract the already-displayed notification.
func (d *Dispatcher) appendLog(userID int64, title string, n platform.Notification) {
	if d.logs == nil {
		return
	}

	entry := &model.NotificationLog{
		ID:     uuid.NewString(),
		UserID: userID,
		Type:   model.TypePushNotification,
		SentAt: time.Now(),
		Metadata: map[string]string{
			"title":     title,
			"body":      n.Body,
			"tag":       n.Tag,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.logs.AppendNotificationLog(ctx, entry); err != nil {
			d.logger.Warn().Err(err).Int64("user_id", userID).Msg("notification log append failed")
		}
	}()
}
