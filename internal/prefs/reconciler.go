// Package prefs reconciles partial notification preference updates into
// full per-user records through an external store.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"revia/internal/model"
)

// ErrPersistence wraps preference store failures.
var ErrPersistence = errors.New("preference persistence failed")

// Store is the external preference store. Get returns (nil, nil) when the
// user has never configured notifications; that is distinct from a record
// with everything disabled.
type Store interface {
	GetPreferences(ctx context.Context, userID int64) (*model.NotificationPreferences, error)
	UpsertPreferences(ctx context.Context, p *model.NotificationPreferences) error
}

// Reconciler merges partial updates into full preference records with
// upsert semantics. It keeps a per-process read cache; concurrent updates
// for the same user race with last-write-wins per submitted field-set.
type Reconciler struct {
	store  Store
	logger *zerolog.Logger

	mu    sync.RWMutex
	cache map[int64]*model.NotificationPreferences

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store Store, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger,
		cache:  make(map[int64]*model.NotificationPreferences),
	}
}

// UseRedisCache configures optional Redis read-through caching, shared
// across processes. Cache misses and Redis errors fall through to the store.
func (r *Reconciler) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	r.redis = redisClient
	r.cacheTTL = ttl
}

// Get returns the user's preferences, or nil if never configured.
func (r *Reconciler) Get(ctx context.Context, userID int64) (*model.NotificationPreferences, error) {
	r.mu.RLock()
	cached, ok := r.cache[userID]
	r.mu.RUnlock()
	if ok {
		return clone(cached), nil
	}

	if p, ok := r.readRedis(ctx, userID); ok {
		r.remember(p)
		return clone(p), nil
	}

	p, err := r.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get preferences for user %d: %w: %w", userID, ErrPersistence, err)
	}
	if p == nil {
		return nil, nil
	}

	r.remember(p)
	r.writeRedis(ctx, p)
	return clone(p), nil
}

// Update applies the patch with upsert semantics: for a new user the base
// is the documented defaults, otherwise the stored record; patch fields win
// field-by-field and absent fields are preserved verbatim. The cache is
// only updated after the store write succeeds.
func (r *Reconciler) Update(ctx context.Context, userID int64, patch model.PreferencesPatch) (*model.NotificationPreferences, error) {
	now := time.Now()

	base, err := r.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load preferences for user %d: %w: %w", userID, ErrPersistence, err)
	}
	if base == nil {
		base = model.DefaultPreferences(userID)
		base.CreatedAt = now
	}

	patch.Apply(base)
	base.UpdatedAt = now

	if err := r.store.UpsertPreferences(ctx, base); err != nil {
		return nil, fmt.Errorf("upsert preferences for user %d: %w: %w", userID, ErrPersistence, err)
	}

	r.remember(base)
	r.writeRedis(ctx, base)

	r.logger.Debug().Int64("user_id", userID).Msg("preferences updated")
	return clone(base), nil
}

// StampLastReminded records when the dispatch path last reminded the user.
// Best-effort: failures are logged, never propagated.
func (r *Reconciler) StampLastReminded(ctx context.Context, userID int64, at time.Time) {
	if _, err := r.Update(ctx, userID, model.PreferencesPatch{LastRemindedAt: &at}); err != nil {
		r.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to stamp last reminded")
	}
}

func (r *Reconciler) remember(p *model.NotificationPreferences) {
	r.mu.Lock()
	r.cache[p.UserID] = clone(p)
	r.mu.Unlock()
}

func (r *Reconciler) readRedis(ctx context.Context, userID int64) (*model.NotificationPreferences, bool) {
	if r.redis == nil || r.cacheTTL <= 0 {
		return nil, false
	}
	val, err := r.redis.Get(ctx, redisKey(userID)).Result()
	if err != nil {
		return nil, false
	}
	var p model.NotificationPreferences
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (r *Reconciler) writeRedis(ctx context.Context, p *model.NotificationPreferences) {
	if r.redis == nil || r.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, redisKey(p.UserID), data, r.cacheTTL).Err(); err != nil {
		r.logger.Debug().Err(err).Int64("user_id", p.UserID).Msg("redis cache write failed")
	}
}

func redisKey(userID int64) string {
	return fmt.Sprintf("prefs:%d", userID)
}

func clone(p *model.NotificationPreferences) *model.NotificationPreferences {
	if p == nil {
		return nil
	}
	cp := *p
	cp.ReminderDays = append([]int(nil), p.ReminderDays...)
	if p.LastRemindedAt != nil {
		t := *p.LastRemindedAt
		cp.LastRemindedAt = &t
	}
	return &cp
}
