package prefs

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revia/internal/model"
)

// MockStore implements Store for testing.
type MockStore struct {
	mu      sync.Mutex
	records map[int64]*model.NotificationPreferences
	failing bool
	gets    int
	upserts int
}

func NewMockStore() *MockStore {
	return &MockStore{records: make(map[int64]*model.NotificationPreferences)}
}

func (m *MockStore) GetPreferences(ctx context.Context, userID int64) (*model.NotificationPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.failing {
		return nil, errors.New("store down")
	}
	p, ok := m.records[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MockStore) UpsertPreferences(ctx context.Context, p *model.NotificationPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.failing {
		return errors.New("store down")
	}
	cp := *p
	m.records[p.UserID] = &cp
	return nil
}

func (m *MockStore) SetFailing(failing bool) {
	m.mu.Lock()
	m.failing = failing
	m.mu.Unlock()
}

func testLogger() *zerolog.Logger {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &logger
}

func TestGetNeverConfigured(t *testing.T) {
	r := NewReconciler(NewMockStore(), testLogger())

	p, err := r.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, p, "never configured must be nil, not defaults")
}

func TestUpdateCreatesFromDefaults(t *testing.T) {
	store := NewMockStore()
	r := NewReconciler(store, testLogger())

	pushOff := false
	p, err := r.Update(context.Background(), 1, model.PreferencesPatch{PushEnabled: &pushOff})
	require.NoError(t, err)

	// Patch wins over the default, everything else is the default.
	assert.False(t, p.PushEnabled)
	assert.True(t, p.EmailEnabled)
	assert.Equal(t, "09:00", p.ReminderTime)
	assert.False(t, p.CreatedAt.IsZero())
	assert.False(t, p.UpdatedAt.IsZero())
}

func TestUpdateMergesFieldByField(t *testing.T) {
	store := NewMockStore()
	r := NewReconciler(store, testLogger())
	ctx := context.Background()

	tz := "America/New_York"
	_, err := r.Update(ctx, 1, model.PreferencesPatch{Timezone: &tz})
	require.NoError(t, err)

	freq := model.FrequencyWeekly
	p, err := r.Update(ctx, 1, model.PreferencesPatch{ReminderFrequency: &freq})
	require.NoError(t, err)

	// The second patch must not clobber the first one's field.
	assert.Equal(t, "America/New_York", p.Timezone)
	assert.Equal(t, model.FrequencyWeekly, p.ReminderFrequency)
}

func TestUpdateRoundTrip(t *testing.T) {
	store := NewMockStore()
	r := NewReconciler(store, testLogger())
	ctx := context.Background()

	emailOn := true
	pushOn := true
	remTime := "07:30"
	days := []int{0, 2, 4}
	freq := model.FrequencyTwiceWeekly
	tz := "Europe/Paris"

	written, err := r.Update(ctx, 7, model.PreferencesPatch{
		EmailEnabled:      &emailOn,
		PushEnabled:       &pushOn,
		ReminderTime:      &remTime,
		ReminderDays:      &days,
		ReminderFrequency: &freq,
		Timezone:          &tz,
	})
	require.NoError(t, err)

	read, err := r.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, read)

	assert.Equal(t, written.EmailEnabled, read.EmailEnabled)
	assert.Equal(t, written.PushEnabled, read.PushEnabled)
	assert.Equal(t, written.ReminderTime, read.ReminderTime)
	assert.Equal(t, written.ReminderDays, read.ReminderDays)
	assert.Equal(t, written.ReminderFrequency, read.ReminderFrequency)
	assert.Equal(t, written.Timezone, read.Timezone)
}

func TestUpdateFailureLeavesCacheUntouched(t *testing.T) {
	store := NewMockStore()
	r := NewReconciler(store, testLogger())
	ctx := context.Background()

	tz := "Europe/Paris"
	_, err := r.Update(ctx, 1, model.PreferencesPatch{Timezone: &tz})
	require.NoError(t, err)

	store.SetFailing(true)
	badTz := "Mars/Olympus"
	_, err = r.Update(ctx, 1, model.PreferencesPatch{Timezone: &badTz})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)

	// Cached read still serves the last successful write.
	p, err := r.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Europe/Paris", p.Timezone)
}

func TestGetPersistenceError(t *testing.T) {
	store := NewMockStore()
	store.SetFailing(true)
	r := NewReconciler(store, testLogger())

	_, err := r.Get(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestRedisCacheServesAcrossReconcilers(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	store := NewMockStore()
	first := NewReconciler(store, testLogger())
	first.UseRedisCache(rdb, time.Minute)

	tz := "Europe/Paris"
	_, err := first.Update(ctx, 9, model.PreferencesPatch{Timezone: &tz})
	require.NoError(t, err)

	// A second process with the same redis but an empty store must still
	// see the record through the shared cache.
	second := NewReconciler(NewMockStore(), testLogger())
	second.UseRedisCache(rdb, time.Minute)

	p, err := second.Get(ctx, 9)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Europe/Paris", p.Timezone)
}

func TestGetDoesNotMutateCache(t *testing.T) {
	store := NewMockStore()
	r := NewReconciler(store, testLogger())
	ctx := context.Background()

	days := []int{1, 2}
	_, err := r.Update(ctx, 1, model.PreferencesPatch{ReminderDays: &days})
	require.NoError(t, err)

	p1, err := r.Get(ctx, 1)
	require.NoError(t, err)
	p1.ReminderDays[0] = 6

	p2, err := r.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, p2.ReminderDays)
}
