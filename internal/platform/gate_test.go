package platform

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revia/internal/events"
)

// FakeAPI implements API for testing.
type FakeAPI struct {
	mu         sync.Mutex
	permission Permission
	requestErr error
	requests   int
}

func NewFakeAPI(p Permission) *FakeAPI {
	return &FakeAPI{permission: p}
}

func (f *FakeAPI) Permission(ctx context.Context, userID int64) (Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permission, nil
}

func (f *FakeAPI) Request(ctx context.Context, userID int64) (Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.requestErr != nil {
		return PermissionDefault, f.requestErr
	}
	return f.permission, nil
}

func (f *FakeAPI) Show(ctx context.Context, userID int64, n Notification) (Live, error) {
	return nil, errors.New("not implemented")
}

func (f *FakeAPI) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func testLogger() *zerolog.Logger {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &logger
}

func TestGateUnsupported(t *testing.T) {
	gate := NewGate(nil, nil, testLogger())

	assert.False(t, gate.Supported())
	assert.Equal(t, PermissionUnsupported, gate.Current(context.Background(), 1))

	_, err := gate.Request(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnsupportedEnvironment)
}

func TestGateRequestGranted(t *testing.T) {
	api := NewFakeAPI(PermissionGranted)
	bus := events.NewBus()

	var got []string
	bus.Subscribe(events.TypePermissionGranted, func(e events.Event) {
		got = append(got, e.Message)
	})

	gate := NewGate(api, bus, testLogger())
	granted, err := gate.Request(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, []string{"notifications enabled"}, got)
}

func TestGateRequestDenied(t *testing.T) {
	api := NewFakeAPI(PermissionDenied)
	bus := events.NewBus()

	var refused int
	bus.Subscribe(events.TypePermissionRefused, func(e events.Event) { refused++ })

	gate := NewGate(api, bus, testLogger())
	granted, err := gate.Request(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Equal(t, 1, refused)
}

func TestGateRequestIdempotentOutcome(t *testing.T) {
	api := NewFakeAPI(PermissionDenied)
	gate := NewGate(api, nil, testLogger())
	ctx := context.Background()

	first, err := gate.Request(ctx, 1)
	require.NoError(t, err)
	second, err := gate.Request(ctx, 1)
	require.NoError(t, err)

	// No browser-level change between the calls: same outcome.
	assert.Equal(t, first, second)
	assert.Equal(t, 2, api.Requests())
}

func TestGateRequestPlatformFailure(t *testing.T) {
	api := NewFakeAPI(PermissionGranted)
	api.requestErr = errors.New("platform exploded")

	gate := NewGate(api, nil, testLogger())
	granted, err := gate.Request(context.Background(), 7)

	// Normalized to false, not an error.
	require.NoError(t, err)
	assert.False(t, granted)

	reqErr := gate.LastRequestError()
	require.NotNil(t, reqErr)
	assert.Equal(t, int64(7), reqErr.UserID)
	assert.ErrorContains(t, reqErr, "platform exploded")
}
