package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revia/internal/platform"
)

func newTestPlanner(gate *FakeGate, prefs *FakePrefs, disp *FakeDispatcher) *Planner {
	sched := newTestScheduler(gate, prefs, disp)
	return NewPlanner(sched, gate, prefs, testLogger())
}

func TestPlannerLegDayReminder(t *testing.T) {
	gate := &FakeGate{permission: platform.PermissionGranted}
	prefs := NewFakePrefs()
	prefs.Set(1, true, false)
	disp := &FakeDispatcher{}
	p := newTestPlanner(gate, prefs, disp)

	sessionAt := time.Now().Add(time.Hour)
	h, err := p.ScheduleSessionReminder(context.Background(), 1, "Leg Day", sessionAt, SessionOptions{MinutesBefore: 15})
	require.NoError(t, err)

	// Fire time is the session start minus the lead, so the delay lands
	// 45 minutes out.
	assert.Equal(t, sessionAt.Add(-15*time.Minute), h.FireAt)
	assert.InDelta(t, (45 * time.Minute).Seconds(), h.Delay.Seconds(), 1.0)
	assert.Equal(t, fmt.Sprintf("session-%d", sessionAt.Unix()), h.Tag)

	p.sched.CancelAll()
}

func TestPlannerDefaultLeadTime(t *testing.T) {
	gate := &FakeGate{permission: platform.PermissionGranted}
	prefs := NewFakePrefs()
	prefs.Set(1, true, false)
	disp := &FakeDispatcher{}
	p := newTestPlanner(gate, prefs, disp)

	sessionAt := time.Now().Add(time.Hour)
	h, err := p.ScheduleSessionReminder(context.Background(), 1, "Mobility", sessionAt, SessionOptions{})
	require.NoError(t, err)
	assert.Equal(t, sessionAt.Add(-DefaultLeadTime), h.FireAt)

	p.sched.CancelAll()
}

func TestPlannerPastFireTime(t *testing.T) {
	gate := &FakeGate{permission: platform.PermissionGranted}
	prefs := NewFakePrefs()
	prefs.Set(1, true, false)
	disp := &FakeDispatcher{}
	p := newTestPlanner(gate, prefs, disp)
	ctx := context.Background()

	// Session 10 minutes out with a 15 minute lead puts the fire time in
	// the past.
	_, err := p.ScheduleSessionReminder(ctx, 1, "Leg Day", time.Now().Add(10*time.Minute), SessionOptions{MinutesBefore: 15})
	assert.ErrorIs(t, err, ErrPastReminder)

	// The exact boundary fails too: the fire time must be strictly in the
	// future.
	_, err = p.ScheduleSessionReminder(ctx, 1, "Leg Day", time.Now().Add(15*time.Minute), SessionOptions{MinutesBefore: 15})
	assert.ErrorIs(t, err, ErrPastReminder)
	assert.Zero(t, p.sched.Pending())
}

func TestPlannerNeverEscalates(t *testing.T) {
	gate := &FakeGate{permission: platform.PermissionDefault, grantOnAsk: true}
	prefs := NewFakePrefs()
	prefs.Set(1, true, false)
	disp := &FakeDispatcher{}
	p := newTestPlanner(gate, prefs, disp)

	_, err := p.ScheduleSessionReminder(context.Background(), 1, "Leg Day", time.Now().Add(time.Hour), SessionOptions{})
	assert.ErrorIs(t, err, ErrPreferencesDisabled)
	assert.Zero(t, gate.Requests(), "planner must not prompt for permission")
}

func TestPlannerDisabledPreferencesBeatGrantedPermission(t *testing.T) {
	gate := &FakeGate{permission: platform.PermissionGranted}
	prefs := NewFakePrefs()
	prefs.Set(1, false, true)
	disp := &FakeDispatcher{}
	p := newTestPlanner(gate, prefs, disp)

	_, err := p.ScheduleSessionReminder(context.Background(), 1, "Leg Day", time.Now().Add(time.Hour), SessionOptions{})
	assert.ErrorIs(t, err, ErrPreferencesDisabled)
}

func TestPlannerCustomMessage(t *testing.T) {
	gate := &FakeGate{permission: platform.PermissionGranted}
	prefs := NewFakePrefs()
	prefs.Set(1, true, false)
	disp := &FakeDispatcher{}
	p := newTestPlanner(gate, prefs, disp)

	// Session 5 minutes and 50ms out with a 5 minute lead fires almost
	// immediately, so the dispatched body is observable.
	sessionAt := time.Now().Add(5*time.Minute + 50*time.Millisecond)
	_, err := p.ScheduleSessionReminder(context.Background(), 1, "Leg Day", sessionAt, SessionOptions{
		MinutesBefore: 5,
		CustomMessage: "Grab your resistance bands",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(disp.Dispatches()) == 1
	}, time.Second, 10*time.Millisecond)
	got := disp.Dispatches()[0]
	assert.Equal(t, "Session reminder", got.title)
	assert.Equal(t, "Grab your resistance bands", got.opts.Body)
}

func TestPlannerGeneratedBody(t *testing.T) {
	gate := &FakeGate{permission: platform.PermissionGranted}
	prefs := NewFakePrefs()
	prefs.Set(1, true, false)
	disp := &FakeDispatcher{}
	p := newTestPlanner(gate, prefs, disp)

	sessionAt := time.Now().Add(10*time.Minute + 50*time.Millisecond)
	_, err := p.ScheduleSessionReminder(context.Background(), 1, "Leg Day", sessionAt, SessionOptions{MinutesBefore: 10})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(disp.Dispatches()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "Leg Day starts in 10 minutes", disp.Dispatches()[0].opts.Body)
}
