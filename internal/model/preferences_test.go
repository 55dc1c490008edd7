package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDays(t *testing.T) {
	tests := []struct {
		name string
		in   []int
		want []int
	}{
		{"empty", []int{}, []int{}},
		{"sorted set", []int{1, 3, 5}, []int{1, 3, 5}},
		{"duplicates collapsed", []int{5, 1, 5, 3, 1}, []int{1, 3, 5}},
		{"out of range dropped", []int{-1, 0, 6, 7}, []int{0, 6}},
		{"order irrelevant", []int{6, 0, 2}, []int{0, 2, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDays(tt.in))
		})
	}
}

func TestPatchApply(t *testing.T) {
	base := DefaultPreferences(42)
	base.CreatedAt = time.Now()

	pushOff := false
	tz := "Europe/Paris"
	patch := PreferencesPatch{
		PushEnabled: &pushOff,
		Timezone:    &tz,
	}

	patch.Apply(base)

	assert.False(t, base.PushEnabled)
	assert.Equal(t, "Europe/Paris", base.Timezone)
	// Fields absent from the patch keep their values.
	assert.True(t, base.EmailEnabled)
	assert.Equal(t, "09:00", base.ReminderTime)
	assert.Equal(t, []int{1, 3, 5}, base.ReminderDays)
	assert.Equal(t, FrequencyDaily, base.ReminderFrequency)
}

func TestPatchApplyNormalizesDays(t *testing.T) {
	base := DefaultPreferences(1)

	days := []int{5, 5, 2, 9}
	patch := PreferencesPatch{ReminderDays: &days}
	patch.Apply(base)

	assert.Equal(t, []int{2, 5}, base.ReminderDays)
}
