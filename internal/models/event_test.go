package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrBool(b bool) *bool           { return &b }

func TestEvent_PhaseAt(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		event    Event
		expected EventPhase
	}{
		{
			name:     "inactive is closed",
			event:    Event{StartsAt: ptrTime(now.Add(-time.Hour)), IsActive: ptrBool(false)},
			expected: PhaseClosed,
		},
		{
			name:     "before start is upcoming",
			event:    Event{StartsAt: ptrTime(now.Add(time.Hour))},
			expected: PhaseUpcoming,
		},
		{
			name:     "within start and end is ongoing",
			event:    Event{StartsAt: ptrTime(now.Add(-time.Hour)), EndsAt: ptrTime(now.Add(time.Hour))},
			expected: PhaseOngoing,
		},
		{
			name:     "after end is closed",
			event:    Event{StartsAt: ptrTime(now.Add(-3 * time.Hour)), EndsAt: ptrTime(now.Add(-time.Hour))},
			expected: PhaseClosed,
		},
		{
			name:     "same day without end is ongoing",
			event:    Event{StartsAt: ptrTime(now.Add(-10 * time.Hour))},
			expected: PhaseOngoing,
		},
		{
			name:     "previous day without end is closed",
			event:    Event{StartsAt: ptrTime(now.Add(-24 * time.Hour))},
			expected: PhaseClosed,
		},
		{
			name:     "server phase wins",
			event:    Event{StartsAt: ptrTime(now.Add(time.Hour)), Phase: PhaseOngoing},
			expected: PhaseOngoing,
		},
		{
			name:     "unknown server phase is ignored",
			event:    Event{StartsAt: ptrTime(now.Add(time.Hour)), Phase: "later"},
			expected: PhaseUpcoming,
		},
		{
			name:     "no start is ongoing",
			event:    Event{},
			expected: PhaseOngoing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.event.PhaseAt(now))
		})
	}
}

func TestVerificationResult_PartialResponse(t *testing.T) {
	var result VerificationResult
	err := json.Unmarshal([]byte(`{"ok":true,"message":"Checked in","participant":null,"registered_events":null}`), &result)
	require.NoError(t, err)

	assert.True(t, result.OK)
	assert.Equal(t, "Checked in", result.Message)
	assert.Nil(t, result.Participant)
	assert.Nil(t, result.CheckedInEvent)
	assert.Nil(t, result.ScannedAt)
	assert.Empty(t, result.RegisteredEvents)
}

func TestAimState_Hint(t *testing.T) {
	for _, s := range []AimState{AimIdle, AimSearching, AimDetected, AimAligned} {
		assert.NotEmpty(t, s.Hint(), string(s))
	}
	assert.NotEqual(t, AimDetected.Hint(), AimAligned.Hint())
}
