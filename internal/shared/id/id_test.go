package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequestID(t *testing.T) {
	a := NewRequestID()
	b := NewRequestID()

	assert.True(t, strings.HasPrefix(a.String(), "req_"))
	assert.NotEqual(t, a, b)
}

func TestRequestIDUniqueness(t *testing.T) {
	seen := make(map[RequestID]bool)
	for i := 0; i < 1000; i++ {
		rid := NewRequestID()
		assert.False(t, seen[rid], "duplicate request ID generated")
		seen[rid] = true
	}
}

func TestNewTimerID(t *testing.T) {
	tid := NewTimerID("weather")

	assert.True(t, strings.HasPrefix(tid.String(), "weather_"))
	assert.True(t, tid.IsValid("weather"))
	assert.False(t, tid.IsValid("statistics"))
}

func TestTimerIDIsValid(t *testing.T) {
	tests := []struct {
		name  string
		id    TimerID
		check string
		want  bool
	}{
		{"valid", NewTimerID("sensor"), "sensor", true},
		{"wrong prefix", NewTimerID("sensor"), "weather", false},
		{"bare prefix", TimerID("sensor_"), "sensor", false},
		{"garbage suffix", TimerID("sensor_not-a-ulid"), "sensor", false},
		{"empty", TimerID(""), "sensor", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.IsValid(tt.check))
		})
	}
}
