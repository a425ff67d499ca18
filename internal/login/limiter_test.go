package login

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter(t *testing.T) {
	l := NewLimiter(LimiterConfig{Rate: 1, Burst: 2, Idle: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.2"), "clients are limited independently")

	now = now.Add(time.Second)
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))
}

func TestLimiterForgetsIdleClients(t *testing.T) {
	l := NewLimiter(LimiterConfig{Rate: 1, Burst: 1, Idle: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	l.Allow("10.0.0.2")
	require.Len(t, l.clients, 2)

	now = now.Add(2 * time.Minute)
	l.Allow("10.0.0.3")
	require.Len(t, l.clients, 1)
}

func TestLimiterDisabled(t *testing.T) {
	var nilLimiter *Limiter
	require.True(t, nilLimiter.Allow("10.0.0.1"))

	l := NewLimiter(LimiterConfig{})
	for range 100 {
		require.True(t, l.Allow("10.0.0.1"))
	}
}
