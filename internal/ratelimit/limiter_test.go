package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowPerKey(t *testing.T) {
	l := NewLimiter(1, time.Hour, 2)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	// Other keys have their own bucket.
	assert.True(t, l.Allow("b"))
}

func TestDisabledIsUnlimited(t *testing.T) {
	l := NewLimiter(0, time.Minute, 0)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("x"))
	}
	require.NoError(t, l.Wait(context.Background(), "x"))
}

func TestWaitHonoursContext(t *testing.T) {
	l := NewLimiter(1, time.Hour, 1)
	require.True(t, l.Allow("host"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "host"))
}

func TestTokens(t *testing.T) {
	l := NewLimiter(6, time.Minute, 3)
	assert.InDelta(t, 3.0, l.Tokens("k"), 0.01)
	l.Allow("k")
	assert.InDelta(t, 2.0, l.Tokens("k"), 0.05)
}
