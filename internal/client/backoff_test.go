package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelaysIncreaseUntilCap(t *testing.T) {
	b := Backoff{Base: 500 * time.Millisecond, Max: 10 * time.Second, MaxAttempts: 8}

	want := []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for i, expected := range want {
		delay, err := b.Next()
		require.NoError(t, err, "attempt %d", i)
		assert.Equal(t, expected, delay, "attempt %d", i)
	}

	_, err := b.Next()
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 8, b.Attempt())
}

func TestBackoffExhaustionIsSticky(t *testing.T) {
	b := Backoff{Base: time.Millisecond, Max: time.Second, MaxAttempts: 1}

	_, err := b.Next()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = b.Next()
		assert.ErrorIs(t, err, ErrRetriesExhausted)
	}
}

func TestBackoffResetRestartsSchedule(t *testing.T) {
	b := Backoff{Base: 500 * time.Millisecond, Max: 10 * time.Second, MaxAttempts: 2}

	first, err := b.Next()
	require.NoError(t, err)
	_, err = b.Next()
	require.NoError(t, err)
	_, err = b.Next()
	require.ErrorIs(t, err, ErrRetriesExhausted)

	b.Reset()
	assert.Zero(t, b.Attempt())
	again, err := b.Next()
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestBackoffOverflowClampsToMax(t *testing.T) {
	// A shift past 63 bits would go negative without the clamp.
	b := Backoff{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 80}
	for i := 0; i < 80; i++ {
		delay, err := b.Next()
		require.NoError(t, err)
		assert.Positive(t, delay)
		assert.LessOrEqual(t, delay, 30*time.Second)
	}
}
