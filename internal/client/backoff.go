package client

import (
	"errors"
	"time"
)

// ErrRetriesExhausted is the terminal reconnect failure: the attempt
// ceiling was reached and the client will not retry again.
var ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

// Backoff is an explicit bounded-retry state machine. It exists as its
// own type so the delay schedule and termination are testable without a
// network.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int

	attempt int
}

// DefaultBackoff matches the capture client's retry discipline: start
// at half a second, double up to ten seconds, give up after eight
// attempts.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        500 * time.Millisecond,
		Max:         10 * time.Second,
		MaxAttempts: 8,
	}
}

// Next returns the delay before the next reconnect attempt, or
// ErrRetriesExhausted once the ceiling is hit. Delays are strictly
// increasing until capped at Max.
func (b *Backoff) Next() (time.Duration, error) {
	if b.attempt >= b.MaxAttempts {
		return 0, ErrRetriesExhausted
	}

	delay := b.Base << b.attempt
	if delay > b.Max || delay <= 0 {
		delay = b.Max
	}
	b.attempt++
	return delay, nil
}

// Reset clears the attempt counter after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns the number of attempts consumed.
func (b *Backoff) Attempt() int {
	return b.attempt
}
