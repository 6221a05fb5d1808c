// Package ratelimit gates outbound calls with a lazily refilled token bucket.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrExceeded is returned when no token became available after waiting for
// one refill boundary.
var ErrExceeded = errors.New("rate limit exceeded")

// Config describes a bucket. The upstream default is 100 operations per minute
// with the bucket starting full.
type Config struct {
	Capacity        int
	Interval        time.Duration
	FireImmediately bool
}

// DefaultConfig returns the limits the upstream API documents.
func DefaultConfig() Config {
	return Config{
		Capacity:        100,
		Interval:        time.Minute,
		FireImmediately: true,
	}
}

// Option customizes a Bucket.
type Option func(*Bucket)

// WithClock replaces the time source and the wait primitive. Tests use it to
// drive refills without sleeping.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(b *Bucket) {
		b.now = now
		b.after = after
	}
}

// Bucket is a token bucket. Tokens are refilled in whole intervals on demand,
// never exceed Capacity, and are not refunded when the gated operation fails.
type Bucket struct {
	capacity int
	interval time.Duration
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

// New creates a bucket from cfg.
func New(cfg Config, opts ...Option) (*Bucket, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("rate limit capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("rate limit interval must be positive, got %s", cfg.Interval)
	}

	b := &Bucket{
		capacity: cfg.Capacity,
		interval: cfg.Interval,
		now:      time.Now,
		after:    time.After,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.lastRefill = b.now()
	if cfg.FireImmediately {
		b.tokens = cfg.Capacity
	}
	return b, nil
}

// Acquire takes one token. When the bucket is empty it waits until the next
// refill boundary and tries exactly once more, returning ErrExceeded if the
// bucket is still empty. A wait interrupted by ctx consumes nothing.
func (b *Bucket) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wait, ok := b.take()
	if ok {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.after(wait):
	}

	if _, ok := b.take(); ok {
		return nil
	}
	return ErrExceeded
}

// Execute acquires a token and then runs op.
func (b *Bucket) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	return op(ctx)
}

// Available reports the tokens that could be taken right now.
func (b *Bucket) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(b.now())
	return b.tokens
}

// take consumes a token if one is available. Otherwise it returns how long
// until the next refill boundary.
func (b *Bucket) take() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.refill(now)
	if b.tokens > 0 {
		b.tokens--
		return 0, true
	}
	return b.lastRefill.Add(b.interval).Sub(now), false
}

// refill must be called with mu held. The refill timestamp advances by the
// whole intervals consumed, not to now, so partial intervals carry over.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed < b.interval {
		return
	}
	intervals := elapsed / b.interval
	b.tokens = b.capacity
	b.lastRefill = b.lastRefill.Add(intervals * b.interval)
}
