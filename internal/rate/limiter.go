package rate

import (
	"context"
	"strconv"
	"time"
)

// Policy is a sliding-window budget: at most Capacity hits per Window.
type Policy struct {
	Capacity int
	Window   time.Duration
}

// Store is the pluggable counter service. Hit records one event for key at now
// and returns the number of events inside (now-window, now], including this one.
// Implementations must make the record-and-count step atomic.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error)
	Clear(ctx context.Context, key string) error
}

// Limiter applies policies to composite keys over a Store.
type Limiter struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
}

// New returns a Limiter. A zero timeout leaves the caller's context deadline in charge.
func New(store Store, timeout time.Duration, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{store: store, timeout: timeout, now: now}
}

// Allow records a hit on every key and returns ErrRateLimited if any of them is
// over budget. Every key is hit even after one has already denied, so spreading
// attempts across keys never buys an attacker extra budget. Empty keys are skipped.
func (l *Limiter) Allow(ctx context.Context, policy Policy, keys ...string) error {
	if l == nil || l.store == nil {
		return ErrStoreUnavailable
	}
	if policy.Capacity <= 0 || policy.Window <= 0 {
		return nil
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	now := l.now()
	denied := false
	for _, key := range keys {
		if key == "" {
			continue
		}
		count, err := l.store.Hit(ctx, key, policy.Window, now)
		if err != nil {
			return err
		}
		if count > int64(policy.Capacity) {
			denied = true
		}
	}

	if denied {
		return ErrRateLimited
	}
	return nil
}

// Clear drops the window for each key.
func (l *Limiter) Clear(ctx context.Context, keys ...string) error {
	if l == nil || l.store == nil {
		return ErrStoreUnavailable
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := l.store.Clear(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func member(now time.Time, seq uint64) string {
	return strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(seq, 10)
}
