package authflow

import (
	"context"
	"time"

	"github.com/MrEthical07/authflow/internal/audit"
	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/internal/logging"
	"github.com/MrEthical07/authflow/internal/stores"
	"github.com/MrEthical07/authflow/jwt"
	"github.com/MrEthical07/authflow/password"
)

// Engine exposes the authentication operations. It keeps no per-request
// state; everything lives in the Store, the token store and the rate limit
// counters. Construct it with New().…Build().
type Engine struct {
	config  Config
	store   Store
	tokens  *stores.TokenStore
	guard   *limiters.Guard
	hasher  *password.Hasher
	totp    *totpEngine
	jwt     *jwt.Manager
	mailer  Mailer
	audit   *audit.Dispatcher
	metrics *Metrics
	log     logging.Logger
	clock   func() time.Time

	// dummyHash is verified when no real digest exists so that every failed
	// credential check costs one hash.
	dummyHash string
}

// Close flushes pending audit events. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports events discarded because the async audit buffer was
// full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditFailed reports events the audit sink rejected.
func (e *Engine) AuditFailed() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Failed()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.tokens == nil || e.hasher == nil || e.jwt == nil {
		return ErrEngineNotReady
	}
	return nil
}

/*
====================================
TIMEOUTS
====================================
*/

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return bounded(ctx, e.config.Timeouts.Store)
}

func (e *Engine) tokenCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return bounded(ctx, e.config.Timeouts.TokenStore)
}

func (e *Engine) hashCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return bounded(ctx, e.config.Timeouts.Hash)
}

func (e *Engine) mailCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return bounded(ctx, e.config.Timeouts.Mail)
}

// hashPassword runs the hasher off the request goroutine so the Hash timeout
// is honoured. An abandoned hash finishes in the background and is discarded.
func (e *Engine) hashPassword(ctx context.Context, pw string) (string, error) {
	ctx, cancel := e.hashCtx(ctx)
	defer cancel()

	type result struct {
		digest string
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		digest, err := e.hasher.Hash(pw)
		ch <- result{digest, err}
	}()
	select {
	case r := <-ch:
		return r.digest, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Engine) verifyPassword(ctx context.Context, pw, digest string) (bool, error) {
	ctx, cancel := e.hashCtx(ctx)
	defer cancel()

	type result struct {
		ok  bool
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ok, err := e.hasher.Verify(pw, digest)
		ch <- result{ok, err}
	}()
	select {
	case r := <-ch:
		return r.ok, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

/*
====================================
TOKEN NAMESPACES
====================================
*/

func verifyNamespace(email string) string    { return email }
func resetNamespace(email string) string     { return "reset:" + email }
func challengeNamespace(email string) string { return "mfa-pending:" + email }
func bridgeNamespace(email string) string    { return "totp-login:" + email }
