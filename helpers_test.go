package authflow

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testEmail    = "a@x.com"
	testPassword = "Str0ng!Pass1234"
	testIP       = "203.0.113.5"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureMailer struct {
	mu   sync.Mutex
	sent []MailMessage
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *captureMailer) last(t *testing.T, kind MailKind) MailMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s mail sent", kind)
	return MailMessage{}
}

type harness struct {
	engine *Engine
	store  *memory.Store
	mailer *captureMailer
	audit  *ChannelSink
	clock  *testClock
	redis  *miniredis.Miniredis
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Session.SigningMethod = "hs256"
	cfg.Session.PrivateKey = bytes.Repeat([]byte("k"), 32)
	return cfg
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		store:  memory.New(),
		mailer: &captureMailer{},
		audit:  NewChannelSink(4096),
		clock:  &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		redis:  mr,
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(h.store).
		WithMailer(h.mailer).
		WithAuditSink(h.audit).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func testCtx() context.Context {
	return WithUserAgent(WithClientIP(context.Background(), testIP), "authflow-test")
}

func ctxFrom(ip string) context.Context {
	return WithClientIP(context.Background(), ip)
}

// registerVerified registers email and verifies it, returning the account id.
func (h *harness) registerVerified(t *testing.T, email, pw string) string {
	t.Helper()
	ctx := testCtx()

	if err := h.engine.Register(ctx, email, pw, "Test User"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	msg := h.mailer.last(t, MailVerifyEmail)
	if err := h.engine.VerifyEmail(ctx, email, msg.Token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}

	account, err := h.store.AccountByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("AccountByEmail: %v", err)
	}
	return account.ID
}

// enroll runs enrollment end to end and returns the secret and backup codes.
// The clock is advanced one period afterwards so the next code is fresh.
func (h *harness) enroll(t *testing.T, ctx context.Context, accountID string) (string, []string) {
	t.Helper()

	setup, err := h.engine.EnrollSecondFactor(ctx, accountID)
	if err != nil {
		t.Fatalf("EnrollSecondFactor: %v", err)
	}
	codes, err := h.engine.VerifyEnrollment(ctx, accountID, h.code(t, setup.Secret))
	if err != nil {
		t.Fatalf("VerifyEnrollment: %v", err)
	}
	h.clock.Advance(time.Duration(h.engine.config.TOTP.Period) * time.Second)
	return setup.Secret, codes
}

func (h *harness) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := h.engine.totp.codeAt(secret, h.clock.Now())
	if err != nil {
		t.Fatalf("codeAt: %v", err)
	}
	return code
}

func (h *harness) drainAudit() []AuditEvent {
	var out []AuditEvent
	for {
		select {
		case ev := <-h.audit.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func findEvent(events []AuditEvent, kind, reason string) (AuditEvent, bool) {
	for _, ev := range events {
		if ev.Kind == kind && ev.Reason == reason {
			return ev, true
		}
	}
	return AuditEvent{}, false
}

// challenge passes the password step for testEmail and returns the
// second-factor challenge.
func (h *harness) challenge(t *testing.T, ctx context.Context) string {
	t.Helper()
	res, err := h.engine.CredentialCheck(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("CredentialCheck: %v", err)
	}
	if !res.NeedsSecondFactor || res.Challenge == "" {
		t.Fatalf("expected a second-factor challenge, got %+v", res)
	}
	return res.Challenge
}
