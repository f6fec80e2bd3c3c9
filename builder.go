package authflow

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/authflow/internal/audit"
	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/internal/logging"
	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/internal/stores"
	"github.com/MrEthical07/authflow/jwt"
	"github.com/MrEthical07/authflow/password"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	store     Store
	mailer    Mailer
	auditSink AuditSink
	logger    *slog.Logger
	clock     func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing one-time tokens and rate limit counters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the account, credential, second factor and session store.
func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. The default discards everything.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	log := logging.NewSlogLogger(b.logger)

	hasher, err := password.NewHasher(password.Params{
		Memory:         cfg.Password.Memory,
		Time:           cfg.Password.Time,
		Parallelism:    cfg.Password.Parallelism,
		SaltLength:     cfg.Password.SaltLength,
		KeyLength:      cfg.Password.KeyLength,
		MaxSecretBytes: cfg.Password.MaxBytes,
	})
	if err != nil {
		return nil, err
	}
	dummy, err := newDummyHash(hasher)
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
		PublicKey:     cloneBytes(cfg.Session.PublicKey),
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
		Leeway:        cfg.Session.Leeway,
		KeyID:         cfg.Session.KeyID,
	})
	if err != nil {
		return nil, err
	}

	limiter := rate.New(rate.NewRedisStore(b.redis, cfg.RateLimit.RedisPrefix), cfg.Timeouts.RateLimit, clock)

	sink := b.auditSink
	if sink == nil {
		sink = audit.NoOpSink{}
	}

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		tokens:    stores.NewTokenStore(b.redis, cfg.Tokens.RedisPrefix),
		guard:     limiters.NewGuard(limiter, cfg.RateLimit.policies(), cfg.RateLimit.ResetOnSuccess),
		hasher:    hasher,
		totp:      newTOTPEngine(cfg.TOTP),
		jwt:       jm,
		mailer:    b.mailer,
		metrics:   NewMetrics(cfg.Metrics),
		log:       log,
		clock:     clock,
		dummyHash: dummy,
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Async:       cfg.Audit.Async,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		EmitTimeout: cfg.Audit.EmitTimeout,
	}, sink, log.With("component", "audit"))

	b.built = true
	return engine, nil
}

func newDummyHash(h *password.Hasher) (string, error) {
	var raw [24]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return h.Hash(base64.RawURLEncoding.EncodeToString(raw[:]))
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	return out
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
