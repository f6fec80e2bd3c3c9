package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"

	minHMACKeyBytes = 32
)

var (
	ErrInvalidToken = errors.New("invalid access token")
)

type Config struct {
	SigningMethod SigningMethod
	// PrivateKey signs. For hs256 it is the shared secret and also verifies.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	KeyID      string
}

// Manager signs and verifies session access tokens.
type Manager struct {
	config  Config
	signKey any
	verKey  any
	method  jwt.SigningMethod
}

// AccessClaims binds a token to one session row. Subject is the account id
// and ID is the session id.
type AccessClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) AccountID() string { return c.Subject }
func (c *AccessClaims) SessionID() string { return c.ID }

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACKeyBytes {
			return nil, fmt.Errorf("hs256 requires a key of at least %d bytes", minHMACKeyBytes)
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verKey = cfg.PrivateKey
	case MethodEd25519, "":
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
			m.verKey = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verKey = pub
		}
		if m.verKey == nil {
			return nil, errors.New("ed25519 requires a private or public key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// CreateAccess signs a token for sessionID that expires with the session.
func (j *Manager) CreateAccess(accountID, sessionID, role string, issuedAt, expiresAt time.Time) (string, error) {
	if j.signKey == nil {
		return "", errors.New("manager has no signing key")
	}

	claims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ID:        sessionID,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.method, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}
	return token.SignedString(j.signKey)
}

// ParseAccess verifies signature, algorithm, expiry, issuer and audience,
// judging time claims against now. Every failure wraps ErrInvalidToken.
func (j *Manager) ParseAccess(tokenStr string, now time.Time) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	claims := &AccessClaims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if j.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return j.verKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
