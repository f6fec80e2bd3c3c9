package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minSecretBytes        = 10
	algorithmID           = "argon2id"

	// DefaultMaxSecretBytes caps the input to a single hash when Params leaves
	// MaxSecretBytes unset.
	DefaultMaxSecretBytes = 1024
)

var (
	// ErrSecretTooShort is returned by Hash for secrets below the minimum length.
	ErrSecretTooShort = errors.New("secret must be at least 10 bytes")
	// ErrSecretTooLong is returned by Hash and Verify for oversized input.
	ErrSecretTooLong = errors.New("secret exceeds maximum length")
	// ErrMalformedHash is returned when a stored digest is not a valid argon2id PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Params are the Argon2id work factors. Memory is in KiB.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MaxSecretBytes int
}

// Hasher produces and verifies Argon2id password digests.
type Hasher struct {
	params Params
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// NewHasher validates params against the lower bounds and returns a Hasher.
func NewHasher(params Params) (*Hasher, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if params.MaxSecretBytes <= 0 {
		params.MaxSecretBytes = DefaultMaxSecretBytes
	}
	return &Hasher{params: params}, nil
}

// Hash derives a salted digest of secret and encodes it in PHC format.
// The secret bytes are used as given, without Unicode normalization.
func (h *Hasher) Hash(secret string) (string, error) {
	if len(secret) < minSecretBytes {
		return "", ErrSecretTooShort
	}
	if len(secret) > h.params.MaxSecretBytes {
		return "", ErrSecretTooLong
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(secret), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches digest. The key comparison runs in
// constant time; the parameters encoded in digest are used, not the Hasher's.
func (h *Hasher) Verify(secret, digest string) (bool, error) {
	if len(secret) > h.params.MaxSecretBytes {
		return false, ErrSecretTooLong
	}
	parsed, err := parsePHC(digest)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(secret),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.key)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.key) == 1, nil
}

// NeedsUpgrade reports whether digest was produced with weaker parameters than
// the Hasher currently uses.
func (h *Hasher) NeedsUpgrade(digest string) (bool, error) {
	parsed, err := parsePHC(digest)
	if err != nil {
		return false, err
	}

	switch {
	case h.params.Memory > parsed.memory,
		h.params.Time > parsed.time,
		h.params.Parallelism > parsed.parallelism,
		h.params.KeyLength != uint32(len(parsed.key)):
		return true, nil
	}
	return false, nil
}

func parsePHC(digest string) (*phc, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") || version != argon2.Version {
		return nil, fmt.Errorf("%w: version", ErrMalformedHash)
	}

	out := &phc{}
	if err := parseCost(parts[3], out); err != nil {
		return nil, err
	}

	out.salt, err = decodeSegment(parts[4])
	if err != nil || len(out.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	out.key, err = decodeSegment(parts[5])
	if err != nil || len(out.key) == 0 {
		return nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}

	return out, nil
}

// decodeSegment accepts both padded and unpadded base64 so digests written by
// older deployments keep verifying.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func parseCost(segment string, out *phc) error {
	pairs := strings.Split(segment, ",")
	if len(pairs) != 3 {
		return fmt.Errorf("%w: parameters", ErrMalformedHash)
	}

	seen := 0
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: parameters", ErrMalformedHash)
		}

		switch name {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return fmt.Errorf("%w: memory", ErrMalformedHash)
			}
			out.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return fmt.Errorf("%w: time", ErrMalformedHash)
			}
			out.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return fmt.Errorf("%w: parallelism", ErrMalformedHash)
			}
			out.parallelism = uint8(v)
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, name)
		}
		seen++
	}

	if seen != 3 || out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}
	return nil
}

func validateParams(p Params) error {
	switch {
	case p.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KB")
	case p.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case p.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case p.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	}
	return nil
}
