package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenRecordVersionV1 = 1
	tokenRecordSize      = 1 + 8 + 8 + 32
)

var (
	// ErrTokenNotFound covers never-issued, expired, superseded, already
	// consumed and mismatched tokens alike.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenStoreUnavailable wraps backend failures.
	ErrTokenStoreUnavailable = errors.New("token store unavailable")
)

// consumeTokenLua atomically performs GET→validate→DEL on a one-time token record.
// KEYS[1] = namespace key
// ARGV[1] = presented token hash (32 bytes)
// ARGV[2] = current unix time in milliseconds
//
// Returns the record bytes on success, or an error string:
// "not_found", "expired", "mismatch".
// A mismatch leaves the live record in place.
var consumeTokenLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

-- layout: version(1) createdAt(8) expiresAt(8) hash(32), big-endian millis
if string.len(data) ~= 49 or string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local expiresAt = 0
for i = 10, 17 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end

if tonumber(ARGV[2]) >= expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if string.sub(data, 18, 49) ~= ARGV[1] then
  return {err='mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// TokenRecord is the stored form of a one-time token. The token itself is never
// stored.
type TokenRecord struct {
	Hash      [32]byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// TokenStore keeps at most one live token per namespace in Redis.
type TokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTokenStore(redisClient redis.UniversalClient, prefix string) *TokenStore {
	if prefix == "" {
		prefix = "ott"
	}
	return &TokenStore{redis: redisClient, prefix: prefix}
}

func (s *TokenStore) key(namespace string) string {
	return s.prefix + ":" + namespace
}

// Save writes record under namespace, replacing any live token there.
func (s *TokenStore) Save(ctx context.Context, namespace string, record TokenRecord) error {
	ttl := record.ExpiresAt.Sub(record.CreatedAt)
	if ttl <= 0 {
		return errors.New("token record already expired")
	}

	if err := s.redis.Set(ctx, s.key(namespace), encodeTokenRecord(record), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	return nil
}

// Consume deletes and returns the record under namespace if presented matches
// and it has not expired at now.
func (s *TokenStore) Consume(ctx context.Context, namespace string, presented [32]byte, now time.Time) (*TokenRecord, error) {
	result, err := consumeTokenLua.Run(ctx, s.redis,
		[]string{s.key(namespace)},
		string(presented[:]),
		now.UnixMilli(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found", "expired", "mismatch":
			return nil, ErrTokenNotFound
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrTokenStoreUnavailable)
	}
	record, err := decodeTokenRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}

	// Lua string comparison is not constant-time.
	if subtle.ConstantTimeCompare(record.Hash[:], presented[:]) != 1 {
		return nil, ErrTokenNotFound
	}
	return record, nil
}

// Check reports whether presented matches the live, unexpired record under
// namespace without consuming it.
func (s *TokenStore) Check(ctx context.Context, namespace string, presented [32]byte, now time.Time) (*TokenRecord, error) {
	data, err := s.redis.Get(ctx, s.key(namespace)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}

	record, err := decodeTokenRecord(data)
	if err != nil {
		return nil, ErrTokenNotFound
	}
	if !now.Before(record.ExpiresAt) {
		return nil, ErrTokenNotFound
	}
	if subtle.ConstantTimeCompare(record.Hash[:], presented[:]) != 1 {
		return nil, ErrTokenNotFound
	}
	return record, nil
}

// Revoke removes any live token under namespace.
func (s *TokenStore) Revoke(ctx context.Context, namespace string) error {
	if err := s.redis.Del(ctx, s.key(namespace)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	return nil
}

func encodeTokenRecord(record TokenRecord) []byte {
	var buf bytes.Buffer
	buf.Grow(tokenRecordSize)
	buf.WriteByte(tokenRecordVersionV1)
	_ = binary.Write(&buf, binary.BigEndian, record.CreatedAt.UnixMilli())
	_ = binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixMilli())
	buf.Write(record.Hash[:])
	return buf.Bytes()
}

func decodeTokenRecord(data []byte) (*TokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenRecordVersionV1 {
		return nil, errors.New("invalid token record version")
	}

	var created, expires int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, err
	}

	record := &TokenRecord{
		CreatedAt: time.UnixMilli(created).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
	}
	if _, err := io.ReadFull(reader, record.Hash[:]); err != nil {
		return nil, err
	}
	return record, nil
}
