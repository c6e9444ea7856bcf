package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultTTL = 24 * time.Hour

var (
	// ErrKeyConflict is returned when an idempotency key is replayed with a
	// different request body.
	ErrKeyConflict = errors.New("idempotency_key_conflict")

	errNotFound = errors.New("idempotency_record_not_found")
)

// KV abstracts the key/value commands the cache needs, so tests can run
// against an in-memory implementation.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type redisKV struct {
	client *redis.Client
}

func (r redisKV) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", errNotFound
	}
	return value, err
}

func (r redisKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

type record struct {
	RequestHash string          `json:"request_hash"`
	Response    json.RawMessage `json:"response"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Cache stores the response produced for each (merchant, idempotency key)
// pair. Reads are a best-effort accelerator and fail open; writes guard
// against double-charging and fail closed.
type Cache struct {
	log *zap.Logger
	kv  KV
	ttl time.Duration
}

func NewCache(client *redis.Client, log *zap.Logger) *Cache {
	return &Cache{
		log: log.Named("idempotency"),
		kv:  redisKV{client: client},
		ttl: defaultTTL,
	}
}

// NewCacheWithKV builds a cache over any KV store.
func NewCacheWithKV(store KV, log *zap.Logger) *Cache {
	return &Cache{log: log.Named("idempotency"), kv: store, ttl: defaultTTL}
}

func cacheKey(merchantID, idempotencyKey string) string {
	return fmt.Sprintf("idempotency:%s:%s", strings.TrimSpace(merchantID), strings.TrimSpace(idempotencyKey))
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Check returns the stored response for a replayed request, or nil on a
// cache miss. A different body under the same key returns ErrKeyConflict.
// Cache unavailability fails open: the caller proceeds and relies on the
// gateway's own idempotency.
func (c *Cache) Check(ctx context.Context, idempotencyKey string, body []byte, merchantID string) (json.RawMessage, error) {
	raw, err := c.kv.Get(ctx, cacheKey(merchantID, idempotencyKey))
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		c.log.Warn("idempotency check failed, proceeding without cache",
			zap.String("merchant_id", merchantID),
			zap.Error(err),
		)
		return nil, nil
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		c.log.Warn("corrupt idempotency record, proceeding without cache",
			zap.String("merchant_id", merchantID),
			zap.Error(err),
		)
		return nil, nil
	}

	if rec.RequestHash != hashBody(body) {
		return nil, ErrKeyConflict
	}
	return rec.Response, nil
}

// Store records the response to replay for this key. It must only be
// called after the guarded operation has durably succeeded, and a storage
// failure propagates so the caller never risks a silent double charge.
func (c *Cache) Store(ctx context.Context, idempotencyKey string, body []byte, merchantID string, response json.RawMessage) error {
	rec := record{
		RequestHash: hashBody(body),
		Response:    response,
		CreatedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, cacheKey(merchantID, idempotencyKey), string(encoded), c.ttl)
}

// ValidateSameRequest reports whether the key is unused or was used with an
// identical body. Cache unavailability fails open.
func (c *Cache) ValidateSameRequest(ctx context.Context, idempotencyKey string, body []byte, merchantID string) (bool, error) {
	raw, err := c.kv.Get(ctx, cacheKey(merchantID, idempotencyKey))
	if errors.Is(err, errNotFound) {
		return true, nil
	}
	if err != nil {
		c.log.Warn("idempotency validation failed, allowing request",
			zap.String("merchant_id", merchantID),
			zap.Error(err),
		)
		return true, nil
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return true, nil
	}
	return rec.RequestHash == hashBody(body), nil
}
