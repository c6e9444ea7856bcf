package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type memKV struct {
	values map[string]string
	getErr error
	setErr error
}

func newMemKV() *memKV {
	return &memKV{values: map[string]string{}}
}

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	value, ok := m.values[key]
	if !ok {
		return "", errNotFound
	}
	return value, nil
}

func (m *memKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func TestCheckMissReturnsNil(t *testing.T) {
	cache := NewCacheWithKV(newMemKV(), zap.NewNop())

	response, err := cache.Check(context.Background(), "abc", []byte(`{"order_id":"O1"}`), "m_1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if response != nil {
		t.Fatalf("expected nil response on miss, got %s", response)
	}
}

func TestStoreThenCheckReplaysResponse(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheWithKV(newMemKV(), zap.NewNop())

	body := []byte(`{"order_id":"O1","amount":1000}`)
	stored := json.RawMessage(`{"id":"pi_1","status":"SUCCEEDED"}`)

	if err := cache.Store(ctx, "abc", body, "m_1", stored); err != nil {
		t.Fatalf("store: %v", err)
	}

	replayed, err := cache.Check(ctx, "abc", body, "m_1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if string(replayed) != string(stored) {
		t.Fatalf("expected %s, got %s", stored, replayed)
	}
}

func TestCheckDifferentBodyIsConflict(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheWithKV(newMemKV(), zap.NewNop())

	if err := cache.Store(ctx, "abc", []byte(`{"order_id":"O1","amount":1000}`), "m_1", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("store: %v", err)
	}

	_, err := cache.Check(ctx, "abc", []byte(`{"order_id":"O1","amount":2000}`), "m_1")
	if !errors.Is(err, ErrKeyConflict) {
		t.Fatalf("expected ErrKeyConflict, got %v", err)
	}

	ok, err := cache.ValidateSameRequest(ctx, "abc", []byte(`{"order_id":"O1","amount":2000}`), "m_1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatal("expected mismatch for different body")
	}
}

func TestKeysAreScopedPerMerchant(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheWithKV(newMemKV(), zap.NewNop())

	body := []byte(`{"order_id":"O1"}`)
	if err := cache.Store(ctx, "abc", body, "m_1", json.RawMessage(`{"id":"pi_1"}`)); err != nil {
		t.Fatalf("store: %v", err)
	}

	response, err := cache.Check(ctx, "abc", body, "m_2")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if response != nil {
		t.Fatal("expected miss for a different merchant")
	}
}

func TestCheckFailsOpenOnCacheError(t *testing.T) {
	store := newMemKV()
	store.getErr = errors.New("connection refused")
	cache := NewCacheWithKV(store, zap.NewNop())

	response, err := cache.Check(context.Background(), "abc", []byte(`{}`), "m_1")
	if err != nil {
		t.Fatalf("expected fail-open nil error, got %v", err)
	}
	if response != nil {
		t.Fatal("expected nil response when cache is down")
	}

	ok, err := cache.ValidateSameRequest(context.Background(), "abc", []byte(`{}`), "m_1")
	if err != nil || !ok {
		t.Fatalf("expected fail-open validation, got ok=%v err=%v", ok, err)
	}
}

func TestStoreFailsClosedOnCacheError(t *testing.T) {
	store := newMemKV()
	store.setErr = errors.New("connection refused")
	cache := NewCacheWithKV(store, zap.NewNop())

	err := cache.Store(context.Background(), "abc", []byte(`{}`), "m_1", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected store to propagate the cache error")
	}
}
