package storage

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/lifeline-care/crisis/internal/privacy"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "crisis:"), mr
}

func TestStoresGetSet(t *testing.T) {
	redisStore, _ := newTestRedisStore(t)

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.Get(ctx, "crisis_events"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Expected ErrNotFound, got %v", err)
			}

			if err := store.Set(ctx, "crisis_events", []byte("[]")); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			got, err := store.Get(ctx, "crisis_events")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(got) != "[]" {
				t.Errorf("Expected [], got %s", got)
			}
		})
	}
}

func TestRedisStoreUsesPrefix(t *testing.T) {
	store, mr := newTestRedisStore(t)

	if err := store.Set(context.Background(), "scheduled_followups", []byte("x")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !mr.Exists("crisis:scheduled_followups") {
		t.Error("Expected prefixed key in Redis")
	}
	if err := store.Health(context.Background()); err != nil {
		t.Errorf("Health failed: %v", err)
	}
}

func TestSecureStoreSealsValues(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryStore()
	sealer, err := privacy.NewAESGCMSealer(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("NewAESGCMSealer failed: %v", err)
	}
	store := NewSecureStore(backend, sealer)

	if err := store.Set(ctx, "crisis_events", []byte(`[{"riskLevel":"critical"}]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, _ := backend.Get(ctx, "crisis_events")
	if bytes.Contains(raw, []byte("critical")) {
		t.Error("Backend should only hold sealed bytes")
	}

	plain, err := store.Get(ctx, "crisis_events")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(plain) != `[{"riskLevel":"critical"}]` {
		t.Errorf("Unexpected plaintext %s", plain)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound to pass through, got %v", err)
	}

	backend.Set(ctx, "tampered", []byte("not sealed"))
	if _, err := store.Get(ctx, "tampered"); err == nil {
		t.Error("Expected error for unsealed value")
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	value := []byte("abc")
	store.Set(ctx, "k", value)
	value[0] = 'z'

	got, _ := store.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("Store should not alias caller slices, got %s", got)
	}
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	locks := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("crisis_events")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("Expected 50 increments, got %d", counter)
	}
}
