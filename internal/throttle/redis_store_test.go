package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), 15*time.Minute)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestRecordFailureIncrements(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		got, err := store.RecordFailure(ctx, "kid1")
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if got != want {
			t.Fatalf("expected count %d, got %d", want, got)
		}
	}

	count, err := store.Failures(ctx, "kid1")
	if err != nil {
		t.Fatalf("Failures failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 failures, got %d", count)
	}
}

func TestFailuresExpireAfterWindow(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if _, err := store.RecordFailure(ctx, "kid1"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	s.FastForward(16 * time.Minute)

	count, err := store.Failures(ctx, "kid1")
	if err != nil {
		t.Fatalf("Failures failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected counter to expire, got %d", count)
	}
}

func TestResetClearsCounter(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if _, err := store.RecordFailure(ctx, "kid1"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := store.Reset(ctx, "kid1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	count, err := store.Failures(ctx, "kid1")
	if err != nil {
		t.Fatalf("Failures failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 failures after reset, got %d", count)
	}
}

func TestFailuresForUnknownAccountIsZero(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	count, err := store.Failures(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Failures failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0, got %d", count)
	}
}
