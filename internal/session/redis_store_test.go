package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client, time.Hour), mr
}

func TestRedisStoreSaveAndLookup(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	resolved := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := Entry{RecordID: "record-1", Email: "a@example.com", ResolvedAt: resolved}
	if err := s.Save(ctx, "uid-1", entry); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Lookup(ctx, "uid-1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got.RecordID != "record-1" || got.Email != "a@example.com" {
		t.Errorf("Lookup() = %+v, want the saved entry", got)
	}
	if !got.ResolvedAt.Equal(resolved) {
		t.Errorf("resolved at = %v, want %v", got.ResolvedAt, resolved)
	}
}

func TestRedisStoreLookupMiss(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	_, err := s.Lookup(context.Background(), "nobody")
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("Lookup() error = %v, want ErrNoSession", err)
	}
}

func TestRedisStoreEntriesExpire(t *testing.T) {
	t.Parallel()

	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "uid-1", Entry{RecordID: "record-1"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	mr.FastForward(2 * time.Hour)

	_, err := s.Lookup(ctx, "uid-1")
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("Lookup() after TTL error = %v, want ErrNoSession", err)
	}
}

func TestRedisStoreClear(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "uid-1", Entry{RecordID: "record-1"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Clear(ctx, "uid-1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := s.Lookup(ctx, "uid-1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Lookup() after clear error = %v, want ErrNoSession", err)
	}

	// Clearing an absent entry is fine.
	if err := s.Clear(ctx, "uid-1"); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
}

func TestRedisStoreSaveOverwrites(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "uid-1", Entry{RecordID: "old"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, "uid-1", Entry{RecordID: "new"}); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := s.Lookup(ctx, "uid-1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got.RecordID != "new" {
		t.Errorf("record id = %q, want the overwrite to win", got.RecordID)
	}
}
