package idempotency

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPostgresStoreLifecycle(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	key := "test-" + uuid.NewString()
	rec := Record{
		StatusCode:  201,
		Response:    []byte("payload"),
		Fingerprint: Fingerprint([]byte("body")),
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   time.Now().Add(time.Minute).UTC(),
	}

	if err := store.Save(ctx, key, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Lookup(ctx, store, key, rec.Fingerprint)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil || got.StatusCode != rec.StatusCode || got.Fingerprint != rec.Fingerprint {
		t.Fatalf("unexpected record: %#v", got)
	}

	expired := "expired-" + uuid.NewString()
	if err := store.Save(ctx, expired, Record{StatusCode: 201, Response: []byte("x"), CreatedAt: time.Now(), ExpiresAt: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatalf("save expired: %v", err)
	}
	if got, _ := store.Get(ctx, expired); got != nil {
		t.Fatalf("expected expired record hidden")
	}
	if n, err := store.Purge(ctx); err != nil || n < 1 {
		t.Fatalf("purge: %d, %v", n, err)
	}
}

func TestNewPostgresStoreRequiresDSN(t *testing.T) {
	if _, err := NewPostgresStore(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
