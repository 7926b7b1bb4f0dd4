package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pkt.systems/tcconsole/internal/storage"
	"pkt.systems/tcconsole/internal/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Backend {
		store := New()
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestScanCountBoundsWork(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()
	storagetest.Seed(t, store, 3)
	if err := store.PutHash(ctx, "AAA", map[string]string{"x": "y"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	conn, err := store.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer conn.Close()
	res, err := conn.Scan(ctx, storage.CursorStart, storage.DefaultKeyLayout().LockMatch(), 1)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(res.Keys) != 0 || res.Wrapped() {
		t.Fatalf("first batch should be empty and unwrapped, got %+v", res)
	}
	if res.Cursor != "1" {
		t.Fatalf("expected cursor 1, got %q", res.Cursor)
	}
}

func TestConnAccounting(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()
	conn, err := store.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = conn.Close()
	if stats := store.Stats(); stats.Acquired != 1 || stats.Released != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if _, err := conn.HashGetAll(ctx, "k"); !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("released conn should fail, got %v", err)
	}
}

func TestAcquireAfterClose(t *testing.T) {
	t.Parallel()

	store := New()
	_ = store.Close()
	if _, err := store.Acquire(context.Background()); !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestAcquireCanceled(t *testing.T) {
	t.Parallel()

	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPutReplacesKind(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()
	_ = store.PutList(ctx, "k", "a")
	_ = store.PutHash(ctx, "k", map[string]string{"f": "v"})
	if store.Len() != 1 {
		t.Fatalf("expected 1 key, got %d", store.Len())
	}
	store.Delete("k")
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}

func TestLoadFixtureIntoStore(t *testing.T) {
	t.Parallel()

	store := New()
	doc := "hashes:\n  SEATA_GLOBAL_LOCKx:\n    xid: x\n"
	n, err := storage.LoadFixture(context.Background(), store, strings.NewReader(doc))
	if err != nil || n != 1 {
		t.Fatalf("load fixture: n=%d err=%v", n, err)
	}
	if store.Len() != 1 {
		t.Fatalf("fixture not stored")
	}
}
