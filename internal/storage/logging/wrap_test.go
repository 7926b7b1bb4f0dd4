package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"pkt.systems/pslog"

	"pkt.systems/tcconsole/internal/correlation"
	"pkt.systems/tcconsole/internal/storage"
	"pkt.systems/tcconsole/internal/storage/memory"
	"pkt.systems/tcconsole/internal/storage/storagetest"
)

type wrapped struct {
	storage.Backend
	*memory.Store
}

func (w wrapped) Acquire(ctx context.Context) (storage.Conn, error) { return w.Backend.Acquire(ctx) }
func (w wrapped) Close() error                                      { return w.Backend.Close() }

func TestConformanceThroughDecorator(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Backend {
		store := memory.New()
		return wrapped{Backend: Wrap(store, pslog.NoopLogger(), "test"), Store: store}
	})
}

func TestWrapLogsRoundTrips(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := pslog.NewStructured(context.Background(), &buf).LogLevel(pslog.TraceLevel)
	store := memory.New()
	storagetest.Seed(t, store, 2)
	backend := Wrap(store, logger, "test")

	ctx := correlation.With(context.Background(), "cid-1")
	conn, err := backend.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := conn.Scan(ctx, storage.CursorStart, "*", 10); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, err := conn.HashGetAll(ctx, "missing"); err != nil {
		t.Fatalf("hgetall: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"storage.scan.success", "storage.hgetall.success", "storage.release", "cid-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output:\n%s", want, out)
		}
	}
	if stats := store.Stats(); stats.Acquired != 1 || stats.Released != 1 {
		t.Fatalf("decorator must release inner conn: %+v", stats)
	}
}

func TestUnwrap(t *testing.T) {
	t.Parallel()

	store := memory.New()
	if Unwrap(Wrap(store, nil, "x")) != store {
		t.Fatal("unwrap should return inner backend")
	}
	if Unwrap(store) != store {
		t.Fatal("unwrap of plain backend should be identity")
	}
}
