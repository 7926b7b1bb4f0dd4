// Package storagetest holds the behavioural checks every storage backend must
// pass. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"pkt.systems/tcconsole/internal/storage"
)

// Backend is a store under test that can also be seeded.
type Backend interface {
	storage.Backend
	storage.Seeder
}

// Factory returns a fresh, empty backend. Cleanup is registered on t.
type Factory func(t *testing.T) Backend

// Run executes the conformance suite against backends produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("FullTraversalWraps", func(t *testing.T) { testFullTraversal(t, open(t)) })
	t.Run("MatchFilters", func(t *testing.T) { testMatchFilters(t, open(t)) })
	t.Run("HashGetAll", func(t *testing.T) { testHashGetAll(t, open(t)) })
	t.Run("ListRange", func(t *testing.T) { testListRange(t, open(t)) })
	t.Run("WrongType", func(t *testing.T) { testWrongType(t, open(t)) })
	t.Run("EmptyKeyspace", func(t *testing.T) { testEmptyKeyspace(t, open(t)) })
	t.Run("InvalidCursor", func(t *testing.T) { testInvalidCursor(t, open(t)) })
}

// Seed writes lock records for xids 1..n under the default lock prefix and
// returns their keys in sorted order.
func Seed(t testing.TB, s storage.Seeder, n int) []string {
	t.Helper()
	ctx := context.Background()
	layout := storage.DefaultKeyLayout()
	keys := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		xid := fmt.Sprintf("10.0.0.1:8091:%d", i)
		key := layout.LockKey(xid)
		fields := map[string]string{
			"xid":           xid,
			"transactionId": fmt.Sprint(i),
			"branchId":      fmt.Sprint(i * 100),
			"resourceId":    "jdbc:mysql://db/orders",
			"tableName":     "orders",
			"pk":            fmt.Sprint(i),
		}
		if err := s.PutHash(ctx, key, fields); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Collect walks match to completion with the given count hint and returns the
// distinct keys seen, sorted, plus the number of batches.
func Collect(t testing.TB, b storage.Backend, match string, count int) ([]string, int) {
	t.Helper()
	ctx := context.Background()
	seen := make(map[string]struct{})
	cursor := storage.CursorStart
	batches := 0
	for {
		conn, err := b.Acquire(ctx)
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		res, err := conn.Scan(ctx, cursor, match, count)
		conn.Close()
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		batches++
		for _, key := range res.Keys {
			seen[key] = struct{}{}
		}
		if res.Wrapped() {
			break
		}
		if batches > 10000 {
			t.Fatalf("traversal did not wrap after %d batches", batches)
		}
		cursor = res.Cursor
	}
	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Strings(out)
	return out, batches
}

func testFullTraversal(t *testing.T, b Backend) {
	want := Seed(t, b, 25)
	got, batches := Collect(t, b, storage.DefaultKeyLayout().LockMatch(), 4)
	if !equal(got, want) {
		t.Fatalf("traversal mismatch:\n got %v\nwant %v", got, want)
	}
	if batches < 1 {
		t.Fatalf("expected at least one batch, got %d", batches)
	}
}

func testMatchFilters(t *testing.T, b Backend) {
	ctx := context.Background()
	layout := storage.DefaultKeyLayout()
	locks := Seed(t, b, 3)
	if err := b.PutHash(ctx, layout.GlobalKey("10.0.0.1:8091:1"), map[string]string{"xid": "10.0.0.1:8091:1"}); err != nil {
		t.Fatalf("seed global: %v", err)
	}
	if err := b.PutHash(ctx, "UNRELATED", map[string]string{"a": "b"}); err != nil {
		t.Fatalf("seed unrelated: %v", err)
	}
	got, _ := Collect(t, b, layout.LockMatch(), 2)
	if !equal(got, locks) {
		t.Fatalf("lock match returned %v want %v", got, locks)
	}
	globals, _ := Collect(t, b, layout.GlobalMatch(), 2)
	if len(globals) != 4 {
		t.Fatalf("global match should include shared-prefix lock keys, got %v", globals)
	}
	all, _ := Collect(t, b, "", 2)
	if len(all) != 5 {
		t.Fatalf("empty match should return every key, got %v", all)
	}
}

func testHashGetAll(t *testing.T, b Backend) {
	ctx := context.Background()
	keys := Seed(t, b, 1)
	conn, err := b.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer conn.Close()
	fields, err := conn.HashGetAll(ctx, keys[0])
	if err != nil {
		t.Fatalf("hgetall: %v", err)
	}
	if fields["xid"] != "10.0.0.1:8091:1" || fields["tableName"] != "orders" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	missing, err := conn.HashGetAll(ctx, "SEATA_GLOBAL_LOCKmissing")
	if err != nil {
		t.Fatalf("hgetall missing: %v", err)
	}
	if missing == nil || len(missing) != 0 {
		t.Fatalf("missing key should yield empty map, got %#v", missing)
	}
}

func testListRange(t *testing.T, b Backend) {
	ctx := context.Background()
	key := storage.DefaultKeyLayout().XIDBranchesKey("10.0.0.1:8091:1")
	if err := b.PutList(ctx, key, "SEATA_BRANCH_3", "SEATA_BRANCH_1", "SEATA_BRANCH_2"); err != nil {
		t.Fatalf("seed list: %v", err)
	}
	conn, err := b.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer conn.Close()
	values, err := conn.ListRange(ctx, key)
	if err != nil {
		t.Fatalf("lrange: %v", err)
	}
	want := []string{"SEATA_BRANCH_3", "SEATA_BRANCH_1", "SEATA_BRANCH_2"}
	if !equal(values, want) {
		t.Fatalf("list order lost: %v", values)
	}
	missing, err := conn.ListRange(ctx, "SEATA_XID_BRANCHES_missing")
	if err != nil {
		t.Fatalf("lrange missing: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("missing list should be empty, got %v", missing)
	}
}

func testWrongType(t *testing.T, b Backend) {
	ctx := context.Background()
	if err := b.PutList(ctx, "LISTKEY", "a"); err != nil {
		t.Fatalf("seed list: %v", err)
	}
	if err := b.PutHash(ctx, "HASHKEY", map[string]string{"a": "b"}); err != nil {
		t.Fatalf("seed hash: %v", err)
	}
	conn, err := b.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer conn.Close()
	if _, err := conn.HashGetAll(ctx, "LISTKEY"); !errors.Is(err, storage.ErrWrongType) {
		t.Fatalf("expected wrong type for hgetall on list, got %v", err)
	}
	if _, err := conn.ListRange(ctx, "HASHKEY"); !errors.Is(err, storage.ErrWrongType) {
		t.Fatalf("expected wrong type for lrange on hash, got %v", err)
	}
}

func testEmptyKeyspace(t *testing.T, b Backend) {
	got, batches := Collect(t, b, storage.DefaultKeyLayout().LockMatch(), 10)
	if len(got) != 0 {
		t.Fatalf("expected no keys, got %v", got)
	}
	if batches != 1 {
		t.Fatalf("empty keyspace should wrap after one batch, got %d", batches)
	}
}

func testInvalidCursor(t *testing.T, b Backend) {
	ctx := context.Background()
	conn, err := b.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Scan(ctx, "not-a-cursor!", "", 10); !errors.Is(err, storage.ErrInvalidCursor) {
		t.Fatalf("expected invalid cursor, got %v", err)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
