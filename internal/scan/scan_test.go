package scan

import (
	"context"
	"errors"
	"math"
	"testing"

	"pkt.systems/tcconsole/internal/failure"
	"pkt.systems/tcconsole/internal/storage"
	"pkt.systems/tcconsole/internal/storage/memory"
	"pkt.systems/tcconsole/internal/storage/storagetest"
)

// duplicating returns batches that repeat keys across round-trips.
func duplicating() *storagetest.Scripted {
	return &storagetest.Scripted{Batches: map[string]storage.ScanResult{
		"0": {Keys: []string{"a", "b"}, Cursor: "5"},
		"5": {Keys: []string{"b", "c"}, Cursor: "9"},
		"9": {Keys: []string{"a", "d"}, Cursor: "0"},
	}}
}

func TestNextReleasesConnection(t *testing.T) {
	t.Parallel()

	fake := duplicating()
	s := New(fake, Config{})
	batch, err := s.Next(context.Background(), "*", "")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(batch.Keys) != 2 || batch.Cursor != "5" || batch.Wrapped() {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	if c := fake.Counts(); c.Acquired != 1 || !c.Balanced() {
		t.Fatalf("unbalanced connections: %+v", c)
	}
}

func TestNextFailuresReleaseAndWrap(t *testing.T) {
	t.Parallel()

	rec := storagetest.NewRecorder(memory.New())
	rec.FailScanAt = 1
	s := New(rec, Config{})
	_, err := s.Next(context.Background(), "*", storage.CursorStart)
	if !errors.Is(err, failure.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if !errors.Is(err, storagetest.ErrInjected) {
		t.Fatalf("cause should be reachable: %v", err)
	}
	if c := rec.Counts(); !c.Balanced() {
		t.Fatalf("connection leaked on error: %+v", c)
	}

	rec = storagetest.NewRecorder(memory.New())
	rec.FailAcquire = true
	if _, err := New(rec, Config{}).Next(context.Background(), "*", ""); !errors.Is(err, failure.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable on acquire, got %v", err)
	}
}

func TestNextInvalidCursor(t *testing.T) {
	t.Parallel()

	s := New(duplicating(), Config{})
	if _, err := s.Next(context.Background(), "*", "bogus"); !errors.Is(err, failure.ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
}

func TestWalkStopsOnWrap(t *testing.T) {
	t.Parallel()

	fake := duplicating()
	var seen []string
	res, err := New(fake, Config{}).Walk(context.Background(), "*", Position{}, func(key string) bool {
		seen = append(seen, key)
		return true
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if !res.Wrapped || res.Truncated || res.Batches != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(seen) != 6 {
		t.Fatalf("walk should report raw keys, got %v", seen)
	}
	if c := fake.Counts(); c.Acquired != 3 || !c.Balanced() {
		t.Fatalf("expected one connection per batch: %+v", c)
	}
}

func TestWalkEmptyKeyspaceFetchesOneBatch(t *testing.T) {
	t.Parallel()

	fake := &storagetest.Scripted{Batches: map[string]storage.ScanResult{"0": {Cursor: "0"}}}
	res, err := New(fake, Config{}).Walk(context.Background(), "*", Position{}, func(string) bool { return true })
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if res.Batches != 1 || !res.Wrapped {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestWalkResumePositions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		stopAt  string
		want    Position
		wrapped bool
	}{
		{name: "mid batch", stopAt: "a", want: Position{Cursor: "0", Skip: 1}},
		{name: "end of batch", stopAt: "c", want: Position{Cursor: "9"}},
		{name: "end of final batch", stopAt: "d", wrapped: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res, err := New(duplicating(), Config{}).Walk(context.Background(), "*", Position{}, func(key string) bool {
				return key != tc.stopAt
			})
			if err != nil {
				t.Fatalf("walk: %v", err)
			}
			if res.Wrapped != tc.wrapped || res.Resume != tc.want {
				t.Fatalf("unexpected result: %+v", res)
			}
		})
	}
}

func TestWalkFromPositionSkips(t *testing.T) {
	t.Parallel()

	var seen []string
	_, err := New(duplicating(), Config{}).Walk(context.Background(), "*", Position{Cursor: "5", Skip: 1}, func(key string) bool {
		seen = append(seen, key)
		return true
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	want := []string{"c", "a", "d"}
	if len(seen) != len(want) {
		t.Fatalf("unexpected keys: %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("unexpected keys: %v", seen)
		}
	}
}

func TestWalkBudgetTruncates(t *testing.T) {
	t.Parallel()

	fake := &storagetest.Scripted{Batches: map[string]storage.ScanResult{
		"0": {Keys: []string{"a"}, Cursor: "1"},
		"1": {Keys: []string{"a"}, Cursor: "1"},
	}}
	res, err := New(fake, Config{MaxBatches: 5}).Walk(context.Background(), "*", Position{}, func(string) bool { return true })
	if err != nil {
		t.Fatalf("truncation must not be an error: %v", err)
	}
	if !res.Truncated || res.Wrapped || res.Batches != 5 || res.Resume.Cursor != "1" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCountUnique(t *testing.T) {
	t.Parallel()

	s := New(duplicating(), Config{})
	total, res, err := s.CountUnique(context.Background(), "*", nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 4 || !res.Wrapped {
		t.Fatalf("expected 4 unique keys, got %d (%+v)", total, res)
	}
	calls := map[string]int{}
	total, _, err = s.CountUnique(context.Background(), "*", func(key string) (bool, error) {
		calls[key]++
		return key != "b", nil
	})
	if err != nil {
		t.Fatalf("count filtered: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 kept keys, got %d", total)
	}
	for key, n := range calls {
		if n != 1 {
			t.Fatalf("keep called %d times for %s", n, key)
		}
	}
	_, _, err = s.CountUnique(context.Background(), "*", func(string) (bool, error) { return false, storagetest.ErrInjected })
	if !errors.Is(err, storagetest.ErrInjected) {
		t.Fatalf("expected keep error, got %v", err)
	}
}

func TestCountAgainstMemoryStore(t *testing.T) {
	t.Parallel()

	store := memory.New()
	storagetest.Seed(t, store, 37)
	_ = store.PutHash(context.Background(), "SEATA_GLOBAL_1", map[string]string{"xid": "1"})
	s := New(store, Config{BatchSize: 5})
	total, res, err := s.CountUnique(context.Background(), storage.DefaultKeyLayout().LockMatch(), nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 37 || res.Batches < 8 {
		t.Fatalf("unexpected count %d after %d batches", total, res.Batches)
	}
}

func TestPositionTokens(t *testing.T) {
	t.Parallel()

	cases := []Position{
		{Cursor: "17"},
		{Cursor: "17", Skip: 3},
		{Cursor: "U0VBVEFfR0xPQkFMX0xPQ0sx", Skip: 1},
		{Cursor: "0", Skip: 2},
	}
	for _, p := range cases {
		got, err := ParsePosition(p.String())
		if err != nil {
			t.Fatalf("parse %q: %v", p.String(), err)
		}
		if got != p {
			t.Fatalf("round trip mismatch: %+v vs %+v", got, p)
		}
	}
	for _, bad := range []string{"17~", "17~x", "17~-1", "~3"} {
		if _, err := ParsePosition(bad); !errors.Is(err, failure.ErrInvalidParameter) {
			t.Fatalf("expected invalid parameter for %q, got %v", bad, err)
		}
	}
	if !(Position{}).IsStart() || !(Position{Cursor: "0"}).IsStart() || (Position{Cursor: "0", Skip: 1}).IsStart() {
		t.Fatal("IsStart mismatch")
	}
}

func TestKeySetOrder(t *testing.T) {
	t.Parallel()

	set := NewKeySet()
	for _, k := range []string{"b", "a", "b", "c", "a"} {
		set.Add(k)
	}
	got := set.Keys()
	if set.Len() != 3 || got[0] != "b" || got[1] != "a" || got[2] != "c" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestWindowSkipsDuplicatesAndStopsEarly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		offset  int
		limit   int
		want    []string
		batches int
		resume  Position
		wrapped bool
	}{
		{name: "first page", offset: 0, limit: 2, want: []string{"a", "b"}, batches: 1, resume: Position{Cursor: "5"}},
		{name: "second page", offset: 2, limit: 2, want: []string{"c", "d"}, batches: 3, wrapped: true},
		{name: "straddles batches", offset: 1, limit: 2, want: []string{"b", "c"}, batches: 2, resume: Position{Cursor: "9"}},
		{name: "beyond end", offset: 4, limit: 2, want: []string{}, batches: 3, wrapped: true},
		{name: "mid batch", offset: 0, limit: 1, want: []string{"a"}, batches: 1, resume: Position{Cursor: "0", Skip: 1}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fake := duplicating()
			keys, res, err := New(fake, Config{}).Window(context.Background(), "*", Position{}, tc.offset, tc.limit, nil)
			if err != nil {
				t.Fatalf("window: %v", err)
			}
			if len(keys) != len(tc.want) {
				t.Fatalf("keys = %v, want %v", keys, tc.want)
			}
			for i := range keys {
				if keys[i] != tc.want[i] {
					t.Fatalf("keys = %v, want %v", keys, tc.want)
				}
			}
			if res.Batches != tc.batches || res.Wrapped != tc.wrapped || res.Resume != tc.resume {
				t.Fatalf("unexpected walk result: %+v", res)
			}
			if c := fake.Counts(); c.Scans != tc.batches || !c.Balanced() {
				t.Fatalf("unexpected counts: %+v", c)
			}
		})
	}
}

func TestWindowKeepFilters(t *testing.T) {
	t.Parallel()

	s := New(duplicating(), Config{})
	calls := 0
	keys, _, err := s.Window(context.Background(), "*", Position{}, 0, 10, func(key string) (bool, error) {
		calls++
		return key != "a", nil
	})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(keys) != 3 || keys[0] != "b" || keys[2] != "d" {
		t.Fatalf("unexpected keys: %v", keys)
	}
	if calls != 4 {
		t.Fatalf("keep should be called once per distinct key, got %d", calls)
	}
	if _, _, err := s.Window(context.Background(), "*", Position{}, 0, 10, func(string) (bool, error) {
		return false, storagetest.ErrInjected
	}); !errors.Is(err, storagetest.ErrInjected) {
		t.Fatalf("expected keep error, got %v", err)
	}
}

func TestWindowResumesFromPosition(t *testing.T) {
	t.Parallel()

	s := New(duplicating(), Config{})
	first, res, err := s.Window(context.Background(), "*", Position{}, 0, 1, nil)
	if err != nil {
		t.Fatalf("first window: %v", err)
	}
	second, res, err := s.Window(context.Background(), "*", res.Resume, 0, 2, nil)
	if err != nil {
		t.Fatalf("second window: %v", err)
	}
	if first[0] != "a" || len(second) != 2 || second[0] != "b" || second[1] != "c" {
		t.Fatalf("unexpected resume: %v then %v", first, second)
	}
	if res.Resume != (Position{Cursor: "9"}) {
		t.Fatalf("unexpected resume position: %+v", res.Resume)
	}
}

func TestWindowHugeLimit(t *testing.T) {
	t.Parallel()

	fake := duplicating()
	keys, res, err := New(fake, Config{}).Window(context.Background(), "*", Position{}, 0, math.MaxInt, nil)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(keys) != 4 || !res.Wrapped {
		t.Fatalf("expected every key and a wrapped walk, got %v %+v", keys, res)
	}
	keys, _, err = New(duplicating(), Config{}).Window(context.Background(), "*", Position{}, math.MaxInt-1, math.MaxInt, nil)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("offset past the keyspace should be empty, got %v", keys)
	}
}
