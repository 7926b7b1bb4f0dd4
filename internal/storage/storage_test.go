package storage_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pkt.systems/tcconsole/internal/storage"
)

func TestNewTransientErrorWraps(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	wrapped := storage.NewTransientError(err)
	if wrapped == nil {
		t.Fatal("expected wrapped error")
	}
	if !errors.Is(wrapped, err) {
		t.Fatal("wrapped error should contain original")
	}
	if !storage.IsTransient(wrapped) {
		t.Fatal("expected IsTransient to detect wrapped error")
	}
	if storage.IsTransient(err) {
		t.Fatal("plain error should not be transient")
	}
}

func TestNewTransientErrorHandlesNil(t *testing.T) {
	t.Parallel()

	if storage.NewTransientError(nil) != nil {
		t.Fatal("nil input should return nil")
	}
}

func TestScanResultWrapped(t *testing.T) {
	t.Parallel()

	if !(storage.ScanResult{Cursor: storage.CursorStart}).Wrapped() {
		t.Fatal("start cursor should report wrapped")
	}
	if (storage.ScanResult{Cursor: "17"}).Wrapped() {
		t.Fatal("non-start cursor should not report wrapped")
	}
}

func TestKeyLayoutDefaults(t *testing.T) {
	t.Parallel()

	layout := storage.KeyLayout{LockPrefix: "LOCK:"}.WithDefaults()
	if layout.LockPrefix != "LOCK:" {
		t.Fatalf("lock prefix overwritten: %q", layout.LockPrefix)
	}
	if layout.GlobalPrefix != storage.DefaultGlobalPrefix {
		t.Fatalf("global prefix default missing: %q", layout.GlobalPrefix)
	}
	if got := layout.LockKey("10.0.0.1:8091:42"); got != "LOCK:10.0.0.1:8091:42" {
		t.Fatalf("lock key mismatch: %q", got)
	}
	if got := layout.LockMatch(); got != "LOCK:*" {
		t.Fatalf("lock match mismatch: %q", got)
	}
	def := storage.DefaultKeyLayout()
	if !def.IsLockKey("SEATA_GLOBAL_LOCK1.2.3.4:8091:1") {
		t.Fatal("expected lock key to be recognised")
	}
	if def.IsLockKey("SEATA_GLOBAL_1.2.3.4:8091:1") {
		t.Fatal("global key misclassified as lock key")
	}
}

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		{pattern: "", key: "anything", want: true},
		{pattern: "SEATA_GLOBAL_LOCK*", key: "SEATA_GLOBAL_LOCK10.0.0.1:8091:7", want: true},
		{pattern: "SEATA_GLOBAL_LOCK*", key: "SEATA_GLOBAL_10.0.0.1:8091:7", want: false},
		{pattern: "a?c", key: "abc", want: true},
		{pattern: "a?c", key: "ac", want: false},
		{pattern: "h[ae]llo", key: "hello", want: true},
		{pattern: "h[^e]llo", key: "hello", want: false},
		{pattern: "h[a-b]llo", key: "hbllo", want: true},
		{pattern: `a\*b`, key: "a*b", want: true},
		{pattern: `a\*b`, key: "axb", want: false},
		{pattern: "*:8091:*", key: "10.0.0.1:8091:99", want: true},
		{pattern: "exact", key: "exact", want: true},
		{pattern: "exact", key: "exactly", want: false},
	}
	for _, tc := range cases {
		if got := storage.MatchPattern(tc.pattern, tc.key); got != tc.want {
			t.Fatalf("MatchPattern(%q,%q)=%v want %v", tc.pattern, tc.key, got, tc.want)
		}
	}
}

func TestEscapeAndLiteralPrefix(t *testing.T) {
	t.Parallel()

	escaped := storage.EscapePattern("LOCK[1]*")
	if escaped != `LOCK\[1\]\*` {
		t.Fatalf("escape mismatch: %q", escaped)
	}
	if !storage.MatchPattern(escaped+"*", "LOCK[1]*tail") {
		t.Fatal("escaped prefix should match literally")
	}
	if got := storage.LiteralPrefix(escaped + "*"); got != "LOCK[1]*" {
		t.Fatalf("literal prefix mismatch: %q", got)
	}
	if got := storage.LiteralPrefix("SEATA_GLOBAL_*"); got != "SEATA_GLOBAL_" {
		t.Fatalf("literal prefix mismatch: %q", got)
	}
}

type recordingSeeder struct {
	hashes map[string]map[string]string
	lists  map[string][]string
	order  []string
}

func (r *recordingSeeder) PutHash(_ context.Context, key string, fields map[string]string) error {
	if r.hashes == nil {
		r.hashes = make(map[string]map[string]string)
	}
	r.hashes[key] = fields
	r.order = append(r.order, key)
	return nil
}

func (r *recordingSeeder) PutList(_ context.Context, key string, values ...string) error {
	if r.lists == nil {
		r.lists = make(map[string][]string)
	}
	r.lists[key] = values
	r.order = append(r.order, key)
	return nil
}

func TestLoadFixture(t *testing.T) {
	t.Parallel()

	doc := `
hashes:
  SEATA_GLOBAL_LOCKb:
    xid: b
  SEATA_GLOBAL_LOCKa:
    xid: a
    transactionId: "1"
lists:
  SEATA_XID_BRANCHES_a: [SEATA_BRANCH_1, SEATA_BRANCH_2]
`
	seeder := &recordingSeeder{}
	n, err := storage.LoadFixture(context.Background(), seeder, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 keys written, got %d", n)
	}
	want := []string{"SEATA_GLOBAL_LOCKa", "SEATA_GLOBAL_LOCKb", "SEATA_XID_BRANCHES_a"}
	if strings.Join(seeder.order, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected seed order: %v", seeder.order)
	}
	if seeder.hashes["SEATA_GLOBAL_LOCKa"]["transactionId"] != "1" {
		t.Fatalf("hash fields lost: %v", seeder.hashes)
	}
	if got := seeder.lists["SEATA_XID_BRANCHES_a"]; len(got) != 2 || got[1] != "SEATA_BRANCH_2" {
		t.Fatalf("list values lost: %v", got)
	}
}

func TestLoadFixtureRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := storage.LoadFixture(context.Background(), &recordingSeeder{}, strings.NewReader("keys: {}\n"))
	if err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestLoadFixtureEmpty(t *testing.T) {
	t.Parallel()

	n, err := storage.LoadFixture(context.Background(), &recordingSeeder{}, strings.NewReader(""))
	if err != nil || n != 0 {
		t.Fatalf("empty fixture: n=%d err=%v", n, err)
	}
}

func TestValueCodec(t *testing.T) {
	t.Parallel()

	v := storage.MergeHash(nil, map[string]string{"xid": "a"})
	v = storage.MergeHash(v, map[string]string{"pk": "1"})
	raw, err := storage.EncodeValue(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := storage.DecodeValue(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	fields, err := storage.HashOf("k", decoded)
	if err != nil {
		t.Fatalf("hash of: %v", err)
	}
	if fields["xid"] != "a" || fields["pk"] != "1" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if _, err := storage.ListOf("k", decoded); !errors.Is(err, storage.ErrWrongType) {
		t.Fatalf("expected wrong type, got %v", err)
	}
	list := storage.AppendList(decoded, "x")
	if list.Kind != storage.KindList || len(list.List) != 1 {
		t.Fatalf("append should replace hash with list: %+v", list)
	}
	if _, err := storage.DecodeValue([]byte(`{"t":"set"}`)); err == nil {
		t.Fatal("expected unknown kind error")
	}
	if m, err := storage.HashOf("k", nil); err != nil || m == nil {
		t.Fatalf("missing key should be empty map: %v %v", m, err)
	}
}
