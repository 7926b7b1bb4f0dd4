package sessionquery

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"

	"pkt.systems/pslog"

	"pkt.systems/tcconsole/api"
	"pkt.systems/tcconsole/internal/failure"
	"pkt.systems/tcconsole/internal/scan"
	"pkt.systems/tcconsole/internal/storage"
	"pkt.systems/tcconsole/internal/storage/memory"
	"pkt.systems/tcconsole/internal/storage/storagetest"
)

const xid1 = "10.0.0.1:8091:1"

func fixture(t *testing.T) (*memory.Store, *storagetest.Recorder) {
	t.Helper()
	f, err := os.Open("testdata/sessions.yaml")
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()
	store := memory.New()
	if _, err := storage.LoadFixture(context.Background(), store, f); err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return store, storagetest.NewRecorder(store)
}

func newService(t *testing.T, backend storage.Backend, logger pslog.Logger) *Service {
	t.Helper()
	svc, err := New(Options{Backend: backend, Scan: scan.Config{BatchSize: 3}, Logger: logger})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func status(code int) *int { return &code }

func TestNewRequiresBackend(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{}); err == nil {
		t.Fatal("expected backend error")
	}
}

func TestInvalidParamsTouchNoStore(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		param api.GlobalSessionParam
	}{
		{name: "page zero", param: api.GlobalSessionParam{PageNum: 0, PageSize: 5}},
		{name: "size zero", param: api.GlobalSessionParam{PageNum: 1, PageSize: 0, XID: xid1}},
		{name: "unknown status", param: api.GlobalSessionParam{PageNum: 1, PageSize: 5, Status: status(42)}},
		{name: "bad cursor", param: api.GlobalSessionParam{PageNum: 1, PageSize: 5, Cursor: "~1"}},
		{name: "offset overflows", param: api.GlobalSessionParam{PageNum: math.MaxInt/2 + 2, PageSize: 2}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, rec := fixture(t)
			_, err := newService(t, rec, nil).Query(context.Background(), tc.param)
			if !errors.Is(err, failure.ErrInvalidParameter) {
				t.Fatalf("expected invalid parameter, got %v", err)
			}
			if c := rec.Counts(); c.Calls() != 0 {
				t.Fatalf("expected zero store calls, got %+v", c)
			}
		})
	}
}

func TestUnsupportedFilters(t *testing.T) {
	t.Parallel()

	for _, param := range []api.GlobalSessionParam{
		{ApplicationID: "order-svc"},
		{TransactionName: "placeOrder"},
		{TimeStart: 1},
		{TimeEnd: 1},
	} {
		_, rec := fixture(t)
		param.PageNum, param.PageSize = 1, 5
		res, err := newService(t, rec, nil).Query(context.Background(), param)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if !res.Success || res.Data == nil || len(res.Data) != 0 || res.Total != 0 {
			t.Fatalf("expected empty success, got %+v", res)
		}
		if c := rec.Counts(); c.Calls() != 0 {
			t.Fatalf("expected zero store calls, got %+v", c)
		}
	}
}

func TestExactWithBranches(t *testing.T) {
	t.Parallel()

	_, rec := fixture(t)
	svc := newService(t, rec, nil)
	res, err := svc.Query(context.Background(), api.GlobalSessionParam{XID: xid1, WithBranch: true, PageNum: 1, PageSize: 5})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Data) != 1 || res.Total != 1 {
		t.Fatalf("expected one session, got %+v", res)
	}
	view := res.Data[0]
	if view.XID != xid1 || view.Status != 1 || view.Timeout != 60000 || view.BeginTime != 1760400000000 || view.TransactionName != "placeOrder" {
		t.Fatalf("unexpected view: %+v", view)
	}
	branches := view.BranchSessionVOs
	if len(branches) != 2 {
		t.Fatalf("expected deduplicated decodable branches, got %+v", branches)
	}
	if branches[0].BranchID != 101 || branches[0].BranchType != "AT" || branches[1].BranchID != 102 || branches[1].Status != 2 {
		t.Fatalf("unexpected branches: %+v", branches)
	}
	if branches[0].GmtModified != nil || branches[0].GmtCreate != nil {
		t.Fatalf("branch timestamps must be cleared: %+v", branches[0])
	}
	if c := rec.Counts(); c.Scans != 0 || c.ListReads != 1 || !c.Balanced() {
		t.Fatalf("unexpected store activity: %+v", c)
	}
}

func TestExactLookup(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		param api.GlobalSessionParam
		want  int
	}{
		{name: "without branches", param: api.GlobalSessionParam{XID: xid1}, want: 1},
		{name: "status match", param: api.GlobalSessionParam{XID: xid1, Status: status(1)}, want: 1},
		{name: "status mismatch", param: api.GlobalSessionParam{XID: xid1, Status: status(9)}},
		{name: "missing", param: api.GlobalSessionParam{XID: "10.0.0.1:8091:77"}},
		{name: "unknown status code stored", param: api.GlobalSessionParam{XID: "10.0.0.1:8091:4"}},
		{name: "undecodable", param: api.GlobalSessionParam{XID: "10.0.0.1:8091:5"}},
		{name: "exact wins over unsupported", param: api.GlobalSessionParam{XID: xid1, ApplicationID: "other"}, want: 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, rec := fixture(t)
			tc.param.PageNum, tc.param.PageSize = 1, 5
			res, err := newService(t, rec, nil).Query(context.Background(), tc.param)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(res.Data) != tc.want || res.Total != tc.want {
				t.Fatalf("expected %d, got %+v", tc.want, res)
			}
			if tc.want == 1 && (res.Data[0].BranchSessionVOs == nil || len(res.Data[0].BranchSessionVOs) != 0) {
				t.Fatalf("branches should be an empty set: %+v", res.Data[0])
			}
			if c := rec.Counts(); c.ListReads != 0 || c.Scans != 0 {
				t.Fatalf("unexpected store activity: %+v", c)
			}
		})
	}
}

func TestEnumerationExcludesLocks(t *testing.T) {
	t.Parallel()

	_, rec := fixture(t)
	var buf bytes.Buffer
	svc := newService(t, rec, pslog.NewStructured(context.Background(), &buf).LogLevel(pslog.DebugLevel))
	res, err := svc.Query(context.Background(), api.GlobalSessionParam{PageNum: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Total != 6 {
		t.Fatalf("expected 6 stored sessions, got %d", res.Total)
	}
	if len(res.Data) != 4 {
		t.Fatalf("expected 4 convertible sessions, got %+v", res.Data)
	}
	for _, v := range res.Data {
		if strings.HasSuffix(v.XID, ":4") || strings.HasSuffix(v.XID, ":5") {
			t.Fatalf("dropped session listed: %+v", v)
		}
	}
	if res.NextCursor != "" {
		t.Fatalf("expected exhausted traversal, got cursor %q", res.NextCursor)
	}
	out := buf.String()
	for _, want := range []string{"sessionquery.decode.dropped", "sessionquery.page.complete"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in logs:\n%s", want, out)
		}
	}
}

func TestEnumerationHugePageSize(t *testing.T) {
	t.Parallel()

	_, rec := fixture(t)
	res, err := newService(t, rec, nil).Query(context.Background(), api.GlobalSessionParam{PageNum: 1, PageSize: math.MaxInt})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Data) != 4 || res.Total != 6 || res.Pages != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestStatusFilterAppliesToPageAndTotal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code int
		xids []string
	}{
		{code: 1, xids: []string{xid1, "10.0.0.1:8091:3"}},
		{code: 9, xids: []string{"10.0.0.1:8091:2", "10.0.0.1:8091:6"}},
		{code: 11},
	}
	for _, tc := range cases {
		tc := tc
		t.Run("status_"+strconv.Itoa(tc.code), func(t *testing.T) {
			t.Parallel()
			_, rec := fixture(t)
			svc := newService(t, rec, nil)
			seen := map[string]bool{}
			for page := 1; page <= 3; page++ {
				res, err := svc.Query(context.Background(), api.GlobalSessionParam{Status: status(tc.code), PageNum: page, PageSize: 1})
				if err != nil {
					t.Fatalf("page %d: %v", page, err)
				}
				if res.Total != len(tc.xids) {
					t.Fatalf("status %d: total %d, want %d", tc.code, res.Total, len(tc.xids))
				}
				for _, v := range res.Data {
					if v.Status != tc.code {
						t.Fatalf("status filter leaked %+v", v)
					}
					seen[v.XID] = true
				}
			}
			if len(seen) != len(tc.xids) {
				t.Fatalf("status %d: saw %v", tc.code, seen)
			}
			for _, x := range tc.xids {
				if !seen[x] {
					t.Fatalf("status %d: missing %s", tc.code, x)
				}
			}
			if c := rec.Counts(); !c.Balanced() {
				t.Fatalf("connections leaked: %+v", c)
			}
		})
	}
}

func TestEnumerationWithBranchesAndCursor(t *testing.T) {
	t.Parallel()

	_, rec := fixture(t)
	svc := newService(t, rec, nil)
	param := api.GlobalSessionParam{WithBranch: true, PageNum: 1, PageSize: 2}
	branches := 0
	listed := 0
	for i := 0; i < 10; i++ {
		res, err := svc.Query(context.Background(), param)
		if err != nil {
			t.Fatalf("query %d: %v", i, err)
		}
		for _, v := range res.Data {
			listed++
			branches += len(v.BranchSessionVOs)
		}
		if res.NextCursor == "" {
			break
		}
		param.Cursor = res.NextCursor
	}
	if listed != 4 || branches != 2 {
		t.Fatalf("expected 4 sessions with 2 branches, got %d sessions and %d branches", listed, branches)
	}
}

func TestStoreFailuresPropagate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		setup func(*storagetest.Recorder)
		param api.GlobalSessionParam
	}{
		{name: "scan", setup: func(r *storagetest.Recorder) { r.FailScanAt = 1 }},
		{name: "session read", setup: func(r *storagetest.Recorder) {
			r.FailHashKeys = map[string]bool{"SEATA_GLOBAL_" + xid1: true}
		}, param: api.GlobalSessionParam{XID: xid1}},
		{name: "branch read", setup: func(r *storagetest.Recorder) {
			r.FailHashKeys = map[string]bool{"SEATA_BRANCH_101": true}
		}, param: api.GlobalSessionParam{XID: xid1, WithBranch: true}},
		{name: "status filter read", setup: func(r *storagetest.Recorder) {
			r.FailHashKeys = map[string]bool{"SEATA_GLOBAL_10.0.0.1:8091:3": true}
		}, param: api.GlobalSessionParam{Status: status(1)}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, rec := fixture(t)
			tc.setup(rec)
			tc.param.PageNum, tc.param.PageSize = 1, 5
			_, err := newService(t, rec, nil).Query(context.Background(), tc.param)
			if !errors.Is(err, failure.ErrStoreUnavailable) {
				t.Fatalf("expected store unavailable, got %v", err)
			}
			if c := rec.Counts(); !c.Balanced() {
				t.Fatalf("connections leaked: %+v", c)
			}
		})
	}
}
