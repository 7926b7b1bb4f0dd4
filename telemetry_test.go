package tcconsole

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"pkt.systems/tcconsole/api"
)

func TestResolveOTLPTarget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw      string
		protocol string
		endpoint string
		path     string
		insecure bool
		wantErr  bool
	}{
		{raw: "collector", protocol: "grpc", endpoint: "collector:4317", insecure: true},
		{raw: "collector:9999", protocol: "grpc", endpoint: "collector:9999", insecure: true},
		{raw: "grpc://collector", protocol: "grpc", endpoint: "collector:4317", insecure: true},
		{raw: "grpcs://collector:443", protocol: "grpc", endpoint: "collector:443"},
		{raw: "http://collector/v1/traces/", protocol: "http", endpoint: "collector:4318", path: "/v1/traces", insecure: true},
		{raw: "https://collector:8443", protocol: "http", endpoint: "collector:8443"},
		{raw: "udp://collector", wantErr: true},
		{raw: "http://", wantErr: true},
		{raw: "  ", wantErr: true},
	}
	for _, tc := range cases {
		target, err := resolveOTLPTarget(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.raw, err)
		}
		if target.protocol != tc.protocol || target.endpoint != tc.endpoint || target.path != tc.path || target.insecure != tc.insecure {
			t.Fatalf("%q: unexpected target %+v", tc.raw, target)
		}
	}
}

func TestSetupTelemetryDisabled(t *testing.T) {
	t.Parallel()

	bundle, err := setupTelemetry(context.Background(), Config{}, nil)
	if err != nil || bundle != nil {
		t.Fatalf("expected no telemetry, got %v %v", bundle, err)
	}
	if err := bundle.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil shutdown: %v", err)
	}
	if bundle.MeterProvider() != nil || bundle.MetricsAddr() != "" {
		t.Fatal("nil bundle should expose nothing")
	}
}

func TestMetricsEndpointServesQueryMetrics(t *testing.T) {
	ctx := context.Background()
	console, err := New(ctx, Config{
		Store:         "mem://?fixture=testdata/console.yaml",
		XIDAddress:    "10.0.0.1:8091",
		MetricsListen: "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("new console: %v", err)
	}
	defer console.Close(ctx)
	if _, err := console.Locks(ctx, api.GlobalLockParam{PageNum: 1, PageSize: 10}); err != nil {
		t.Fatalf("locks: %v", err)
	}
	addr := console.MetricsAddr()
	if addr == "" {
		t.Fatal("metrics address not bound")
	}
	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scrape status %d", resp.StatusCode)
	}
	for _, want := range []string{"tcconsole_query_point_reads", "tcconsole_query_scan_batches"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %s in scrape:\n%s", want, body)
		}
	}
}
