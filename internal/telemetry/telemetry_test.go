package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"":      slog.LevelWarn,
		"loud":  slog.LevelWarn,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := SetupLogger(LogConfig{Level: "info", Format: "json", Output: &buf})
	WithProject(WithInvocationID(logger, "abc"), "demo-project").Info("hello")
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, `"invocation_id":"abc"`) {
		t.Errorf("expected JSON record with invocation_id, got %s", out)
	}
	if !strings.Contains(out, `"project_id":"demo-project"`) {
		t.Errorf("expected JSON record with project_id, got %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record must be filtered, got %s", out)
	}

	buf.Reset()
	SetupLogger(LogConfig{Level: "warn", Output: &buf}).Warn("careful", "key", "v")
	if !strings.Contains(buf.String(), "msg=careful key=v") {
		t.Errorf("expected text record, got %s", buf.String())
	}
}

func TestLoggerContext(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)

	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger without one in context")
	}
}

type opKey struct{}

func TestInstrumentRoundTripper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMetrics()
	transport := &http.Transport{}
	defer transport.CloseIdleConnections()

	client := &http.Client{Transport: m.InstrumentRoundTripper(transport, func(ctx context.Context) string {
		op, _ := ctx.Value(opKey{}).(string)
		return op
	})}

	do := func(op, path string) {
		ctx := context.WithValue(context.Background(), opKey{}, op)
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
	}

	do("get", "/")
	do("get", "/")
	do("rollback", "/missing")

	if got := testutil.ToFloat64(m.APIRequests.WithLabelValues("get", "200")); got != 2 {
		t.Errorf("expected 2 get requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.APIRequests.WithLabelValues("rollback", "404")); got != 1 {
		t.Errorf("expected 1 failed rollback, got %v", got)
	}
	if count := testutil.CollectAndCount(m.APIDuration); count != 2 {
		t.Errorf("expected 2 duration series, got %d", count)
	}
}

func TestObserveCommand(t *testing.T) {
	m := NewMetrics()
	m.ObserveCommand("get", nil)
	m.ObserveCommand("publish", errors.New("conflict"))

	expected := `
# HELP rcctl_commands_total Total rcctl command invocations by result
# TYPE rcctl_commands_total counter
rcctl_commands_total{command="get",result="success"} 1
rcctl_commands_total{command="publish",result="error"} 1
`
	if err := testutil.CollectAndCompare(m.Commands, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
	if n, err := testutil.GatherAndCount(m.Registry(), "rcctl_commands_total"); err != nil || n != 2 {
		t.Errorf("expected 2 registered command series, got %d (%v)", n, err)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveCommand("get", nil)
}

func TestPush(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMetrics()
	m.ObserveCommand("versions", nil)

	if err := m.Push(context.Background(), srv.URL, "rcctl"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/metrics/job/rcctl" {
		t.Errorf("unexpected push request %s %s", gotMethod, gotPath)
	}

	if err := m.Push(context.Background(), "", "rcctl"); err == nil {
		t.Error("expected error for empty gateway url")
	}
}

func TestPush_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := NewMetrics().Push(context.Background(), srv.URL, "rcctl"); err == nil {
		t.Error("expected push error")
	}
}
