package dispatch

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"fanout-gateway-go/internal/metrics"
	"fanout-gateway-go/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// targetFor builds a Target pointing at an httptest server.
func targetFor(t *testing.T, srv *httptest.Server, name string) model.Target {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse %s: %v", srv.URL, err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return model.Target{
		Name:   name,
		Scheme: "http",
		Host:   host,
		Port:   port,
		Path:   "/",
		Client: srv.Client(),
	}
}

// deadTarget points at a port nothing listens on.
func deadTarget(name string) model.Target {
	return model.Target{
		Name:   name,
		Scheme: "http",
		Host:   "127.0.0.1",
		Port:   1,
		Path:   "/",
		Client: &http.Client{Timeout: 2 * time.Second},
	}
}

func TestDispatch_OrderAndLengthPreserved(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"from":"ok"}`))
	}))
	defer okSrv.Close()

	d := New(testLogger(), metrics.New())
	targets := []model.Target{
		targetFor(t, okSrv, "first"),
		deadTarget("second"),
		targetFor(t, okSrv, "third"),
	}

	results := d.Dispatch(context.Background(), "tx1", targets, http.MethodGet, http.Header{}, nil)

	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	wantNames := []string{"first", "second", "third"}
	for i, want := range wantNames {
		if results[i].SourceName != want {
			t.Errorf("results[%d].SourceName = %q, want %q", i, results[i].SourceName, want)
		}
	}
	if results[0].Status != http.StatusOK || results[2].Status != http.StatusOK {
		t.Errorf("live targets: status = %d, %d; want 200, 200", results[0].Status, results[2].Status)
	}
	if results[1].Status != http.StatusBadGateway {
		t.Errorf("dead target: status = %d, want 502", results[1].Status)
	}
	if string(results[1].Body) != string(model.DiagnosticBody(model.CodeUpstreamConnect)) {
		t.Errorf("dead target body = %s, want connect diagnostic", results[1].Body)
	}
}

func TestDispatch_TargetsRunConcurrently(t *testing.T) {
	const delay = 150 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := New(testLogger(), metrics.New())
	targets := []model.Target{
		targetFor(t, srv, "a"),
		targetFor(t, srv, "b"),
		targetFor(t, srv, "c"),
	}

	start := time.Now()
	results := d.Dispatch(context.Background(), "tx", targets, http.MethodGet, http.Header{}, nil)
	elapsed := time.Since(start)

	for i, r := range results {
		if r.Status != http.StatusOK {
			t.Errorf("results[%d].Status = %d, want 200", i, r.Status)
		}
	}
	// Sequential dispatch would take at least 3×delay.
	if elapsed >= 3*delay {
		t.Errorf("elapsed = %v, want < %v (targets should run in parallel)", elapsed, 3*delay)
	}
}

func TestDispatch_ConnectFailureSynthesizes502(t *testing.T) {
	d := New(testLogger(), metrics.New())

	results := d.Dispatch(context.Background(), "tx", []model.Target{deadTarget("dead")}, http.MethodGet, http.Header{}, nil)

	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	r := results[0]
	if r.SourceName != "dead" {
		t.Errorf("SourceName = %q, want %q", r.SourceName, "dead")
	}
	if r.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", r.Status)
	}
	if string(r.Body) != string(model.DiagnosticBody(model.CodeUpstreamConnect)) {
		t.Errorf("Body = %s, want connect diagnostic", r.Body)
	}
	if len(r.Header) != 0 {
		t.Errorf("Header = %v, want empty", r.Header)
	}
}

func TestDispatch_ReadFailureSynthesizes502(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer does not support hijacking")
			return
		}
		conn, bufrw, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		// Declare more bytes than we send, then close mid-body.
		_, _ = bufrw.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 1000\r\n\r\npartial")
		_ = bufrw.Flush()
		_ = conn.Close()
	}))
	defer srv.Close()

	d := New(testLogger(), metrics.New())
	results := d.Dispatch(context.Background(), "tx", []model.Target{targetFor(t, srv, "flaky")}, http.MethodGet, http.Header{}, nil)

	if results[0].Status != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", results[0].Status)
	}
	if string(results[0].Body) != string(model.DiagnosticBody(model.CodeUpstreamRead)) {
		t.Errorf("body = %s, want read diagnostic", results[0].Body)
	}
}

func TestDispatch_DetachedFromCallerContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("survived"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // the caller is already gone

	d := New(testLogger(), metrics.New())
	results := d.Dispatch(ctx, "tx", []model.Target{targetFor(t, srv, "a")}, http.MethodGet, http.Header{}, nil)

	if results[0].Status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (outbound call must not inherit cancellation)", results[0].Status)
	}
	if string(results[0].Body) != "survived" {
		t.Errorf("body = %q, want %q", results[0].Body, "survived")
	}
}

func TestDispatch_HostRewriteAndHeaderIsolation(t *testing.T) {
	var mu sync.Mutex
	hosts := make(map[string]string) // target name -> received Host

	newSrv := func(name string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hosts[name] = r.Host
			mu.Unlock()
			_, _ = w.Write([]byte("ok"))
		}))
	}
	srvA := newSrv("a")
	defer srvA.Close()
	srvB := newSrv("b")
	defer srvB.Close()

	ta := targetFor(t, srvA, "a")
	tb := targetFor(t, srvB, "b")

	d := New(testLogger(), metrics.New())
	header := http.Header{"X-Probe": {"v1"}}
	d.Dispatch(context.Background(), "tx", []model.Target{ta, tb}, http.MethodGet, header, nil)

	mu.Lock()
	defer mu.Unlock()
	if hosts["a"] != ta.HostPort() {
		t.Errorf("target a received Host %q, want %q", hosts["a"], ta.HostPort())
	}
	if hosts["b"] != tb.HostPort() {
		t.Errorf("target b received Host %q, want %q", hosts["b"], tb.HostPort())
	}

	if got := header.Values("X-Probe"); len(got) != 1 || got[0] != "v1" {
		t.Errorf("caller header mutated: X-Probe = %v", got)
	}
	if header.Get("Host") != "" {
		t.Errorf("caller header mutated: Host = %q", header.Get("Host"))
	}
}

func TestDispatch_BodyForwardedToEveryTarget(t *testing.T) {
	var mu sync.Mutex
	var bodies []string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()
		_, _ = w.Write([]byte("ok"))
	})
	srvA := httptest.NewServer(handler)
	defer srvA.Close()
	srvB := httptest.NewServer(handler)
	defer srvB.Close()

	d := New(testLogger(), metrics.New())
	targets := []model.Target{targetFor(t, srvA, "a"), targetFor(t, srvB, "b")}

	d.Dispatch(context.Background(), "tx", targets, http.MethodPost, http.Header{}, []byte("ping"))

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("upstreams reached = %d, want 2", len(bodies))
	}
	for i, b := range bodies {
		if b != "ping" {
			t.Errorf("bodies[%d] = %q, want %q", i, b, "ping")
		}
	}
}

func TestDispatch_RecordsOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	m := metrics.New()
	d := New(testLogger(), m)
	targets := []model.Target{targetFor(t, srv, "live"), deadTarget("dead")}

	d.Dispatch(context.Background(), "tx", targets, http.MethodGet, http.Header{}, nil)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	outcomes := make(map[string]float64)
	for _, f := range families {
		if f.GetName() != "fanout_gateway_upstream_responses_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			outcomes[labels["target"]+"/"+labels["outcome"]] = metric.GetCounter().GetValue()
		}
	}

	if outcomes["live/ok"] != 1 {
		t.Errorf("live/ok = %v, want 1", outcomes["live/ok"])
	}
	if outcomes["dead/connect_error"] != 1 {
		t.Errorf("dead/connect_error = %v, want 1", outcomes["dead/connect_error"])
	}
}
