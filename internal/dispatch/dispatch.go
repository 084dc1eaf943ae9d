// Package dispatch fans a single inbound request out to a route's upstream
// targets and collects one response per target.
package dispatch

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fanout-gateway-go/internal/metrics"
	"fanout-gateway-go/internal/model"
)

// Dispatcher issues concurrent upstream requests for a route's targets.
type Dispatcher struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Dispatcher.
func New(logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{logger: logger, metrics: m}
}

// Dispatch sends the inbound request to every target concurrently and returns
// one response per target, in target order. A failed target never aborts the
// batch: it yields a synthetic 502 in its slot. Outbound calls are detached
// from the inbound context so a client disconnect cannot cancel in-flight
// upstream work; timeouts come from each target's own client.
func (d *Dispatcher) Dispatch(ctx context.Context, tx string, targets []model.Target, method string, header http.Header, body []byte) []model.UpstreamResponse {
	d.metrics.FanoutSize.Observe(float64(len(targets)))

	ctx = context.WithoutCancel(ctx)
	results := make([]model.UpstreamResponse, len(targets))

	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.send(ctx, tx, t, method, header.Clone(), body)
		}()
	}
	wg.Wait()

	return results
}

// send performs one upstream exchange. Transport failures map to synthetic
// 502 responses carrying a diagnostic code instead of an error return, so
// the caller always gets a response per target.
func (d *Dispatcher) send(ctx context.Context, tx string, t model.Target, method string, header http.Header, body []byte) model.UpstreamResponse {
	url := t.BaseURL()
	logger := d.logger.With("url", url, "method", method, "tx", tx)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		logger.Error("connection error", "err", err)
		d.metrics.UpstreamResponses.WithLabelValues(t.Name, metrics.OutcomeConnectError).Inc()
		return model.SyntheticResponse(t.Name, model.CodeUpstreamConnect)
	}
	req.Header = header
	req.Host = t.HostPort()

	logger.Info("requesting")

	start := time.Now()
	resp, err := t.Client.Do(req)
	if err != nil {
		d.metrics.UpstreamDuration.WithLabelValues(t.Name).Observe(time.Since(start).Seconds())
		d.metrics.UpstreamResponses.WithLabelValues(t.Name, metrics.OutcomeConnectError).Inc()
		logger.Error("connection error", "err", err)
		return model.SyntheticResponse(t.Name, model.CodeUpstreamConnect)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	d.metrics.UpstreamDuration.WithLabelValues(t.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		d.metrics.UpstreamResponses.WithLabelValues(t.Name, metrics.OutcomeReadError).Inc()
		logger.Error("read error", "err", err)
		return model.SyntheticResponse(t.Name, model.CodeUpstreamRead)
	}

	d.metrics.UpstreamResponses.WithLabelValues(t.Name, metrics.OutcomeOK).Inc()
	logger.Info("done", "bytes", len(data), "source", t.Name, "status", resp.StatusCode)

	return model.UpstreamResponse{
		SourceName: t.Name,
		Status:     resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}
}
