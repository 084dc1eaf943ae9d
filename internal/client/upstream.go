// Package client constructs the pooled HTTP clients used for upstream calls.
package client

import (
	"net"
	"net/http"
	"time"

	"fanout-gateway-go/internal/config"
)

// NewUpstreamClient builds the transport handle for one upstream target: a
// connection-pooled client with a bounded dial timeout and a bounded overall
// deadline covering the response read. One client is built per declared
// upstream at startup and reused for the process lifetime.
func NewUpstreamClient(cfg *config.Config) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   time.Duration(cfg.Upstream.ConnectTimeoutSeconds) * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.Upstream.ReadTimeoutSeconds) * time.Second,
	}
}
