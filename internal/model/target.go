// Package model defines the value objects shared across the gateway.
package model

import (
	"net"
	"net/http"
	"strconv"
)

// Target describes one upstream backend. It is immutable once constructed:
// the route table owns it, and every dispatch that routes to it reads it
// without modification.
type Target struct {
	Name   string
	Scheme string
	Host   string
	Port   int
	Path   string

	// Client is the target's long-lived, connection-pooled transport handle,
	// shared by all inbound requests that route to this target.
	Client *http.Client
}

// HostPort returns the target address as host:port.
func (t Target) HostPort() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// BaseURL returns the full upstream URL: scheme://host:port followed by the
// endpoint path.
func (t Target) BaseURL() string {
	return t.Scheme + "://" + t.HostPort() + t.Path
}
