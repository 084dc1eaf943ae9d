package model

import "net/http"

// Diagnostic codes for the gateway's three bad-gateway failure points. Each
// appears in exactly one fixed diagnostic body, so logs and tests can tell
// the failure points apart.
const (
	// CodeNoRoute: the inbound route key resolved to no targets.
	CodeNoRoute = "NO_ROUTE"
	// CodeUpstreamConnect: the outbound call could not be established or completed.
	CodeUpstreamConnect = "UPSTREAM_CONNECT"
	// CodeUpstreamRead: response headers arrived but reading the body failed.
	CodeUpstreamRead = "UPSTREAM_READ"
)

// DiagnosticBody returns the fixed bad-gateway body carrying a diagnostic code.
func DiagnosticBody(code string) []byte {
	return []byte(`{"error":"bad gateway","code":"` + code + `"}`)
}

// UpstreamResponse is one target's reply to one fan-out call, real or
// synthetic. Synthetic responses are shape-identical to real ones and take
// part in reconciliation the same way.
type UpstreamResponse struct {
	SourceName string
	Status     int
	Header     http.Header
	Body       []byte
}

// SyntheticResponse builds the stand-in response for a target whose call
// failed: status 502, empty headers, fixed diagnostic body.
func SyntheticResponse(source, code string) UpstreamResponse {
	return UpstreamResponse{
		SourceName: source,
		Status:     http.StatusBadGateway,
		Header:     http.Header{},
		Body:       DiagnosticBody(code),
	}
}

// AggregatedResponse is the single reply returned to the original caller.
type AggregatedResponse struct {
	Status int
	Header http.Header
	Body   []byte
}
