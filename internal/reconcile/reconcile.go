// Package reconcile merges a fan-out's upstream responses into the single
// reply returned to the caller.
package reconcile

import (
	"encoding/json"
	"net/http"

	"fanout-gateway-go/internal/model"
)

// Merge reduces one response per target into one aggregated reply. The
// result set must not be empty; the gateway handler never dispatches an
// empty target list.
//
// A single response passes through verbatim. Multiple responses merge: the
// reply status is the lowest (most optimistic) status across the targets,
// the headers come from the first target minus Content-Length, and the body
// is a JSON object keyed by upstream name. Upstream bodies that are not
// valid JSON are wrapped as {"error": "<text>"} rather than dropped.
func Merge(results []model.UpstreamResponse) (model.AggregatedResponse, error) {
	if len(results) == 1 {
		r := results[0]
		return model.AggregatedResponse{Status: r.Status, Header: r.Header, Body: r.Body}, nil
	}

	status := results[0].Status
	for _, r := range results[1:] {
		if r.Status < status {
			status = r.Status
		}
	}

	header := results[0].Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Del("Content-Length")
	header.Set("Content-Type", "application/json")

	payloads := make(map[string]model.Payload, len(results))
	for _, r := range results {
		payloads[r.SourceName] = model.DecodePayload(r.Body)
	}
	body, err := json.Marshal(payloads)
	if err != nil {
		return model.AggregatedResponse{}, err
	}

	return model.AggregatedResponse{Status: status, Header: header, Body: body}, nil
}
