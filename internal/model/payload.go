package model

import "encoding/json"

// Payload is the decoded form of one upstream body inside a multi-target
// aggregate: either valid JSON re-emitted verbatim, or a text fallback that
// marshals as {"error": <text>}. Decoding never fails; an unparsable body
// degrades to its own error entry instead of spoiling the aggregate.
type Payload struct {
	raw    json.RawMessage
	text   string
	parsed bool
}

// DecodePayload classifies body as JSON or raw text.
func DecodePayload(body []byte) Payload {
	if json.Valid(body) {
		return Payload{raw: json.RawMessage(body), parsed: true}
	}
	return Payload{text: string(body)}
}

// Parsed reports whether the body was valid JSON.
func (p Payload) Parsed() bool { return p.parsed }

// MarshalJSON emits the parsed JSON verbatim, or the error-wrapped text.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.parsed {
		return p.raw, nil
	}
	return json.Marshal(map[string]string{"error": p.text})
}
