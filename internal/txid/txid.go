// Package txid mints per-request transaction identifiers.
package txid

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// New returns a fresh transaction id: 128 random bits, hex-encoded. The id
// correlates every log line and outbound call issued while handling one
// inbound request; collision probability is negligible.
func New() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
