// Package idgen mints the random identifiers used across the service.
//
// Ledger events, preflight decisions, and webhook subscriptions all carry
// IDs shaped "<prefix><24 hex chars>", e.g. "evt_93b2c41f0a7d65e88c01d2f4".
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

const randomBytes = 12

// WithPrefix returns prefix followed by 24 random hex characters.
func WithPrefix(prefix string) string {
	b := make([]byte, randomBytes)
	if _, err := rand.Read(b); err != nil {
		panic("idgen: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}
