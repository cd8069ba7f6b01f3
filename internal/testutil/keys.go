// Package testutil provides deterministic fixtures shared by tests:
// reproducible signing keys, a settable clock, and a fully seeded
// market over an in-memory store.
package testutil

import (
	"bytes"
	"crypto/ed25519"

	"github.com/roach88/omnibus/internal/permit"
)

// Key derives a deterministic ed25519 private key from a single seed
// byte. The same seed always yields the same key, which keeps signed
// fixtures reproducible across runs.
func Key(seed byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
}

// PublicHex returns the hex-encoded public key for a seed byte, in the
// form account_keys rows store.
func PublicHex(seed byte) string {
	return permit.PublicKeyHex(Key(seed))
}
