package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash computes a domain-separated SHA-256 digest, hex encoded.
// Format: SHA256(domain || 0x00 || data). The null byte separator
// prevents domain/data boundary ambiguity. Domain strings carry a
// version suffix ("omnibus/authorization/v1") so the scheme can be
// migrated without colliding with old digests.
func Hash(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashValue canonically encodes v and hashes it under domain.
// Returns an error if v cannot be canonically marshaled.
func HashValue(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return Hash(domain, data), nil
}

// MustHashValue is like HashValue but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHashValue(domain string, v any) string {
	digest, err := HashValue(domain, v)
	if err != nil {
		panic(err)
	}
	return digest
}
