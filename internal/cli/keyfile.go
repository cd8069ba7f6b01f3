package cli

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Key files hold an ed25519 seed as 64 hex characters on a single
// line. The seed alone reconstructs the private key.

func writeKeyFile(path string, priv ed25519.PrivateKey) error {
	seed := hex.EncodeToString(priv.Seed())
	if err := os.WriteFile(path, []byte(seed+"\n"), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

func readKeyFile(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	seedHex := strings.TrimSpace(string(data))
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("key file %s is not hex: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key file %s holds %d bytes, want a %d byte seed", path, len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
