// Package permit implements signed, time-bounded, single-use transfer
// authorizations: an owner signs a message granting a named spender the
// right to pull an exact amount of one asset once, before a deadline.
// The signature binds the spender, so a stolen authorization cannot be
// redeemed by anyone else.
package permit

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/roach88/omnibus/internal/canon"
	"github.com/roach88/omnibus/internal/ledger"
)

// SignatureDomain versions the authorization signing scheme. Changing
// the payload shape requires a new domain string.
const SignatureDomain = "omnibus/authorization/v1"

// TransferAuthorization is the signed grant: owner permits the spender
// named in the digest to pull Amount of Token once, identified by
// (Owner, Nonce), valid until Deadline (unix seconds, inclusive).
type TransferAuthorization struct {
	Owner    ledger.Account
	Token    ledger.Asset
	Amount   uint64
	Nonce    int64
	Deadline int64
}

// TransferDetails is the spender's concrete request against an
// authorization: where the funds go and how much to pull. The amount
// must not exceed the authorized amount.
type TransferDetails struct {
	To     ledger.Account
	Amount uint64
}

// Digest computes the signing digest: the domain-separated hash of the
// canonical authorization payload with the spender bound in.
func Digest(domain string, spender ledger.Account, auth TransferAuthorization) (string, error) {
	digest, err := canon.HashValue(domain, map[string]any{
		"owner":    string(auth.Owner),
		"spender":  string(spender),
		"token":    string(auth.Token),
		"amount":   auth.Amount,
		"nonce":    auth.Nonce,
		"deadline": auth.Deadline,
	})
	if err != nil {
		return "", fmt.Errorf("authorization digest: %w", err)
	}
	return digest, nil
}

// Sign produces the owner's detached signature over the authorization
// digest, hex encoded.
func Sign(priv ed25519.PrivateKey, domain string, spender ledger.Account, auth TransferAuthorization) (string, error) {
	digest, err := Digest(domain, spender, auth)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ed25519.Sign(priv, []byte(digest))), nil
}

// VerifySignature checks a hex signature over a digest against a hex
// public key. Malformed hex or a wrong-size key returns an error;
// a well-formed but wrong signature returns false.
func VerifySignature(pubKeyHex, sigHex, digest string) (bool, error) {
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size %d", len(pubKey))
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("invalid signature hex: %w", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), []byte(digest), sig), nil
}

// GenerateKey creates a fresh ed25519 signing key.
func GenerateKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return priv, nil
}

// PublicKeyHex returns the hex encoding of the key's public half, the
// form stored in the key registry.
func PublicKeyHex(priv ed25519.PrivateKey) string {
	return hex.EncodeToString(priv.Public().(ed25519.PublicKey))
}
