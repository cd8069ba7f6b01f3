package codec

import (
	"fmt"

	"github.com/roach88/omnibus/internal/canon"
)

// PoolIDDomain versions the content-addressed pool identity scheme.
const PoolIDDomain = "omnibus/pool/v1"

// PoolKey identifies a swap pool by its full parameter set rather than
// by a registry index: two assets, the fee taken on input, the tick
// spacing, and an optional hook tag. Pools with identical assets but
// different fee, spacing, or hook are distinct pools.
type PoolKey struct {
	Asset0      string
	Asset1      string
	FeeBps      uint32
	TickSpacing int32
	Hook        string
}

// ID computes the content-addressed pool identity: the domain-separated
// hash of the key's canonical encoding. Equal keys always map to the
// same pool; any field change yields a different pool.
func (k PoolKey) ID() string {
	return canon.MustHashValue(PoolIDDomain, k.payload())
}

// String renders the key in its human form, asset pair first. The hook
// tag appears only when set. Custody account names and log lines use
// this form; identity comparisons use ID.
func (k PoolKey) String() string {
	s := fmt.Sprintf("%s/%s/%d/%d", k.Asset0, k.Asset1, k.FeeBps, k.TickSpacing)
	if k.Hook != "" {
		s += "/" + k.Hook
	}
	return s
}

func (k PoolKey) payload() map[string]any {
	return map[string]any{
		"asset0":       k.Asset0,
		"asset1":       k.Asset1,
		"fee_bps":      int64(k.FeeBps),
		"tick_spacing": int64(k.TickSpacing),
		"hook":         k.Hook,
	}
}
