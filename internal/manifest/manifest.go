// Package manifest compiles CUE market manifests into a seedable
// market description: the assets a deployment registers, the accounts
// it funds, the lending reserves it opens, and the swap pools it
// creates with their initial custody reserves.
//
// The pipeline has three stages. Compile parses a cue.Value into a
// Market and reports shape problems (missing fields, wrong types) with
// source positions. Validate checks the semantic rules the store will
// enforce anyway (asset references, bps ranges, key format) and
// collects every violation instead of stopping at the first. Seed
// applies a market to the store inside one transaction.
package manifest

import (
	"github.com/roach88/omnibus/internal/codec"
)

// Market is a compiled manifest. Assets, Accounts, and Reserves are
// sorted by their label so two manifests with the same content compile
// to the same Market; Pools keep declaration order.
type Market struct {
	Name     string
	Assets   []Asset
	Accounts []Account
	Reserves []Reserve
	Pools    []PoolSpec
}

// Asset is a fungible asset registration.
type Asset struct {
	Symbol   string
	Decimals int64
}

// Account is a named account with optional signing key and starting
// balances.
type Account struct {
	Name     string
	Key      string // hex ed25519 public key, empty if none
	Balances []Balance
}

// Balance is one starting balance entry.
type Balance struct {
	Asset  string
	Amount uint64
}

// Reserve opens a lending reserve for an asset.
type Reserve struct {
	Asset  string
	LTVBps uint32
}

// PoolSpec declares a swap pool plus the reserves minted into its
// custody account at seed time.
type PoolSpec struct {
	Asset0      string
	Asset1      string
	FeeBps      uint32
	TickSpacing int32
	Hook        string
	Reserve0    uint64
	Reserve1    uint64
}

// Key returns the pool identity the router addresses this pool by.
func (p PoolSpec) Key() codec.PoolKey {
	return codec.PoolKey{
		Asset0:      p.Asset0,
		Asset1:      p.Asset1,
		FeeBps:      p.FeeBps,
		TickSpacing: p.TickSpacing,
		Hook:        p.Hook,
	}
}
