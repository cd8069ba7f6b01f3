package manifest

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
)

// Validation error codes (E200-E299)
const (
	// Market shape errors (E201-E209)
	ErrMarketNoAssets = "E201" // at least one asset required
	ErrAssetDecimals  = "E202" // decimals outside 0..18
	ErrUnknownAsset   = "E203" // reference to an undeclared asset
	ErrReserveLTV     = "E204" // ltv_bps above 10000
	ErrPoolAssets     = "E205" // pool assets equal
	ErrPoolFee        = "E206" // fee_bps at or above 10000
	ErrPoolTick       = "E207" // tick_spacing below 1
	ErrDuplicatePool  = "E208" // two pool declarations with the same identity
	ErrAccountKey     = "E209" // key is not a 32-byte hex ed25519 key

	// Account errors (E210-E219)
	ErrReservedAccount = "E210" // name reserved for custody accounts
	ErrDuplicateName   = "E211" // duplicate asset declaration
)

// reservedPrefix marks custody accounts the seeded market must not
// collide with.
const reservedPrefix = "pool:"

// ValidationError represents a market validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled market against the rules the store
// enforces. Returns all errors found (does not fail-fast).
func Validate(m *Market) []ValidationError {
	var errs []ValidationError

	// E201: at least one asset required
	if len(m.Assets) == 0 {
		errs = append(errs, ValidationError{
			Field:   "assets",
			Message: "at least one asset is required",
			Code:    ErrMarketNoAssets,
		})
	}

	declared := make(map[string]bool, len(m.Assets))
	for i, a := range m.Assets {
		// E211: duplicate asset declaration
		if declared[a.Symbol] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("assets[%d]", i),
				Message: fmt.Sprintf("duplicate asset %q", a.Symbol),
				Code:    ErrDuplicateName,
			})
		}
		declared[a.Symbol] = true

		// E202: decimals outside the range the store accepts
		if a.Decimals < 0 || a.Decimals > 18 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("assets.%s.decimals", a.Symbol),
				Message: fmt.Sprintf("decimals %d outside 0..18", a.Decimals),
				Code:    ErrAssetDecimals,
			})
		}
	}

	for _, acct := range m.Accounts {
		// E210: engine and custody account names are taken
		if acct.Name == "engine" || strings.HasPrefix(acct.Name, reservedPrefix) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("accounts.%s", acct.Name),
				Message: fmt.Sprintf("account name %q is reserved", acct.Name),
				Code:    ErrReservedAccount,
			})
		}

		// E209: keys are hex ed25519 public keys
		if acct.Key != "" {
			raw, err := hex.DecodeString(acct.Key)
			if err != nil || len(raw) != ed25519.PublicKeySize {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("accounts.%s.key", acct.Name),
					Message: fmt.Sprintf("key must be %d hex-encoded bytes", ed25519.PublicKeySize),
					Code:    ErrAccountKey,
				})
			}
		}

		// E203: balances reference declared assets
		for _, b := range acct.Balances {
			if !declared[b.Asset] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("accounts.%s.balances.%s", acct.Name, b.Asset),
					Message: fmt.Sprintf("asset %q is not declared", b.Asset),
					Code:    ErrUnknownAsset,
				})
			}
		}
	}

	for _, r := range m.Reserves {
		// E203: reserves reference declared assets
		if !declared[r.Asset] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("lending.reserves.%s", r.Asset),
				Message: fmt.Sprintf("asset %q is not declared", r.Asset),
				Code:    ErrUnknownAsset,
			})
		}

		// E204: loan-to-value is a fraction of par
		if r.LTVBps > 10_000 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("lending.reserves.%s.ltv_bps", r.Asset),
				Message: fmt.Sprintf("ltv_bps %d exceeds 10000", r.LTVBps),
				Code:    ErrReserveLTV,
			})
		}
	}

	seenPools := make(map[string]int, len(m.Pools))
	for i, p := range m.Pools {
		field := fmt.Sprintf("swap.pools[%d]", i)

		// E205: a pool spans two distinct assets
		if p.Asset0 == p.Asset1 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("asset0 and asset1 are both %q", p.Asset0),
				Code:    ErrPoolAssets,
			})
		}

		// E203: pool assets must be declared
		for _, asset := range []string{p.Asset0, p.Asset1} {
			if asset != "" && !declared[asset] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("asset %q is not declared", asset),
					Code:    ErrUnknownAsset,
				})
			}
		}

		// E206: a 100% fee would consume every input
		if p.FeeBps >= 10_000 {
			errs = append(errs, ValidationError{
				Field:   field + ".fee_bps",
				Message: fmt.Sprintf("fee_bps %d must be below 10000", p.FeeBps),
				Code:    ErrPoolFee,
			})
		}

		// E207: tick spacing is strictly positive
		if p.TickSpacing < 1 {
			errs = append(errs, ValidationError{
				Field:   field + ".tick_spacing",
				Message: fmt.Sprintf("tick_spacing %d must be at least 1", p.TickSpacing),
				Code:    ErrPoolTick,
			})
		}

		// E208: pool identity is content-addressed, so two identical
		// declarations name the same pool
		id := p.Key().ID()
		if prev, ok := seenPools[id]; ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate of swap.pools[%d]", prev),
				Code:    ErrDuplicatePool,
			})
		} else {
			seenPools[id] = i
		}
	}

	return errs
}
