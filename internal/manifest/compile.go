package manifest

import (
	"fmt"
	"math"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Compile parses a CUE value into a Market.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The CUE value should be the market struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`market: { assets: ... }`)
//	m, err := Compile(v.LookupPath(cue.ParsePath("market")))
func Compile(v cue.Value) (*Market, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &Market{}

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		m.Name = name
	}

	var err error
	if m.Assets, err = parseAssets(v); err != nil {
		return nil, err
	}
	if m.Accounts, err = parseAccounts(v); err != nil {
		return nil, err
	}
	if m.Reserves, err = parseReserves(v); err != nil {
		return nil, err
	}
	if m.Pools, err = parsePools(v); err != nil {
		return nil, err
	}

	return m, nil
}

// parseAssets extracts asset registrations from the market.
func parseAssets(v cue.Value) ([]Asset, error) {
	var assets []Asset

	assetsVal := v.LookupPath(cue.ParsePath("assets"))
	if !assetsVal.Exists() {
		return assets, nil
	}

	iter, err := assetsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		symbol := iter.Label()
		decVal := iter.Value().LookupPath(cue.ParsePath("decimals"))
		if !decVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("assets.%s.decimals", symbol),
				Message: "decimals is required",
				Pos:     iter.Value().Pos(),
			}
		}
		dec, err := decVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		assets = append(assets, Asset{Symbol: symbol, Decimals: dec})
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].Symbol < assets[j].Symbol })
	return assets, nil
}

// parseAccounts extracts named accounts with optional key and balances.
func parseAccounts(v cue.Value) ([]Account, error) {
	var accounts []Account

	accountsVal := v.LookupPath(cue.ParsePath("accounts"))
	if !accountsVal.Exists() {
		return accounts, nil
	}

	iter, err := accountsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		acct := Account{Name: iter.Label()}
		acctVal := iter.Value()

		keyVal := acctVal.LookupPath(cue.ParsePath("key"))
		if keyVal.Exists() {
			key, err := keyVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			acct.Key = key
		}

		balancesVal := acctVal.LookupPath(cue.ParsePath("balances"))
		if balancesVal.Exists() {
			balIter, err := balancesVal.Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for balIter.Next() {
				amount, err := parseAmount(balIter.Value(),
					fmt.Sprintf("accounts.%s.balances.%s", acct.Name, balIter.Label()))
				if err != nil {
					return nil, err
				}
				acct.Balances = append(acct.Balances, Balance{
					Asset:  balIter.Label(),
					Amount: amount,
				})
			}
			sort.Slice(acct.Balances, func(i, j int) bool {
				return acct.Balances[i].Asset < acct.Balances[j].Asset
			})
		}

		accounts = append(accounts, acct)
	}

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, nil
}

// parseReserves extracts lending reserve declarations.
func parseReserves(v cue.Value) ([]Reserve, error) {
	var reserves []Reserve

	reservesVal := v.LookupPath(cue.ParsePath("lending.reserves"))
	if !reservesVal.Exists() {
		return reserves, nil
	}

	iter, err := reservesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		asset := iter.Label()
		ltvVal := iter.Value().LookupPath(cue.ParsePath("ltv_bps"))
		if !ltvVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("lending.reserves.%s.ltv_bps", asset),
				Message: "ltv_bps is required",
				Pos:     iter.Value().Pos(),
			}
		}
		ltv, err := parseUint32(ltvVal, fmt.Sprintf("lending.reserves.%s.ltv_bps", asset))
		if err != nil {
			return nil, err
		}
		reserves = append(reserves, Reserve{Asset: asset, LTVBps: ltv})
	}

	sort.Slice(reserves, func(i, j int) bool { return reserves[i].Asset < reserves[j].Asset })
	return reserves, nil
}

// parsePools extracts swap pool declarations in list order.
func parsePools(v cue.Value) ([]PoolSpec, error) {
	var pools []PoolSpec

	poolsVal := v.LookupPath(cue.ParsePath("swap.pools"))
	if !poolsVal.Exists() {
		return pools, nil
	}

	iter, err := poolsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for i := 0; iter.Next(); i++ {
		pv := iter.Value()
		p := PoolSpec{}

		for _, f := range []struct {
			name string
			dst  *string
		}{
			{"asset0", &p.Asset0},
			{"asset1", &p.Asset1},
		} {
			fv := pv.LookupPath(cue.ParsePath(f.name))
			if !fv.Exists() {
				return nil, &CompileError{
					Field:   fmt.Sprintf("swap.pools[%d].%s", i, f.name),
					Message: f.name + " is required",
					Pos:     pv.Pos(),
				}
			}
			s, err := fv.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			*f.dst = s
		}

		feeVal := pv.LookupPath(cue.ParsePath("fee_bps"))
		if !feeVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("swap.pools[%d].fee_bps", i),
				Message: "fee_bps is required",
				Pos:     pv.Pos(),
			}
		}
		if p.FeeBps, err = parseUint32(feeVal, fmt.Sprintf("swap.pools[%d].fee_bps", i)); err != nil {
			return nil, err
		}

		tickVal := pv.LookupPath(cue.ParsePath("tick_spacing"))
		if !tickVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("swap.pools[%d].tick_spacing", i),
				Message: "tick_spacing is required",
				Pos:     pv.Pos(),
			}
		}
		tick, err := tickVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if tick < math.MinInt32 || tick > math.MaxInt32 {
			return nil, &CompileError{
				Field:   fmt.Sprintf("swap.pools[%d].tick_spacing", i),
				Message: fmt.Sprintf("tick_spacing %d outside int32 range", tick),
				Pos:     tickVal.Pos(),
			}
		}
		p.TickSpacing = int32(tick)

		hookVal := pv.LookupPath(cue.ParsePath("hook"))
		if hookVal.Exists() {
			if p.Hook, err = hookVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		for _, f := range []struct {
			name string
			dst  *uint64
		}{
			{"reserve0", &p.Reserve0},
			{"reserve1", &p.Reserve1},
		} {
			fv := pv.LookupPath(cue.ParsePath(f.name))
			if !fv.Exists() {
				continue
			}
			amount, err := parseAmount(fv, fmt.Sprintf("swap.pools[%d].%s", i, f.name))
			if err != nil {
				return nil, err
			}
			*f.dst = amount
		}

		pools = append(pools, p)
	}

	return pools, nil
}

// parseAmount reads a non-negative integer amount. CUE integers above
// int64 range fail Int64 itself, which keeps every amount inside the
// range the ledger stores.
func parseAmount(v cue.Value, field string) (uint64, error) {
	n, err := v.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	if n < 0 {
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("amount %d must not be negative", n),
			Pos:     v.Pos(),
		}
	}
	return uint64(n), nil
}

// parseUint32 reads a non-negative integer that must fit in uint32.
func parseUint32(v cue.Value, field string) (uint32, error) {
	n, err := v.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	if n < 0 || n > math.MaxUint32 {
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("value %d outside uint32 range", n),
			Pos:     v.Pos(),
		}
	}
	return uint32(n), nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
