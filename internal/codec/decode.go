package codec

import (
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/roach88/omnibus/internal/canon"
)

// DepositParams are the decoded arguments of a deposit action.
type DepositParams struct {
	Asset  string
	Amount uint64
}

// BorrowParams are the decoded arguments of a borrow action.
type BorrowParams struct {
	Asset    string
	Amount   uint64
	RateMode RateMode
}

// SwapParams are the decoded arguments of a swap action.
type SwapParams struct {
	Pool         PoolKey
	ZeroForOne   bool
	AmountIn     uint64
	MinAmountOut uint64
}

// symbolPattern constrains asset and hook identifiers to printable
// ASCII. ASCII is NFC-invariant, so every identifier that decodes also
// survives canonical re-encoding byte for byte.
var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,63}$`)

// ValidSymbol reports whether s is a well-formed asset or hook
// identifier.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

// DecodeDeposit strictly decodes a deposit payload. Unknown fields,
// missing fields, mistyped values, and out-of-range amounts all fail
// with a *DecodeError.
func DecodeDeposit(payload []byte) (DepositParams, error) {
	dec, err := newPayloadDecoder(KindDeposit, payload)
	if err != nil {
		return DepositParams{}, err
	}

	var p DepositParams
	if p.Asset, err = dec.symbol("asset"); err != nil {
		return DepositParams{}, err
	}
	if p.Amount, err = dec.amount("amount"); err != nil {
		return DepositParams{}, err
	}
	if err := dec.finish(); err != nil {
		return DepositParams{}, err
	}
	return p, nil
}

// DecodeBorrow strictly decodes a borrow payload.
func DecodeBorrow(payload []byte) (BorrowParams, error) {
	dec, err := newPayloadDecoder(KindBorrow, payload)
	if err != nil {
		return BorrowParams{}, err
	}

	var p BorrowParams
	if p.Asset, err = dec.symbol("asset"); err != nil {
		return BorrowParams{}, err
	}
	if p.Amount, err = dec.amount("amount"); err != nil {
		return BorrowParams{}, err
	}
	mode, err := dec.integer("rate_mode")
	if err != nil {
		return BorrowParams{}, err
	}
	p.RateMode = RateMode(mode)
	if !p.RateMode.Valid() {
		return BorrowParams{}, dec.fail("rate_mode", fmt.Sprintf("unknown rate mode %d", mode))
	}
	if err := dec.finish(); err != nil {
		return BorrowParams{}, err
	}
	return p, nil
}

// DecodeSwap strictly decodes a swap payload, including the embedded
// pool key.
func DecodeSwap(payload []byte) (SwapParams, error) {
	dec, err := newPayloadDecoder(KindSwap, payload)
	if err != nil {
		return SwapParams{}, err
	}

	var p SwapParams
	poolObj, err := dec.object("pool")
	if err != nil {
		return SwapParams{}, err
	}
	if p.Pool, err = decodePoolKey(dec.kind, poolObj); err != nil {
		return SwapParams{}, err
	}
	if p.ZeroForOne, err = dec.boolean("zero_for_one"); err != nil {
		return SwapParams{}, err
	}
	if p.AmountIn, err = dec.amount("amount_in"); err != nil {
		return SwapParams{}, err
	}
	if p.MinAmountOut, err = dec.unsigned("min_amount_out"); err != nil {
		return SwapParams{}, err
	}
	if err := dec.finish(); err != nil {
		return SwapParams{}, err
	}
	return p, nil
}

func decodePoolKey(kind Kind, obj map[string]any) (PoolKey, error) {
	dec := &payloadDecoder{kind: kind, prefix: "pool.", obj: obj, seen: make(map[string]bool)}

	var k PoolKey
	var err error
	if k.Asset0, err = dec.symbol("asset0"); err != nil {
		return PoolKey{}, err
	}
	if k.Asset1, err = dec.symbol("asset1"); err != nil {
		return PoolKey{}, err
	}
	if k.Asset0 == k.Asset1 {
		return PoolKey{}, dec.fail("asset1", "pool assets must differ")
	}

	fee, err := dec.integer("fee_bps")
	if err != nil {
		return PoolKey{}, err
	}
	if fee < 0 || fee >= 10_000 {
		return PoolKey{}, dec.fail("fee_bps", fmt.Sprintf("fee %d outside [0, 10000)", fee))
	}
	k.FeeBps = uint32(fee)

	spacing, err := dec.integer("tick_spacing")
	if err != nil {
		return PoolKey{}, err
	}
	if spacing < 1 || spacing > math.MaxInt32 {
		return PoolKey{}, dec.fail("tick_spacing", fmt.Sprintf("tick spacing %d outside [1, %d]", spacing, math.MaxInt32))
	}
	k.TickSpacing = int32(spacing)

	hook, err := dec.str("hook")
	if err != nil {
		return PoolKey{}, err
	}
	if hook != "" && !ValidSymbol(hook) {
		return PoolKey{}, dec.fail("hook", "malformed hook identifier")
	}
	k.Hook = hook

	if err := dec.finish(); err != nil {
		return PoolKey{}, err
	}
	return k, nil
}

// payloadDecoder walks a decoded payload object, tracking which fields
// were consumed so finish can reject unknown ones.
type payloadDecoder struct {
	kind   Kind
	prefix string
	obj    map[string]any
	seen   map[string]bool
}

func newPayloadDecoder(kind Kind, payload []byte) (*payloadDecoder, error) {
	obj, err := canon.UnmarshalObject(payload)
	if err != nil {
		return nil, &DecodeError{Kind: kind, Message: err.Error()}
	}
	return &payloadDecoder{kind: kind, obj: obj, seen: make(map[string]bool)}, nil
}

func (d *payloadDecoder) fail(field, msg string) *DecodeError {
	return &DecodeError{Kind: d.kind, Field: d.prefix + field, Message: msg}
}

func (d *payloadDecoder) take(field string) (any, error) {
	v, ok := d.obj[field]
	if !ok {
		return nil, d.fail(field, "missing")
	}
	d.seen[field] = true
	return v, nil
}

func (d *payloadDecoder) str(field string) (string, error) {
	v, err := d.take(field)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", d.fail(field, fmt.Sprintf("expected string, got %T", v))
	}
	return s, nil
}

func (d *payloadDecoder) symbol(field string) (string, error) {
	s, err := d.str(field)
	if err != nil {
		return "", err
	}
	if !ValidSymbol(s) {
		return "", d.fail(field, fmt.Sprintf("malformed identifier %q", s))
	}
	return s, nil
}

func (d *payloadDecoder) integer(field string) (int64, error) {
	v, err := d.take(field)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, d.fail(field, fmt.Sprintf("expected integer, got %T", v))
	}
	return n, nil
}

// unsigned decodes a non-negative integer amount.
func (d *payloadDecoder) unsigned(field string) (uint64, error) {
	n, err := d.integer(field)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, d.fail(field, fmt.Sprintf("negative amount %d", n))
	}
	return uint64(n), nil
}

// amount decodes a strictly positive integer amount.
func (d *payloadDecoder) amount(field string) (uint64, error) {
	n, err := d.unsigned(field)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, d.fail(field, "amount must be positive")
	}
	return n, nil
}

func (d *payloadDecoder) boolean(field string) (bool, error) {
	v, err := d.take(field)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, d.fail(field, fmt.Sprintf("expected bool, got %T", v))
	}
	return b, nil
}

func (d *payloadDecoder) object(field string) (map[string]any, error) {
	v, err := d.take(field)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, d.fail(field, fmt.Sprintf("expected object, got %T", v))
	}
	return obj, nil
}

// finish rejects any field the decoder did not consume. Unknown fields
// are reported in sorted order so the failure is deterministic.
func (d *payloadDecoder) finish() error {
	var unknown []string
	for k := range d.obj {
		if !d.seen[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return d.fail(unknown[0], "unknown field")
}
