// Package codec defines the wire model for batched actions: the kind
// discriminant, the opaque canonical-JSON payloads, and the builder and
// decoder pairs that are the only legitimate producers and consumers of
// payload bytes. The engine routes on Kind and never inspects Payload;
// each adapter decodes exactly the payloads of its own kind.
package codec

import "fmt"

// Kind discriminates action payloads. The zero value is invalid so an
// uninitialized Action can never dispatch.
type Kind int

const (
	KindDeposit Kind = iota + 1
	KindBorrow
	KindSwap
)

// Valid reports whether k names a known action kind.
func (k Kind) Valid() bool {
	return k >= KindDeposit && k <= KindSwap
}

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	case KindBorrow:
		return "borrow"
	case KindSwap:
		return "swap"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps the external spelling of a kind (batch files, CLI)
// back to its discriminant.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "deposit":
		return KindDeposit, nil
	case "borrow":
		return KindBorrow, nil
	case "swap":
		return KindSwap, nil
	default:
		return 0, fmt.Errorf("unknown action kind %q", s)
	}
}

// Action pairs a kind discriminant with an opaque payload. Payload is
// canonical JSON produced by the Build functions; consumers outside the
// matching Decode function must treat it as bytes.
type Action struct {
	Kind    Kind
	Payload []byte
}

// Batch is an ordered list of actions executed strictly in sequence.
// A batch has no identity beyond a single invocation and is never
// persisted.
type Batch []Action

// RateMode selects the interest accrual mode of a borrow.
type RateMode int64

const (
	RateModeStable   RateMode = 1
	RateModeVariable RateMode = 2
)

// Valid reports whether m is a known rate mode.
func (m RateMode) Valid() bool {
	return m == RateModeStable || m == RateModeVariable
}

func (m RateMode) String() string {
	switch m {
	case RateModeStable:
		return "stable"
	case RateModeVariable:
		return "variable"
	default:
		return fmt.Sprintf("rate_mode(%d)", int64(m))
	}
}

// ParseRateMode maps the external spelling of a rate mode (batch
// files, CLI) back to its discriminant.
func ParseRateMode(s string) (RateMode, error) {
	switch s {
	case "stable":
		return RateModeStable, nil
	case "variable":
		return RateModeVariable, nil
	default:
		return 0, fmt.Errorf("unknown rate mode %q", s)
	}
}

// DecodeError reports a payload that failed strict decoding: malformed
// canonical JSON, a missing or mistyped field, an unknown field, or a
// value outside its permitted range.
type DecodeError struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode %s payload: field %q: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("decode %s payload: %s", e.Kind, e.Message)
}
