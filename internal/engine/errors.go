package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/omnibus/internal/codec"
)

// ErrorCode categorizes invocation failures.
type ErrorCode string

const (
	// CodeInvalidAction indicates a batch entry whose kind has no adapter.
	CodeInvalidAction ErrorCode = "INVALID_ACTION"

	// CodeDecode indicates a payload that does not match its kind's shape.
	CodeDecode ErrorCode = "DECODE"

	// CodeAuthorization indicates the funding pull was rejected: expired,
	// bad signature, reused nonce, or insufficient owner balance.
	CodeAuthorization ErrorCode = "AUTHORIZATION"

	// CodeSwapOutput indicates a swap produced less than its minimum.
	CodeSwapOutput ErrorCode = "INSUFFICIENT_SWAP_OUTPUT"

	// CodeExternalCall indicates an external protocol rejected a call;
	// the underlying reason is opaque to the engine.
	CodeExternalCall ErrorCode = "EXTERNAL_CALL"

	// CodeReentrancy indicates a nested invocation from inside a running one.
	CodeReentrancy ErrorCode = "REENTRANCY"

	// CodeResidualBalance indicates the engine held a nonzero balance
	// where the zero-residual invariant requires none.
	CodeResidualBalance ErrorCode = "RESIDUAL_BALANCE"
)

// ExecError is the failure type both entry points return. Index and
// Kind name the batch entry whose processing failed; Index is -1 for
// failures outside any single action (authorization intake, settlement,
// re-entrancy).
type ExecError struct {
	Code  ErrorCode
	Index int
	Kind  codec.Kind
	Err   error
}

func (e *ExecError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s: action %d (%s): %v", e.Code, e.Index, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the engine error code from err, unwrapping as needed.
func CodeOf(err error) (ErrorCode, bool) {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Code, true
	}
	return "", false
}

func hasCode(err error, code ErrorCode) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}

// IsInvalidAction reports whether err is an unknown-kind dispatch failure.
func IsInvalidAction(err error) bool { return hasCode(err, CodeInvalidAction) }

// IsDecode reports whether err is a payload decode failure.
func IsDecode(err error) bool { return hasCode(err, CodeDecode) }

// IsAuthorization reports whether err is a funding authorization failure.
func IsAuthorization(err error) bool { return hasCode(err, CodeAuthorization) }

// IsSwapOutput reports whether err is a slippage bound violation.
func IsSwapOutput(err error) bool { return hasCode(err, CodeSwapOutput) }

// IsExternalCall reports whether err is an external protocol rejection.
func IsExternalCall(err error) bool { return hasCode(err, CodeExternalCall) }

// IsReentrancy reports whether err is a nested invocation failure.
func IsReentrancy(err error) bool { return hasCode(err, CodeReentrancy) }

// IsResidualBalance reports whether err is a zero-residual violation.
func IsResidualBalance(err error) bool { return hasCode(err, CodeResidualBalance) }
