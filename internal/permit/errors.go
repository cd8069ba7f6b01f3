package permit

import (
	"errors"
	"fmt"
)

// AuthReason classifies why an authorization was rejected.
type AuthReason string

const (
	ReasonExpired           AuthReason = "EXPIRED"
	ReasonUnknownKey        AuthReason = "UNKNOWN_KEY"
	ReasonBadSignature      AuthReason = "BAD_SIGNATURE"
	ReasonNonceUsed         AuthReason = "NONCE_USED"
	ReasonExceedsAuthorized AuthReason = "EXCEEDS_AUTHORIZED"
)

// AuthError is a structured authorization failure. Ledger failures
// during the pull itself (insufficient owner funds) pass through as
// ledger errors, not AuthErrors.
type AuthError struct {
	Reason  AuthReason
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorization rejected (%s): %s", e.Reason, e.Message)
}

// ReasonOf extracts the rejection reason if err is (or wraps) an
// AuthError.
func ReasonOf(err error) (AuthReason, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason, true
	}
	return "", false
}
