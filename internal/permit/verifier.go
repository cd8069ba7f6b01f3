package permit

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/omnibus/internal/ledger"
)

// Verifier redeems transfer authorizations against the store: it keeps
// the account key registry, burns nonces, and executes the pull. All
// writes join the caller's transaction, so a batch that later aborts
// also releases the nonce and returns the funds.
type Verifier struct {
	ledger *ledger.Ledger
	clock  func() time.Time
}

// Option configures a Verifier at construction.
type Option func(*Verifier)

// WithClock overrides the wall clock used for deadline checks and
// nonce timestamps. Tests pin this to a fixed instant.
func WithClock(clock func() time.Time) Option {
	return func(v *Verifier) {
		v.clock = clock
	}
}

func NewVerifier(l *ledger.Ledger, opts ...Option) *Verifier {
	v := &Verifier{
		ledger: l,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// DomainSeparator returns the domain string this verifier validates
// signatures under.
func (v *Verifier) DomainSeparator() string {
	return SignatureDomain
}

// RegisterKey records (or rotates) the signing key for an account.
// The key must be a hex-encoded ed25519 public key.
func (v *Verifier) RegisterKey(ctx context.Context, tx *sql.Tx, account ledger.Account, pubKeyHex string) error {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return fmt.Errorf("register key for %q: invalid hex: %w", account, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("register key for %q: key size %d, want %d", account, len(raw), ed25519.PublicKeySize)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO account_keys (account, public_key)
		VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET public_key = excluded.public_key
	`, string(account), pubKeyHex)
	if err != nil {
		return fmt.Errorf("register key for %q: %w", account, err)
	}
	return nil
}

// KeyFor returns the registered public key of an account, or an
// AuthError with ReasonUnknownKey if the account has none.
func (v *Verifier) KeyFor(ctx context.Context, tx *sql.Tx, account ledger.Account) (string, error) {
	var key string
	err := tx.QueryRowContext(ctx,
		`SELECT public_key FROM account_keys WHERE account = ?`, string(account),
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &AuthError{Reason: ReasonUnknownKey, Message: fmt.Sprintf("no key registered for %q", account)}
	}
	if err != nil {
		return "", fmt.Errorf("key for %q: %w", account, err)
	}
	return key, nil
}

// NonceUsed reports whether the (owner, nonce) pair has been burned.
func (v *Verifier) NonceUsed(ctx context.Context, tx *sql.Tx, owner ledger.Account, nonce int64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM permit_nonces WHERE owner = ? AND nonce = ?`,
		string(owner), nonce,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("nonce used %q/%d: %w", owner, nonce, err)
	}
	return true, nil
}

// PullWithSignature validates and redeems an authorization in one step:
// checks the requested amount against the authorized amount, the
// deadline against the clock, the signature against the owner's
// registered key with the spender bound into the digest, burns the
// nonce, and moves the funds from the owner to details.To.
//
// Validation order is fixed: amount bound, deadline, key, signature,
// nonce, transfer. Every failure leaves the transaction's prior state
// intact; the caller decides whether to roll back.
func (v *Verifier) PullWithSignature(ctx context.Context, tx *sql.Tx, spender ledger.Account, auth TransferAuthorization, details TransferDetails, sigHex string) error {
	if details.Amount > auth.Amount {
		return &AuthError{
			Reason:  ReasonExceedsAuthorized,
			Message: fmt.Sprintf("requested %d exceeds authorized %d", details.Amount, auth.Amount),
		}
	}

	if now := v.clock().Unix(); now > auth.Deadline {
		return &AuthError{
			Reason:  ReasonExpired,
			Message: fmt.Sprintf("deadline %d passed at %d", auth.Deadline, now),
		}
	}

	pubKey, err := v.KeyFor(ctx, tx, auth.Owner)
	if err != nil {
		return err
	}

	digest, err := Digest(SignatureDomain, spender, auth)
	if err != nil {
		return err
	}
	ok, err := VerifySignature(pubKey, sigHex, digest)
	if err != nil {
		return &AuthError{Reason: ReasonBadSignature, Message: err.Error()}
	}
	if !ok {
		return &AuthError{
			Reason:  ReasonBadSignature,
			Message: fmt.Sprintf("signature does not verify for owner %q", auth.Owner),
		}
	}

	if err := v.consumeNonce(ctx, tx, auth.Owner, auth.Nonce); err != nil {
		return err
	}

	if err := v.ledger.Transfer(ctx, tx, auth.Owner, details.To, auth.Token, details.Amount); err != nil {
		return fmt.Errorf("authorized pull: %w", err)
	}
	return nil
}

// consumeNonce burns (owner, nonce), failing with ReasonNonceUsed if it
// was already burned. The insert participates in the surrounding
// transaction: an aborted batch keeps the nonce alive.
func (v *Verifier) consumeNonce(ctx context.Context, tx *sql.Tx, owner ledger.Account, nonce int64) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO permit_nonces (owner, nonce, consumed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(owner, nonce) DO NOTHING
	`, string(owner), nonce, v.clock().Unix())
	if err != nil {
		return fmt.Errorf("consume nonce %q/%d: %w", owner, nonce, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume nonce %q/%d: %w", owner, nonce, err)
	}
	if affected == 0 {
		return &AuthError{
			Reason:  ReasonNonceUsed,
			Message: fmt.Sprintf("nonce %d already consumed for %q", nonce, owner),
		}
	}
	return nil
}
