// Package apperr defines the error taxonomy shared by the services and the
// API layer. Handlers map these to HTTP status codes; nothing else should
// inspect error strings.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrWalletExists is returned on a unique-constraint violation when
	// creating a wallet. Callers use it to resolve the create/create race.
	ErrWalletExists = errors.New("wallet already exists for this user")

	// ErrUnsupportedNetwork is returned when a testnet-only operation
	// (friendbot funding) is attempted on another network. This is a hard
	// failure so misconfiguration never masquerades as success.
	ErrUnsupportedNetwork = errors.New("operation is only available on testnet")

	// ErrAccountNotFound is returned by the ledger gateway when an account
	// does not exist on the network (typically: unfunded).
	ErrAccountNotFound = errors.New("account not found on ledger")
)

// ValidationError indicates bad input, rejected before any I/O.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError indicates a missing listing, wallet, token or asset record.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// NotFound builds a NotFoundError for the named resource.
func NotFound(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

// AccountNotFundedError indicates an on-ledger account that does not exist
// yet. Recoverable: the payload carries a funding URL when one is available.
type AccountNotFundedError struct {
	PublicKey  string
	FundingURL string
}

func (e *AccountNotFundedError) Error() string {
	return fmt.Sprintf("account %s is not funded", e.PublicKey)
}

// SubmissionError indicates the ledger rejected or timed out a transaction.
// Reason carries the raw result codes for diagnosis.
type SubmissionError struct {
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Reason != "" {
		return "transaction submission failed: " + e.Reason
	}
	return "transaction submission failed"
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// DecryptionError indicates the vault passphrase does not match the one used
// at encryption time, or the ciphertext is malformed. Configuration-level:
// callers should halt, not retry.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return "failed to decrypt secret: " + e.Err.Error()
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// PersistenceError wraps a database failure. For post-transfer bookkeeping
// the settlement service logs these and swallows them; everywhere else they
// propagate.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure on %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
