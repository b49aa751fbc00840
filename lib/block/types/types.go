// Package types common ledger types.
package types

import (
	"errors"
	"fmt"
)

// Signer identifies the account a submission is sent from. Every call that writes to
// the ledger takes one explicitly; there is no process-wide default account.
type Signer struct {
	Address string // 0x-prefixed account address
	Key     string // hex private key matching Address
}

// Receipt status values.
const (
	StatusFailed  uint8 = 1
	StatusSuccess uint8 = 2
)

// Receipt is the confirmation returned once a submitted ledger transaction has been
// mined. Callers only see a Receipt after finality; there is no "submitted" state.
type Receipt struct {
	Hash   string `json:"hash"`
	Block  uint64 `json:"block"`
	Fee    uint64 `json:"fee"`
	Status uint8  `json:"status"`
}

// Kinds of ledger failure. Logic rejections are permanent for the given parameters and
// must not be retried; transport failures are transient; timeouts mean the bounded wait
// for finality expired without a confirmed receipt.
const (
	LogicRejection = iota
	TransportFailure
	Timeout
)

// LedgerError normalizes failures of the remote ledger into the taxonomy above,
// carrying the underlying reason.
type LedgerError struct {
	Kind   int
	Reason string
	Err    error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger: %s: %v", e.Reason, e.Err)
	}
	return "ledger: " + e.Reason
}

func (e *LedgerError) Unwrap() error { return e.Err }

// NewLogic returns a LedgerError for an on-chain rejection (revert).
func NewLogic(reason string, err error) *LedgerError {
	return &LedgerError{Kind: LogicRejection, Reason: reason, Err: err}
}

// NewTransport returns a LedgerError for a node or network failure.
func NewTransport(reason string, err error) *LedgerError {
	return &LedgerError{Kind: TransportFailure, Reason: reason, Err: err}
}

// NewTimeout returns a LedgerError for an expired finality wait.
func NewTimeout(reason string, err error) *LedgerError {
	return &LedgerError{Kind: Timeout, Reason: reason, Err: err}
}

// ErrKind extracts the LedgerError kind from an error chain. The second return is
// false when the error did not originate in the ledger layer.
func ErrKind(err error) (int, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return 0, false
}
