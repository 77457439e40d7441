package domain

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Failure taxonomy surfaced to callers.
var (
	ErrUnsupportedAsset          = errors.New("unsupported asset")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrInsufficientPayment       = errors.New("insufficient payment")
	ErrInsufficientReserve       = errors.New("insufficient reserve")
	ErrOrderRejected             = errors.New("order rejected")
	ErrInfrastructureUnavailable = errors.New("infrastructure unavailable")
	ErrConsistencyAlert          = errors.New("consistency alert")
)

// contract revert reasons that map onto a sentinel
var reasonSentinels = map[string]error{
	"InvalidAmount":       ErrInvalidAmount,
	"InsufficientBalance": ErrInsufficientBalance,
	"InsufficientPayment": ErrInsufficientPayment,
	"InsufficientReserve": ErrInsufficientReserve,
}

// RejectionError the ledger refused the call. Reason is passed through verbatim.
type RejectionError struct {
	Reason string
}

// NewRejection builds a RejectionError.
func NewRejection(reason string) *RejectionError {
	return &RejectionError{Reason: reason}
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order rejected: %s", e.Reason)
}

// Is matches ErrOrderRejected.
func (e *RejectionError) Is(target error) bool {
	return target == ErrOrderRejected
}

// Unwrap exposes the matching sentinel for well-known reasons.
func (e *RejectionError) Unwrap() error {
	return reasonSentinels[e.Reason]
}

// UnavailableError an external dependency could not produce an outcome.
type UnavailableError struct {
	Op  string
	Err error
}

// Unavailable wraps err as an infrastructure failure of op.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInfrastructureUnavailable, e.Op, e.Err)
}

// Is matches ErrInfrastructureUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrInfrastructureUnavailable
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// ConsistencyAlert the chain confirmed a trade that the journal failed to record.
// Operators resolve it; nothing repairs it automatically.
type ConsistencyAlert struct {
	IntentID   string          `json:"intent_id"`
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Type       TradeType       `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	TxHash     string          `json:"tx_hash"`
	Cause      string          `json:"cause"`
	DetectedAt time.Time       `json:"detected_at"`
}

func (a *ConsistencyAlert) Error() string {
	return fmt.Sprintf("%s: %s %s %s confirmed on chain in %s but not journaled: %s",
		ErrConsistencyAlert, a.UserID, a.Type, a.Symbol, a.TxHash, a.Cause)
}

// Is matches ErrConsistencyAlert.
func (a *ConsistencyAlert) Is(target error) bool {
	return target == ErrConsistencyAlert
}
