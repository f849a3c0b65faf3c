package domain

import "errors"

// Authorization errors.
var (
	// ErrUnauthorized is returned when the caller lacks the role an operation requires.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrLastAdmin is returned when a revoke would leave no ADMIN holder.
	ErrLastAdmin = errors.New("cannot revoke the last admin")
)

// Policy errors. The caller may adjust the request and retry.
var (
	ErrUnsupportedAsset    = errors.New("unsupported asset")
	ErrAmountOutOfRange    = errors.New("amount out of range")
	ErrDailyLimitExceeded  = errors.New("daily limit exceeded")
	ErrInvalidRange        = errors.New("invalid range")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientSupply  = errors.New("insufficient wrapped supply")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

// Integrity errors. These indicate a misbehaving or malicious relayer.
var (
	ErrAlreadyConsumed     = errors.New("deposit already consumed")
	ErrInvalidProof        = errors.New("invalid proof")
	ErrInsufficientCustody = errors.New("insufficient custody")
)

// State errors.
var (
	ErrPaused           = errors.New("bridge is paused")
	ErrTransferNotFound = errors.New("transfer not found")
	ErrTransferClosed   = errors.New("transfer already closed")
)

// Input validation errors.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidIdentity = errors.New("invalid identity")
)

// ErrorKind classifies an error for logging, metrics and transport mapping.
type ErrorKind string

// ErrorKind constants.
const (
	KindAuthorization ErrorKind = "authorization"
	KindPolicy        ErrorKind = "policy"
	KindIntegrity     ErrorKind = "integrity"
	KindState         ErrorKind = "state"
	KindInternal      ErrorKind = "internal"
)

var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrUnauthorized, KindAuthorization},
	{ErrLastAdmin, KindAuthorization},
	{ErrAlreadyConsumed, KindIntegrity},
	{ErrInvalidProof, KindIntegrity},
	{ErrInsufficientCustody, KindIntegrity},
	{ErrUnsupportedAsset, KindPolicy},
	{ErrAmountOutOfRange, KindPolicy},
	{ErrDailyLimitExceeded, KindPolicy},
	{ErrInvalidRange, KindPolicy},
	{ErrInvalidAmount, KindPolicy},
	{ErrInsufficientBalance, KindPolicy},
	{ErrInsufficientSupply, KindPolicy},
	{ErrBalanceOverflow, KindPolicy},
	{ErrPaused, KindState},
	{ErrTransferNotFound, KindState},
	{ErrTransferClosed, KindState},
	{ErrInvalidInput, KindPolicy},
	{ErrInvalidIdentity, KindPolicy},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kindTable {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsIntegrity reports whether err signals relayer misbehaviour.
func IsIntegrity(err error) bool {
	return KindOf(err) == KindIntegrity
}
