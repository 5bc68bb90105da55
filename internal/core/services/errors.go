package services

import (
	"errors"
	"fmt"
)

// ErrorKind groups errors by how callers should react to them.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindAuthorization
	KindState
	KindNotFound
	KindEconomicInvariant
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	case KindEconomicInvariant:
		return "economic_invariant"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Sentinels are compared with errors.Is and
// detail is attached by wrapping.
type Error struct {
	Kind ErrorKind
	Code string
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrInvalidCapabilities = newError(KindValidation, "invalid_capabilities", "capabilities declare no resources")
	ErrMissingProof        = newError(KindValidation, "missing_proof", "registration proof is empty")
	ErrInvalidAmount       = newError(KindValidation, "invalid_amount", "amount must be greater than zero")
	ErrInvalidReason       = newError(KindValidation, "invalid_reason", "unknown slash reason")
	ErrInvalidAddress      = newError(KindValidation, "invalid_address", "address must not be zero")

	ErrNotOwner    = newError(KindAuthorization, "not_owner", "caller does not own worker")
	ErrMissingRole = newError(KindAuthorization, "missing_role", "caller lacks required role")

	ErrAlreadyRegistered    = newError(KindState, "already_registered", "caller already owns a worker")
	ErrInsufficientUnlocked = newError(KindState, "insufficient_unlocked", "amount exceeds unlocked stake")
	ErrNotReady             = newError(KindState, "not_ready", "no unstake request is ready")
	ErrInsufficientStake    = newError(KindState, "insufficient_stake", "worker has no stake to slash")
	ErrWorkerInactive       = newError(KindState, "worker_inactive", "worker is not active")

	ErrWorkerNotFound = newError(KindNotFound, "worker_not_found", "worker not found")

	ErrSupplyExceeded     = newError(KindEconomicInvariant, "supply_exceeded", "total stake would exceed token supply")
	ErrSlashExceedsStake  = newError(KindEconomicInvariant, "slash_exceeds_stake", "slash amount exceeds stake")
	ErrPendingExceedStake = newError(KindEconomicInvariant, "pending_exceed_stake", "pending unstakes exceed stake")
	ErrReputationRange    = newError(KindEconomicInvariant, "reputation_out_of_range", "reputation outside allowed range")
)

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first classified error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

func wrap(sentinel *Error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
