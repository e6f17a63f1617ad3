package domain

import (
	"errors"
	"fmt"
)

// Registrar failure modes. Each aborts the enclosing operation with no
// observable state change.
var (
	// ErrNameTooShort rejects raw names below MinNameLen.
	ErrNameTooShort = errors.New("name too short")
	// ErrDomainTaken rejects registration of a non-free record, and bid
	// operations on a record that is not biddable.
	ErrDomainTaken = errors.New("domain taken")
	// ErrNotDomainOwner rejects owner-only operations from other callers.
	ErrNotDomainOwner = errors.New("not domain owner")
	// ErrOutsideGrace rejects renewal after the grace window has elapsed.
	ErrOutsideGrace = errors.New("renewal window closed")
	// ErrNoActiveBid rejects accept/reject on an empty bid slot.
	ErrNoActiveBid = errors.New("no active bid")
	// ErrReentrantCall rejects a mutating call nested inside another one.
	ErrReentrantCall = errors.New("reentrant call")
	// ErrFeeTooLow rejects payments below the computed minimum. Returned
	// wrapped in a FeeTooLowError carrying that minimum.
	ErrFeeTooLow = errors.New("fee too low")
	// ErrNotAdmin rejects privileged operations from non-admin callers.
	ErrNotAdmin = errors.New("caller is not the administrator")
	// ErrInvalidFees rejects fee updates where either value is zero.
	ErrInvalidFees = errors.New("fees must be positive")
)

// FeeTooLowError carries the minimum amount the rejected operation would have
// accepted, so callers can retry with a correct payment.
type FeeTooLowError struct {
	Required uint64
}

func (e *FeeTooLowError) Error() string {
	return fmt.Sprintf("fee too low: requires at least %d", e.Required)
}

// Is makes errors.Is(err, ErrFeeTooLow) hold for every FeeTooLowError.
func (e *FeeTooLowError) Is(target error) bool {
	return target == ErrFeeTooLow
}
