package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is wrapped by NotFoundError so callers can match the
	// whole category with errors.Is.
	ErrNotFound = errors.New("resource not found")

	// ErrNoActivePriceBase means pricing is misconfigured. Not retryable;
	// an operator has to activate a base price row.
	ErrNoActivePriceBase = errors.New("no active base price configured")

	// ErrLockOwnership is returned when a session touches a lock held by
	// a different owner.
	ErrLockOwnership = errors.New("lock does not belong to this session")
)

// SeatLockedError reports a lock attempt blocked by seats that are already
// locked or booked. Contention is an expected outcome: callers retry with
// a fresh seat selection.
type SeatLockedError struct {
	SeatIDs []uint
}

func (e *SeatLockedError) Error() string {
	return fmt.Sprintf("seats already locked or booked: %v", e.SeatIDs)
}

// LockExpiredError means the lock is terminally gone; the caller must lock
// seats again.
type LockExpiredError struct {
	LockID uint
}

func (e *LockExpiredError) Error() string {
	return fmt.Sprintf("seat lock %d has expired", e.LockID)
}

// ConcurrentBookingError reports that an operation raced another writer
// (a promote racing the expiry sweep, or a duplicate lock attempt for the
// same showtime).
type ConcurrentBookingError struct {
	Reason string
}

func (e *ConcurrentBookingError) Error() string {
	return e.Reason
}

// MaxSeatsExceededError is a policy violation checked before any lock is
// attempted.
type MaxSeatsExceededError struct {
	Max       int
	Requested int
}

func (e *MaxSeatsExceededError) Error() string {
	return fmt.Sprintf("cannot lock %d seats: maximum %d seats per booking", e.Requested, e.Max)
}

// NotFoundError identifies the missing resource. Unwraps to ErrNotFound.
type NotFoundError struct {
	Resource string
	Key      any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Resource, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
