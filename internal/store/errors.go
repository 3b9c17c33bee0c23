package store

import (
	"github.com/cockroachdb/errors"
)

// Ledger outcomes a caller is expected to branch on.
var (
	ErrNoCapacity         = errors.New("no free cubicle of the requested class")
	ErrRecordNotActive    = errors.New("billing record is not active")
	ErrNoActiveAssignment = errors.New("cubicle has no active assignment")
	ErrRecordNotFound     = errors.New("billing record not found")
	ErrCubicleNotFound    = errors.New("cubicle not found")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// IsDomainError reports whether err is one of the expected ledger outcomes
// rather than a failure of the backing store.
func IsDomainError(err error) bool {
	return errors.IsAny(err,
		ErrNoCapacity, ErrRecordNotActive, ErrNoActiveAssignment,
		ErrRecordNotFound, ErrCubicleNotFound)
}

// unavailable wraps a backing-store failure so callers can match ErrStoreUnavailable
// while logs keep the driver error and its stack.
func unavailable(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrStoreUnavailable)
}
