package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists in a write-once store.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable marks a failure of the backing store itself
	// (connection lost, disk error). Scans cannot continue without it.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Unavailable wraps err so that errors.Is(err, ErrStoreUnavailable) holds.
// Input validation errors are returned unchanged.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	return errors.Join(ErrStoreUnavailable, err)
}
