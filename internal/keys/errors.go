package keys

import (
	"errors"

	"github.com/EternisAI/keygate/internal/keycodec"
)

var (
	ErrFormat          = keycodec.ErrFormat
	ErrChecksum        = keycodec.ErrChecksum
	ErrExpired         = keycodec.ErrExpired
	ErrConflict        = errors.New("key already exists")
	ErrNotFound        = errors.New("key not found")
	ErrInvalidState    = errors.New("key is not active")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrUnavailable     = errors.New("key store unavailable")
)

// StateError carries the last known record state alongside a sentinel, so
// callers can report e.g. the expiry of a rejected key.
type StateError struct {
	Err    error
	Record *KeyRecord
}

func (e *StateError) Error() string { return e.Err.Error() }

func (e *StateError) Unwrap() error { return e.Err }

func withRecord(err error, rec *KeyRecord) error {
	return &StateError{Err: err, Record: rec}
}

// RecordOf returns the record attached to err, if any.
func RecordOf(err error) *KeyRecord {
	var se *StateError
	if errors.As(err, &se) {
		return se.Record
	}
	return nil
}
