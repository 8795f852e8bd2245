package db

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyText is returned when a message without text is appended.
	ErrEmptyText = errors.New("db: message text is empty")

	// ErrInvalidSender is returned for a sender other than user or assistant.
	ErrInvalidSender = errors.New("db: invalid sender")
)

// StorageError reports that the persistence layer failed an operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err wraps a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
