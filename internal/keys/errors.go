package keys

import (
	"errors"
	"fmt"
)

// Error kinds returned by the Manager. Match with errors.Is.
var (
	ErrNotFound        = errors.New("key not found")
	ErrAlreadyBound    = errors.New("key already bound to a different hwid")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInactive        = errors.New("key is not active")
	ErrStorage         = errors.New("storage failure")
)

// StorageError wraps a fault raised by a Store. It matches ErrStorage and the cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// NewStorageError wraps err unless it already carries ErrStorage.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
