package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("job not found")

// BackendError wraps connectivity and query failures of a backend.
type BackendError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err, passes ErrNotFound through and wraps everything else.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Kind: kind, Op: op, Err: err}
}

// DecodeError reports a stored record whose payload could not be decoded.
type DecodeError struct {
	ID  string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job %s could not be decoded: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("job %s could not be decoded", e.ID)
}

func (e *DecodeError) Unwrap() error { return e.Err }
