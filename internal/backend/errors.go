package backend

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// UserError is a structured failure raised intentionally by business logic:
// invalid input or a business-rule violation. It is always terminal and its
// fields are safe to return to the client.
type UserError struct {
	Code        string
	Message     string
	Description string
}

func (e *UserError) Error() string {
	return e.Message
}

// AsUserError unwraps err into a *UserError if it carries one.
func AsUserError(err error) (*UserError, bool) {
	var uerr *UserError
	if errors.As(err, &uerr) {
		return uerr, true
	}
	return nil, false
}

// OperationalError marks a transient storage conflict that is expected to
// resolve if the transaction is retried.
type OperationalError struct {
	Err error
}

func (e *OperationalError) Error() string {
	return e.Err.Error()
}

func (e *OperationalError) Unwrap() error {
	return e.Err
}

// Operational wraps err as a transient storage conflict.
func Operational(err error) error {
	if err == nil {
		return nil
	}
	return &OperationalError{Err: err}
}

// Postgres SQLSTATE codes that signal a conflict worth retrying.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// IsOperational reports whether err belongs to the transient-conflict class
// the retry loop acts on. Both explicitly wrapped errors and raw Postgres
// serialization/deadlock/lock-timeout failures qualify.
func IsOperational(err error) bool {
	var oerr *OperationalError
	if errors.As(err, &oerr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return true
		}
	}
	return false
}

// ModelNotFoundError reports a lookup of a model name that is not
// registered with the backend.
type ModelNotFoundError struct {
	Name string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q is not registered", e.Name)
}
