package notes

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveSession indicates that a note was created without a signed-in user.
	ErrNoActiveSession = errors.New("notes: no active session")
	// ErrIDExhausted indicates that the id provider kept returning identifiers already in use.
	ErrIDExhausted = errors.New("notes: could not allocate a unique note id")

	errMissingStorage    = errors.New("storage handle is required")
	errMissingStore      = errors.New("note store is required")
	errMissingSessions   = errors.New("session source is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ServiceError carries a dotted operation code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew      = "notes.store.new"
	opStoreLoad     = "notes.store.load"
	opStoreSave     = "notes.store.save"
	opRepositoryNew = "notes.repository.new"
	opAddNote       = "notes.add_note"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
