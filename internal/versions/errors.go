package versions

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence marks failures of the underlying store.
	ErrPersistence = errors.New("versions: persistence failure")
	// ErrVersionNotFound indicates that no version exists for the requested id.
	ErrVersionNotFound = errors.New("versions: version not found")
	// ErrAutoSaveNotFound indicates that the document has no auto-save slot.
	ErrAutoSaveNotFound = errors.New("versions: auto-save not found")
	// ErrRevisionConflict indicates a concurrent auto-save won the compare-and-swap.
	ErrRevisionConflict = errors.New("versions: auto-save revision conflict")
)

// ServiceError carries an operation.reason code alongside the cause.
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

// Code returns the operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opCreateVersion = "versions.create_version"
	opAutoSave      = "versions.auto_save"
	opDeleteVersion = "versions.delete_version"
	opListVersions  = "versions.list_versions"
	opGetVersion    = "versions.get_version"
	opGetAutoSave   = "versions.get_auto_save"
	opClearAutoSave = "versions.clear_auto_save"
	opHasAutoSave   = "versions.has_auto_save"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

func newPersistenceError(operation, reason string, cause error) error {
	return newServiceError(operation, reason, fmt.Errorf("%w: %w", ErrPersistence, cause))
}
