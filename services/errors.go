package services

import (
	"errors"
	"fmt"
)

// Error kinds. Controllers map them to HTTP statuses with errors.Is.
var (
	ErrValidation           = errors.New("validation error")
	ErrConfiguration        = errors.New("configuration error")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrBuildInProgress      = errors.New("build in progress")
	ErrKeyExists            = errors.New("deploy key exists")
	ErrNoSuccessfulBuild    = errors.New("no successful build")
	ErrPrecondition         = errors.New("precondition failed")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrInfrastructure       = errors.New("infrastructure error")
)

// ServiceError carries a user facing message and the kind it belongs to
type ServiceError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newError(kind error, format string, args ...any) error {
	return &ServiceError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind error, cause error, format string, args ...any) error {
	return &ServiceError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}
