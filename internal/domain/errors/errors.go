package errors

import (
	"errors"
	"sort"
	"strings"
)

// Kind classifies a failure so that the transport layer can pick a status code
// without comparing messages.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrEmailInUse         = New(KindConflict, "Email already in use")
	ErrInvalidCredentials = New(KindUnauthenticated, "Invalid email or password")
	ErrUnauthorized       = New(KindUnauthenticated, "Unauthorized")
	ErrInvalidToken       = New(KindUnauthenticated, "Invalid token")
	ErrUserNotFound       = New(KindNotFound, "User not found")
	ErrTaskNotFound       = New(KindNotFound, "Task not found")
	ErrBadRequest         = New(KindValidation, "Invalid request body")
	ErrInternalServer     = New(KindInternal, "Internal server error")

	ErrConfigFileReadFailed = errors.New("failed to read config file")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrInvalidGzipRequest   = New(KindValidation, "Invalid gzip request body")
)

// ValidationError carries field level messages keyed by the JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "Validation error"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "Validation error: " + strings.Join(parts, "; ")
}

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return KindValidation
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is and As are re-exported so callers importing this package under its
// default name do not also need the standard library one.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
