// Package errs defines the error kinds shared by the federation engine.
// Callers match kinds with errors.Is against the exported sentinels.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind int

const (
	Unknown Kind = iota
	InvalidKey
	InvalidInput
	NotFound
	RemoteFailure
	WrongHost
	WrongScheme
	Forbidden
)

func (k Kind) String() string {
	switch k {
	case InvalidKey:
		return "invalid key"
	case InvalidInput:
		return "invalid input"
	case NotFound:
		return "not found"
	case RemoteFailure:
		return "remote failure"
	case WrongHost:
		return "wrong host"
	case WrongScheme:
		return "wrong scheme"
	case Forbidden:
		return "forbidden"
	}
	return "unknown"
}

// Error is a classified error. Code narrows a kind (e.g. an InvalidInput
// caused by bad JSON), Status carries the HTTP status of a RemoteFailure.
type Error struct {
	Kind   Kind
	Code   string
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind. A target with a Code only
// matches errors carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidKey    = &Error{Kind: InvalidKey}
	ErrInvalidInput  = &Error{Kind: InvalidInput}
	ErrNotFound      = &Error{Kind: NotFound}
	ErrRemoteFailure = &Error{Kind: RemoteFailure}
	ErrWrongHost     = &Error{Kind: WrongHost}
	ErrWrongScheme   = &Error{Kind: WrongScheme}
	ErrForbidden     = &Error{Kind: Forbidden}

	ErrInvalidActorIdentifier = &Error{Kind: InvalidInput, Code: "invalid_actor_identifier"}
	ErrInvalidObjectURL       = &Error{Kind: InvalidInput, Code: "invalid_object_url"}
	ErrInvalidJSON            = &Error{Kind: InvalidInput, Code: "invalid_json"}
)

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Coded creates an error carrying a code, matching sentinels such as ErrInvalidJSON.
func Coded(sentinel *Error, err error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Remote creates a RemoteFailure. status is 0 when no response was received.
func Remote(status int, err error) *Error {
	msg := "request failed"
	if status != 0 {
		msg = http.StatusText(status)
	}
	return &Error{Kind: RemoteFailure, Status: status, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// StatusOf returns the remote HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// Retryable reports whether a remote failure is worth retrying soon:
// no response at all, request timeouts, rate limiting or server errors.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) || e.Kind != RemoteFailure {
		return false
	}
	switch {
	case e.Status == 0:
		return true
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return true
	case e.Status >= 500:
		return true
	}
	return false
}
