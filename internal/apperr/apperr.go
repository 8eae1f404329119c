package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of failures the core reports to callers.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindPermissionDenied   Kind = "permission_denied"
	KindIllegalTransition  Kind = "illegal_transition"
	KindNumberingExhausted Kind = "numbering_exhausted"
	KindAgreementRequired  Kind = "agreement_required"
	KindAlreadyIssued      Kind = "already_issued"
	KindRenderFailed       Kind = "render_failed"
	KindValidationFailed   Kind = "validation_failed"
)

type Error struct {
	Kind    Kind
	Message string
	// Fields maps a form field to its message for KindValidationFailed.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func NotFound(what string) *Error {
	return New(KindNotFound, what+" not found")
}

func PermissionDenied(msg string) *Error {
	return New(KindPermissionDenied, msg)
}

func IllegalTransition(msg string) *Error {
	return New(KindIllegalTransition, msg)
}

func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidationFailed, Message: "validation failed", Fields: fields}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps a kind onto the HTTP status the API surfaces it as.
func Status(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindIllegalTransition, KindAlreadyIssued, KindValidationFailed:
		return http.StatusBadRequest
	case KindNumberingExhausted:
		return http.StatusServiceUnavailable
	case KindAgreementRequired:
		return http.StatusFound
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may safely repeat the request.
func Retryable(err error) bool {
	return KindOf(err) == KindNumberingExhausted
}
