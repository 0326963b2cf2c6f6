// Package errs defines the error kinds surfaced by the library API.
// Every operation failure maps to exactly one kind so the HTTP layer can
// render a consistent {error_kind, message} body.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure.
type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindInvalidState          Kind = "invalid_state"
	KindEmptyContent          Kind = "empty_content"
	KindFetchFailed           Kind = "fetch_failed"
	KindTimeout               Kind = "timeout"
	KindTooLarge              Kind = "too_large"
	KindUnsupportedType       Kind = "unsupported_type"
	KindSynthesisFailed       Kind = "synthesis_failed"
	KindAudioContractMismatch Kind = "audio_contract_mismatch"
	KindUndoExpired           Kind = "undo_expired"
	KindInternal              Kind = "internal"
)

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFound is the common existence-check failure.
func NotFound(entity, id string) *Error {
	return E(KindNotFound, "%s %q not found", entity, id)
}

// KindOf extracts the kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf extracts the caller-facing message from err. Internal errors are
// rendered opaque; the cause belongs in the log, not the response.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
