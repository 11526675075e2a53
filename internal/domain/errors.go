package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind identifies one member of the closed set of failure kinds
// surfaced to callers. Every error that crosses a package boundary is either
// an *Error carrying one of these kinds or an internal error that the
// handlers map to KindInternal.
type ErrorKind int

const (
	KindUnauthorized ErrorKind = iota + 1
	KindForbidden
	KindBannedPlayer
	KindPlayerNotFound
	KindMapNotFound
	KindEventNotFound
	KindEventEditionNotFound
	KindMapNotInEventEdition
	KindInvalidFinish
	KindCursorDecode
	KindModeVersionMissing
	KindModeVersionParse
	KindModeVersionEncoding
	KindTooManyRequests
	KindStorage
	KindCacheUnavailable
	KindUpstreamMappackIndex
	KindTimeout
	KindInternal
)

// CursorDecodeKind narrows KindCursorDecode failures.
type CursorDecodeKind int

const (
	CursorNotBase64 CursorDecodeKind = iota + 1
	CursorNotUtf8
	CursorWrongPrefix
	CursorNotTimestamp
)

func (k CursorDecodeKind) String() string {
	switch k {
	case CursorNotBase64:
		return "not base64"
	case CursorNotUtf8:
		return "not utf-8"
	case CursorWrongPrefix:
		return "wrong prefix"
	case CursorNotTimestamp:
		return "not a timestamp"
	default:
		return "unknown"
	}
}

// Error is the domain error sum type. Each variant carries the minimum data
// needed to render its HTTP body.
type Error struct {
	Kind   ErrorKind
	Reason string
	Ban    *Banishment
	Cursor CursorDecodeKind
	Err    error
}

func (e *Error) Error() string {
	msg := e.message()
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) message() string {
	switch e.Kind {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindBannedPlayer:
		if e.Ban != nil {
			return fmt.Sprintf("player is banned: %s", e.Ban.Reason)
		}
		return "player is banned"
	case KindPlayerNotFound:
		return "player not found"
	case KindMapNotFound:
		return "map not found"
	case KindEventNotFound:
		return "event not found"
	case KindEventEditionNotFound:
		return "event edition not found"
	case KindMapNotInEventEdition:
		return "map is not part of the event edition"
	case KindInvalidFinish:
		if e.Reason != "" {
			return "invalid finish: " + e.Reason
		}
		return "invalid finish"
	case KindCursorDecode:
		return "invalid cursor: " + e.Cursor.String()
	case KindModeVersionMissing:
		return "missing ObstacleModeVersion header"
	case KindModeVersionParse:
		return "malformed ObstacleModeVersion header"
	case KindModeVersionEncoding:
		return "badly encoded ObstacleModeVersion header"
	case KindTooManyRequests:
		return "too many requests"
	case KindStorage:
		return "storage error"
	case KindCacheUnavailable:
		return "cache unavailable"
	case KindUpstreamMappackIndex:
		return "mappack index upstream error"
	case KindTimeout:
		return "timed out"
	default:
		return "internal server error"
	}
}

// HTTPStatus maps the kind to its exit-level HTTP code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidFinish, KindCursorDecode, KindModeVersionMissing,
		KindModeVersionParse, KindModeVersionEncoding:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden, KindBannedPlayer:
		return http.StatusForbidden
	case KindPlayerNotFound, KindMapNotFound, KindEventNotFound,
		KindEventEditionNotFound, KindMapNotInEventEdition:
		return http.StatusNotFound
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrUnauthorized builds the bare unauthorized error. Token-hash mismatches
// always return this, never which part was wrong.
func ErrUnauthorized() error { return &Error{Kind: KindUnauthorized} }

func ErrForbidden() error { return &Error{Kind: KindForbidden} }

func ErrBanned(ban *Banishment) error { return &Error{Kind: KindBannedPlayer, Ban: ban} }

func ErrPlayerNotFound() error { return &Error{Kind: KindPlayerNotFound} }

func ErrMapNotFound() error { return &Error{Kind: KindMapNotFound} }

func ErrEventNotFound() error { return &Error{Kind: KindEventNotFound} }

func ErrEventEditionNotFound() error { return &Error{Kind: KindEventEditionNotFound} }

func ErrMapNotInEventEdition() error { return &Error{Kind: KindMapNotInEventEdition} }

func ErrInvalidFinish(reason string) error {
	return &Error{Kind: KindInvalidFinish, Reason: reason}
}

func ErrCursorDecode(kind CursorDecodeKind) error {
	return &Error{Kind: KindCursorDecode, Cursor: kind}
}

func ErrStorage(err error) error { return &Error{Kind: KindStorage, Err: err} }

func ErrCacheUnavailable(err error) error { return &Error{Kind: KindCacheUnavailable, Err: err} }

// Kind extracts the domain error kind, or KindInternal when err is not a
// domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// AsError extracts a *Error from the chain, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}

// StateErrorKind identifies auth rendezvous failures. They are a distinct
// error kind from the records taxonomy and are surfaced as 400/404/408 to
// the client, never 500.
type StateErrorKind int

const (
	StateNotReceived StateErrorKind = iota + 1
	StateTimeout
	StateInvalidAuthState
	StateInvalidCode
	StateForbidden
	StateTooManyRequests
)

// StateError reports a failed auth rendezvous transition.
type StateError struct {
	Kind StateErrorKind
}

func (e *StateError) Error() string {
	switch e.Kind {
	case StateNotReceived:
		return "auth state was never issued or has been removed"
	case StateTimeout:
		return "timed out waiting for the other side"
	case StateInvalidAuthState:
		return "operation not valid in the current auth state"
	case StateInvalidCode:
		return "code does not match the one delivered by the browser"
	case StateForbidden:
		return "access token verification failed"
	case StateTooManyRequests:
		return "too many in-flight auth requests"
	default:
		return "auth state error"
	}
}

// HTTPStatus maps rendezvous failures to their client-visible codes.
func (e *StateError) HTTPStatus() int {
	switch e.Kind {
	case StateNotReceived:
		return http.StatusNotFound
	case StateTimeout:
		return http.StatusRequestTimeout
	case StateForbidden:
		return http.StatusForbidden
	case StateTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}
