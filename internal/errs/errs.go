// Package errs defines the structured error kinds used across the QNet
// core (spec §7 Error Handling Design). Handlers return these instead of
// bare errors so the pipeline's top loop and the HTTP surface can make
// uniform decisions without string-matching error text.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates error categories. The zero value is unused.
type Kind string

const (
	Io                           Kind = "Io"
	Serialization                Kind = "Serialization"
	Compression                  Kind = "Compression"
	InvalidSignature             Kind = "InvalidSignature"
	InvalidFormat                Kind = "InvalidFormat"
	DecryptionFailed             Kind = "DecryptionFailed"
	FutureTimestamp              Kind = "FutureTimestamp"
	Expired                      Kind = "Expired"
	ConsensusInsufficientParticipants Kind = "ConsensusInsufficientParticipants"
	ConsensusTimeout             Kind = "ConsensusTimeout"
	ByzantineSafetyViolation     Kind = "ByzantineSafetyViolation"
	RateLimited                  Kind = "RateLimited"
	Forbidden                    Kind = "Forbidden"
	CriticalAttack               Kind = "CriticalAttack"
)

// QNetError is a structured error carrying a Kind discriminator plus a
// wrapped cause. It never leaks beyond the handler that produced it except
// at the HTTP surface, where Kind maps to a status code (§7).
type QNetError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *QNetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *QNetError) Unwrap() error { return e.Err }

// New creates a QNetError of the given kind with a message.
func New(kind Kind, msg string) error {
	return &QNetError{Kind: kind, Msg: msg}
}

// Wrap creates a QNetError of the given kind wrapping an underlying cause.
func Wrap(kind Kind, msg string, err error) error {
	return &QNetError{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err, if it (or something it wraps) is a
// *QNetError. Returns ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var qe *QNetError
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Fatal reports whether a Kind is fatal for the specific message/code that
// produced it (never for the whole pipeline) per §7.
func Fatal(kind Kind) bool {
	switch kind {
	case InvalidSignature, InvalidFormat, DecryptionFailed, FutureTimestamp, Expired:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind to the status code the RPC surface should return
// (§7 "User-visible failures appear only at the HTTP surface").
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidFormat, InvalidSignature, DecryptionFailed, FutureTimestamp, Expired, Serialization:
		return http.StatusBadRequest
	case RateLimited:
		return http.StatusTooManyRequests
	case Forbidden, CriticalAttack:
		return http.StatusForbidden
	case Io, Compression:
		return http.StatusInternalServerError
	case ConsensusInsufficientParticipants, ConsensusTimeout, ByzantineSafetyViolation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON shape returned for 4xx/5xx responses, carrying the Kind
// for operator diagnostics.
type Body struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// BodyFor builds the diagnostic body for err.
func BodyFor(err error) Body {
	kind, ok := KindOf(err)
	if !ok {
		kind = Io
	}
	return Body{Kind: kind, Message: err.Error()}
}
