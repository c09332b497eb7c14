// Package fault classifies gateway errors into stable machine-readable
// kinds and maps them onto HTTP status codes. Every error crossing a
// package boundary is wrapped with a kind so handlers can translate it
// without string matching.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the stable identifier reported to clients. Values are part of
// the API contract and must not change.
type Kind string

const (
	// KindInvalidInput marks client-caused request errors. Never retried,
	// never forwarded to a provider.
	KindInvalidInput Kind = "invalid_input"
	// KindUpstream marks an unreachable or timed-out external dependency.
	KindUpstream Kind = "upstream_unavailable"
	// KindInference marks unusable or refused inference provider output.
	KindInference Kind = "inference_error"
	// KindStorage marks local cache state that cannot be written.
	KindStorage Kind = "storage_error"
	// KindBudget marks a rejected request due to an exhausted token budget.
	KindBudget Kind = "budget_exceeded"
	// KindRateLimited marks a request rejected by the gateway rate limiter.
	KindRateLimited Kind = "rate_limited"
	// KindConfig marks fatal startup configuration errors. The process
	// exits before accepting connections; this kind never reaches HTTP.
	KindConfig Kind = "config"
	// KindInternal is the fallback for unclassified errors.
	KindInternal Kind = "internal"
)

// Error carries a kind through a wrapped error chain.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error from a message.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Newf creates a classified error from a format string.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error. Returns nil for a nil error.
// Context cancellation and deadline errors wrapped with any kind other
// than KindInvalidInput are reported as KindUpstream by KindOf, so
// callers can wrap provider errors without checking for timeouts first.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind from an error chain. Deadline and
// cancellation errors classify as KindUpstream unless the chain marks
// them as client-caused. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Kind != KindInvalidInput && isTimeout(err) {
			return KindUpstream
		}
		return fe.Kind
	}
	if isTimeout(err) {
		return KindUpstream
	}
	return KindInternal
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind to its response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	case KindInference, KindStorage:
		return http.StatusInternalServerError
	case KindBudget, KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the human-readable detail for a client response,
// sanitized: control characters stripped and length capped so upstream
// bodies cannot smuggle credentials or megabytes into an error payload.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return ' '
		}
		return r
	}, msg)
	const maxRunes = 256
	if r := []rune(msg); len(r) > maxRunes {
		msg = string(r[:maxRunes]) + "..."
	}
	return msg
}
