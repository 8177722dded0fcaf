package autherr

import (
	"errors"
	"fmt"
)

// Kind classifies a token authentication failure.
type Kind string

const (
	KindExpiredToken     Kind = "EXPIRED_TOKEN"
	KindInvalidSignature Kind = "INVALID_SIGNATURE"
	KindInvalidIssuer    Kind = "INVALID_ISSUER"
	KindInvalidToken     Kind = "INVALID_TOKEN"
	KindTokenRevoked     Kind = "TOKEN_REVOKED"
	KindMissingCarrier   Kind = "MISSING_CARRIER"
	KindStoreError       Kind = "STORE_ERROR"
	KindOther            Kind = "OTHER"
)

// Error is a classified authentication error. The Kind drives control
// flow (fall-through vs terminate, revoked vs store failure); Detail
// and Cause are for server-side logging only and must never reach the
// client.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is match on Kind, so callers can compare against the
// package sentinels without caring about Detail or Cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrExpiredToken     = &Error{Kind: KindExpiredToken}
	ErrInvalidSignature = &Error{Kind: KindInvalidSignature}
	ErrInvalidIssuer    = &Error{Kind: KindInvalidIssuer}
	ErrInvalidToken     = &Error{Kind: KindInvalidToken}
	ErrTokenRevoked     = &Error{Kind: KindTokenRevoked}
	ErrMissingCarrier   = &Error{Kind: KindMissingCarrier}
)

// New builds a classified error with a human-readable detail.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// StoreError marks a revocation-store failure (network, timeout). It is
// deliberately distinct from KindTokenRevoked: an unreachable store
// must fail the request, never pass for "revoked" or "not revoked".
func StoreError(op string, cause error) *Error {
	return &Error{Kind: KindStoreError, Detail: op, Cause: cause}
}

// KindOf extracts the Kind from any error; unclassified errors report
// KindOther.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindOther
}

// IsStoreError reports whether err is a store failure rather than a
// verdict about the token itself.
func IsStoreError(err error) bool {
	return KindOf(err) == KindStoreError
}
