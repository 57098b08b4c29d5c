package core

import "errors"

// Code is the client-facing error code
type Code string

const (
	CodeRateLimited              Code = "RATE_LIMITED"
	CodeChallengeNotFound        Code = "CHALLENGE_NOT_FOUND"
	CodeChallengeExpired         Code = "CHALLENGE_EXPIRED"
	CodeChallengeAlreadyConsumed Code = "CHALLENGE_ALREADY_CONSUMED"
	CodeSignatureInvalid         Code = "SIGNATURE_INVALID"
	CodeAssertionMalformed       Code = "ASSERTION_MALFORMED"
	CodeAssertionExpired         Code = "ASSERTION_EXPIRED"
	CodeAssertionRevoked         Code = "ASSERTION_REVOKED"
	CodeRefreshReuseDetected     Code = "REFRESH_REUSE_DETECTED"
	CodeInvalidRequest           Code = "INVALID_REQUEST"
	CodeInvalidAddress           Code = "INVALID_ADDRESS"
	CodeDomainMismatch           Code = "DOMAIN_MISMATCH"
	CodeUnsupportedChain         Code = "UNSUPPORTED_CHAIN"
	CodeInternal                 Code = "INTERNAL"
)

// Error is a protocol error carrying a stable code
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrRateLimited              = &Error{CodeRateLimited, "too many requests, retry later"}
	ErrChallengeNotFound        = &Error{CodeChallengeNotFound, "challenge not found"}
	ErrChallengeExpired         = &Error{CodeChallengeExpired, "challenge has expired"}
	ErrChallengeAlreadyConsumed = &Error{CodeChallengeAlreadyConsumed, "challenge already consumed"}
	ErrSignatureInvalid         = &Error{CodeSignatureInvalid, "invalid signature"}
	ErrAssertionMalformed       = &Error{CodeAssertionMalformed, "malformed assertion"}
	ErrAssertionExpired         = &Error{CodeAssertionExpired, "assertion has expired"}
	ErrAssertionRevoked         = &Error{CodeAssertionRevoked, "assertion has been revoked"}
	ErrRefreshReuseDetected     = &Error{CodeRefreshReuseDetected, "refresh assertion reuse detected, session revoked"}
	ErrInvalidRequest           = &Error{CodeInvalidRequest, "invalid request"}
	ErrInvalidAddress           = &Error{CodeInvalidAddress, "invalid account address"}
	ErrDomainMismatch           = &Error{CodeDomainMismatch, "domain does not match this service"}
	ErrUnsupportedChain         = &Error{CodeUnsupportedChain, "unsupported chain id"}
)

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
