package model

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error codes. Every failure a handler can produce maps to exactly
// one of these before it reaches the response writer.
const (
	ErrBadRequest    = "BAD_REQUEST"
	ErrUnauthorized  = "UNAUTHORIZED"
	ErrForbidden     = "FORBIDDEN"
	ErrConfigMissing = "CONFIG_MISSING"
	ErrUpstream      = "UPSTREAM_FAILURE"
	ErrInternalError = "INTERNAL_ERROR"
)

// GatewayError is the classified error type carried between the handler
// pipeline and the response writer. It implements the error interface. The
// wire format is always {"error": "<message>"}; Code only selects the HTTP
// status.
type GatewayError struct {
	Code    string `json:"-"`
	Message string `json:"error"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewUnauthorizedError returns an UNAUTHORIZED error. The message is fixed so
// callers cannot distinguish a missing token from an invalid one.
func NewUnauthorizedError() *GatewayError {
	return &GatewayError{Code: ErrUnauthorized, Message: "Unauthorized"}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError() *GatewayError {
	return &GatewayError{Code: ErrForbidden, Message: "Forbidden: admin access required"}
}

// NewMissingFieldsError returns a BAD_REQUEST error naming the fields that
// were absent or empty, e.g. "image_url, board are required".
func NewMissingFieldsError(fields []string) *GatewayError {
	return &GatewayError{
		Code:    ErrBadRequest,
		Message: strings.Join(fields, ", ") + " are required",
	}
}

// NewBadRequestError returns a BAD_REQUEST error with the given message.
func NewBadRequestError(msg string) *GatewayError {
	return &GatewayError{Code: ErrBadRequest, Message: msg}
}

// NewConfigMissingError returns a CONFIG_MISSING error for an absent
// server-side secret, e.g. "board access token not configured".
func NewConfigMissingError(what string) *GatewayError {
	return &GatewayError{Code: ErrConfigMissing, Message: what + " not configured"}
}

// NewInternalError wraps any unexpected failure. The underlying message is
// exposed to the caller per the gateway's error contract.
func NewInternalError(err error) *GatewayError {
	msg := "An unexpected error occurred"
	if err != nil {
		msg = err.Error()
	}
	return &GatewayError{Code: ErrInternalError, Message: msg}
}

// UpstreamError records a non-2xx response or transport failure from an
// external API (BaaS, board, push dispatch). StatusCode is the HTTP status
// returned by the upstream, or 0 for transport-level failures.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
}

// Unwrap exposes the underlying transport error, if any.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ResponseStatus walks an error chain and returns the upstream HTTP status
// carried by the innermost UpstreamError, or 0 if the chain holds none.
func ResponseStatus(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}
