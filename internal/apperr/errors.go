// Package apperr defines the assistant's error taxonomy, the stable codes
// used when errors cross the context boundary, and the spoken messages users
// hear for each failure class.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Match with errors.Is.
var (
	// ErrQuotaExceeded means the rate limiter denied the call. No network
	// attempt was made.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrMissingCredential means the vault holds no decryptable API key.
	ErrMissingCredential = errors.New("missing credential")

	// ErrGatewayExhausted means every attempt failed and the request was queued.
	ErrGatewayExhausted = errors.New("gateway exhausted")

	// ErrMalformedResponse means the remote model returned output that could
	// not be parsed into the expected structure.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUnknownMessageType means a router message had no handler.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrInvalidRequest means a router message payload failed validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// Code is the wire identifier of an error class.
type Code string

const (
	CodeQuotaExceeded      Code = "QUOTA_EXCEEDED"
	CodeMissingCredential  Code = "MISSING_CREDENTIAL"
	CodeGatewayExhausted   Code = "GATEWAY_EXHAUSTED"
	CodeMalformedResponse  Code = "MALFORMED_RESPONSE"
	CodeUnknownMessageType Code = "UNKNOWN_MESSAGE_TYPE"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeCanceled           Code = "CANCELED"
	CodeInternal           Code = "INTERNAL"
)

var codeSentinels = map[Code]error{
	CodeQuotaExceeded:      ErrQuotaExceeded,
	CodeMissingCredential:  ErrMissingCredential,
	CodeGatewayExhausted:   ErrGatewayExhausted,
	CodeMalformedResponse:  ErrMalformedResponse,
	CodeUnknownMessageType: ErrUnknownMessageType,
	CodeInvalidRequest:     ErrInvalidRequest,
	CodeCanceled:           context.Canceled,
}

// CodeOf classifies err. Unrecognised errors map to CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	// Exhaustion wraps its last failure, so it must be checked first.
	if errors.Is(err, ErrGatewayExhausted) {
		return CodeGatewayExhausted
	}
	for _, code := range []Code{
		CodeQuotaExceeded,
		CodeMissingCredential,
		CodeMalformedResponse,
		CodeUnknownMessageType,
		CodeInvalidRequest,
	} {
		if errors.Is(err, codeSentinels[code]) {
			return code
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCanceled
	}
	return CodeInternal
}

// ═══════════════════════════════════════════════════════════════════════════════
// TYPED ERRORS
// ═══════════════════════════════════════════════════════════════════════════════

// ExhaustedError reports a gateway call whose attempts all failed.
type ExhaustedError struct {
	Kind     string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %s failed after %d attempts: %v", ErrGatewayExhausted, e.Kind, e.Attempts, e.Last)
}

// Unwrap exposes both the exhaustion sentinel and the last failure.
func (e *ExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrGatewayExhausted}
	}
	return []error{ErrGatewayExhausted, e.Last}
}

// UnknownMessageTypeError names the message type that had no handler.
type UnknownMessageTypeError struct {
	Type string
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownMessageType, e.Type)
}

func (e *UnknownMessageTypeError) Unwrap() error { return ErrUnknownMessageType }

// StatusError is a non-success HTTP status returned by the AI API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api status %d", e.StatusCode)
	}
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Message)
}

// RemoteError is an error rebuilt on the far side of the message router.
// It unwraps to the sentinel matching its code.
type RemoteError struct {
	Code    Code
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return codeSentinels[e.Code]
}

// FromCode rebuilds an error received over the wire.
func FromCode(code Code, message string) error {
	if message == "" {
		message = string(code)
	}
	return &RemoteError{Code: code, Message: message}
}
