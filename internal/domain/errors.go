package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can branch without inspecting messages.
type Kind string

const (
	KindUnknownCommand      Kind = "unknown_command"
	KindInvalidParameters   Kind = "invalid_parameters"
	KindForbidden           Kind = "forbidden"
	KindNotConnected        Kind = "not_connected"
	KindConnectionInactive  Kind = "connection_inactive"
	KindConnectionCorrupted Kind = "connection_corrupted"
	KindInvalidCredentials  Kind = "invalid_credentials"
	KindRateLimitExceeded   Kind = "rate_limit_exceeded"
	KindUpstreamFailure     Kind = "upstream_failure"
	KindEncryptionFailure   Kind = "encryption_failure"
	KindDecryptionFailure   Kind = "decryption_failure"
	KindConfiguration       Kind = "configuration_error"
	KindInternal            Kind = "internal_error"
)

// Error is the classified error returned across layer boundaries
// (vault, upstream client, resolver, dispatch).
type Error struct {
	Kind    Kind
	Message string
	// Fields names the offending parameters for KindInvalidParameters.
	Fields []string
	// Status is the HTTP status reported by the upstream for KindUpstreamFailure,
	// or a status equivalent for transport failures.
	Status int
	Cause  error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is comparisons. Never return these directly when a
// more specific message is available.
var (
	ErrUnknownCommand      = &Error{Kind: KindUnknownCommand, Message: "unknown command"}
	ErrInvalidParameters   = &Error{Kind: KindInvalidParameters, Message: "invalid parameters"}
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "insufficient permissions"}
	ErrNotConnected        = &Error{Kind: KindNotConnected, Message: "upstream is not connected for this organization"}
	ErrConnectionInactive  = &Error{Kind: KindConnectionInactive, Message: "upstream connection is not active"}
	ErrConnectionCorrupted = &Error{Kind: KindConnectionCorrupted, Message: "stored upstream credentials could not be read"}
	ErrInvalidCredentials  = &Error{Kind: KindInvalidCredentials, Message: "upstream rejected the supplied credentials"}
	ErrRateLimitExceeded   = &Error{Kind: KindRateLimitExceeded, Message: "upstream rate limit exceeded"}
	ErrUpstreamFailure     = &Error{Kind: KindUpstreamFailure, Message: "upstream request failed"}
	ErrEncryptionFailure   = &Error{Kind: KindEncryptionFailure, Message: "encryption failed"}
	ErrDecryptionFailure   = &Error{Kind: KindDecryptionFailure, Message: "decryption failed"}
	ErrConfiguration       = &Error{Kind: KindConfiguration, Message: "invalid configuration"}
	ErrInternal            = &Error{Kind: KindInternal, Message: "internal error"}
)

// Sentinel errors for simple storage conditions.
var (
	ErrConnectionNotFound = errors.New("tenant connection not found")
)

// KindOf reports the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// NewUnknownCommandError reports a command name missing from the registry.
func NewUnknownCommandError(name string) *Error {
	return &Error{
		Kind:    KindUnknownCommand,
		Message: fmt.Sprintf("Unknown tool: %s", name),
	}
}

// NewInvalidParametersError reports parameters that failed validation.
func NewInvalidParametersError(message string, fields ...string) *Error {
	if message == "" {
		message = "invalid parameters: " + strings.Join(fields, ", ")
	}
	return &Error{
		Kind:    KindInvalidParameters,
		Message: message,
		Fields:  fields,
	}
}

// NewUpstreamError reports an upstream HTTP failure.
func NewUpstreamError(status int, message string, cause error) *Error {
	return &Error{
		Kind:    KindUpstreamFailure,
		Message: message,
		Status:  status,
		Cause:   cause,
	}
}

// Wrap classifies cause under kind with a short human-readable message.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// TransitionError is returned when a connection status change is not allowed.
type TransitionError struct {
	Event   ConnectionEvent
	Current ConnectionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}
