package huolala

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindAuth          ErrorKind = "auth"
	KindSignature     ErrorKind = "signature"
	KindTransport     ErrorKind = "transport"
)

// Pipeline stages reported on Error.Stage.
const (
	StageEnvelope = "envelope"
	StageToken    = "token"
	StageSign     = "sign"
	StageSend     = "send"
	StageDecode   = "decode"
	StageOAuth    = "oauth"
)

// Sentinel errors, one per kind. errors.Is(err, ErrAuth) matches every *Error of KindAuth.
var (
	// ErrConfiguration indicates the client is missing a required collaborator.
	ErrConfiguration = errors.New("configuration error")

	// ErrAuth indicates no usable access token could be produced.
	ErrAuth = errors.New("auth error")

	// ErrSignature indicates an envelope could not be signed.
	ErrSignature = errors.New("signature error")

	// ErrTransport indicates a network, timeout, status or response body failure.
	ErrTransport = errors.New("transport error")

	// ErrTokenNotFound is returned by a TokenStore when no record exists for a key.
	ErrTokenNotFound = errors.New("token not found")
)

// Error is a failure from the request pipeline.
type Error struct {
	Kind       ErrorKind
	Stage      string
	Code       string
	Message    string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("huolala %s error at %s (%s): %s: %v", e.Kind, e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("huolala %s error at %s (%s): %s", e.Kind, e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinel, or another *Error with the same kind and code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
	}
	return target == e.Kind.sentinel()
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindAuth:
		return ErrAuth
	case KindSignature:
		return ErrSignature
	case KindTransport:
		return ErrTransport
	}
	return nil
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(stage, code, message string) *Error {
	return &Error{Kind: KindConfiguration, Stage: stage, Code: code, Message: message}
}

// NewAuthError creates an auth error.
func NewAuthError(stage, code, message string) *Error {
	return &Error{Kind: KindAuth, Stage: stage, Code: code, Message: message}
}

// NewSignatureError creates a signature error.
func NewSignatureError(stage, code, message string) *Error {
	return &Error{Kind: KindSignature, Stage: stage, Code: code, Message: message}
}

// NewTransportError creates a transport error.
func NewTransportError(stage, code, message string) *Error {
	return &Error{Kind: KindTransport, Stage: stage, Code: code, Message: message}
}

// annotate tags err with pipeline metadata unless it already carries some.
func annotate(err error, kind ErrorKind, stage, code, message string) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return (&Error{Kind: kind, Stage: stage, Code: code, Message: message}).WithCause(err)
}
