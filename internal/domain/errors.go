// Package domain provides the relay's core types and its error taxonomy.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory groups relay failures by the pipeline stage that raised them.
type ErrorCategory string

const (
	// CategoryValidation is raised before any network call.
	CategoryValidation ErrorCategory = "validation"

	// CategoryAuth covers the challenge-response login.
	CategoryAuth ErrorCategory = "auth"

	// CategoryDelivery covers the message send.
	CategoryDelivery ErrorCategory = "delivery"

	// CategoryTransport means no HTTP response was received at all.
	CategoryTransport ErrorCategory = "transport"
)

// ErrorKind is the specific failure within a category.
type ErrorKind string

const (
	KindMissingRecipient  ErrorKind = "missing_recipient"
	KindEmptyPayload      ErrorKind = "empty_payload"
	KindNoRecipients      ErrorKind = "no_recipients"
	KindNoChallenge       ErrorKind = "no_challenge"
	KindChallengeRejected ErrorKind = "challenge_rejected"
	KindNoCookie          ErrorKind = "no_cookie"
	KindTokenNotFound     ErrorKind = "token_not_found"
	KindTextSendFailed    ErrorKind = "text_send_failed"
	KindFileSendFailed    ErrorKind = "file_send_failed"
	KindTransport         ErrorKind = "transport"
)

// RelayError is the single error type produced by the relay pipeline.
type RelayError struct {
	Category ErrorCategory
	Kind     ErrorKind

	// Message is safe to show to operators.
	Message string

	// StatusCode is the upstream status when one was received.
	StatusCode int

	Err error
}

// Error implements the error interface.
func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RelayError) Unwrap() error { return e.Err }

// Is matches another *RelayError by kind so callers can compare against the
// sentinel values below with errors.Is.
func (e *RelayError) Is(target error) bool {
	t, ok := target.(*RelayError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatusCode maps the error onto the status returned by the relay endpoint.
func (e *RelayError) HTTPStatusCode() int {
	switch e.Category {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrMissingRecipient  = &RelayError{Category: CategoryValidation, Kind: KindMissingRecipient}
	ErrEmptyPayload      = &RelayError{Category: CategoryValidation, Kind: KindEmptyPayload}
	ErrNoRecipients      = &RelayError{Category: CategoryValidation, Kind: KindNoRecipients}
	ErrNoChallenge       = &RelayError{Category: CategoryAuth, Kind: KindNoChallenge}
	ErrChallengeRejected = &RelayError{Category: CategoryAuth, Kind: KindChallengeRejected}
	ErrNoCookie          = &RelayError{Category: CategoryAuth, Kind: KindNoCookie}
	ErrTokenNotFound     = &RelayError{Category: CategoryAuth, Kind: KindTokenNotFound}
	ErrTextSendFailed    = &RelayError{Category: CategoryDelivery, Kind: KindTextSendFailed}
	ErrFileSendFailed    = &RelayError{Category: CategoryDelivery, Kind: KindFileSendFailed}
	ErrTransport         = &RelayError{Category: CategoryTransport, Kind: KindTransport}
)

// NewValidationError creates a validation error.
func NewValidationError(kind ErrorKind, message string) *RelayError {
	return &RelayError{Category: CategoryValidation, Kind: kind, Message: message}
}

// NewAuthError creates an authentication error.
func NewAuthError(kind ErrorKind, message string, cause error) *RelayError {
	return &RelayError{Category: CategoryAuth, Kind: kind, Message: message, Err: cause}
}

// NewDeliveryError creates a delivery error carrying the upstream status.
func NewDeliveryError(kind ErrorKind, message string, status int) *RelayError {
	return &RelayError{Category: CategoryDelivery, Kind: kind, Message: message, StatusCode: status}
}

// NewTransportError wraps a network-level failure.
func NewTransportError(message string, cause error) *RelayError {
	return &RelayError{Category: CategoryTransport, Kind: KindTransport, Message: message, Err: cause}
}

// MissingRecipient is returned when no recipient id was supplied.
func MissingRecipient() *RelayError {
	return NewValidationError(KindMissingRecipient, "ID do usuário é obrigatório")
}

// EmptyPayload is returned when neither a file nor a message was supplied.
func EmptyPayload() *RelayError {
	return NewValidationError(KindEmptyPayload, "Envie pelo menos um arquivo ou uma mensagem")
}

// NoRecipients is returned when a broadcast names no recipients.
func NoRecipients() *RelayError {
	return NewValidationError(KindNoRecipients, "Selecione pelo menos uma viatura.")
}

// CategoryOf returns the category a kind belongs to. Unknown kinds are
// treated as auth failures.
func CategoryOf(kind ErrorKind) ErrorCategory {
	switch kind {
	case KindMissingRecipient, KindEmptyPayload, KindNoRecipients:
		return CategoryValidation
	case KindTextSendFailed, KindFileSendFailed:
		return CategoryDelivery
	case KindTransport:
		return CategoryTransport
	default:
		return CategoryAuth
	}
}

// AsRelayError extracts a *RelayError from err's chain.
func AsRelayError(err error) (*RelayError, bool) {
	var re *RelayError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// KindOf returns the error kind, or "" when err is not a relay error.
func KindOf(err error) ErrorKind {
	if re, ok := AsRelayError(err); ok {
		return re.Kind
	}
	return ""
}

// MessageOf returns the operator-facing message for err.
func MessageOf(err error) string {
	if re, ok := AsRelayError(err); ok && re.Message != "" {
		return re.Message
	}
	if err == nil {
		return ""
	}
	return "Erro interno do servidor"
}
