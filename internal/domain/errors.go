package domain

import (
	"errors"
	"net/http"
	"sort"
	"strings"
)

// ErrorKind classifies a rejected operation.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindTransport      ErrorKind = "transport"
	KindOAuth          ErrorKind = "oauth"
	KindRequest        ErrorKind = "request"
	KindStale          ErrorKind = "stale"
)

// Sentinels for errors.Is checks by kind.
var (
	ErrValidation     = &APIError{Kind: KindValidation, Message: "validation failed"}
	ErrAuthentication = &APIError{Kind: KindAuthentication, Message: "authentication failed"}
	ErrTransport      = &APIError{Kind: KindTransport, Message: "backend unreachable"}
	ErrOAuth          = &APIError{Kind: KindOAuth, Message: "social sign-in failed"}
	ErrRequest        = &APIError{Kind: KindRequest, Message: "request failed"}
	ErrStale          = &APIError{Kind: KindStale, Message: "superseded by a newer session operation"}
)

// APIError is the single error shape every rejected session operation
// returns. It mirrors the backend's {message, errors} body.
type APIError struct {
	Message     string              `json:"message"`
	FieldErrors map[string][]string `json:"errors,omitempty"`
	Status      int                 `json:"status,omitempty"`
	Kind        ErrorKind           `json:"kind"`
	Cause       error               `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Status != 0 {
		return http.StatusText(e.Status)
	}
	return string(e.Kind) + " error"
}

func (e *APIError) Unwrap() error { return e.Cause }

// Is matches any *APIError of the same kind.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// FirstFieldError returns the first message for field, if any.
func (e *APIError) FirstFieldError(field string) string {
	if msgs := e.FieldErrors[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Fields returns the names of fields with errors, sorted.
func (e *APIError) Fields() []string {
	fields := make([]string, 0, len(e.FieldErrors))
	for f := range e.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// KindForStatus maps a non-2xx HTTP status to an error kind.
func KindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuthentication
	default:
		return KindRequest
	}
}

// NewAPIError builds an error for a status, guaranteeing a message.
func NewAPIError(status int, message string) *APIError {
	message = strings.TrimSpace(message)
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = "request failed"
	}
	return &APIError{Message: message, Status: status, Kind: KindForStatus(status)}
}

// TransportError wraps a failure that produced no usable response.
func TransportError(message string, cause error) *APIError {
	if message == "" {
		message = "backend unreachable"
	}
	return &APIError{Message: message, Kind: KindTransport, Cause: cause}
}

// AsAPIError converts any error into an *APIError. Errors that are not
// already API errors become transport errors.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return TransportError(err.Error(), err)
}

// HTTPStatus picks the status a web handler should answer with.
func (e *APIError) HTTPStatus() int {
	if e.Status >= 400 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindTransport:
		return http.StatusBadGateway
	case KindStale:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
