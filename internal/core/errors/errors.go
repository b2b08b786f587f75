package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

const (
	HttpInternalError         = "internal_error"
	HttpInvalidJsonError      = "invalid_json"
	HttpValidationError       = "validation_error"
	HttpNotFoundError         = "not_found"
	HttpDomainUnverifiedError = "domain_unverified"
	HttpRateLimitedError      = "rate_limited"
	HttpPayloadTooLargeError  = "payload_too_large"
)

// ErrorResponse is the error response body for every API surface.
type ErrorResponse struct {
	Success   bool        `json:"success"`
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// Kind classifies an API error and fixes its HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindDomainUnverified
	KindRateLimited
	KindPayloadTooLarge
	KindInvalidJSON
)

var kindMeta = map[Kind]struct {
	status    int
	errorType string
}{
	KindInternal:         {http.StatusInternalServerError, HttpInternalError},
	KindValidation:       {http.StatusBadRequest, HttpValidationError},
	KindNotFound:         {http.StatusNotFound, HttpNotFoundError},
	KindDomainUnverified: {http.StatusForbidden, HttpDomainUnverifiedError},
	KindRateLimited:      {http.StatusTooManyRequests, HttpRateLimitedError},
	KindPayloadTooLarge:  {http.StatusRequestEntityTooLarge, HttpPayloadTooLargeError},
	KindInvalidJSON:      {http.StatusBadRequest, HttpInvalidJsonError},
}

// Error is a classified failure that knows how it should be reported over HTTP.
type Error struct {
	Kind       Kind
	Message    string
	Details    interface{}
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error kind.
func (e *Error) Status() int {
	return kindMeta[e.Kind].status
}

// Type returns the machine-readable error_type for the error kind.
func (e *Error) Type() string {
	return kindMeta[e.Kind].errorType
}

func Validation(message string, details interface{}) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func InvalidJSON(err error) *Error {
	return &Error{Kind: KindInvalidJSON, Message: "Invalid JSON body", Err: err}
}

func PayloadTooLarge(maxBytes int64) *Error {
	return &Error{
		Kind:    KindPayloadTooLarge,
		Message: "Request body exceeds maximum allowed size",
		Details: map[string]interface{}{"max_size_bytes": maxBytes},
	}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func DomainUnverified(domain string) *Error {
	return &Error{
		Kind:    KindDomainUnverified,
		Message: fmt.Sprintf("domain %s is not verified for cross-domain tracking", domain),
		Details: map[string]interface{}{"domain": domain},
	}
}

func RateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    "Too many requests",
		RetryAfter: retryAfter,
		Details:    map[string]interface{}{"retry_after_seconds": retryAfterSeconds(retryAfter)},
	}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// As extracts the classified error from err. Unclassified errors are reported
// as internal without leaking their text to the client.
func As(err error) *Error {
	var apiErr *Error
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	return Internal("Internal server error", err)
}

// IsKind reports whether err is a classified error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return stderrors.As(err, &apiErr) && apiErr.Kind == kind
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
