package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the stable, client-visible error classification.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMITED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Reason names a specific failure inside a code, e.g. insufficient_stock
// under CONFLICT. It travels in the details map under the "reason" key.
type Reason string

const (
	ReasonProductNotFound      Reason = "product_not_found"
	ReasonProductUnavailable   Reason = "product_unavailable"
	ReasonInsufficientStock    Reason = "insufficient_stock"
	ReasonItemNotFound         Reason = "item_not_found"
	ReasonEmptyCart            Reason = "empty_cart"
	ReasonInvalidPaymentMethod Reason = "invalid_payment_method"
	ReasonOrderNotFound        Reason = "order_not_found"
	ReasonInvalidTransition    Reason = "invalid_status_transition"
)

const reasonKey = "reason"

// Metadata is how a code surfaces over HTTP. PublicMessage replaces the
// error's own message on 5xx responses.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func meta(status int, retryable bool, public string, details bool) Metadata {
	return Metadata{HTTPStatus: status, Retryable: retryable, PublicMessage: public, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, false, "validation failed", true),
	CodeUnauthorized:  meta(http.StatusUnauthorized, false, "authentication required", false),
	CodeForbidden:     meta(http.StatusForbidden, false, "access denied", false),
	CodeNotFound:      meta(http.StatusNotFound, false, "resource not found", true),
	CodeConflict:      meta(http.StatusConflict, false, "conflict detected", true),
	CodeStateConflict: meta(http.StatusConflict, false, "state transition disallowed", true),
	CodeIdempotency:   meta(http.StatusConflict, false, "idempotency key reused", true),
	CodeRateLimit:     meta(http.StatusTooManyRequests, true, "too many requests", false),
	CodeInternal:      meta(http.StatusInternalServerError, true, "internal server error", false),
	CodeDependency:    meta(http.StatusServiceUnavailable, true, "dependency unavailable", false),
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

// Newf is New with fmt-style formatting of the message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// NewReason builds an error tagged with a named reason. Extra detail
// fields are merged alongside the reason.
func NewReason(code Code, reason Reason, message string, fields map[string]any) *Error {
	details := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		details[k] = v
	}
	details[reasonKey] = string(reason)
	return New(code, message).WithDetails(details)
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

// Reason returns the named reason carried in the details, if any.
func (e *Error) Reason() Reason {
	if e == nil {
		return ""
	}
	details, ok := e.details.(map[string]any)
	if !ok {
		return ""
	}
	value, _ := details[reasonKey].(string)
	return Reason(value)
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of the first typed error in the chain, or
// CodeInternal when none is present.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// HasReason reports whether err carries the given named reason.
func HasReason(err error, reason Reason) bool {
	typed := As(err)
	return typed != nil && typed.Reason() == reason
}
