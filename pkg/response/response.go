package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies every failure the service can report to a caller.
// The set is closed: anything that is not one of the explicit kinds is
// reported as KindInternal.
type Kind int

const (
	KindInternal Kind = iota
	KindMethod
	KindConfig
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindMethod:
		return "method_error"
	case KindConfig:
		return "config_error"
	case KindUpstream:
		return "upstream_error"
	default:
		return "internal_error"
	}
}

// AppError is a failure mapped to an HTTP status and a plain-text message
// that is safe to show to the submitter.
type AppError struct {
	Kind       Kind
	HTTPStatus int
	Message    string // Body written to the client
	Err        error  // Cause, for server-side logs only
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Pre-defined error constructors

func NewMethodNotAllowed() *AppError {
	return &AppError{Kind: KindMethod, HTTPStatus: http.StatusMethodNotAllowed, Message: "Method Not Allowed: Use POST"}
}

func NewConfigError(msg string, err error) *AppError {
	return &AppError{Kind: KindConfig, HTTPStatus: http.StatusInternalServerError, Message: msg, Err: err}
}

func NewUpstreamError(msg string, err error) *AppError {
	return &AppError{Kind: KindUpstream, HTTPStatus: http.StatusInternalServerError, Message: msg, Err: err}
}

// NewInternalError interpolates the cause into the message, so the submitter
// sees "Server Error: <cause>".
func NewInternalError(err error) *AppError {
	msg := "Server Error"
	if err != nil {
		msg += ": " + err.Error()
	}
	return &AppError{Kind: KindInternal, HTTPStatus: http.StatusInternalServerError, Message: msg, Err: err}
}

// FromError returns err as an *AppError, wrapping anything else as internal.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(err)
}

// KindOf reports the kind of err. A nil error has no kind and reports
// KindInternal; callers check for nil first.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// --- Gin response helpers ---

// Text writes err as a plain-text response with its mapped status.
func Text(c *gin.Context, err error) {
	appErr := FromError(err)
	c.String(appErr.HTTPStatus, appErr.Message)
}

// HTML writes a raw HTML document with status.
func HTML(c *gin.Context, status int, body string) {
	c.Data(status, "text/html; charset=utf-8", []byte(body))
}
