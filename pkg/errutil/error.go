package errutil

import (
	"fmt"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"error"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

// JSON returns the wire envelope: {"error": <message>, "code": <ENUM>}.
func (e BaseError) JSON() interface{} {
	out := map[string]interface{}{
		"error": e.Message,
		"code":  e.Code,
	}
	if len(e.Details) > 0 {
		out["details"] = e.Details
	}
	return out
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.messageWithErr())
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e BaseError) messageWithErr() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = details }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func AuthMissing(msg string, options ...Option) error {
	return New(StatusAuthMissing, msg, options...)
}

func AuthInvalid(msg string, options ...Option) error {
	return New(StatusAuthInvalid, msg, options...)
}

func LicenseExpired(msg string, options ...Option) error {
	return New(StatusLicenseExpired, msg, options...)
}

func LicenseRevoked(msg string, options ...Option) error {
	return New(StatusLicenseRevoked, msg, options...)
}

func InsufficientHours(msg string, options ...Option) error {
	return New(StatusInsufficientHours, msg, options...)
}

func InstallLimit(msg string, options ...Option) error {
	return New(StatusInstallLimit, msg, options...)
}

func RateLimited(msg string, options ...Option) error {
	return New(StatusRateLimited, msg, options...)
}

func UpstreamUnavailable(msg string, options ...Option) error {
	return New(StatusUpstreamUnavailable, msg, options...)
}

func BadSignature(msg string, options ...Option) error {
	return New(StatusBadSignature, msg, options...)
}

func StorageError(msg string, options ...Option) error {
	return New(StatusStorageError, msg, options...)
}

func NotFound(msg string, options ...Option) error {
	return New(StatusNotFound, msg, options...)
}

func BadRequest(msg string, options ...Option) error {
	return New(StatusBadRequest, msg, options...)
}

func ValidationFailed(msg string, options ...Option) error {
	return New(StatusValidationFailed, msg, options...)
}

func Conflict(msg string, options ...Option) error {
	return New(StatusConflict, msg, options...)
}

func Internal(msg string, options ...Option) error {
	return New(StatusInternal, msg, options...)
}
