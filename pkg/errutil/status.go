package errutil

import "net/http"

// CoreStatus is the machine-readable error code carried in every error
// envelope returned by the gating path.
type CoreStatus string

const (
	StatusAuthMissing         CoreStatus = "AUTH_MISSING"
	StatusAuthInvalid         CoreStatus = "AUTH_INVALID"
	StatusLicenseExpired      CoreStatus = "LICENSE_EXPIRED"
	StatusLicenseRevoked      CoreStatus = "LICENSE_REVOKED"
	StatusInsufficientHours   CoreStatus = "INSUFFICIENT_HOURS"
	StatusInstallLimit        CoreStatus = "INSTALL_LIMIT"
	StatusRateLimited         CoreStatus = "RATE_LIMITED"
	StatusUpstreamUnavailable CoreStatus = "UPSTREAM_UNAVAILABLE"
	StatusBadSignature        CoreStatus = "WEBHOOK_BAD_SIGNATURE"
	StatusStorageError        CoreStatus = "STORAGE_ERROR"
	StatusNotFound            CoreStatus = "NOT_FOUND"
	StatusBadRequest          CoreStatus = "BAD_REQUEST"
	StatusValidationFailed    CoreStatus = "VALIDATION_FAILED"
	StatusConflict            CoreStatus = "CONFLICT"
	StatusInternal            CoreStatus = "INTERNAL"
)

// HTTPStatus converts the CoreStatus to its HTTP status code equivalent.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusAuthMissing:
		return http.StatusUnauthorized
	case StatusAuthInvalid, StatusLicenseExpired, StatusLicenseRevoked, StatusInsufficientHours:
		return http.StatusForbidden
	case StatusInstallLimit, StatusConflict:
		return http.StatusConflict
	case StatusRateLimited:
		return http.StatusTooManyRequests
	case StatusUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case StatusBadSignature, StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusNotFound:
		return http.StatusNotFound
	case StatusStorageError, StatusInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
