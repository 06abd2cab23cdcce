package middleware

import (
	"github.com/gin-gonic/gin"
)

// LicenseKeyHeader is the primary credential carrier; the query parameter
// exists for clients that cannot set headers.
const (
	LicenseKeyHeader = "X-License-Key"
	LicenseKeyQuery  = "license_key"
)

// LicenseKey extracts the presented license key from the request, or "" when
// none is present.
func LicenseKey(c *gin.Context) string {
	if key := c.GetHeader(LicenseKeyHeader); key != "" {
		return key
	}
	return c.Query(LicenseKeyQuery)
}

// Identity is what the rate limiter counts by: the license key when one is
// presented, otherwise the client IP. An unauthenticated abuser is throttled
// before it can exhaust validator capacity.
func Identity(c *gin.Context) string {
	if key := LicenseKey(c); key != "" {
		return key
	}
	return c.ClientIP()
}
