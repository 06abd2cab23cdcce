package middleware

import (
	"crypto/subtle"

	"licensegate/pkg/config"
	"licensegate/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// AdminTokenHeader carries the shared secret for the management surface
// (revoke, manual credit, ops triggers). It is separate from license keys:
// holding a valid license must never grant balance or lifecycle mutations.
const AdminTokenHeader = "X-Admin-Token"

// Admin guards management routes with a shared-secret header compared in
// constant time. An unset token keeps the surface closed, never open.
func Admin(policy config.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(AdminTokenHeader)
		if presented == "" {
			_ = c.Error(errutil.AuthMissing("admin token required"))
			c.Abort()
			return
		}

		if policy.AdminToken == "" ||
			subtle.ConstantTimeCompare([]byte(presented), []byte(policy.AdminToken)) != 1 {
			_ = c.Error(errutil.AuthInvalid("admin token mismatch"))
			c.Abort()
			return
		}

		c.Next()
	}
}
