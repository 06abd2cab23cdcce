package httpapi

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"licensegate/pkg/config"
	"licensegate/pkg/errutil"
	"licensegate/pkg/middleware"
	"licensegate/services/license"
	"licensegate/services/metering"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessControl is the per-request gate: public-path bypass, then key
// presence, then validation, then balance enforcement. Metering happens only
// after the downstream handler completes successfully — on cancellation or
// handler failure the system under-charges rather than over-charges.
func AccessControl(policy config.Policy, validator *license.Validator, meter *metering.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if isPublic(policy.PublicPaths, path) {
			c.Next()
			return
		}

		key := middleware.LicenseKey(c)
		if key == "" {
			_ = c.Error(errutil.AuthMissing("license key required"))
			c.Abort()
			return
		}

		lic, err := validator.Validate(c.Request.Context(), key)
		if err != nil {
			var base errutil.BaseError
			if errors.As(err, &base) && base.Code == errutil.StatusUpstreamUnavailable && !policy.RequireLicenseServer {
				// fail-open: the store is down and policy tolerates it;
				// nothing to meter against
				zap.L().Warn("license store unavailable, failing open", zap.String("path", path))
				c.Next()
				return
			}
			_ = c.Error(err)
			c.Abort()
			return
		}

		if policy.EnforcePayment && lic.HoursRemaining() <= 0 {
			_ = c.Error(errutil.InsufficientHours("no hours remaining on license"))
			c.Abort()
			return
		}

		start := time.Now()
		c.Next()

		if !handlerSucceeded(c) {
			return
		}

		hours := BillableHours(time.Since(start), policy.MinBillingUnit)

		// the response is already on the wire; detach from request cancellation
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 5*time.Second)
		defer cancel()

		balance, ok, err := meter.Deduct(ctx, key, hours, path)
		if err != nil {
			zap.L().Error("usage deduction failed",
				zap.Error(err),
				zap.String("license_key", key),
				zap.String("path", path),
			)
			return
		}
		if !ok {
			zap.L().Warn("usage deduction rejected, balance exhausted during request",
				zap.String("license_key", key),
				zap.String("path", path),
			)
			return
		}

		zap.L().Debug("usage deducted",
			zap.String("license_key", key),
			zap.Float64("hours", hours),
			zap.Float64("balance", balance),
		)
	}
}

// isPublic matches allowlist entries exactly; an entry ending in "/*" opts
// into prefix matching. A bare prefix would silently expose every subpath.
func isPublic(paths []string, path string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, "/*") {
			if strings.HasPrefix(path, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

func handlerSucceeded(c *gin.Context) bool {
	if c.IsAborted() || len(c.Errors) > 0 {
		return false
	}
	// client went away: skip the deduction, under-charging is the cheaper
	// failure mode for a paying customer
	if c.Request.Context().Err() != nil {
		return false
	}
	return c.Writer.Status() < 500
}

// BillableHours converts measured wall-clock handler duration into hours,
// rounded up to the minimum billing unit.
func BillableHours(elapsed time.Duration, unit float64) float64 {
	if unit <= 0 {
		unit = 0.1
	}

	units := math.Ceil(elapsed.Hours() / unit)
	if units < 1 {
		units = 1
	}

	return units * unit
}
