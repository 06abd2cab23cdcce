package httpapi

import (
	"licensegate/pkg/config"
	"licensegate/pkg/health"
	"licensegate/pkg/middleware"
	"licensegate/pkg/ratelimit"
	"licensegate/services/license"
	"licensegate/services/metering"
	"licensegate/services/webhook"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewRouter),
)

type RouterParams struct {
	fx.In
	Config    *config.Config
	Policy    config.Policy
	Limiter   ratelimit.Limiter
	Licenses  *license.Service
	Validator *license.Validator
	Meter     *metering.Service
	Webhook   *webhook.Processor
	Expiry    *license.ExpiryTrigger
	Health    health.HealthService
}

// NewRouter assembles the HTTP surface in three tiers: open routes
// (health, registration, the signed provider webhook), an admin tier behind
// the shared-secret header, and the licensed tier behind the access-control
// gate. The rate limiter runs before everything so unauthenticated abuse
// cannot exhaust the validator. Downstream processing handlers mount onto the
// gated group and inherit validation and metering.
func NewRouter(p RouterParams) *gin.Engine {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Error())
	r.Use(middleware.RateLimit(p.Limiter, p.Policy))

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)

	// registration needs no key yet; the webhook authenticates by signature
	r.POST("/licenses", p.Licenses.CreateLicense)
	r.POST("/webhook", p.Webhook.Handle)

	// management surface: balance credits and lifecycle mutations must never
	// be reachable with just a license key
	admin := r.Group("", middleware.Admin(p.Policy))
	admin.POST("/licenses/:key/revoke", p.Licenses.RevokeLicense)
	admin.POST("/licenses/:key/hours", p.Meter.CreditHoursHandler)
	admin.POST("/internal/tasks/expiry", p.Expiry.Run)

	gated := r.Group("", AccessControl(p.Policy, p.Validator, p.Meter))
	gated.GET("/licenses/:key", p.Licenses.GetLicense)
	gated.POST("/licenses/:key/installs", p.Licenses.RegisterInstallHandler)

	return r
}
