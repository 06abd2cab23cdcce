package license

import (
	"net/http"
	"time"

	"licensegate/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// LicenseResponse is the wire shape for license reads. hours_remaining is
// derived on the way out, never stored.
type LicenseResponse struct {
	Key            string    `json:"key"`
	Status         string    `json:"status"`
	Type           string    `json:"type"`
	HoursRemaining float64   `json:"hours_remaining"`
	PurchasedHours float64   `json:"purchased_hours"`
	UsedHours      float64   `json:"used_hours"`
	MaxInstalls    int       `json:"max_installs"`
	InstallCount   int       `json:"install_count"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func toResponse(lic *License) LicenseResponse {
	return LicenseResponse{
		Key:            lic.Key,
		Status:         string(lic.Status),
		Type:           string(lic.Type),
		HoursRemaining: lic.HoursRemaining(),
		PurchasedHours: lic.PurchasedHours,
		UsedHours:      lic.UsedHours,
		MaxInstalls:    lic.MaxInstalls,
		InstallCount:   lic.InstallCount,
		CreatedAt:      lic.CreatedAt,
		ExpiresAt:      lic.ExpiresAt,
	}
}

func (s *Service) CreateLicense(c *gin.Context) {
	var req CreateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	lic, err := s.Create(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, toResponse(lic))
}

func (s *Service) GetLicense(c *gin.Context) {
	lic, err := s.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, toResponse(lic))
}

func (s *Service) RevokeLicense(c *gin.Context) {
	lic, err := s.Revoke(c.Request.Context(), c.Param("key"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, toResponse(lic))
}

type registerInstallRequest struct {
	Fingerprint string `json:"fingerprint" binding:"required"`
}

func (s *Service) RegisterInstallHandler(c *gin.Context) {
	var req registerInstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	lic, err := s.RegisterInstall(c.Request.Context(), c.Param("key"), req.Fingerprint)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, toResponse(lic))
}
