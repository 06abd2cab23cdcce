package metering

import (
	"net/http"

	"licensegate/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type creditHoursRequest struct {
	Amount         float64 `json:"amount" binding:"required"`
	IdempotencyKey string  `json:"idempotency_key" binding:"required"`
}

type balanceResponse struct {
	Key            string  `json:"key"`
	HoursRemaining float64 `json:"hours_remaining"`
	Applied        bool    `json:"applied"`
}

// CreditHoursHandler backs POST /licenses/:key/hours on the admin surface,
// for manual reconciliation when a payment arrives outside the webhook. It
// shares the meter's Credit path, so it carries the same idempotency guarantee.
func (s *Service) CreditHoursHandler(c *gin.Context) {
	var req creditHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	key := c.Param("key")
	balance, applied, err := s.Credit(c.Request.Context(), key, req.Amount, 0, req.IdempotencyKey, nil)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, balanceResponse{
		Key:            key,
		HoursRemaining: balance,
		Applied:        applied,
	})
}
