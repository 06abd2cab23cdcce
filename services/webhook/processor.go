package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"licensegate/pkg/config"
	"licensegate/pkg/errutil"
	"licensegate/services/metering"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// SignatureHeader carries the provider's HMAC-SHA256 signature of the raw
// request body, hex encoded, optionally prefixed with "sha256=".
const SignatureHeader = "X-Webhook-Signature"

// Event is the provider's "payment completed" notification. The event id is
// the idempotency key: redeliveries of the same id are applied at most once.
type Event struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	LicenseKey string  `json:"license_key"`
	Hours      float64 `json:"hours"`
	Amount     float64 `json:"amount"`
}

// Processor is a pure receiver: it never retries. Correctness under
// redelivery comes entirely from the idempotency constraint in the meter.
type Processor struct {
	secret string
	meter  *metering.Service
}

type ProcessorParams struct {
	fx.In
	Policy config.Policy
	Meter  *metering.Service
}

func NewProcessor(p ProcessorParams) *Processor {
	return &Processor{
		secret: p.Policy.WebhookSecret,
		meter:  p.Meter,
	}
}

// VerifySignature compares the HMAC of the raw body against the presented
// signature in constant time.
func (p *Processor) VerifySignature(body []byte, signature string) bool {
	if p.secret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	presented := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))

	return hmac.Equal([]byte(expected), []byte(presented))
}

// Handle backs POST /webhook. Status mapping: bad signature 400, duplicate
// 200 no-op (the provider must see success so it stops retrying), unknown
// license 404, store write failure 500 so the provider's retry-with-backoff
// is the recovery path.
func (p *Processor) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		_ = c.Error(errutil.BadRequest("failed to read request body", errutil.WithErr(err)))
		return
	}

	if !p.VerifySignature(body, c.GetHeader(SignatureHeader)) {
		_ = c.Error(errutil.BadSignature("webhook signature mismatch"))
		return
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		_ = c.Error(errutil.BadRequest("malformed webhook payload", errutil.WithErr(err)))
		return
	}
	if event.ID == "" || event.LicenseKey == "" {
		_ = c.Error(errutil.ValidationFailed("webhook payload missing id or license_key"))
		return
	}

	balance, applied, err := p.meter.Credit(c.Request.Context(), event.LicenseKey, event.Hours, event.Amount, event.ID, body)
	if err != nil {
		var base errutil.BaseError
		if errors.As(err, &base) && base.Code == errutil.StatusNotFound {
			// surfaced for manual reconciliation, no internal retry
			zap.L().Warn("webhook for unknown license",
				zap.String("license_key", event.LicenseKey),
				zap.String("event_id", event.ID),
			)
		}
		_ = c.Error(err)
		return
	}

	if !applied {
		c.JSON(http.StatusOK, gin.H{
			"applied":         false,
			"hours_remaining": balance,
		})
		return
	}

	zap.L().Info("payment credited",
		zap.String("license_key", event.LicenseKey),
		zap.String("event_id", event.ID),
		zap.Float64("hours", event.Hours),
	)

	c.JSON(http.StatusOK, gin.H{
		"applied":         true,
		"hours_remaining": balance,
	})
}
