package license

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type LicenseType string

const (
	TypeTrial        LicenseType = "trial"
	TypeStandard     LicenseType = "standard"
	TypeProfessional LicenseType = "professional"
	TypeEnterprise   LicenseType = "enterprise"
)

// MaxInstalls returns the install ceiling for the license type. Hour
// semantics are identical across types.
func (t LicenseType) MaxInstalls() int {
	switch t {
	case TypeTrial:
		return 1
	case TypeStandard:
		return 2
	case TypeProfessional:
		return 5
	case TypeEnterprise:
		return 20
	default:
		return 1
	}
}

func (t LicenseType) Valid() bool {
	switch t {
	case TypeTrial, TypeStandard, TypeProfessional, TypeEnterprise:
		return true
	}
	return false
}

type LicenseStatus string

const (
	StatusActive  LicenseStatus = "active"
	StatusExpired LicenseStatus = "expired"
	StatusRevoked LicenseStatus = "revoked"
)

// License is the authoritative record gating access to the processing API.
// Rows are never deleted; status transitions to expired or revoked keep the
// record for audit.
type License struct {
	ID             string         `gorm:"column:id;primaryKey"`
	Key            string         `gorm:"column:license_key;uniqueIndex;not null"`
	Name           string         `gorm:"column:name"`
	Email          string         `gorm:"column:email;index"`
	Company        string         `gorm:"column:company"`
	Type           LicenseType    `gorm:"column:type;not null"`
	Status         LicenseStatus  `gorm:"column:status;default:'active';not null"`
	PurchasedHours float64        `gorm:"column:purchased_hours;default:0;not null"`
	UsedHours      float64        `gorm:"column:used_hours;default:0;not null"`
	MaxInstalls    int            `gorm:"column:max_installs"`
	InstallCount   int            `gorm:"column:install_count;default:0"`
	Installs       pq.StringArray `gorm:"column:installs;type:text[]"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	ExpiresAt      time.Time      `gorm:"column:expires_at"`
	RevokedAt      *time.Time     `gorm:"column:revoked_at"`
}

// HoursRemaining is derived, never stored: purchased_hours - used_hours.
func (l *License) HoursRemaining() float64 {
	return l.PurchasedHours - l.UsedHours
}

func (l *License) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// PaymentEvent records one applied payment notification. The unique index on
// idempotency_key is what makes webhook redelivery an at-most-once credit.
type PaymentEvent struct {
	ID             string         `gorm:"column:id;primaryKey"`
	IdempotencyKey string         `gorm:"column:idempotency_key;uniqueIndex;not null"`
	LicenseKey     string         `gorm:"column:license_key;index;not null"`
	HoursCredited  float64        `gorm:"column:hours_credited;not null"`
	Amount         float64        `gorm:"column:amount"`
	Payload        datatypes.JSON `gorm:"column:payload"`
	ProcessedAt    time.Time      `gorm:"column:processed_at;autoCreateTime"`
}

// UsageRecord is the audit trail of metered deductions.
type UsageRecord struct {
	ID            string    `gorm:"column:id;primaryKey"`
	LicenseKey    string    `gorm:"column:license_key;index;not null"`
	Timestamp     time.Time `gorm:"column:timestamp;autoCreateTime"`
	Endpoint      string    `gorm:"column:endpoint"`
	HoursConsumed float64   `gorm:"column:hours_consumed;not null"`
}
