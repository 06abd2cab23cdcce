package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"licensegate/pkg/config"
	"licensegate/pkg/errutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testPolicy() config.Policy {
	return config.Policy{
		EnforcePayment:       true,
		RequireLicenseServer: true,
		RatePerMinute:        60,
		MinBillingUnit:       0.1,
		ValidatorTimeout:     time.Second,
		WebhookSecret:        "webhook-secret",
		LicenseKeySecret:     "key-secret",
	}
}

func seedLicense(t *testing.T, db *gorm.DB, mutate func(*License)) *License {
	t.Helper()

	now := time.Now().UTC()
	lic := &License{
		ID:             now.Format("20060102150405.000000000"),
		Key:            GenerateKey("key-secret", "owner@example.com", "Acme", now),
		Name:           "Owner",
		Email:          "owner@example.com",
		Company:        "Acme",
		Type:           TypeStandard,
		Status:         StatusActive,
		PurchasedHours: 10,
		MaxInstalls:    TypeStandard.MaxInstalls(),
		ExpiresAt:      now.AddDate(0, 0, 30),
	}
	if mutate != nil {
		mutate(lic)
	}

	require.NoError(t, db.Create(lic).Error)
	return lic
}

func requireCode(t *testing.T, err error, code errutil.CoreStatus) {
	t.Helper()

	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, code, base.Code)
}

func TestValidateMalformedKey(t *testing.T) {
	db := newLicenseTestDB(t)
	v := NewValidator(ValidatorParams{DB: db, Policy: testPolicy()})

	_, err := v.Validate(context.Background(), "not-a-key")
	requireCode(t, err, errutil.StatusAuthInvalid)
}

func TestValidateUnknownKey(t *testing.T) {
	db := newLicenseTestDB(t)
	v := NewValidator(ValidatorParams{DB: db, Policy: testPolicy()})

	_, err := v.Validate(context.Background(), "LG-00000000-00000000-00000000")
	requireCode(t, err, errutil.StatusAuthInvalid)
}

func TestValidateActiveLicense(t *testing.T) {
	db := newLicenseTestDB(t)
	v := NewValidator(ValidatorParams{DB: db, Policy: testPolicy()})
	lic := seedLicense(t, db, nil)

	got, err := v.Validate(context.Background(), lic.Key)
	require.NoError(t, err)
	require.Equal(t, lic.ID, got.ID)
	require.Equal(t, float64(10), got.HoursRemaining())
}

func TestValidateRevokedLicense(t *testing.T) {
	db := newLicenseTestDB(t)
	v := NewValidator(ValidatorParams{DB: db, Policy: testPolicy()})
	lic := seedLicense(t, db, func(l *License) {
		l.Status = StatusRevoked
	})

	_, err := v.Validate(context.Background(), lic.Key)
	requireCode(t, err, errutil.StatusLicenseRevoked)
}

func TestValidateExpiredStatus(t *testing.T) {
	db := newLicenseTestDB(t)
	v := NewValidator(ValidatorParams{DB: db, Policy: testPolicy()})
	lic := seedLicense(t, db, func(l *License) {
		l.Status = StatusExpired
	})

	_, err := v.Validate(context.Background(), lic.Key)
	requireCode(t, err, errutil.StatusLicenseExpired)
}

func TestValidatePastExpiresAt(t *testing.T) {
	// status is still active but the timestamp is past due: validation must
	// reject without waiting for the expiry sweep
	db := newLicenseTestDB(t)
	v := NewValidator(ValidatorParams{DB: db, Policy: testPolicy()})
	lic := seedLicense(t, db, func(l *License) {
		l.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	})

	_, err := v.Validate(context.Background(), lic.Key)
	requireCode(t, err, errutil.StatusLicenseExpired)
}

func TestValidateRevokedWinsOverExpired(t *testing.T) {
	db := newLicenseTestDB(t)
	v := NewValidator(ValidatorParams{DB: db, Policy: testPolicy()})
	lic := seedLicense(t, db, func(l *License) {
		l.Status = StatusRevoked
		l.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	})

	_, err := v.Validate(context.Background(), lic.Key)
	requireCode(t, err, errutil.StatusLicenseRevoked)
}

func TestValidateStoreUnreachable(t *testing.T) {
	db := newLicenseTestDB(t)
	v := NewValidator(ValidatorParams{DB: db, Policy: testPolicy()})

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, verr := v.Validate(context.Background(), "LG-00000000-00000000-00000000")
	requireCode(t, verr, errutil.StatusUpstreamUnavailable)
}
