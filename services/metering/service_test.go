package metering

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"licensegate/pkg/errutil"
	"licensegate/services/license"
	"licensegate/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestMeter(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &license.License{}, &license.PaymentEvent{}, &license.UsageRecord{})
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node}), db
}

func seedLicense(t *testing.T, db *gorm.DB, key string, hours float64) {
	t.Helper()

	require.NoError(t, db.Create(&license.License{
		ID:             "lic-" + key,
		Key:            key,
		Type:           license.TypeStandard,
		Status:         license.StatusActive,
		PurchasedHours: hours,
		MaxInstalls:    2,
		ExpiresAt:      time.Now().UTC().AddDate(0, 0, 30),
	}).Error)
}

func requireCode(t *testing.T, err error, code errutil.CoreStatus) {
	t.Helper()

	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, code, base.Code)
}

const testKey = "LG-0123ABCD-4567EF89-DEADBEEF"

func TestCheckBalance(t *testing.T) {
	meter, db := newTestMeter(t)
	seedLicense(t, db, testKey, 4.5)

	balance, err := meter.CheckBalance(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, 4.5, balance)

	_, err = meter.CheckBalance(context.Background(), "LG-00000000-00000000-00000000")
	requireCode(t, err, errutil.StatusNotFound)
}

func TestDeduct(t *testing.T) {
	meter, db := newTestMeter(t)
	seedLicense(t, db, testKey, 10)

	balance, ok, err := meter.Deduct(context.Background(), testKey, 0.5, "/v1/process")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 9.5, balance)

	var count int64
	require.NoError(t, db.Model(&license.UsageRecord{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestDeductInsufficientBalance(t *testing.T) {
	meter, db := newTestMeter(t)
	seedLicense(t, db, testKey, 0.3)

	balance, ok, err := meter.Deduct(context.Background(), testKey, 0.5, "/v1/process")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0.3, balance, "a rejected deduction must not touch the balance")

	var count int64
	require.NoError(t, db.Model(&license.UsageRecord{}).Count(&count).Error)
	require.Equal(t, int64(0), count, "rejected deductions leave no usage record")
}

func TestDeductUnknownLicense(t *testing.T) {
	meter, _ := newTestMeter(t)

	_, _, err := meter.Deduct(context.Background(), testKey, 0.5, "/v1/process")
	requireCode(t, err, errutil.StatusNotFound)
}

func TestDeductRejectsNonPositive(t *testing.T) {
	meter, db := newTestMeter(t)
	seedLicense(t, db, testKey, 10)

	_, _, err := meter.Deduct(context.Background(), testKey, 0, "/v1/process")
	requireCode(t, err, errutil.StatusBadRequest)

	_, _, err = meter.Deduct(context.Background(), testKey, -1, "/v1/process")
	requireCode(t, err, errutil.StatusBadRequest)
}

func TestDeductConcurrentSingleWinner(t *testing.T) {
	// two racing deductions against one remaining hour: the conditional
	// update guarantees exactly one succeeds, the balance never goes negative
	meter, db := newTestMeter(t)
	seedLicense(t, db, testKey, 1.0)

	results := make([]bool, 2)
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, ok, err := meter.Deduct(context.Background(), testKey, 1.0, "/v1/process")
			results[i] = ok
			return err
		})
	}
	require.NoError(t, g.Wait())

	require.NotEqual(t, results[0], results[1], "exactly one deduction must win")

	var lic license.License
	require.NoError(t, db.Where("license_key = ?", testKey).First(&lic).Error)
	require.Equal(t, 1.0, lic.UsedHours)
	require.Equal(t, 0.0, lic.HoursRemaining())
}

func TestCredit(t *testing.T) {
	meter, db := newTestMeter(t)
	seedLicense(t, db, testKey, 2)

	balance, applied, err := meter.Credit(context.Background(), testKey, 10, 49.99, "evt_001", []byte(`{"id":"evt_001"}`))
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, float64(12), balance)

	var count int64
	require.NoError(t, db.Model(&license.PaymentEvent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCreditReplayIsNoOp(t *testing.T) {
	meter, db := newTestMeter(t)
	seedLicense(t, db, testKey, 0)

	_, applied, err := meter.Credit(context.Background(), testKey, 10, 49.99, "evt_001", nil)
	require.NoError(t, err)
	require.True(t, applied)

	// redelivery of the same event id credits nothing
	balance, applied, err := meter.Credit(context.Background(), testKey, 10, 49.99, "evt_001", nil)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, float64(10), balance)

	var count int64
	require.NoError(t, db.Model(&license.PaymentEvent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCreditUnknownLicense(t *testing.T) {
	meter, _ := newTestMeter(t)

	_, _, err := meter.Credit(context.Background(), testKey, 10, 49.99, "evt_001", nil)
	requireCode(t, err, errutil.StatusNotFound)
}

func TestCreditRequiresIdempotencyKey(t *testing.T) {
	meter, db := newTestMeter(t)
	seedLicense(t, db, testKey, 0)

	_, _, err := meter.Credit(context.Background(), testKey, 10, 49.99, "", nil)
	requireCode(t, err, errutil.StatusBadRequest)
}
