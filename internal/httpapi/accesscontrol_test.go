package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"licensegate/pkg/config"
	"licensegate/pkg/middleware"
	"licensegate/services/license"
	"licensegate/services/metering"
	"licensegate/services/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
	zap.ReplaceGlobals(zap.NewNop())
}

const testKey = "LG-0123ABCD-4567EF89-DEADBEEF"

func gatePolicy() config.Policy {
	return config.Policy{
		EnforcePayment:       true,
		RequireLicenseServer: true,
		PublicPaths:          []string{"/healthz"},
		RatePerMinute:        60,
		MinBillingUnit:       0.1,
		ValidatorTimeout:     time.Second,
	}
}

func newGatedRouter(t *testing.T, policy config.Policy) (*gin.Engine, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &license.License{}, &license.PaymentEvent{}, &license.UsageRecord{})
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	validator := license.NewValidator(license.ValidatorParams{DB: db, Policy: policy})
	meter := metering.NewService(metering.ServiceParams{DB: db, Node: node})

	r := gin.New()
	r.Use(middleware.Error(), AccessControl(policy, validator, meter))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/v1/process", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	})
	r.GET("/v1/broken", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upstream exploded"})
	})

	return r, db
}

func seedLicense(t *testing.T, db *gorm.DB, mutate func(*license.License)) {
	t.Helper()

	lic := &license.License{
		ID:             "lic-1",
		Key:            testKey,
		Type:           license.TypeStandard,
		Status:         license.StatusActive,
		PurchasedHours: 10,
		MaxInstalls:    2,
		ExpiresAt:      time.Now().UTC().AddDate(0, 0, 30),
	}
	if mutate != nil {
		mutate(lic)
	}
	require.NoError(t, db.Create(lic).Error)
}

func get(r *gin.Engine, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set(middleware.LicenseKeyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["code"].(string)
	return code
}

func usedHours(t *testing.T, db *gorm.DB) float64 {
	t.Helper()

	var lic license.License
	require.NoError(t, db.Where("license_key = ?", testKey).First(&lic).Error)
	return lic.UsedHours
}

func TestPublicPathBypassesGate(t *testing.T) {
	r, _ := newGatedRouter(t, gatePolicy())

	w := get(r, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPublicPathMatchesExactly(t *testing.T) {
	// an allowlisted path must not expose its subpaths
	policy := gatePolicy()
	policy.PublicPaths = []string{"/v1"}

	r, _ := newGatedRouter(t, policy)

	w := get(r, "/v1/process", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPublicPathWildcardPrefix(t *testing.T) {
	policy := gatePolicy()
	policy.PublicPaths = []string{"/v1/*"}

	r, _ := newGatedRouter(t, policy)

	w := get(r, "/v1/process", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMissingKey(t *testing.T) {
	r, _ := newGatedRouter(t, gatePolicy())

	w := get(r, "/v1/process", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "AUTH_MISSING", errCode(t, w))
}

func TestMalformedKey(t *testing.T) {
	r, _ := newGatedRouter(t, gatePolicy())

	w := get(r, "/v1/process", "bogus")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "AUTH_INVALID", errCode(t, w))
}

func TestUnknownKey(t *testing.T) {
	r, _ := newGatedRouter(t, gatePolicy())

	w := get(r, "/v1/process", "LG-00000000-00000000-00000000")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "AUTH_INVALID", errCode(t, w))
}

func TestExpiredLicense(t *testing.T) {
	r, db := newGatedRouter(t, gatePolicy())
	seedLicense(t, db, func(l *license.License) {
		l.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	})

	w := get(r, "/v1/process", testKey)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "LICENSE_EXPIRED", errCode(t, w))
}

func TestRevokedLicense(t *testing.T) {
	r, db := newGatedRouter(t, gatePolicy())
	seedLicense(t, db, func(l *license.License) {
		l.Status = license.StatusRevoked
	})

	w := get(r, "/v1/process", testKey)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "LICENSE_REVOKED", errCode(t, w))
}

func TestExhaustedBalance(t *testing.T) {
	r, db := newGatedRouter(t, gatePolicy())
	seedLicense(t, db, func(l *license.License) {
		l.PurchasedHours = 1
		l.UsedHours = 1
	})

	w := get(r, "/v1/process", testKey)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "INSUFFICIENT_HOURS", errCode(t, w))
}

func TestEnforcementDisabledAllowsExhaustedBalance(t *testing.T) {
	policy := gatePolicy()
	policy.EnforcePayment = false

	r, db := newGatedRouter(t, policy)
	seedLicense(t, db, func(l *license.License) {
		l.PurchasedHours = 1
		l.UsedHours = 1
	})

	w := get(r, "/v1/process", testKey)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSuccessDeductsMinimumUnit(t *testing.T) {
	r, db := newGatedRouter(t, gatePolicy())
	seedLicense(t, db, nil)

	w := get(r, "/v1/process", testKey)
	require.Equal(t, http.StatusOK, w.Code)
	require.InDelta(t, 0.1, usedHours(t, db), 1e-9, "a fast request is billed one minimum unit")
}

func TestFailedHandlerSkipsDeduction(t *testing.T) {
	r, db := newGatedRouter(t, gatePolicy())
	seedLicense(t, db, nil)

	w := get(r, "/v1/broken", testKey)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.InDelta(t, 0.0, usedHours(t, db), 1e-9, "failed requests are not billed")
}

func TestStoreDownFailsClosed(t *testing.T) {
	r, db := newGatedRouter(t, gatePolicy())

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := get(r, "/v1/process", testKey)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "UPSTREAM_UNAVAILABLE", errCode(t, w))
}

func TestStoreDownFailsOpenWhenTolerated(t *testing.T) {
	policy := gatePolicy()
	policy.RequireLicenseServer = false

	r, db := newGatedRouter(t, policy)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := get(r, "/v1/process", testKey)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestBillableHours(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		unit    float64
		want    float64
	}{
		{"instant request bills one unit", 0, 0.1, 0.1},
		{"sub-unit request rounds up", 30 * time.Second, 0.1, 0.1},
		{"seven minutes rounds up to two units", 7 * time.Minute, 0.1, 0.2},
		{"two hours with half-hour unit", 2 * time.Hour, 0.5, 2.0},
		{"zero unit falls back to default", 30 * time.Second, 0, 0.1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.want, BillableHours(tc.elapsed, tc.unit), 1e-9)
		})
	}
}
