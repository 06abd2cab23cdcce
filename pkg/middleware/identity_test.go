package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func testContext(mutate func(*http.Request)) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/process", nil)
	if mutate != nil {
		mutate(c.Request)
	}
	return c
}

func TestLicenseKeyHeaderWinsOverQuery(t *testing.T) {
	c := testContext(func(req *http.Request) {
		req.Header.Set(LicenseKeyHeader, "from-header")
		req.URL.RawQuery = LicenseKeyQuery + "=from-query"
	})

	require.Equal(t, "from-header", LicenseKey(c))
}

func TestLicenseKeyFromQuery(t *testing.T) {
	c := testContext(func(req *http.Request) {
		req.URL.RawQuery = LicenseKeyQuery + "=from-query"
	})

	require.Equal(t, "from-query", LicenseKey(c))
}

func TestIdentityFallsBackToClientIP(t *testing.T) {
	c := testContext(func(req *http.Request) {
		req.RemoteAddr = "203.0.113.7:52100"
	})

	require.Empty(t, LicenseKey(c))
	require.Equal(t, "203.0.113.7", Identity(c))
}
