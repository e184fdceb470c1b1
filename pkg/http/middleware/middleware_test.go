package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "CoinPull/pkg/logger"
)

func TestMetricsUseRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware(applogger.Nop(), 0))
	e.GET("/api/assets/:symbol", func(c echo.Context) error { return c.String(http.StatusOK, c.Param("symbol")) })

	for _, s := range []string{"BTC", "ETH"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/assets/"+s, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/assets/:symbol", http.MethodGet, "200")))
}

func TestRecoverReturns500(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(Recover(applogger.NewWriter(&buf, zerolog.ErrorLevel)))
	e.GET("/boom", func(c echo.Context) error { panic("kaput") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "kaput")
}

func TestCORSPreflight(t *testing.T) {
	e := echo.New()
	e.Use(CORS(CORSConfig{AllowOrigins: []string{"*"}, AllowMethods: []string{http.MethodGet}}))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.MethodGet, rec.Header().Get("Access-Control-Allow-Methods"))
}
