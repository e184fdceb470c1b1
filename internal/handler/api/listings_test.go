package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/repository"
	"CoinPull/internal/services/analytics"
	"CoinPull/internal/services/dataset"
	"CoinPull/internal/services/normalize"
	"CoinPull/internal/usecase"
	"CoinPull/pkg/cache"
	xlogger "CoinPull/pkg/logger"
	"CoinPull/pkg/metrics"
)

const change24h = "quote.USD.percent_change_24h"

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type staticCheck struct {
	name string
	err  error
}

func (s staticCheck) Name() string                 { return s.name }
func (s staticCheck) Health(context.Context) error { return s.err }

func newTestEcho(t *testing.T, batches int, checks ...HealthChecker) (*echo.Echo, *dataset.Accumulator) {
	t.Helper()
	acc := dataset.NewAccumulator()
	n := normalize.New()
	entries := []json.RawMessage{
		json.RawMessage(`{"symbol":"BTC","quote":{"USD":{"price":50000,"percent_change_24h":5.0}}}`),
		json.RawMessage(`{"symbol":"ETH","quote":{"USD":{"price":3000,"percent_change_24h":-2.0}}}`),
	}
	for i := 0; i < batches; i++ {
		rows, _ := n.Normalize(&models.Snapshot{Entries: entries}, t0.Add(time.Duration(i)*time.Hour))
		_, err := acc.Append(rows)
		require.NoError(t, err)
	}

	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	an := analytics.NewTrendAnalyzer("symbol", "USD", analytics.WithColumns(change24h))
	uc := usecase.NewReportUseCase(acc, an, "symbol", mem, time.Minute, metrics.Nop{}, xlogger.Nop())

	e := echo.New()
	NewListingsHandler(xlogger.Nop(), uc, "symbol", checks...).RegisterRoutes(e)
	return e, acc
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, into))
}

func TestTrendsEndpoint(t *testing.T) {
	e, _ := newTestEcho(t, 3)

	rec := get(e, "/api/trends")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	var report models.TrendReport
	decode(t, rec, &report)
	btc, ok := report.Group("BTC")
	require.True(t, ok)
	st, _ := btc.Column(change24h)
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, models.Some(5), st.Mean)

	rec = get(e, "/api/trends")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
}

func TestTrendsUngrouped(t *testing.T) {
	e, _ := newTestEcho(t, 3)

	rec := get(e, "/api/trends?group_by=&columns="+change24h)
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.TrendReport
	decode(t, rec, &report)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, models.GroupAll, report.Groups[0].Key)
	st, _ := report.Groups[0].Column(change24h)
	assert.Equal(t, 6, st.Count)
	assert.InDelta(t, 1.5, st.Mean.Value, 1e-12)
}

func TestTrendsEmptyTable(t *testing.T) {
	e, _ := newTestEcho(t, 0)

	rec := get(e, "/api/trends")
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.TrendReport
	decode(t, rec, &report)
	require.Len(t, report.Groups, 1)
	st, _ := report.Groups[0].Column(change24h)
	assert.False(t, st.Mean.Valid)
	assert.Equal(t, models.StatusNoData, st.Status)
}

func TestSummaryEndpoint(t *testing.T) {
	e, _ := newTestEcho(t, 2)

	rec := get(e, "/api/summary?top=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var s models.Summary
	decode(t, rec, &s)
	assert.Equal(t, 4, s.TotalRows)
	assert.Equal(t, 2, s.UniqueAssets)
	assert.Len(t, s.TopAssets, 1)

	rec = get(e, "/api/summary?top=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTableEndpointFiltersAndPages(t *testing.T) {
	e, _ := newTestEcho(t, 3)

	rec := get(e, "/api/table?asset=btc&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Rows  []map[string]interface{} `json:"rows"`
		Total int64                    `json:"total"`
	}
	decode(t, rec, &page)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "BTC", page.Rows[0]["symbol"])

	rec = get(e, "/api/table?since="+t0.Add(time.Hour).Format(time.RFC3339)+"&offset=3")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	assert.Equal(t, int64(4), page.Total)
	assert.Len(t, page.Rows, 1)

	rec = get(e, "/api/table?until=tomorrow")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"until"`)
	assert.Contains(t, rec.Body.String(), "ERR_TIMESTAMP")
}

func TestTrendsRejectsBadColumns(t *testing.T) {
	e, _ := newTestEcho(t, 1)

	rec := get(e, "/api/trends?columns=quote.USD.price,drop%20table")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_COLUMNS")
}

func TestExportCSVRoundTrips(t *testing.T) {
	e, acc := newTestEcho(t, 2)

	rec := get(e, "/api/export.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")

	tbl, err := repository.ReadCSV(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.True(t, acc.Current().Equal(tbl))
}

func TestHealthEndpoint(t *testing.T) {
	e, _ := newTestEcho(t, 1, staticCheck{name: "postgres"})
	assert.Equal(t, http.StatusOK, get(e, "/healthz").Code)

	e, _ = newTestEcho(t, 1, staticCheck{name: "postgres"}, staticCheck{name: "redis", err: errors.New("refused")})
	rec := get(e, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "refused")
}
