package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinPull/internal/domain/models"
)

func TestSummarize(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	tbl := tableOf(t,
		listing("ETH", 1, t0), listing("BTC", 1, t0),
		listing("ETH", 1, t1), listing("BTC", 1, t1), listing("SOL", 1, t1),
	)

	s := Summarize(tbl, "symbol", 2)
	assert.Equal(t, 5, s.TotalRows)
	assert.Equal(t, 3, s.UniqueAssets)
	require.NotNil(t, s.PeriodStart)
	require.NotNil(t, s.PeriodEnd)
	assert.True(t, t0.Equal(*s.PeriodStart))
	assert.True(t, t1.Equal(*s.PeriodEnd))
	assert.Equal(t, []models.AssetCount{{Asset: "ETH", Rows: 2}, {Asset: "BTC", Rows: 2}}, s.TopAssets)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(models.Table{}, "", 0)
	assert.Zero(t, s.TotalRows)
	assert.Zero(t, s.UniqueAssets)
	assert.Nil(t, s.PeriodStart)
	assert.Empty(t, s.TopAssets)
}
