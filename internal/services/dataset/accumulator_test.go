package dataset

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinPull/internal/domain/models"
)

func row(symbol string, change float64, at time.Time) models.Row {
	return models.Row{Fields: []models.Field{
		{Name: "symbol", Value: models.String(symbol)},
		{Name: "quote.USD.percent_change_24h", Value: models.Number(change)},
		{Name: models.CollectionTimestampField, Value: models.Timestamp(at)},
	}}
}

func batch(at time.Time) []models.Row {
	return []models.Row{row("BTC", 5, at), row("ETH", -2, at)}
}

func TestAppendPreservesCountAndOrder(t *testing.T) {
	acc := NewAccumulator()
	assert.True(t, acc.IsEmpty())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	const n = 4
	for i := 0; i < n; i++ {
		added, err := acc.Append(batch(base.Add(time.Duration(i) * time.Minute)))
		require.NoError(t, err)
		assert.Equal(t, 2, added)
	}

	table := acc.Current()
	require.Equal(t, n*2, table.Len())
	for i, r := range table.Rows {
		ts, _ := r.CollectedAt()
		assert.True(t, base.Add(time.Duration(i/2)*time.Minute).Equal(ts), "row %d", i)
		sym, _ := r.Text("symbol")
		if i%2 == 0 {
			assert.Equal(t, "BTC", sym)
		} else {
			assert.Equal(t, "ETH", sym)
		}
	}
	assert.Equal(t, []string{"symbol", "quote.USD.percent_change_24h", models.CollectionTimestampField}, table.Schema.Names())
}

func TestAppendSameBatchTwiceKeepsBoth(t *testing.T) {
	acc := NewAccumulator()
	b := batch(time.Now())
	_, err := acc.Append(b)
	require.NoError(t, err)
	_, err = acc.Append(b)
	require.NoError(t, err)
	assert.Equal(t, 4, acc.Len())
}

func TestAppendIsAtomicOnKindConflict(t *testing.T) {
	acc := NewAccumulator()
	at := time.Now()
	_, err := acc.Append(batch(at))
	require.NoError(t, err)
	before := acc.Current()

	bad := []models.Row{
		row("SOL", 1, at),
		{Fields: []models.Field{
			{Name: "symbol", Value: models.String("XRP")},
			{Name: "quote.USD.percent_change_24h", Value: models.String("n/a")},
		}},
	}
	added, err := acc.Append(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSchemaMismatch))
	assert.Zero(t, added)
	assert.True(t, before.Equal(acc.Current()))
}

func TestAppendExtendsSchemaAtTheEnd(t *testing.T) {
	acc := NewAccumulator()
	at := time.Now()
	_, err := acc.Append(batch(at))
	require.NoError(t, err)

	extra := row("SOL", 3, at)
	extra.Fields = append(extra.Fields, models.Field{Name: "cmc_rank", Value: models.Number(5)})
	_, err = acc.Append([]models.Row{extra})
	require.NoError(t, err)

	names := acc.Schema().Names()
	assert.Equal(t, "cmc_rank", names[len(names)-1])
}

func TestCurrentIsStableAcrossAppends(t *testing.T) {
	acc := NewAccumulator()
	at := time.Now()
	_, _ = acc.Append(batch(at))
	view := acc.Current()

	_, _ = acc.Append(batch(at.Add(time.Minute)))
	assert.Equal(t, 2, view.Len())
	assert.Equal(t, 4, acc.Len())

	// a caller appending to its view must not leak into the accumulator
	_ = append(view.Rows, row("DOGE", 0, at))
	assert.Equal(t, "BTC", acc.Current().Rows[2].Fields[0].Value.Str)
}

func TestCurrentRowReplacementStaysInView(t *testing.T) {
	acc := NewAccumulator()
	at := time.Now()
	_, err := acc.Append(batch(at))
	require.NoError(t, err)

	view := acc.Current()
	view.Rows[0] = row("DOGE", 99, at)
	view.Rows = view.Rows[:1]

	again := acc.Current()
	require.Equal(t, 2, again.Len())
	sym, _ := again.Rows[0].Text("symbol")
	assert.Equal(t, "BTC", sym)
}

func TestLoad(t *testing.T) {
	at := time.Now()
	table, err := models.NewTable(batch(at))
	require.NoError(t, err)

	acc := NewAccumulator()
	require.NoError(t, acc.Load(table))
	assert.Equal(t, 2, acc.Len())

	assert.ErrorIs(t, acc.Load(table), ErrNotEmpty)
}

func TestConcurrentReadersSeeWholeBatches(t *testing.T) {
	acc := NewAccumulator()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, _ = acc.Append(batch(time.Now()))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			n := acc.Current().Len()
			if n%2 != 0 {
				panic(fmt.Sprintf("observed partial batch: %d rows", n))
			}
		}
	}()
	wg.Wait()
	assert.Equal(t, 400, acc.Len())
}
