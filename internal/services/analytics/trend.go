package analytics

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"CoinPull/internal/domain/models"
)

// Timeframes are the percent-change horizons reported by the listings API.
var Timeframes = []string{"1h", "24h", "7d", "30d", "60d", "90d"}

// DefaultColumns returns the percent-change columns for a quote currency.
func DefaultColumns(convert string) []string {
	cols := make([]string, len(Timeframes))
	for i, tf := range Timeframes {
		cols[i] = PercentChangeColumn(convert, tf)
	}
	return cols
}

// PercentChangeColumn returns the flattened column name of one timeframe.
func PercentChangeColumn(convert, timeframe string) string {
	return fmt.Sprintf("quote.%s.percent_change_%s", convert, timeframe)
}

// PriceColumn returns the flattened price column for a quote currency.
func PriceColumn(convert string) string {
	return fmt.Sprintf("quote.%s.price", convert)
}

// TrendAnalyzer computes descriptive statistics over numeric columns of a table.
type TrendAnalyzer struct {
	columns  []string
	groupBy  string
	identity string
	now      func() time.Time
}

type Option func(*TrendAnalyzer)

// WithColumns replaces the default percent-change columns.
func WithColumns(cols ...string) Option {
	return func(a *TrendAnalyzer) {
		if len(cols) > 0 {
			a.columns = cols
		}
	}
}

// WithGroupBy sets the grouping column; "" puts every row in one group.
func WithGroupBy(column string) Option {
	return func(a *TrendAnalyzer) { a.groupBy = column }
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *TrendAnalyzer) { a.now = now }
}

func NewTrendAnalyzer(identity, convert string, opts ...Option) *TrendAnalyzer {
	if identity == "" {
		identity = models.DefaultIdentityField
	}
	if convert == "" {
		convert = "USD"
	}
	a := &TrendAnalyzer{
		columns:  DefaultColumns(convert),
		groupBy:  identity,
		identity: identity,
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Columns returns the default analysis columns.
func (a *TrendAnalyzer) Columns() []string { return append([]string(nil), a.columns...) }

// Analyze builds a fresh report over t. Per-call options override the
// analyzer defaults. It never fails: missing data shows up as NoData.
func (a *TrendAnalyzer) Analyze(t models.Table, opts ...Option) *models.TrendReport {
	cfg := *a
	for _, o := range opts {
		o(&cfg)
	}

	report := &models.TrendReport{
		GroupBy:     cfg.groupBy,
		Columns:     append([]string(nil), cfg.columns...),
		TableRows:   t.Len(),
		GeneratedAt: cfg.now(),
	}

	if t.IsEmpty() {
		report.Groups = []models.GroupReport{{Key: models.GroupAll, Columns: emptyColumns(cfg.columns)}}
		return report
	}

	for _, g := range groupRows(t.Rows, cfg.groupBy) {
		gr := models.GroupReport{Key: g.key, Rows: len(g.rows)}
		for _, col := range cfg.columns {
			gr.Columns = append(gr.Columns, columnStats(col, g.rows))
		}
		report.Groups = append(report.Groups, gr)
	}
	return report
}

type group struct {
	key  string
	rows []models.Row
}

// groupRows splits rows by the text of a column, keeping first-seen order.
func groupRows(rows []models.Row, by string) []*group {
	if by == "" {
		return []*group{{key: models.GroupAll, rows: rows}}
	}

	index := make(map[string]*group)
	var order []*group
	for _, r := range rows {
		key, ok := r.Text(by)
		if !ok {
			key = models.GroupUnknown
		}
		g, exists := index[key]
		if !exists {
			g = &group{key: key}
			index[key] = g
			order = append(order, g)
		}
		g.rows = append(g.rows, r)
	}
	return order
}

func columnStats(col string, rows []models.Row) models.ColumnStats {
	values := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.Float(col); ok {
			values = append(values, v)
		}
	}

	cs := models.ColumnStats{Column: col, Count: len(values)}
	switch {
	case len(values) == 0:
		cs.Status = models.StatusNoData
		cs.Mean, cs.StdDev, cs.Min, cs.Max = models.NoData, models.NoData, models.NoData, models.NoData
		return cs
	case len(values) < len(rows):
		cs.Status = models.StatusPartial
	default:
		cs.Status = models.StatusOK
	}

	cs.Mean = models.Some(stat.Mean(values, nil))
	cs.Min = models.Some(floats.Min(values))
	cs.Max = models.Some(floats.Max(values))
	// sample standard deviation is undefined for a single observation
	if len(values) > 1 {
		cs.StdDev = models.Some(stat.StdDev(values, nil))
	}
	return cs
}

func emptyColumns(cols []string) []models.ColumnStats {
	out := make([]models.ColumnStats, len(cols))
	for i, c := range cols {
		out[i] = models.ColumnStats{
			Column: c,
			Mean:   models.NoData,
			StdDev: models.NoData,
			Min:    models.NoData,
			Max:    models.NoData,
			Status: models.StatusNoData,
		}
	}
	return out
}
