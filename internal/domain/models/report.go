package models

import (
	"encoding/json"
	"time"
)

// GroupAll is the group key used when statistics are computed over every row.
const GroupAll = "all"

// GroupUnknown collects rows that lack the group-by column.
const GroupUnknown = "(unknown)"

// Measure is one statistic. Valid is false when no data backs the value
// (the NoData marker); it encodes as JSON null.
type Measure struct {
	Value float64
	Valid bool
}

// Some returns a valid measure.
func Some(v float64) Measure { return Measure{Value: v, Valid: true} }

// NoData is the empty measure.
var NoData = Measure{}

func (m Measure) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

func (m *Measure) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = NoData
		return nil
	}
	if err := json.Unmarshal(b, &m.Value); err != nil {
		return err
	}
	m.Valid = true
	return nil
}

// StatStatus tells how complete a column's statistics are.
type StatStatus string

const (
	StatusOK      StatStatus = "ok"
	StatusPartial StatStatus = "partial" // some rows lacked the column or held a non-number
	StatusNoData  StatStatus = "no_data"
)

// ColumnStats holds the descriptive statistics of one column within one group.
type ColumnStats struct {
	Column string     `json:"column"`
	Count  int        `json:"count"`
	Mean   Measure    `json:"mean"`
	StdDev Measure    `json:"std_dev"`
	Min    Measure    `json:"min"`
	Max    Measure    `json:"max"`
	Status StatStatus `json:"status"`
}

// GroupReport holds the statistics of one group.
type GroupReport struct {
	Key     string        `json:"key"`
	Rows    int           `json:"rows"`
	Columns []ColumnStats `json:"columns"`
}

// Column returns the stats of a column within the group.
func (g GroupReport) Column(name string) (ColumnStats, bool) {
	for _, c := range g.Columns {
		if c.Column == name {
			return c, true
		}
	}
	return ColumnStats{}, false
}

// TrendReport is computed fresh from the table on every call and never stored.
type TrendReport struct {
	GroupBy     string        `json:"group_by"`
	Columns     []string      `json:"columns"`
	TableRows   int           `json:"table_rows"`
	GeneratedAt time.Time     `json:"generated_at"`
	Groups      []GroupReport `json:"groups"`
}

// Group returns a group by key.
func (r *TrendReport) Group(key string) (GroupReport, bool) {
	for _, g := range r.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return GroupReport{}, false
}

// AssetCount is the number of rows collected for one asset.
type AssetCount struct {
	Asset string `json:"asset"`
	Rows  int    `json:"rows"`
}

// Summary describes the accumulated dataset.
type Summary struct {
	TotalRows    int          `json:"total_records"`
	UniqueAssets int          `json:"unique_assets"`
	PeriodStart  *time.Time   `json:"period_start,omitempty"`
	PeriodEnd    *time.Time   `json:"period_end,omitempty"`
	TopAssets    []AssetCount `json:"top_assets"`
}

// Progress is emitted once per collector iteration.
type Progress struct {
	RunID      string    `json:"run_id"`
	Iteration  int       `json:"iteration"`
	Iterations int       `json:"iterations"`
	RowsAdded  int       `json:"rows_added"`
	TotalRows  int       `json:"total_rows"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}
