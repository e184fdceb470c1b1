package dataset

import (
	"errors"
	"fmt"
	"sync"

	"CoinPull/internal/domain/models"
)

// ErrNotEmpty is returned by Load when the accumulator already holds rows.
var ErrNotEmpty = errors.New("accumulator is not empty")

// Accumulator owns the growing table. It is append-only: rows are never
// mutated, reordered, deduplicated or removed.
type Accumulator struct {
	mu     sync.RWMutex
	schema models.Schema
	rows   []models.Row
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds rows at the end of the table in order, each copied into schema
// field order. The batch is checked against the schema first; on error the
// table is left untouched.
func (a *Accumulator) Append(rows []models.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	schema, err := a.schema.Extend(rows)
	if err != nil {
		return 0, fmt.Errorf("append batch: %w", err)
	}

	a.schema = schema
	for _, r := range rows {
		a.rows = append(a.rows, schema.Conform(r))
	}
	return len(rows), nil
}

// Load seeds an empty accumulator with a persisted table.
func (a *Accumulator) Load(t models.Table) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.rows) > 0 {
		return ErrNotEmpty
	}
	schema, err := models.Schema{Columns: t.Schema.Columns}.Extend(t.Rows)
	if err != nil {
		return fmt.Errorf("load table: %w", err)
	}
	a.schema = schema
	a.rows = make([]models.Row, len(t.Rows))
	for i, r := range t.Rows {
		a.rows[i] = schema.Conform(r)
	}
	return nil
}

// Current returns a view of the table as of now. Later appends never show up
// in a view already handed out, and replacing or appending rows in the view
// never reaches the accumulator. Field slices are shared; see models.Table.
func (a *Accumulator) Current() models.Table {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cols := make([]models.Column, len(a.schema.Columns))
	copy(cols, a.schema.Columns)
	rows := make([]models.Row, len(a.rows))
	copy(rows, a.rows)
	return models.Table{
		Schema: models.Schema{Columns: cols},
		Rows:   rows,
	}
}

func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.rows)
}

func (a *Accumulator) IsEmpty() bool { return a.Len() == 0 }

// Schema returns a copy of the current schema.
func (a *Accumulator) Schema() models.Schema {
	return a.Current().Schema
}
