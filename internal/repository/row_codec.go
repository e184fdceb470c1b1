package repository

import (
	"encoding/json"
	"fmt"

	"CoinPull/internal/domain/models"
)

// storedField is one field of a row document. Kinds travel with the values so
// a stored row decodes to exactly the row that was saved.
type storedField struct {
	Name  string          `json:"n"`
	Kind  models.Kind     `json:"k"`
	Value json.RawMessage `json:"v"`
}

func encodeRow(r models.Row) ([]byte, error) {
	doc := make([]storedField, len(r.Fields))
	for i, f := range r.Fields {
		var (
			raw []byte
			err error
		)
		switch f.Value.Kind {
		case models.KindNumber, models.KindBool:
			raw, err = json.Marshal(f.Value.Interface())
		default:
			raw, err = json.Marshal(f.Value.Text())
		}
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", f.Name, err)
		}
		doc[i] = storedField{Name: f.Name, Kind: f.Value.Kind, Value: raw}
	}
	return json.Marshal(doc)
}

func decodeRow(b []byte) (models.Row, error) {
	var doc []storedField
	if err := json.Unmarshal(b, &doc); err != nil {
		return models.Row{}, fmt.Errorf("decode row: %w", err)
	}

	row := models.Row{Fields: make([]models.Field, len(doc))}
	for i, sf := range doc {
		var v models.Value
		switch sf.Kind {
		case models.KindNumber:
			var n float64
			if err := json.Unmarshal(sf.Value, &n); err != nil {
				return models.Row{}, fmt.Errorf("decode field %q: %w", sf.Name, err)
			}
			v = models.Number(n)
		case models.KindBool:
			var b bool
			if err := json.Unmarshal(sf.Value, &b); err != nil {
				return models.Row{}, fmt.Errorf("decode field %q: %w", sf.Name, err)
			}
			v = models.Bool(b)
		default:
			var s string
			if err := json.Unmarshal(sf.Value, &s); err != nil {
				return models.Row{}, fmt.Errorf("decode field %q: %w", sf.Name, err)
			}
			parsed, err := models.ParseValue(sf.Kind, s)
			if err != nil {
				return models.Row{}, fmt.Errorf("decode field %q: %w", sf.Name, err)
			}
			v = parsed
		}
		row.Fields[i] = models.Field{Name: sf.Name, Value: v}
	}
	return row, nil
}

// rowsToTable rebuilds a table from rows read back in stored order.
func rowsToTable(rows []models.Row) (models.Table, error) {
	if len(rows) == 0 {
		return models.Table{}, nil
	}
	t, err := models.NewTable(rows)
	if err != nil {
		return models.Table{}, fmt.Errorf("rebuild table: %w", err)
	}
	return t, nil
}

// batchAsset returns the identity of a row for the indexed asset column.
func batchAsset(r models.Row, identity string) string {
	s, _ := r.Text(identity)
	return s
}
