package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"CoinPull/internal/domain/models"
)

// headerSep joins a column name and its kind in a CSV header cell.
const headerSep = ":"

// ErrTableFileNotFound is returned by Load when no table has been saved yet.
var ErrTableFileNotFound = errors.New("table file not found")

// CSVTableFile persists a table as CSV. Header cells carry "name:kind" so
// values load back with their original types; an empty cell is an absent
// field. Numbers use the shortest exact form and times RFC3339Nano.
type CSVTableFile struct {
	path string
}

func NewCSVTableFile(path string) *CSVTableFile {
	return &CSVTableFile{path: path}
}

func (f *CSVTableFile) Path() string { return f.path }

// Save replaces the file with t. The write goes through a temp file so a
// crash never leaves a half-written table behind.
func (f *CSVTableFile) Save(t models.Table) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, t); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace table file: %w", err)
	}
	return nil
}

// Load reads the table back.
func (f *CSVTableFile) Load() (models.Table, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Table{}, fmt.Errorf("%w: %s", ErrTableFileNotFound, f.path)
		}
		return models.Table{}, fmt.Errorf("open table file: %w", err)
	}
	defer file.Close()

	return ReadCSV(file)
}

// WriteCSV encodes t to w.
func WriteCSV(w io.Writer, t models.Table) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(t.Schema.Columns))
	for i, c := range t.Schema.Columns {
		header[i] = c.Name + headerSep + string(c.Kind)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(t.Schema.Columns))
	for i, r := range t.Rows {
		for j := range record {
			record[j] = ""
		}
		for _, fld := range r.Fields {
			idx := t.Schema.Index(fld.Name)
			if idx < 0 {
				return fmt.Errorf("row %d: field %q is not in the schema", i, fld.Name)
			}
			record[idx] = fld.Value.Text()
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadCSV decodes a table written by WriteCSV. Field order within each row
// follows the header, which is the schema order.
func ReadCSV(r io.Reader) (models.Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return models.Table{}, nil
		}
		return models.Table{}, fmt.Errorf("read header: %w", err)
	}

	schema := models.Schema{Columns: make([]models.Column, len(header))}
	for i, cell := range header {
		cut := strings.LastIndex(cell, headerSep)
		if cut <= 0 {
			return models.Table{}, fmt.Errorf("header cell %q: want name%skind", cell, headerSep)
		}
		kind, err := models.ParseKind(cell[cut+1:])
		if err != nil {
			return models.Table{}, fmt.Errorf("header cell %q: %w", cell, err)
		}
		schema.Columns[i] = models.Column{Name: cell[:cut], Kind: kind}
	}

	var rows []models.Row
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.Table{}, fmt.Errorf("read line %d: %w", line, err)
		}

		row := models.Row{Fields: make([]models.Field, 0, len(record))}
		for i, cell := range record {
			if cell == "" {
				continue
			}
			col := schema.Columns[i]
			v, err := models.ParseValue(col.Kind, cell)
			if err != nil {
				return models.Table{}, fmt.Errorf("line %d column %q: %w", line, col.Name, err)
			}
			row.Fields = append(row.Fields, models.Field{Name: col.Name, Value: v})
		}
		rows = append(rows, row)
	}

	return models.Table{Schema: schema, Rows: rows}, nil
}
