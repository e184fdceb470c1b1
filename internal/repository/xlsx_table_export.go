package repository

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"CoinPull/internal/domain/models"
)

// XLSXSheet is the single sheet an export writes.
const XLSXSheet = "table"

// ExportXLSX writes t to path as a workbook with one sheet. Numbers, booleans
// and times are written as native cells; absent fields stay blank.
func ExportXLSX(path string, t models.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", XLSXSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(t.Schema.Columns))
	for i, c := range t.Schema.Columns {
		header[i] = c.Name
	}
	if err := f.SetSheetRow(XLSXSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	timeStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr("yyyy-mm-dd hh:mm:ss")})
	if err != nil {
		return fmt.Errorf("create time style: %w", err)
	}

	for i, r := range t.Rows {
		rowNum := i + 2
		cells := make([]interface{}, len(t.Schema.Columns))
		for j, c := range t.Schema.Columns {
			v, ok := r.Get(c.Name)
			if !ok {
				continue
			}
			switch v.Kind {
			case models.KindTime:
				cells[j] = v.Time.UTC()
			default:
				cells[j] = v.Interface()
			}
		}
		start, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(XLSXSheet, start, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	// one style per time column, not per cell
	if len(t.Rows) > 0 {
		for j, c := range t.Schema.Columns {
			if c.Kind != models.KindTime {
				continue
			}
			top, _ := excelize.CoordinatesToCellName(j+1, 2)
			bottom, _ := excelize.CoordinatesToCellName(j+1, len(t.Rows)+1)
			if err := f.SetCellStyle(XLSXSheet, top, bottom, timeStyle); err != nil {
				return fmt.Errorf("style column %s: %w", c.Name, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func strPtr(s string) *string { return &s }
