package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"CoinPull/internal/domain/models"
)

func TestExportXLSX(t *testing.T) {
	tbl, err := models.NewTable([]models.Row{
		{Fields: []models.Field{
			{Name: "symbol", Value: models.String("BTC")},
			{Name: "cmc_rank", Value: models.Number(1)},
		}},
		{Fields: []models.Field{
			{Name: "symbol", Value: models.String("ETH")},
		}},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "crypto_data.xlsx")
	require.NoError(t, ExportXLSX(path, tbl))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{XLSXSheet}, f.GetSheetList())

	rows, err := f.GetRows(XLSXSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"symbol", "cmc_rank"}, rows[0])
	assert.Equal(t, []string{"BTC", "1"}, rows[1])
	assert.Equal(t, []string{"ETH"}, rows[2])
}

func TestExportXLSXStylesTimes(t *testing.T) {
	tbl := sampleTable(t)
	path := filepath.Join(t.TempDir(), "crypto_data.xlsx")
	require.NoError(t, ExportXLSX(path, tbl))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(XLSXSheet)
	require.NoError(t, err)
	assert.Len(t, rows, tbl.Len()+1)
	assert.Equal(t, tbl.Schema.Names(), rows[0])
}
