package service

import (
	"context"
	"time"

	"CoinPull/internal/domain/models"
)

// Normalizer turns a raw snapshot into rows, reporting skipped entries.
type Normalizer interface {
	Normalize(snap *models.Snapshot, collectedAt time.Time) ([]models.Row, []*models.RecordError)
}

// Dataset is the accumulated table.
type Dataset interface {
	Append(rows []models.Row) (int, error)
	Current() models.Table
	Len() int
}

// ChartRenderer draws a table view into an image file.
type ChartRenderer interface {
	TrendChart(ctx context.Context, report *models.TrendReport, path string) error
	PriceChart(ctx context.Context, t models.Table, asset, column, path string) error
}
