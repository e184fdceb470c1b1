package repository

import (
	"context"

	"CoinPull/internal/domain/models"
)

// DataSource fetches one market snapshot. Failures are *models.FetchError.
type DataSource interface {
	Name() string
	Fetch(ctx context.Context, req models.FetchRequest) (*models.Snapshot, error)
}

// TableStore persists accumulated rows and loads them back in order.
type TableStore interface {
	Init(ctx context.Context) error
	SaveBatch(ctx context.Context, b *models.Batch) error
	LoadTable(ctx context.Context) (models.Table, error)
	Health(ctx context.Context) error
	Close() error
}

// BatchSink receives every batch appended to the table.
type BatchSink interface {
	Name() string
	Consume(ctx context.Context, b *models.Batch) error
}

// Publisher ships normalized rows to a message broker.
type Publisher interface {
	PublishBatch(ctx context.Context, b *models.Batch) error
	Close() error
}

// ProgressSink observes collector progress.
type ProgressSink interface {
	OnProgress(p models.Progress)
}

// Metrics records pipeline measurements.
type Metrics interface {
	RecordIteration(result string)
	RecordFetchError(kind string)
	RecordRowsAppended(n int)
	RecordTableSize(n int)
	RecordSkippedRecords(n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordCacheLookup(report string, hit bool)
}
