package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CoinPull/internal/domain/models"
	domsvc "CoinPull/internal/domain/service"
	"CoinPull/pkg/logger"
)

// TableSaver writes the whole table somewhere durable, e.g. the CSV file.
type TableSaver interface {
	Save(t models.Table) error
}

// CollectionJob is one scheduled collection: a bounded collector run
// followed by saving the table.
type CollectionJob struct {
	collector  *Collector
	dataset    domsvc.Dataset
	saver      TableSaver
	iterations int
	delay      time.Duration
	log        *logger.Logger
}

func NewCollectionJob(collector *Collector, dataset domsvc.Dataset, saver TableSaver, iterations int, delay time.Duration, log *logger.Logger) *CollectionJob {
	return &CollectionJob{
		collector:  collector,
		dataset:    dataset,
		saver:      saver,
		iterations: iterations,
		delay:      delay,
		log:        log,
	}
}

// Run collects and saves. The table is saved even after a cancelled run so
// rows gathered so far are kept.
func (j *CollectionJob) Run(ctx context.Context) (*RunResult, error) {
	res, runErr := j.collector.Run(ctx, j.iterations, j.delay)
	if errors.Is(runErr, ErrAlreadyRunning) || errors.Is(runErr, ErrInvalidRun) {
		return nil, runErr
	}

	if j.saver != nil && res != nil && res.RowsAdded > 0 {
		if err := j.saver.Save(j.dataset.Current()); err != nil {
			j.log.Error("save table failed", logger.Error(err))
			return res, errors.Join(runErr, fmt.Errorf("save table: %w", err))
		}
		j.log.Info("table saved", logger.Int("rows", j.dataset.Len()))
	}
	return res, runErr
}
