package datasource

import (
	"context"
	"errors"
	"fmt"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	"CoinPull/pkg/logger"
)

const FallbackName = "fallback"

// Fallback asks the primary source first and, when it fails with a
// FetchError, answers from the secondary. Every switch is logged and counted.
type Fallback struct {
	primary   drepo.DataSource
	secondary drepo.DataSource
	metrics   drepo.Metrics
	log       *logger.Logger
}

func NewFallback(primary, secondary drepo.DataSource, metrics drepo.Metrics, log *logger.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, metrics: metrics, log: log}
}

func (f *Fallback) Name() string {
	return fmt.Sprintf("%s(%s->%s)", FallbackName, f.primary.Name(), f.secondary.Name())
}

func (f *Fallback) Fetch(ctx context.Context, req models.FetchRequest) (*models.Snapshot, error) {
	snap, err := f.primary.Fetch(ctx, req)
	if err == nil {
		return snap, nil
	}

	var fe *models.FetchError
	if !errors.As(err, &fe) || ctx.Err() != nil {
		return nil, err
	}

	f.metrics.RecordFetchError(string(fe.Kind))
	f.metrics.RecordError("fallback_" + f.secondary.Name())
	f.log.Warn("primary source failed, using fallback",
		logger.String("primary", f.primary.Name()),
		logger.String("fallback", f.secondary.Name()),
		logger.String("kind", string(fe.Kind)),
		logger.Error(err),
	)

	snap, ferr := f.secondary.Fetch(ctx, req)
	if ferr != nil {
		return nil, fmt.Errorf("fallback %s: %w (primary: %v)", f.secondary.Name(), ferr, err)
	}
	return snap, nil
}

var _ drepo.DataSource = (*Fallback)(nil)
