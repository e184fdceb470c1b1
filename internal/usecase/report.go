package usecase

import (
	"context"
	"strings"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	domsvc "CoinPull/internal/domain/service"
	"CoinPull/internal/services/analytics"
	"CoinPull/pkg/cache"
	"CoinPull/pkg/logger"
)

// TrendQuery overrides the analyzer defaults for one report. A nil GroupBy
// keeps the default grouping; a pointer to "" means no grouping.
type TrendQuery struct {
	Columns []string
	GroupBy *string
}

// ReportUseCase serves trend reports and summaries over the live dataset.
// The table only grows, so its length identifies a version and is part of
// every cache key.
type ReportUseCase struct {
	dataset  domsvc.Dataset
	analyzer *analytics.TrendAnalyzer
	identity string
	cache    cache.Service
	ttl      time.Duration
	metrics  drepo.Metrics
	log      *logger.Logger
}

func NewReportUseCase(dataset domsvc.Dataset, analyzer *analytics.TrendAnalyzer, identity string, c cache.Service, ttl time.Duration, metrics drepo.Metrics, log *logger.Logger) *ReportUseCase {
	if identity == "" {
		identity = models.DefaultIdentityField
	}
	return &ReportUseCase{
		dataset:  dataset,
		analyzer: analyzer,
		identity: identity,
		cache:    c,
		ttl:      ttl,
		metrics:  metrics,
		log:      log,
	}
}

// Table returns the current table view.
func (uc *ReportUseCase) Table() models.Table { return uc.dataset.Current() }

// Trends analyzes the table. The second result reports a cache hit.
func (uc *ReportUseCase) Trends(ctx context.Context, q TrendQuery) (*models.TrendReport, bool, error) {
	var opts []analytics.Option
	cols := uc.analyzer.Columns()
	if len(q.Columns) > 0 {
		cols = q.Columns
		opts = append(opts, analytics.WithColumns(q.Columns...))
	}
	groupKey := "default"
	if q.GroupBy != nil {
		groupKey = "by=" + *q.GroupBy
		opts = append(opts, analytics.WithGroupBy(*q.GroupBy))
	}

	key := cache.GenerateKeyWithParams("trends", uc.dataset.Len(), groupKey, cache.HashKey(strings.Join(cols, ",")))
	report, hit, err := cache.Remember(ctx, uc.cache, key, uc.ttl, func() (*models.TrendReport, error) {
		start := time.Now()
		r := uc.analyzer.Analyze(uc.dataset.Current(), opts...)
		uc.metrics.RecordLatency("analyze", time.Since(start).Seconds())
		return r, nil
	})
	if err != nil {
		return nil, false, err
	}
	uc.metrics.RecordCacheLookup("trends", hit)
	uc.log.Debug("trend report", logger.String("key", key), logger.Bool("cache_hit", hit))
	return report, hit, nil
}

// Summary describes the table and its top assets by row count.
func (uc *ReportUseCase) Summary(ctx context.Context, top int) (models.Summary, error) {
	if top <= 0 {
		top = analytics.DefaultTopAssets
	}
	key := cache.GenerateKeyWithParams("summary", uc.dataset.Len(), top)
	s, hit, err := cache.Remember(ctx, uc.cache, key, uc.ttl, func() (models.Summary, error) {
		return analytics.Summarize(uc.dataset.Current(), uc.identity, top), nil
	})
	if err != nil {
		return models.Summary{}, err
	}
	uc.metrics.RecordCacheLookup("summary", hit)
	uc.log.Debug("summary", logger.String("key", key), logger.Bool("cache_hit", hit))
	return s, nil
}
