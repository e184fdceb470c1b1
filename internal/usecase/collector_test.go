package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	mid "CoinPull/internal/middleware"
	"CoinPull/internal/services/analytics"
	"CoinPull/internal/services/dataset"
	"CoinPull/internal/services/normalize"
	"CoinPull/pkg/logger"
	"CoinPull/pkg/metrics"
)

const change24h = "quote.USD.percent_change_24h"

var btcEth = []json.RawMessage{
	json.RawMessage(`{"symbol":"BTC","quote":{"USD":{"price":50000,"percent_change_24h":5.0}}}`),
	json.RawMessage(`{"symbol":"ETH","quote":{"USD":{"price":3000,"percent_change_24h":-2.0}}}`),
}

// scriptedSource answers each fetch from a list of outcomes; nil entries fail.
type scriptedSource struct {
	mu     sync.Mutex
	calls  int
	script []error
	clock  time.Time
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Fetch(ctx context.Context, _ models.FetchRequest) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if i := s.calls - 1; i < len(s.script) && s.script[i] != nil {
		return nil, s.script[i]
	}
	return &models.Snapshot{
		Source:    "scripted",
		FetchedAt: s.clock.Add(time.Duration(s.calls) * time.Minute),
		Entries:   btcEth,
	}, nil
}

type progressLog struct {
	mu     sync.Mutex
	events []models.Progress
}

func (p *progressLog) OnProgress(ev models.Progress) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

type recordingSleeper struct{ calls []time.Duration }

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return ctx.Err()
}

func newTestCollector(src drepo.DataSource, acc *dataset.Accumulator, opts ...CollectorOption) *Collector {
	return NewCollector(src, normalize.New(), acc, metrics.Nop{}, logger.Nop(), opts...)
}

func TestRunThreeIterationsAccumulatesSixRows(t *testing.T) {
	acc := dataset.NewAccumulator()
	progress := &progressLog{}
	sleeper := &recordingSleeper{}
	c := newTestCollector(&scriptedSource{clock: time.Now()}, acc,
		WithSleeper(sleeper.sleep), WithProgressSinks(progress))

	res, err := c.Run(context.Background(), 3, 0)
	require.NoError(t, err)

	assert.Equal(t, StateDone, c.State())
	assert.Equal(t, 6, acc.Len())
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 6, res.RowsAdded)
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, sleeper.calls, 2, "no delay after the last iteration")

	require.Len(t, progress.events, 3)
	for i, ev := range progress.events {
		assert.Equal(t, i+1, ev.Iteration)
		assert.Equal(t, 2, ev.RowsAdded)
		assert.Equal(t, (i+1)*2, ev.TotalRows)
		assert.Equal(t, res.RunID, ev.RunID)
	}

	report := analytics.NewTrendAnalyzer("symbol", "USD", analytics.WithColumns(change24h)).
		Analyze(acc.Current(), analytics.WithGroupBy(""))
	cs, _ := report.Groups[0].Column(change24h)
	assert.Equal(t, 6, cs.Count)
	assert.InDelta(t, 1.5, cs.Mean.Value, 1e-12)
}

func TestRunContinuesPastFetchFailure(t *testing.T) {
	acc := dataset.NewAccumulator()
	progress := &progressLog{}
	src := &scriptedSource{
		clock:  time.Now(),
		script: []error{nil, models.NewFetchError("scripted", models.FetchRateLimited, errors.New("429")), nil},
	}
	c := newTestCollector(src, acc, WithSleeper(func(context.Context, time.Duration) error { return nil }), WithProgressSinks(progress))

	res, err := c.Run(context.Background(), 3, time.Second)
	require.NoError(t, err)

	assert.Equal(t, 3, src.calls)
	assert.Equal(t, 4, acc.Len())
	assert.Equal(t, 2, res.Succeeded)
	require.Equal(t, 1, res.Failed())
	assert.Equal(t, IterationFailure{Iteration: 2, Stage: "fetch", Kind: "rate_limited", Reason: res.Failures[0].Reason}, res.Failures[0])

	require.Len(t, progress.events, 3)
	assert.Equal(t, 0, progress.events[1].RowsAdded)
	assert.Equal(t, 2, progress.events[1].TotalRows, "failed fetch leaves the table untouched")
	assert.NotEmpty(t, progress.events[1].Error)
}

func TestRunZeroIterationsIsNoop(t *testing.T) {
	src := &scriptedSource{}
	c := newTestCollector(src, dataset.NewAccumulator())

	res, err := c.Run(context.Background(), 0, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, src.calls)
	assert.Equal(t, 0, res.Completed)
	assert.Equal(t, StateDone, c.State())
}

func TestRunRejectsNegativeParameters(t *testing.T) {
	c := newTestCollector(&scriptedSource{}, dataset.NewAccumulator())
	assert.Equal(t, StateIdle, c.State())

	_, err := c.Run(context.Background(), -1, 0)
	assert.ErrorIs(t, err, ErrInvalidRun)
	_, err = c.Run(context.Background(), 1, -time.Second)
	assert.ErrorIs(t, err, ErrInvalidRun)
}

func TestRunStopsOnCancellationDuringDelay(t *testing.T) {
	acc := dataset.NewAccumulator()
	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	src := &scriptedSource{clock: time.Now()}
	c := newTestCollector(src, acc, WithSleeper(sleep))

	res, err := c.Run(ctx, 5, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 2, acc.Len())
	assert.Equal(t, StateDone, c.State())
}

func TestRunCountsMalformedEntries(t *testing.T) {
	src := &badEntrySource{}
	acc := dataset.NewAccumulator()
	c := newTestCollector(src, acc)

	res, err := c.Run(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, acc.Len())
}

type badEntrySource struct{}

func (badEntrySource) Name() string { return "bad" }

func (badEntrySource) Fetch(context.Context, models.FetchRequest) (*models.Snapshot, error) {
	return &models.Snapshot{FetchedAt: time.Now(), Entries: []json.RawMessage{
		json.RawMessage(`{"symbol":"BTC"}`),
		json.RawMessage(`{"name":"nameless"}`),
	}}, nil
}

type captureSink struct {
	mu      sync.Mutex
	batches []*models.Batch
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Consume(_ context.Context, b *models.Batch) error {
	s.mu.Lock()
	s.batches = append(s.batches, b)
	s.mu.Unlock()
	return nil
}

func TestRunHandsBatchesToSinks(t *testing.T) {
	sink := &captureSink{}
	pipe := mid.NewSinkPipeline([]drepo.BatchSink{sink}, metrics.Nop{}, logger.Nop())
	pipe.Start(context.Background())

	c := newTestCollector(&scriptedSource{clock: time.Now()}, dataset.NewAccumulator(), WithSinkPipeline(pipe))
	res, err := c.Run(context.Background(), 2, 0)
	require.NoError(t, err)
	pipe.Stop()

	require.Len(t, sink.batches, 2)
	assert.Equal(t, res.RunID, sink.batches[0].RunID)
	assert.Equal(t, 2, sink.batches[1].Iteration)
	assert.Len(t, sink.batches[1].Rows, 2)
}

// entrySource answers the n-th fetch with the n-th entry list.
type entrySource struct {
	calls   int
	batches [][]json.RawMessage
	clock   time.Time
}

func (s *entrySource) Name() string { return "entries" }

func (s *entrySource) Fetch(context.Context, models.FetchRequest) (*models.Snapshot, error) {
	s.calls++
	entries := btcEth
	if i := s.calls - 1; i < len(s.batches) && s.batches[i] != nil {
		entries = s.batches[i]
	}
	return &models.Snapshot{Source: "entries", FetchedAt: s.clock.Add(time.Duration(s.calls) * time.Minute), Entries: entries}, nil
}

func TestRunAbsorbsNormalizeAndAppendFailures(t *testing.T) {
	cases := []struct {
		name    string
		entries []json.RawMessage
		stage   string
		target  error
	}{
		{
			name:    "every entry rejected",
			entries: []json.RawMessage{json.RawMessage(`{"name":"no identity","quote":{"USD":{"price":1}}}`)},
			stage:   "normalize",
			target:  models.ErrMalformedRecord,
		},
		{
			name:    "kind conflicts with schema",
			entries: []json.RawMessage{json.RawMessage(`{"symbol":"BTC","quote":{"USD":{"price":"n/a","percent_change_24h":1}}}`)},
			stage:   "append",
			target:  models.ErrSchemaMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acc := dataset.NewAccumulator()
			progress := &progressLog{}
			src := &entrySource{clock: time.Now(), batches: [][]json.RawMessage{nil, tc.entries, nil}}
			c := newTestCollector(src, acc, WithProgressSinks(progress))

			res, err := c.Run(context.Background(), 3, 0)
			require.NoError(t, err)

			assert.Equal(t, 3, src.calls, "the loop goes on after the failed round")
			assert.Equal(t, 3, res.Completed)
			assert.Equal(t, 2, res.Succeeded)
			assert.Equal(t, 4, acc.Len())
			require.Equal(t, 1, res.Failed())
			assert.Equal(t, 2, res.Failures[0].Iteration)
			assert.Equal(t, tc.stage, res.Failures[0].Stage)
			assert.Contains(t, res.Failures[0].Reason, tc.target.Error())

			require.Len(t, progress.events, 3)
			assert.Equal(t, 2, progress.events[1].TotalRows, "failed round leaves the table untouched")
			assert.Equal(t, 0, progress.events[1].RowsAdded)
			assert.NotEmpty(t, progress.events[1].Error)
		})
	}
}

// cancellingSource cancels the run while serving its last fetch.
type cancellingSource struct {
	calls  int
	last   int
	cancel context.CancelFunc
}

func (s *cancellingSource) Name() string { return "cancelling" }

func (s *cancellingSource) Fetch(ctx context.Context, _ models.FetchRequest) (*models.Snapshot, error) {
	s.calls++
	if s.calls == s.last {
		s.cancel()
		return nil, models.NewFetchError("cancelling", models.FetchNetwork, ctx.Err())
	}
	return &models.Snapshot{Source: "cancelling", FetchedAt: time.Now(), Entries: btcEth}, nil
}

func TestRunReportsCancellationDuringLastFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	acc := dataset.NewAccumulator()
	src := &cancellingSource{last: 2, cancel: cancel}
	c := newTestCollector(src, acc)

	res, err := c.Run(ctx, 2, 0)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Succeeded)
	assert.Empty(t, res.Failures, "a cancelled fetch is not a source failure")
	assert.Equal(t, 2, acc.Len())
}
