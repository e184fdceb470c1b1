package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	domsvc "CoinPull/internal/domain/service"
	mid "CoinPull/internal/middleware"
	"CoinPull/pkg/logger"
)

// State is the collector's position in its loop.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateNormalizing State = "normalizing"
	StateAppending   State = "appending"
	StateWaiting     State = "waiting"
	StateDone        State = "done"
)

var (
	ErrInvalidRun     = errors.New("invalid run parameters")
	ErrAlreadyRunning = errors.New("collector is already running")
)

// IterationFailure records why one iteration added nothing.
type IterationFailure struct {
	Iteration int    `json:"iteration"`
	Stage     string `json:"stage"`
	Kind      string `json:"kind,omitempty"`
	Reason    string `json:"reason"`
}

// RunResult summarizes one bounded run.
type RunResult struct {
	RunID      string             `json:"run_id"`
	Iterations int                `json:"iterations"`
	Completed  int                `json:"completed"`
	Succeeded  int                `json:"succeeded"`
	RowsAdded  int                `json:"rows_added"`
	Skipped    int                `json:"skipped"`
	TotalRows  int                `json:"total_rows"`
	Failures   []IterationFailure `json:"failures,omitempty"`
}

// Failed returns the number of iterations that added no rows because of an error.
func (r *RunResult) Failed() int { return len(r.Failures) }

// Collector drives fetch, normalize and append for a bounded number of
// iterations. A failing iteration is recorded and the loop moves on.
type Collector struct {
	source     drepo.DataSource
	normalizer domsvc.Normalizer
	dataset    domsvc.Dataset
	pipe       *mid.SinkPipeline
	metrics    drepo.Metrics
	log        *logger.Logger
	request    models.FetchRequest
	progress   []drepo.ProgressSink
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time

	mu      sync.Mutex
	state   State
	running bool
}

type CollectorOption func(*Collector)

// WithSinkPipeline hands every appended batch to the sink pipeline.
func WithSinkPipeline(p *mid.SinkPipeline) CollectorOption {
	return func(c *Collector) { c.pipe = p }
}

// WithProgressSinks registers receivers of per-iteration progress.
func WithProgressSinks(sinks ...drepo.ProgressSink) CollectorOption {
	return func(c *Collector) { c.progress = append(c.progress, sinks...) }
}

// WithRequest sets the listings request sent on every fetch.
func WithRequest(req models.FetchRequest) CollectorOption {
	return func(c *Collector) { c.request = req }
}

// WithSleeper replaces the inter-iteration delay; tests pass a no-op.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) CollectorOption {
	return func(c *Collector) { c.sleep = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

func NewCollector(source drepo.DataSource, normalizer domsvc.Normalizer, dataset domsvc.Dataset, metrics drepo.Metrics, log *logger.Logger, opts ...CollectorOption) *Collector {
	c := &Collector{
		source:     source,
		normalizer: normalizer,
		dataset:    dataset,
		metrics:    metrics,
		log:        log,
		request:    models.FetchRequest{Start: 1, Limit: 100, Convert: "USD"},
		sleep:      sleepContext,
		now:        time.Now,
		state:      StateIdle,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AddProgressSink registers another progress receiver. Not safe during a run.
func (c *Collector) AddProgressSink(s drepo.ProgressSink) {
	c.progress = append(c.progress, s)
}

// State returns the current loop state.
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Collector) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run performs exactly iterations rounds with delay between them. There is no
// delay after the last round. Cancellation is honoured between rounds and
// during the delay; the partial result is returned with ctx.Err().
func (c *Collector) Run(ctx context.Context, iterations int, delay time.Duration) (*RunResult, error) {
	if iterations < 0 || delay < 0 {
		return nil, fmt.Errorf("%w: iterations=%d delay=%s", ErrInvalidRun, iterations, delay)
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	c.running = true
	c.state = StateIdle
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.state = StateDone
		c.mu.Unlock()
	}()

	res := &RunResult{RunID: uuid.NewString(), Iterations: iterations, TotalRows: c.dataset.Len()}
	log := c.log.With(logger.String("run_id", res.RunID))
	log.Info("collection started",
		logger.Int("iterations", iterations),
		logger.Duration("delay_ms", delay),
		logger.String("source", c.source.Name()),
	)

	for i := 1; i <= iterations; i++ {
		if err := ctx.Err(); err != nil {
			log.Warn("collection cancelled", logger.Int("iteration", i), logger.Error(err))
			return res, err
		}

		if c.iterate(ctx, log, res, i) {
			res.Completed = i
		}
		if err := ctx.Err(); err != nil {
			// cancelled mid-iteration, possibly during the last fetch
			log.Warn("collection cancelled", logger.Int("iteration", i), logger.Error(err))
			return res, err
		}

		if i == iterations {
			break
		}
		c.setState(StateWaiting)
		if err := c.sleep(ctx, delay); err != nil {
			log.Warn("collection cancelled", logger.Int("iteration", i), logger.Error(err))
			return res, err
		}
	}

	log.Info("collection finished",
		logger.Int("succeeded", res.Succeeded),
		logger.Int("failed", res.Failed()),
		logger.Int("rows_added", res.RowsAdded),
		logger.Int("total_rows", res.TotalRows),
	)
	return res, nil
}

// iterate runs one round. It returns false when the fetch was cut short by
// cancellation, in which case nothing is recorded for the round.
func (c *Collector) iterate(ctx context.Context, log *logger.Logger, res *RunResult, i int) bool {
	start := c.now()
	p := models.Progress{RunID: res.RunID, Iteration: i, Iterations: res.Iterations}
	ilog := log.With(logger.Int("iteration", i), logger.Int("of", res.Iterations))

	fail := func(stage string, kind string, err error) {
		res.Failures = append(res.Failures, IterationFailure{Iteration: i, Stage: stage, Kind: kind, Reason: err.Error()})
		p.Error = err.Error()
		c.metrics.RecordIteration(stage + "_error")
		ilog.Warn("iteration failed", logger.String("stage", stage), logger.String("kind", kind), logger.Error(err))
	}

	c.setState(StateFetching)
	snap, err := c.source.Fetch(ctx, c.request)
	if err != nil && ctx.Err() != nil {
		// a cancelled fetch is not a source failure; Run reports ctx.Err()
		return false
	}
	if err != nil {
		kind := string(models.FetchErrorKindOf(err))
		if kind == "" {
			kind = string(models.FetchNetwork)
		}
		c.metrics.RecordFetchError(kind)
		fail("fetch", kind, err)
		c.emit(p, c.dataset.Len())
		return true
	}

	c.setState(StateNormalizing)
	collectedAt := snap.FetchedAt
	if collectedAt.IsZero() {
		collectedAt = start
	}
	rows, skipped := c.normalizer.Normalize(snap, collectedAt)
	for _, s := range skipped {
		ilog.Warn("skipped malformed entry", logger.Int("index", s.Index), logger.String("identity", s.Identity), logger.String("reason", s.Reason))
	}
	p.Skipped = len(skipped)
	res.Skipped += len(skipped)
	c.metrics.RecordSkippedRecords(len(skipped))
	if len(rows) == 0 && snap.Len() > 0 {
		fail("normalize", "", fmt.Errorf("%w: all %d entries rejected", models.ErrMalformedRecord, snap.Len()))
		c.emit(p, c.dataset.Len())
		return true
	}

	c.setState(StateAppending)
	added, err := c.dataset.Append(rows)
	if err != nil {
		fail("append", "", err)
		c.emit(p, c.dataset.Len())
		return true
	}

	total := c.dataset.Len()
	p.RowsAdded = added
	res.RowsAdded += added
	res.TotalRows = total
	res.Succeeded++
	c.metrics.RecordIteration("ok")
	c.metrics.RecordRowsAppended(added)
	c.metrics.RecordTableSize(total)
	elapsed := c.now().Sub(start).Seconds()
	c.metrics.RecordLatency("iteration", elapsed)

	if c.pipe != nil && added > 0 {
		b := &models.Batch{RunID: res.RunID, Iteration: i, CollectedAt: collectedAt, Rows: rows}
		if err := c.pipe.Submit(b); err != nil {
			ilog.Warn("batch not handed to sinks", logger.Error(err))
		}
	}

	ilog.Info("iteration complete", logger.Int("rows_added", added), logger.Int("total_rows", total), logger.Float64("seconds", elapsed))
	c.emit(p, total)
	return true
}

func (c *Collector) emit(p models.Progress, total int) {
	p.TotalRows = total
	p.At = c.now()
	for _, s := range c.progress {
		s.OnProgress(p)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
