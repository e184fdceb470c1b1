package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CoinPull/internal/domain/models"
	domrepo "CoinPull/internal/domain/repository"
	"CoinPull/pkg/logger"
)

// ErrPipelineFull is returned by Submit when the buffer cannot take another batch.
var ErrPipelineFull = errors.New("sink pipeline buffer full")

// SinkPipeline sits between the collector and the batch sinks (Kafka,
// databases). Batches are buffered and delivered in the background with
// retries so a slow or failing sink never stalls collection.
type SinkPipeline struct {
	sinks      []domrepo.BatchSink
	metrics    domrepo.Metrics
	log        *logger.Logger
	bufSize    int
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	sleep      func(ctx context.Context, d time.Duration) error

	bufCh   chan *models.Batch
	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

type PipelineOption func(*SinkPipeline)

// WithBufferSize sets how many batches may wait for delivery.
func WithBufferSize(n int) PipelineOption {
	return func(p *SinkPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithRetries sets the retry count per sink and the initial backoff.
func WithRetries(n int, backoff time.Duration) PipelineOption {
	return func(p *SinkPipeline) {
		if n >= 0 {
			p.maxRetries = n
		}
		if backoff > 0 {
			p.backoff = backoff
		}
	}
}

// WithSleep replaces the backoff sleep; used by tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) PipelineOption {
	return func(p *SinkPipeline) { p.sleep = fn }
}

func NewSinkPipeline(sinks []domrepo.BatchSink, metrics domrepo.Metrics, log *logger.Logger, opts ...PipelineOption) *SinkPipeline {
	p := &SinkPipeline{
		sinks:      sinks,
		metrics:    metrics,
		log:        log,
		bufSize:    64,
		maxRetries: 3,
		backoff:    50 * time.Millisecond,
		maxBackoff: 2 * time.Second,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Batch, p.bufSize)
	p.done = make(chan struct{})
	return p
}

// Len reports how many sinks are attached.
func (p *SinkPipeline) Len() int { return len(p.sinks) }

// Start launches the delivery worker.
func (p *SinkPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		for b := range p.bufCh {
			p.deliver(ctx, b)
		}
	}()
}

// Submit queues a batch without blocking.
func (p *SinkPipeline) Submit(b *models.Batch) error {
	if len(p.sinks) == 0 || b == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("sink pipeline stopped")
	}
	select {
	case p.bufCh <- b:
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return ErrPipelineFull
	}
}

// Stop refuses new batches and waits until queued ones are delivered.
func (p *SinkPipeline) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	started := p.started
	close(p.bufCh)
	p.mu.Unlock()

	if started {
		<-p.done
	}
}

func (p *SinkPipeline) deliver(ctx context.Context, b *models.Batch) {
	for _, s := range p.sinks {
		start := time.Now()
		if err := p.deliverOne(ctx, s, b); err != nil {
			p.metrics.RecordError("sink_" + s.Name())
			p.log.Error("batch sink failed",
				logger.String("sink", s.Name()),
				logger.String("run_id", b.RunID),
				logger.Int("iteration", b.Iteration),
				logger.Int("rows", len(b.Rows)),
				logger.Error(err),
			)
			continue
		}
		p.metrics.RecordLatency("sink_"+s.Name(), time.Since(start).Seconds())
	}
}

func (p *SinkPipeline) deliverOne(ctx context.Context, s domrepo.BatchSink, b *models.Batch) error {
	backoff := p.backoff
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			if serr := p.sleep(ctx, backoff); serr != nil {
				return fmt.Errorf("%w (last error: %v)", serr, err)
			}
			// exponential backoff with cap
			if backoff < p.maxBackoff {
				backoff *= 2
			}
		}
		if err = s.Consume(ctx, b); err == nil {
			return nil
		}
	}
	return fmt.Errorf("after %d attempts: %w", p.maxRetries+1, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
