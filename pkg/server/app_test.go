package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/handler/api"
	"CoinPull/internal/service/synthetic"
	"CoinPull/internal/services/dataset"
	"CoinPull/internal/services/normalize"
	"CoinPull/internal/usecase"
	"CoinPull/pkg/config"
	xhttp "CoinPull/pkg/http"
	applogger "CoinPull/pkg/logger"
	"CoinPull/pkg/metrics"
)

type countingSaver struct {
	mu    sync.Mutex
	saves int
}

func (s *countingSaver) Save(models.Table) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return nil
}

func (s *countingSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func newTestApp(t *testing.T, schedule string) (*App, *dataset.Accumulator, *countingSaver, *closeRecorder) {
	t.Helper()
	cfg := config.Default()
	cfg.Collector.Schedule = schedule

	log := applogger.Nop()
	acc := dataset.NewAccumulator()
	hub := api.NewProgressHub(log)
	collector := usecase.NewCollector(synthetic.New(1), normalize.New(), acc, metrics.Nop{}, log,
		usecase.WithRequest(models.FetchRequest{Start: 1, Limit: 3, Convert: "USD"}),
		usecase.WithProgressSinks(hub),
	)
	saver := &countingSaver{}
	job := usecase.NewCollectionJob(collector, acc, saver, 2, 0, log)
	srv := xhttp.NewServer(log, []xhttp.Handler{hub}, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0))
	closer := &closeRecorder{}

	return New(cfg, log, job, nil, hub, srv, closer), acc, saver, closer
}

func TestAppRunsCollectionOnStart(t *testing.T) {
	app, acc, saver, closer := newTestApp(t, "@every 1h")

	require.NoError(t, app.Start(context.Background()))
	require.Eventually(t, func() bool { return saver.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 6, acc.Len())

	require.NoError(t, app.Shutdown(context.Background()))
	assert.True(t, closer.closed)
}

func TestAppRejectsBadSchedule(t *testing.T) {
	app, _, _, _ := newTestApp(t, "every now and then")
	app.SetRunOnStart(false)
	assert.Error(t, app.Start(context.Background()))
}

func TestKVFields(t *testing.T) {
	fields := kvFields([]interface{}{"entry", 1, "dangling"})
	require.Len(t, fields, 1)
	k, v := fields[0].GetKeyValue()
	assert.Equal(t, "entry", k)
	assert.Equal(t, 1, v)
}
