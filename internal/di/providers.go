package di

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/domain/repository"
	"CoinPull/internal/handler/api"
	mid "CoinPull/internal/middleware"
	internalrepo "CoinPull/internal/repository"
	"CoinPull/internal/service/chart"
	"CoinPull/internal/service/datasource"
	"CoinPull/internal/services/analytics"
	"CoinPull/internal/services/dataset"
	"CoinPull/internal/services/normalize"
	"CoinPull/internal/usecase"
	"CoinPull/pkg/cache"
	pkgch "CoinPull/pkg/clickhouse"
	"CoinPull/pkg/config"
	xhttp "CoinPull/pkg/http"
	pkgkafka "CoinPull/pkg/kafka"
	"CoinPull/pkg/logger"
	"CoinPull/pkg/metrics"
	"CoinPull/pkg/postgres"
	"CoinPull/pkg/server"
)

// Sinks are the batch consumers enabled in config. Store is the first
// database sink, used to resume the table, or nil.
type Sinks struct {
	Batch  []repository.BatchSink
	Store  repository.TableStore
	Checks []api.HealthChecker
}

// Runtime bundles what the one-shot CLI commands need.
type Runtime struct {
	Config    *config.Config
	Logger    *logger.Logger
	Dataset   *dataset.Accumulator
	Collector *usecase.Collector
	Job       *usecase.CollectionJob
	Reports   *usecase.ReportUseCase
	TableFile *internalrepo.CSVTableFile
	Charts    *chart.Renderer
	Pipeline  *mid.SinkPipeline
}

// ProvideLogger builds the app logger. Aggregated warn/error logs go to Kafka
// when enabled and a producer exists.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, func(), error) {
	l, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Log.Aggregate.Enabled && producer != nil {
		l.AttachAggregator(&logger.AggregatorConfig{
			FlushInterval:  cfg.Log.Aggregate.FlushInterval,
			CountThreshold: cfg.Log.Aggregate.CountThreshold,
			Topic:          cfg.Log.Aggregate.Topic,
			Publisher:      producer,
		})
	}
	return l, l.DetachAggregator, nil
}

// ProvideRegistry creates the Prometheus registry served at /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.NewWithRegistry(reg)
}

// ProvideKafkaProducer returns nil when neither the kafka sink nor log
// aggregation needs one.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Sinks.Has("kafka") && !cfg.Log.Aggregate.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(producerOptions(cfg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

func producerOptions(cfg *config.Config) []pkgkafka.ProducerOption {
	return []pkgkafka.ProducerOption{
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopics(cfg.Environment == "development"),
	}
}

// ProvideSinks connects every enabled sink and prepares its schema.
func ProvideSinks(cfg *config.Config, producer *pkgkafka.Producer, log *logger.Logger) (*Sinks, func(), error) {
	s := &Sinks{}
	var closers []io.Closer
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}
	fail := func(err error) (*Sinks, func(), error) {
		cleanup()
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	identity := cfg.Normalizer.IdentityField
	for _, name := range cfg.Sinks.Enabled {
		switch name {
		case "kafka":
			if producer == nil {
				return fail(errors.New("kafka sink enabled without a producer"))
			}
			s.Batch = append(s.Batch, internalrepo.NewKafkaBatchPublisher(producer, cfg.Kafka.Topic, identity))
		case "clickhouse":
			ch, err := pkgch.NewClient(
				pkgch.WithHost(cfg.ClickHouse.Host),
				pkgch.WithPort(cfg.ClickHouse.Port),
				pkgch.WithDatabase(cfg.ClickHouse.Database),
				pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
				pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
				pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
				pkgch.WithCompression(!cfg.ClickHouse.DisableCompression),
				pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, true),
				pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
			)
			if err != nil {
				return fail(fmt.Errorf("clickhouse client: %w", err))
			}
			store, err := internalrepo.NewCHTableStore(ch, cfg.ClickHouse.Table, identity, log)
			if err != nil {
				_ = ch.Close()
				return fail(err)
			}
			closers = append(closers, store)
			if err := store.Init(ctx); err != nil {
				return fail(fmt.Errorf("clickhouse schema: %w", err))
			}
			s.add(store)
		case "postgres":
			pg, err := postgres.NewClient(
				postgres.WithDSN(cfg.Postgres.DSN),
				postgres.WithMaxConnections(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns),
				postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
			)
			if err != nil {
				return fail(fmt.Errorf("postgres client: %w", err))
			}
			store, err := internalrepo.NewPGTableStore(pg, cfg.Postgres.Table, identity, log)
			if err != nil {
				_ = pg.Close()
				return fail(err)
			}
			closers = append(closers, store)
			if err := store.Init(ctx); err != nil {
				return fail(fmt.Errorf("postgres schema: %w", err))
			}
			s.add(store)
		}
	}
	return s, cleanup, nil
}

type tableSink interface {
	repository.TableStore
	repository.BatchSink
}

func (s *Sinks) add(store tableSink) {
	s.Batch = append(s.Batch, store)
	s.Checks = append(s.Checks, store)
	if s.Store == nil {
		s.Store = store
	}
}

// ProvideSinkPipeline creates the async pipeline feeding the sinks.
func ProvideSinkPipeline(cfg *config.Config, sinks *Sinks, m repository.Metrics, log *logger.Logger) *mid.SinkPipeline {
	return mid.NewSinkPipeline(sinks.Batch, m, log.With(logger.String("component", "sinks")),
		mid.WithBufferSize(cfg.Sinks.BufferSize),
		mid.WithRetries(cfg.Sinks.MaxRetries, cfg.Sinks.Backoff),
	)
}

// ProvideDataSource builds the configured snapshot source.
func ProvideDataSource(cfg *config.Config, m repository.Metrics, log *logger.Logger) (repository.DataSource, error) {
	return datasource.New(cfg.Source, m, log)
}

func ProvideNormalizer(cfg *config.Config) *normalize.Normalizer {
	return normalize.New(
		normalize.WithIdentityField(cfg.Normalizer.IdentityField),
		normalize.WithDropFields(cfg.Normalizer.DropFields...),
	)
}

func ProvideTableFile(cfg *config.Config) *internalrepo.CSVTableFile {
	return internalrepo.NewCSVTableFile(filepath.Join(cfg.Output.Dir, cfg.Output.CSVFile))
}

// ProvideDataset creates the accumulator. With collector.resume set it starts
// from the table store if one is enabled, else from the CSV file.
func ProvideDataset(cfg *config.Config, file *internalrepo.CSVTableFile, sinks *Sinks, log *logger.Logger) (*dataset.Accumulator, error) {
	acc := dataset.NewAccumulator()
	if !cfg.Collector.Resume {
		return acc, nil
	}

	var (
		t      models.Table
		err    error
		source = file.Path()
	)
	if sinks.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		source = cfg.TableStore()
		t, err = sinks.Store.LoadTable(ctx)
	} else {
		t, err = file.Load()
		if errors.Is(err, internalrepo.ErrTableFileNotFound) {
			log.Info("no saved table, starting empty", logger.String("path", file.Path()))
			return acc, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("resume table: %w", err)
	}
	if err := acc.Load(t); err != nil {
		return nil, fmt.Errorf("resume table: %w", err)
	}
	log.Info("table resumed", logger.String("from", source), logger.Int("rows", acc.Len()))
	return acc, nil
}

func ProvideProgressHub(log *logger.Logger) *api.ProgressHub {
	return api.NewProgressHub(log.With(logger.String("component", "progress")))
}

func ProvideCollector(
	cfg *config.Config,
	source repository.DataSource,
	normalizer *normalize.Normalizer,
	acc *dataset.Accumulator,
	pipeline *mid.SinkPipeline,
	hub *api.ProgressHub,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.Collector {
	return usecase.NewCollector(source, normalizer, acc, m, log.With(logger.String("component", "collector")),
		usecase.WithRequest(models.FetchRequest{Start: cfg.Source.Start, Limit: cfg.Source.Limit, Convert: cfg.Source.Convert}),
		usecase.WithSinkPipeline(pipeline),
		usecase.WithProgressSinks(usecase.NewLogProgress(log, cfg.Collector.Delay.String()), hub),
	)
}

func ProvideCollectionJob(cfg *config.Config, c *usecase.Collector, acc *dataset.Accumulator, file *internalrepo.CSVTableFile, log *logger.Logger) *usecase.CollectionJob {
	return usecase.NewCollectionJob(c, acc, file, cfg.Collector.Iterations, cfg.Collector.Delay, log)
}

// ProvideCache creates the report cache backend.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	var (
		c   cache.Service
		err error
	)
	switch cfg.Cache.Type {
	case "redis":
		c, err = cache.NewRedisCache(redisOptions(cfg)...)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
	default:
		c = cache.NewMemoryCache(memoryOptions(cfg)...)
	}
	return c, func() { _ = c.Close() }, nil
}

func redisOptions(cfg *config.Config) []cache.RedisOption {
	return []cache.RedisOption{
		cache.WithRedisAddr(cfg.Cache.Addr),
		cache.WithRedisPassword(cfg.Cache.Password),
		cache.WithRedisDB(cfg.Cache.DB),
		cache.WithRedisPool(cfg.Cache.PoolSize, cfg.Cache.MinIdleConns, cfg.Cache.PoolTimeout),
		cache.WithRedisPrefix(cfg.Cache.Prefix),
	}
}

func memoryOptions(cfg *config.Config) []cache.MemoryOption {
	return []cache.MemoryOption{
		cache.WithMemoryMaxSize(cfg.Cache.MaxEntries),
		cache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
	}
}

func ProvideTrendAnalyzer(cfg *config.Config) *analytics.TrendAnalyzer {
	opts := []analytics.Option{analytics.WithColumns(cfg.Analysis.Columns...)}
	if cfg.Analysis.GroupBy != nil {
		opts = append(opts, analytics.WithGroupBy(*cfg.Analysis.GroupBy))
	}
	return analytics.NewTrendAnalyzer(cfg.Normalizer.IdentityField, cfg.Source.Convert, opts...)
}

func ProvideReportUseCase(cfg *config.Config, acc *dataset.Accumulator, a *analytics.TrendAnalyzer, c cache.Service, m repository.Metrics, log *logger.Logger) *usecase.ReportUseCase {
	return usecase.NewReportUseCase(acc, a, cfg.Normalizer.IdentityField, c, cfg.Cache.TTL, m, log)
}

func ProvideChartRenderer(cfg *config.Config, log *logger.Logger) *chart.Renderer {
	return chart.New(log, chart.WithIdentityField(cfg.Normalizer.IdentityField))
}

func ProvideListingsHandler(cfg *config.Config, log *logger.Logger, reports *usecase.ReportUseCase, sinks *Sinks) *api.ListingsHandler {
	return api.NewListingsHandler(log, reports, cfg.Normalizer.IdentityField, sinks.Checks...)
}

func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, reg *prometheus.Registry, listings *api.ListingsHandler, hub *api.ProgressHub) *xhttp.Server {
	return xhttp.NewServer(log.With(logger.String("component", "http")), []xhttp.Handler{listings, hub}, serverOptions(cfg, reg)...)
}

func serverOptions(cfg *config.Config, reg *prometheus.Registry) []xhttp.ServerOption {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	}
	return opts
}

func ProvideApp(cfg *config.Config, log *logger.Logger, job *usecase.CollectionJob, pipeline *mid.SinkPipeline, hub *api.ProgressHub, srv *xhttp.Server) *server.App {
	return server.New(cfg, log, job, pipeline, hub, srv)
}
