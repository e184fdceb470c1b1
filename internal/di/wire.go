//go:build wireinject
// +build wireinject

package di

import (
	"CoinPull/pkg/config"
	"CoinPull/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	// Observability
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,

	// Storage and sinks
	ProvideSinks,
	ProvideSinkPipeline,
	ProvideTableFile,
	ProvideCache,
)

var pipelineSet = wire.NewSet(
	ProvideDataSource,
	ProvideNormalizer,
	ProvideDataset,
	ProvideProgressHub,
	ProvideCollector,
	ProvideCollectionJob,
	ProvideTrendAnalyzer,
	ProvideReportUseCase,
)

// InitializeApp wires the long-running service: scheduler, API and sinks.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		pipelineSet,

		// HTTP
		ProvideListingsHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeRuntime wires the pieces used by one-shot CLI commands.
func InitializeRuntime(cfg *config.Config) (*Runtime, func(), error) {
	wire.Build(
		infraSet,
		pipelineSet,
		ProvideChartRenderer,
		wire.Struct(new(Runtime), "*"),
	)
	return nil, nil, nil
}
