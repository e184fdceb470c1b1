package datasource

import (
	"fmt"

	drepo "CoinPull/internal/domain/repository"
	"CoinPull/internal/service/coinmarketcap"
	"CoinPull/internal/service/ratelimit"
	"CoinPull/internal/service/synthetic"
	"CoinPull/pkg/config"
	xhttp "CoinPull/pkg/http"
	"CoinPull/pkg/logger"
)

// New builds the data source selected by cfg.Type.
func New(cfg config.SourceConfig, metrics drepo.Metrics, log *logger.Logger) (drepo.DataSource, error) {
	switch cfg.Type {
	case synthetic.SourceName:
		return synthetic.New(cfg.Seed), nil
	case coinmarketcap.SourceName:
		return newCMC(cfg, log), nil
	case FallbackName:
		return NewFallback(newCMC(cfg, log), synthetic.New(cfg.Seed), metrics, log), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}

func newCMC(cfg config.SourceConfig, log *logger.Logger) *coinmarketcap.Client {
	return coinmarketcap.New(cfg.BaseURL, cfg.APIKey, log.With(logger.String("source", coinmarketcap.SourceName)),
		coinmarketcap.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout))),
		coinmarketcap.WithLimiter(ratelimit.PerMinute(cfg.RatePerMinute)),
	)
}
