package usecase

import (
	"CoinPull/internal/domain/models"
	"CoinPull/pkg/logger"
)

// LogProgress prints one line per collector iteration.
type LogProgress struct {
	log   *logger.Logger
	delay string
}

func NewLogProgress(log *logger.Logger, delay string) *LogProgress {
	return &LogProgress{log: log, delay: delay}
}

func (p *LogProgress) OnProgress(pr models.Progress) {
	fields := []logger.Field{
		logger.Int("iteration", pr.Iteration),
		logger.Int("of", pr.Iterations),
		logger.Int("rows_collected", pr.RowsAdded),
		logger.Int("total_rows", pr.TotalRows),
	}
	if pr.Skipped > 0 {
		fields = append(fields, logger.Int("skipped", pr.Skipped))
	}
	if pr.Error != "" {
		p.log.Warn("iteration produced no rows", append(fields, logger.String("error", pr.Error))...)
	} else {
		p.log.Info("iteration progress", fields...)
	}
	if pr.Iteration < pr.Iterations && p.delay != "" {
		p.log.Info("sleeping before next iteration", logger.String("delay", p.delay))
	}
}
