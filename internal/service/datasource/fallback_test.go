package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/service/coinmarketcap"
	"CoinPull/internal/service/synthetic"
	"CoinPull/pkg/config"
	"CoinPull/pkg/logger"
	"CoinPull/pkg/metrics"
)

type stubSource struct {
	name  string
	err   error
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(context.Context, models.FetchRequest) (*models.Snapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &models.Snapshot{Source: s.name}, nil
}

func TestFallbackPrefersPrimary(t *testing.T) {
	primary, secondary := &stubSource{name: "p"}, &stubSource{name: "s"}
	snap, err := NewFallback(primary, secondary, metrics.Nop{}, logger.Nop()).Fetch(context.Background(), models.FetchRequest{})
	require.NoError(t, err)
	assert.Equal(t, "p", snap.Source)
	assert.Zero(t, secondary.calls)
}

func TestFallbackOnFetchError(t *testing.T) {
	primary := &stubSource{name: "p", err: models.NewFetchError("p", models.FetchAuth, errors.New("bad key"))}
	secondary := &stubSource{name: "s"}
	f := NewFallback(primary, secondary, metrics.Nop{}, logger.Nop())

	snap, err := f.Fetch(context.Background(), models.FetchRequest{})
	require.NoError(t, err)
	assert.Equal(t, "s", snap.Source)
	assert.Equal(t, "fallback(p->s)", f.Name())
}

func TestFallbackPassesThroughOtherErrors(t *testing.T) {
	primary := &stubSource{name: "p", err: errors.New("bug")}
	secondary := &stubSource{name: "s"}
	_, err := NewFallback(primary, secondary, metrics.Nop{}, logger.Nop()).Fetch(context.Background(), models.FetchRequest{})
	assert.Error(t, err)
	assert.Zero(t, secondary.calls)
}

func TestFallbackBothFail(t *testing.T) {
	primary := &stubSource{name: "p", err: models.NewFetchError("p", models.FetchNetwork, errors.New("down"))}
	secondary := &stubSource{name: "s", err: models.NewFetchError("s", models.FetchNetwork, errors.New("also down"))}
	_, err := NewFallback(primary, secondary, metrics.Nop{}, logger.Nop()).Fetch(context.Background(), models.FetchRequest{})
	require.Error(t, err)
	assert.Equal(t, models.FetchNetwork, models.FetchErrorKindOf(err))
}

func TestFactory(t *testing.T) {
	cfg := config.Default().Source

	cfg.Type = "synthetic"
	src, err := New(cfg, metrics.Nop{}, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &synthetic.Source{}, src)

	cfg.Type = "coinmarketcap"
	src, err = New(cfg, metrics.Nop{}, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &coinmarketcap.Client{}, src)

	cfg.Type = "fallback"
	src, err = New(cfg, metrics.Nop{}, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "fallback(coinmarketcap->synthetic)", src.Name())

	cfg.Type = "ftp"
	_, err = New(cfg, metrics.Nop{}, logger.Nop())
	assert.Error(t, err)
}
