package synthetic

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
)

const SourceName = "synthetic"

// asset is the baseline of one generated listing. Each sigma is the spread
// of the noise added per fetch.
type asset struct {
	id        int
	name      string
	symbol    string
	slug      string
	price     float64
	priceSD   float64
	changeSD  [6]float64
	marketCap float64
	volume24h float64
}

var assets = []asset{
	{1, "Bitcoin", "BTC", "bitcoin", 45000.50, 1000, [6]float64{2, 5, 10, 15, 20, 25}, 800e9, 25e9},
	{2, "Ethereum", "ETH", "ethereum", 3200.75, 200, [6]float64{2, 5, 10, 15, 20, 25}, 400e9, 15e9},
	{3, "Tether", "USDT", "tether", 1.00, 0.01, [6]float64{0.1, 0.2, 0.3, 0.5, 0.7, 1.0}, 90e9, 50e9},
}

var timeframes = [6]string{"1h", "24h", "7d", "30d", "60d", "90d"}

// Source produces listings in the CoinMarketCap shape from a seeded generator,
// so the same seed yields the same sequence of snapshots.
type Source struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

type Option func(*Source)

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

func New(seed int64, opts ...Option) *Source {
	s := &Source{rng: rand.New(rand.NewSource(seed)), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Source) Name() string { return SourceName }

// Fetch honours Start, Limit and Convert against the fixed asset list.
func (s *Source) Fetch(ctx context.Context, req models.FetchRequest) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewFetchError(SourceName, models.FetchNetwork, err)
	}

	convert := req.Convert
	if convert == "" {
		convert = "USD"
	}
	start := req.Start
	if start < 1 {
		start = 1
	}
	end := len(assets)
	if req.Limit > 0 && start-1+req.Limit < end {
		end = start - 1 + req.Limit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &models.Snapshot{Source: SourceName, FetchedAt: s.now()}
	for rank := start; rank <= end; rank++ {
		raw, err := json.Marshal(s.entry(assets[rank-1], rank, convert))
		if err != nil {
			return nil, models.NewFetchError(SourceName, models.FetchMalformedResponse, fmt.Errorf("encode %s: %w", assets[rank-1].symbol, err))
		}
		snap.Entries = append(snap.Entries, raw)
	}
	return snap, nil
}

// entry is built with ordered fields so the flattened column order is stable.
func (s *Source) entry(a asset, rank int, convert string) orderedObject {
	quote := orderedObject{{"price", a.price + s.rng.NormFloat64()*a.priceSD}}
	for i, tf := range timeframes {
		quote = append(quote, kv{"percent_change_" + tf, s.rng.NormFloat64() * a.changeSD[i]})
	}
	quote = append(quote, kv{"market_cap", a.marketCap}, kv{"volume_24h", a.volume24h})

	return orderedObject{
		{"id", a.id},
		{"name", a.name},
		{"symbol", a.symbol},
		{"slug", a.slug},
		{"cmc_rank", rank},
		{"quote", orderedObject{{convert, quote}}},
	}
}

type kv struct {
	key   string
	value interface{}
}

// orderedObject marshals as a JSON object keeping insertion order.
type orderedObject []kv

func (o orderedObject) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, f := range o {
		if i > 0 {
			buf = append(buf, ',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}

var _ drepo.DataSource = (*Source)(nil)
