package analytics

import (
	"sort"

	"CoinPull/internal/domain/models"
)

// DefaultTopAssets is how many assets Summarize lists by default.
const DefaultTopAssets = 10

// Summarize describes the table: row count, distinct assets, the collection
// period and the most sampled assets. Ties keep first-seen order.
func Summarize(t models.Table, identity string, top int) models.Summary {
	if identity == "" {
		identity = models.DefaultIdentityField
	}
	if top <= 0 {
		top = DefaultTopAssets
	}

	s := models.Summary{TotalRows: t.Len(), TopAssets: []models.AssetCount{}}

	counts := make(map[string]int)
	var order []string
	for _, r := range t.Rows {
		if ts, ok := r.CollectedAt(); ok {
			if s.PeriodStart == nil || ts.Before(*s.PeriodStart) {
				start := ts
				s.PeriodStart = &start
			}
			if s.PeriodEnd == nil || ts.After(*s.PeriodEnd) {
				end := ts
				s.PeriodEnd = &end
			}
		}

		id, ok := r.Text(identity)
		if !ok {
			continue
		}
		if _, seen := counts[id]; !seen {
			order = append(order, id)
		}
		counts[id]++
	}

	s.UniqueAssets = len(order)
	assets := make([]models.AssetCount, len(order))
	for i, id := range order {
		assets[i] = models.AssetCount{Asset: id, Rows: counts[id]}
	}
	sort.SliceStable(assets, func(i, j int) bool { return assets[i].Rows > assets[j].Rows })
	if len(assets) > top {
		assets = assets[:top]
	}
	s.TopAssets = assets
	return s
}
