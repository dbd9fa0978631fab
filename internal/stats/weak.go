package stats

import (
	"sort"

	"github.com/verte-zerg/keeglog/internal/model"
)

// SlowestKeys returns up to top keys ordered by mean latency, slowest first.
// Keys without any measured latency are skipped.
func SlowestKeys(aggs []model.KeyAggregate, top int) []model.KeyAggregate {
	candidates := make([]model.KeyAggregate, 0, len(aggs))
	for _, agg := range aggs {
		if agg.LatencyCount > 0 {
			candidates = append(candidates, agg)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		li := meanLatency(candidates[i])
		lj := meanLatency(candidates[j])
		if li == lj {
			return candidates[i].Char < candidates[j].Char
		}
		return li > lj
	})
	if top > 0 && top < len(candidates) {
		candidates = candidates[:top]
	}
	return candidates
}
