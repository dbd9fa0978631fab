package stats

import (
	"sort"

	"github.com/verte-zerg/keeglog/internal/model"
)

// TopKeysByFrequency returns the top N keys by press count.
func TopKeysByFrequency(aggs []model.KeyAggregate, n int) []string {
	if n <= 0 || len(aggs) == 0 {
		return nil
	}
	items := make([]model.KeyAggregate, len(aggs))
	copy(items, aggs)
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Char < items[j].Char
		}
		return items[i].Count > items[j].Count
	})
	n = min(n, len(items))
	out := make([]string, 0, n)
	for _, item := range items[:n] {
		out = append(out, item.Char)
	}
	return out
}
