// Package scoring holds the deterministic core of the matching engine:
// weight assignment, confidence scoring, explanations, skill normalization
// and the hashes that key the match cache. Nothing here performs I/O.
package scoring

import (
	"sort"
	"strings"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

// AssignWeights distributes 100 points over the given set of dimension ids.
// Every id receives 100/n and the remainder goes one point at a time to the
// lexicographically first ids, so the result depends only on the set.
// Duplicates and blank ids are ignored; an empty set yields empty weights.
func AssignWeights(ids []domain.DimensionID) domain.Weights {
	set := make(map[domain.DimensionID]struct{}, len(ids))
	for _, id := range ids {
		id = domain.DimensionID(strings.TrimSpace(string(id)))
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	if len(set) == 0 {
		return domain.Weights{}
	}

	sorted := make([]domain.DimensionID, 0, len(set))
	for id := range set {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	base := 100 / n
	remainder := 100 - base*n

	weights := make(domain.Weights, n)
	for i, id := range sorted {
		weights[id] = base
		if i < remainder {
			weights[id]++
		}
	}
	return weights
}
