// Package council implements the Council Selector & Consensus Aggregator
// (C7): dynamic top-N expert selection from rolling performance, and
// type-aware weighted aggregation of the selected experts' bundles into a
// single consensus prediction per category, with an explanation.
//
// Both Select and Aggregate are pure functions of their inputs — stored
// bundles plus rolling stats — and do no I/O of their own.
package council

import (
	"sort"

	"github.com/ashita-ai/council/internal/model"
)

// DefaultCouncilSize is N in §4.7 when the run playbook leaves it unset.
const DefaultCouncilSize = 5

// Select ranks eligible experts by SelectionScore and returns the top n,
// applying the deterministic tie-break: sel desc, accuracy desc, expert_id
// asc (§4.7). Ineligible experts are excluded before ranking.
func Select(stats []model.ExpertStats, n int) []model.ExpertStats {
	if n <= 0 {
		n = DefaultCouncilSize
	}

	eligible := make([]model.ExpertStats, 0, len(stats))
	for _, s := range stats {
		if s.Eligible {
			eligible = append(eligible, s)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		selA, selB := a.SelectionScore(), b.SelectionScore()
		if selA != selB {
			return selA > selB
		}
		if a.AccOverall != b.AccOverall {
			return a.AccOverall > b.AccOverall
		}
		return a.ExpertID < b.ExpertID
	})

	if len(eligible) > n {
		eligible = eligible[:n]
	}
	return eligible
}
