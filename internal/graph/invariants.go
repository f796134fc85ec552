package graph

import "github.com/ashita-ai/council/internal/model"

// MissingUsedInEdges checks the §4.4 invariant that every memory cited in an
// assertion's why[] has a corresponding USED_IN edge, given the edges
// already materialized for that bundle's assertions. It returns the
// "assertion_id:memory_id" pairs that are missing an edge — orphan detection
// is a test property, not a runtime gate, since the graph lags the primary
// store by design.
func MissingUsedInEdges(b model.PredictionBundle, edges []model.GraphEdge) []string {
	have := make(map[string]bool, len(edges))
	for _, e := range edges {
		if e.Type != model.EdgeUsedIn {
			continue
		}
		have[e.FromID+"->"+e.ToID] = true
	}

	decisionID := b.NaturalKey()
	var missing []string
	for _, categoryID := range sortedAssertionKeys(b.Assertions) {
		a := b.Assertions[categoryID]
		assertionID := decisionID + "|" + categoryID
		for _, memoryID := range a.Why {
			if !have[memoryID+"->"+assertionID] {
				missing = append(missing, assertionID+":"+memoryID)
			}
		}
	}
	return missing
}
