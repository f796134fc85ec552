// Package graph implements the provenance graph (C4): a write-behind mirror
// of attribution, decomposition, and settlement edges over prediction
// bundles and outcomes. It is never the system of record — Mirror only
// queues edges for the OutboxWorker to materialize, and callers needing
// exactness read prediction_bundles/outcomes directly (§4.4 consistency).
package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/ashita-ai/council/internal/model"
	"github.com/ashita-ai/council/internal/storage"
)

// Mirror enqueues provenance edges derived from primary-store writes. It
// holds no state of its own beyond the storage handle it enqueues into.
type Mirror struct {
	db *storage.DB
}

// NewMirror creates a Mirror bound to the storage layer.
func NewMirror(db *storage.DB) *Mirror {
	return &Mirror{db: db}
}

// MirrorBundle queues PREDICTED (Expert -> Decision), HAS_ASSERTION
// (Decision -> Assertion), and USED_IN (Thought -> Assertion, one per memory
// listed in an assertion's why[]) edges for one settled bundle. Call this
// immediately after storage.DB.InsertBundle commits.
func (m *Mirror) MirrorBundle(ctx context.Context, b model.PredictionBundle) error {
	edges := bundleEdges(b)
	if err := m.db.EnqueueGraphEdges(ctx, edges); err != nil {
		return fmt.Errorf("graph: mirror bundle %s: %w", b.NaturalKey(), err)
	}
	return nil
}

// bundleEdges computes the PREDICTED/HAS_ASSERTION/USED_IN edges for one
// settled bundle. Pulled out of MirrorBundle so the edge shape is testable
// without a storage handle.
func bundleEdges(b model.PredictionBundle) []model.GraphEdge {
	decisionID := b.NaturalKey()

	edges := []model.GraphEdge{
		{
			RunID:     b.RunID,
			Type:      model.EdgePredicted,
			FromLabel: model.NodeExpert,
			FromID:    b.ExpertID,
			ToLabel:   model.NodeDecision,
			ToID:      decisionID,
			Properties: map[string]any{
				"game_id": b.GameID,
			},
		},
	}

	for _, categoryID := range sortedAssertionKeys(b.Assertions) {
		a := b.Assertions[categoryID]
		assertionID := decisionID + "|" + categoryID
		edges = append(edges, model.GraphEdge{
			RunID:     b.RunID,
			Type:      model.EdgeHasAssertion,
			FromLabel: model.NodeDecision,
			FromID:    decisionID,
			ToLabel:   model.NodeAssertion,
			ToID:      assertionID,
		})
		for _, memoryID := range a.Why {
			edges = append(edges, model.GraphEdge{
				RunID:     b.RunID,
				Type:      model.EdgeUsedIn,
				FromLabel: model.NodeThought,
				FromID:    memoryID,
				ToLabel:   model.NodeAssertion,
				ToID:      assertionID,
			})
		}
	}
	return edges
}

// MirrorOutcome queues one EVALUATED_AS (Assertion -> Outcome) edge for a
// settled outcome. Call this immediately after storage.DB.InsertOutcome
// commits.
func (m *Mirror) MirrorOutcome(ctx context.Context, o model.Outcome) error {
	assertionID := o.RunID + "|" + o.ExpertID + "|" + o.GameID + "|" + o.CategoryID
	outcomeID := o.RunID + "|" + o.ExpertID + "|" + o.GameID + "|" + o.CategoryID
	edge := model.GraphEdge{
		RunID:     o.RunID,
		Type:      model.EdgeEvaluatedAs,
		FromLabel: model.NodeAssertion,
		FromID:    assertionID,
		ToLabel:   model.NodeOutcome,
		ToID:      outcomeID,
		Properties: map[string]any{
			"correct": o.Correct,
			"error":   o.Error,
		},
	}
	if err := m.db.EnqueueGraphEdges(ctx, []model.GraphEdge{edge}); err != nil {
		return fmt.Errorf("graph: mirror outcome %s: %w", outcomeID, err)
	}
	return nil
}

// MirrorMatchup queues a FACED (Team <-> Team) edge for a game's head-to-head
// aggregation. A single edge is enough to represent the undirected
// relationship; queries look it up from either team's perspective via
// EdgesFrom/EdgesTo with either team as the anchor.
func (m *Mirror) MirrorMatchup(ctx context.Context, runID, homeTeam, awayTeam string) error {
	edge := model.GraphEdge{
		RunID:     runID,
		Type:      model.EdgeFaced,
		FromLabel: model.NodeTeam,
		FromID:    homeTeam,
		ToLabel:   model.NodeTeam,
		ToID:      awayTeam,
	}
	if err := m.db.EnqueueGraphEdges(ctx, []model.GraphEdge{edge}); err != nil {
		return fmt.Errorf("graph: mirror matchup %s/%s: %w", homeTeam, awayTeam, err)
	}
	return nil
}

func sortedAssertionKeys(assertions map[string]model.Assertion) []string {
	keys := make([]string, 0, len(assertions))
	for k := range assertions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
