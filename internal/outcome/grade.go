// Package outcome implements Outcome Ingestion & Belief Revision (C8):
// grading settled games against every eligible expert's bundle, updating
// calibration buckets and learned factor weights, forming a learning memory
// per expert per game, and recomputing bankroll and eligibility. The
// storage-layer natural-key idempotency (internal/storage) makes every
// write here safe to retry: a re-ingestion of the same settlement is
// detected and rejected rather than double-crediting an expert.
package outcome

import (
	"context"
	"fmt"
	"math"

	"github.com/ashita-ai/council/internal/decay"
	"github.com/ashita-ai/council/internal/integrity"
	"github.com/ashita-ai/council/internal/model"
	"github.com/ashita-ai/council/internal/storage"
)

// EMALambdaBase is the base learning rate for the numeric-error EMA (eq. 5);
// the effective lambda is this scaled by the temporal decay factor.
const EMALambdaBase = 0.1

// FactorWeightEta is the default per-update step size for belief revision
// (§4.8): correct assertions multiply a cited factor's weight by
// 1+eta*decay(d,H); incorrect assertions by 1-eta*decay(d,H).
const FactorWeightEta = 0.05

// Grader settles a single game's outcomes against the bundles submitted by
// every expert, one expert at a time. Ingestion for a (run_id, game_id) pair
// must be single-writer (§5) — the caller is responsible for serializing
// concurrent Grade calls on the same game, e.g. with a per-game lock.
type Grader struct {
	db         *storage.DB
	categories *model.CategoryRegistry
}

// NewGrader creates a Grader bound to the storage layer and the category
// registry, used to decide each assertion's grading metric (§4.8).
func NewGrader(db *storage.DB, categories *model.CategoryRegistry) *Grader {
	return &Grader{db: db, categories: categories}
}

// GradeResult summarises what Grade did for one expert's bundle, useful for
// logging and for driving the provenance graph's EVALUATED_AS edges.
type GradeResult struct {
	ExpertID    string
	Outcomes    []model.Outcome
	LearningMem model.EpisodicMemory
	Bankroll    model.Bankroll
	Eligibility model.EligibilityGate
}

// Grade settles one expert's PredictionBundle against the game's final
// result, running the full belief-revision pipeline: per-assertion grading,
// calibration update, factor-weight adjustment, learning-memory formation,
// and bankroll/eligibility recompute. Schema-invalid bundles still update
// eligibility (a validity EMA sample of 0) but contribute no calibration or
// factor-weight signal, since their assertions were never council-eligible.
func (g *Grader) Grade(ctx context.Context, game model.GradedGame, bundle model.PredictionBundle, ageDays, halfLifeDays float64) (GradeResult, error) {
	result := GradeResult{ExpertID: bundle.ExpertID}

	if !bundle.SchemaValid {
		eligibility, err := g.updateEligibility(ctx, bundle.RunID, bundle.ExpertID, false, bundle.LatencyMS)
		if err != nil {
			return GradeResult{}, err
		}
		result.Eligibility = eligibility
		return result, nil
	}

	outcomes := make([]model.Outcome, 0, len(bundle.Assertions))
	outcomeByCategory := make(map[string]model.Outcome, len(bundle.Assertions))
	var correctCount, incorrectCount int
	factorDeltas := make(map[string]float64)

	for categoryID, assertion := range bundle.Assertions {
		o := gradeAssertion(game, categoryID, assertion, g.categories)
		o.RunID = bundle.RunID
		o.GameID = bundle.GameID
		o.ExpertID = bundle.ExpertID

		contentHash := integrity.ComputeOutcomeContentHash(o.RunID, o.GameID, o.ExpertID, o.CategoryID, o.Correct, o.Error)
		if err := g.db.InsertOutcome(ctx, o, contentHash); err != nil {
			return GradeResult{}, fmt.Errorf("outcome: insert outcome for %s/%s: %w", bundle.ExpertID, categoryID, err)
		}
		outcomes = append(outcomes, o)
		outcomeByCategory[categoryID] = o

		if err := g.updateCalibration(ctx, bundle.RunID, bundle.ExpertID, categoryID, o, ageDays, halfLifeDays); err != nil {
			return GradeResult{}, err
		}
		if o.Correct != nil {
			if err := g.db.RecordWeekAccuracy(ctx, bundle.RunID, bundle.ExpertID, game.Week, *o.Correct); err != nil {
				return GradeResult{}, err
			}
		}

		correct := outcomeCorrect(o)
		if correct {
			correctCount++
		} else {
			incorrectCount++
		}
		d := decay.Decay(ageDays, halfLifeDays)
		step := FactorWeightEta * d
		if !correct {
			step = -step
		}
		for _, factor := range assertion.Why {
			// Compose one multiplicative step per assertion: (1+acc)(1+step)-1.
			factorDeltas[factor] = (1+factorDeltas[factor])*(1+step) - 1
		}
	}
	result.Outcomes = outcomes

	if err := g.applyFactorDeltas(ctx, bundle.RunID, bundle.ExpertID, factorDeltas); err != nil {
		return GradeResult{}, err
	}

	mem := formLearningMemory(bundle, correctCount, incorrectCount)
	stored, err := g.db.InsertMemory(ctx, mem)
	if err != nil {
		return GradeResult{}, fmt.Errorf("outcome: insert learning memory: %w", err)
	}
	result.LearningMem = stored

	bankroll, err := g.settleBankroll(ctx, bundle, outcomeByCategory)
	if err != nil {
		return GradeResult{}, err
	}
	result.Bankroll = bankroll

	eligibility, err := g.updateEligibility(ctx, bundle.RunID, bundle.ExpertID, true, bundle.LatencyMS)
	if err != nil {
		return GradeResult{}, err
	}
	result.Eligibility = eligibility

	return result, nil
}

// gradeAssertion computes correct/error for one assertion against the
// settled game (§4.8): binary/enum grades to a bool; numeric grades to an
// absolute error; percentage grades to a squared error.
func gradeAssertion(game model.GradedGame, categoryID string, a model.Assertion, categories *model.CategoryRegistry) model.Outcome {
	o := model.Outcome{CategoryID: categoryID}

	actual, ok := actualValue(game, categoryID)
	if !ok {
		return o
	}

	switch v := a.Value.(type) {
	case string:
		actualStr, ok := actual.(string)
		correct := ok && v == actualStr
		o.Correct = &correct
	case float64:
		actualFloat, ok := toFloat(actual)
		if !ok {
			return o
		}
		if isPercentageAssertion(categoryID, categories) {
			sq := (v - actualFloat) * (v - actualFloat)
			o.Error = &sq
		} else {
			abs := math.Abs(v - actualFloat)
			o.Error = &abs
		}
	}
	return o
}

// actualValue resolves the settled truth for a category_id from the
// FinalScore and its resolved props, or ok=false if unavailable.
func actualValue(game model.GradedGame, categoryID string) (any, bool) {
	switch categoryID {
	case "home_score":
		return float64(game.Final.HomeScore), true
	case "away_score":
		return float64(game.Final.AwayScore), true
	case "total_points":
		return float64(game.Final.HomeScore + game.Final.AwayScore), true
	case "winner":
		if game.Final.HomeScore == game.Final.AwayScore {
			return nil, false
		}
		if game.Final.HomeScore > game.Final.AwayScore {
			return "HOME", true
		}
		return "AWAY", true
	case "final_margin":
		return float64(game.Final.HomeScore - game.Final.AwayScore), true
	default:
		v, ok := game.Final.Props[categoryID]
		return v, ok
	}
}

// isPercentageAssertion reports whether categoryID is registered as a
// percentage-valued category (§3), which grades on squared error (§4.8)
// rather than absolute error. A category absent from the registry (or a nil
// registry, as in unit tests exercising gradeAssertion directly) falls back
// to absolute error rather than silently mis-grading an unknown id.
func isPercentageAssertion(categoryID string, categories *model.CategoryRegistry) bool {
	if categories == nil {
		return false
	}
	cat, ok := categories.Get(categoryID)
	return ok && cat.PredType == model.PredPercentage
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func outcomeCorrect(o model.Outcome) bool {
	if o.Correct != nil {
		return *o.Correct
	}
	if o.Error != nil {
		return *o.Error < 0.5
	}
	return false
}

// updateCalibration applies eq. (5): Beta counts for binary/enum, an
// age-decayed EMA for numeric/percentage error.
func (g *Grader) updateCalibration(ctx context.Context, runID, expertID, categoryID string, o model.Outcome, ageDays, halfLifeDays float64) error {
	bucket, err := g.db.GetCalibrationBucket(ctx, runID, expertID, categoryID)
	if err != nil {
		return fmt.Errorf("outcome: get calibration bucket: %w", err)
	}

	if o.Correct != nil {
		if *o.Correct {
			bucket.Alpha++
		} else {
			bucket.Beta++
		}
	} else if o.Error != nil {
		lambda := EMALambdaBase * decay.Decay(ageDays, halfLifeDays)
		muNew := (1-lambda)*bucket.Mu + lambda*(*o.Error)
		variance := (1-lambda)*bucket.Sigma*bucket.Sigma + lambda*(*o.Error-muNew)*(*o.Error-muNew)
		bucket.Mu = muNew
		bucket.Sigma = math.Sqrt(variance)
	} else {
		return nil
	}

	if err := g.db.UpsertCalibrationBucket(ctx, bucket); err != nil {
		return fmt.Errorf("outcome: upsert calibration bucket: %w", err)
	}
	return nil
}

// applyFactorDeltas multiplies each cited factor's learned weight by
// 1+delta, clipping to [model.FactorWeightMin, model.FactorWeightMax].
// Grade composes the steps of multiple assertions in the same bundle into
// one delta per factor, one multiplicative step per assertion that cited
// the factor, matching the per-assertion revision rule in §4.8; the clip is
// applied once, to the composed result.
func (g *Grader) applyFactorDeltas(ctx context.Context, runID, expertID string, factorDeltas map[string]float64) error {
	if len(factorDeltas) == 0 {
		return nil
	}
	weights, err := g.db.GetFactorWeights(ctx, runID, expertID)
	if err != nil {
		return fmt.Errorf("outcome: get factor weights: %w", err)
	}
	if weights.Weights == nil {
		weights.Weights = make(map[string]float64)
	}
	for factor, delta := range factorDeltas {
		current, ok := weights.Weights[factor]
		if !ok {
			current = 1.0
		}
		weights.Weights[factor] = model.ClipFactorWeight(current * (1 + delta))
	}
	weights.RunID = runID
	weights.ExpertID = expertID
	if err := g.db.UpsertFactorWeights(ctx, weights); err != nil {
		return fmt.Errorf("outcome: upsert factor weights: %w", err)
	}
	return nil
}

// formLearningMemory builds the post-game learning memory (§4.8):
// memory_strength proportional to the net signal, |correct-incorrect|/total.
func formLearningMemory(bundle model.PredictionBundle, correctCount, incorrectCount int) model.EpisodicMemory {
	total := correctCount + incorrectCount
	var strength float64
	if total > 0 {
		strength = math.Abs(float64(correctCount-incorrectCount)) / float64(total)
	}
	return model.EpisodicMemory{
		RunID:          bundle.RunID,
		ExpertID:       bundle.ExpertID,
		GameID:         bundle.GameID,
		Type:           model.MemoryLearning,
		Content:        fmt.Sprintf("Graded %d assertions: %d correct, %d incorrect.", total, correctCount, incorrectCount),
		MemoryStrength: strength,
		DecayRate:      1.0,
		CreatedAt:      bundle.CreatedAt,
	}
}

// settleBankroll applies the declared flat payoff schedule: +stake on a
// correct binary/enum assertion, -stake on an incorrect one, no change for
// numeric/percentage assertions (which have no binary win/lose outcome).
func (g *Grader) settleBankroll(ctx context.Context, bundle model.PredictionBundle, outcomeByCategory map[string]model.Outcome) (model.Bankroll, error) {
	bankroll, err := g.db.GetBankroll(ctx, bundle.RunID, bundle.ExpertID)
	if err != nil {
		return model.Bankroll{}, fmt.Errorf("outcome: get bankroll: %w", err)
	}

	var netStake float64
	for categoryID, a := range bundle.Assertions {
		o, ok := outcomeByCategory[categoryID]
		if !ok || o.Correct == nil {
			continue
		}
		if *o.Correct {
			netStake += a.Stake
		} else {
			netStake -= a.Stake
		}
	}

	bankroll.CurrentUnits += netStake
	if bankroll.CurrentUnits > bankroll.PeakUnits {
		bankroll.PeakUnits = bankroll.CurrentUnits
	}
	if err := g.db.UpsertBankroll(ctx, bankroll); err != nil {
		return model.Bankroll{}, fmt.Errorf("outcome: upsert bankroll: %w", err)
	}
	return bankroll, nil
}

// updateEligibility refreshes the schema-validity and latency EMAs and
// recomputes the eligibility gate (§3).
func (g *Grader) updateEligibility(ctx context.Context, runID, expertID string, schemaValid bool, latencyMS int) (model.EligibilityGate, error) {
	gate, err := g.db.GetEligibilityGate(ctx, runID, expertID)
	if err != nil {
		return model.EligibilityGate{}, fmt.Errorf("outcome: get eligibility gate: %w", err)
	}

	const ema = 0.2 // smoothing factor for the rolling SLO EMAs
	validitySample := 0.0
	if schemaValid {
		validitySample = 1.0
	}
	if gate.SchemaValidityRateEMA == 0 && gate.AvgLatencyMSEMA == 0 {
		gate.SchemaValidityRateEMA = validitySample
		gate.AvgLatencyMSEMA = float64(latencyMS)
	} else {
		gate.SchemaValidityRateEMA = (1-ema)*gate.SchemaValidityRateEMA + ema*validitySample
		gate.AvgLatencyMSEMA = (1-ema)*gate.AvgLatencyMSEMA + ema*float64(latencyMS)
	}
	gate.Eligible = model.ComputeEligible(gate.SchemaValidityRateEMA, gate.AvgLatencyMSEMA)
	gate.RunID = runID
	gate.ExpertID = expertID

	if err := g.db.UpsertEligibilityGate(ctx, gate); err != nil {
		return model.EligibilityGate{}, fmt.Errorf("outcome: upsert eligibility gate: %w", err)
	}
	return gate, nil
}
