// Package bundle implements the per-expert prediction bundle pipeline (C6):
// a draft→critic→repair loop that asks the generator for all 83 category
// assertions, validates the response against the category registry and the
// cross-category consistency checks, and re-prompts with the specific
// validation errors on failure, up to the run's repair budget.
package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ashita-ai/council/internal/llm"
	"github.com/ashita-ai/council/internal/model"
	"github.com/ashita-ai/council/internal/personality"
)

// Drafter generates and repairs prediction bundles for one expert.
type Drafter struct {
	generator llm.Generator
	registry  *model.CategoryRegistry
}

// NewDrafter creates a Drafter bound to a category registry and a generator
// collaborator. The generator has no knowledge of the domain; all prompt
// construction happens here.
func NewDrafter(generator llm.Generator, registry *model.CategoryRegistry) *Drafter {
	return &Drafter{generator: generator, registry: registry}
}

// draftAssertion is the wire shape the generator is asked to produce for
// one category_id entry.
type draftAssertion struct {
	Value      any      `json:"value"`
	Confidence float64  `json:"confidence"`
	Stake      float64  `json:"stake"`
	Why        []string `json:"why,omitempty"`
	Rationale  string   `json:"rationale,omitempty"`
}

// Generate runs the draft→critic→repair loop and returns a PredictionBundle.
// If every repair attempt still fails validation, the bundle is returned
// with Degraded=true and SchemaValid=false rather than erroring, so the
// attempt is still recorded; internal/council excludes bundles with
// SchemaValid=false from consensus. In one-shot mode a single draft is
// made and no repair attempt follows.
func (d *Drafter) Generate(ctx context.Context, runID, expertID, gameID string, cfg model.ExpertConfig, playbook model.RunPlaybook, contextPack string) (model.PredictionBundle, error) {
	start := time.Now()
	prompt := buildDraftPrompt(cfg, contextPack, d.registry)

	var lastErrs []ValidationError
	var assertions map[string]model.Assertion
	iterations := 0

	maxIters := playbook.RepairMaxIters
	if playbook.Mode == model.ModeOneShot {
		maxIters = 0
	}
	for attempt := 0; attempt <= maxIters; attempt++ {
		iterations = attempt
		if attempt > 0 {
			prompt = buildRepairPrompt(cfg, contextPack, d.registry, lastErrs)
		}

		raw, err := d.generator.Generate(ctx, llm.GenerateRequest{
			Prompt:      prompt,
			MaxTokens:   4096,
			Temperature: draftTemperature(cfg),
			Budget:      cfg.ToolBudget,
		})
		if err != nil {
			return model.PredictionBundle{}, fmt.Errorf("bundle: generate draft: %w", err)
		}

		parsed, parseErr := parseDraft(raw)
		if parseErr != nil {
			lastErrs = []ValidationError{{CategoryID: "_all", Reason: parseErr.Error()}}
			continue
		}
		assertions = toAssertions(parsed)
		assertions = d.shapeByPersonality(cfg.Traits, assertions)

		schemaErrs := ValidateSchema(d.registry, assertions)
		consistencyErrs := ValidateConsistency(assertions)
		lastErrs = append(schemaErrs, consistencyErrs...)
		if len(lastErrs) == 0 {
			break
		}
	}

	latency := time.Since(start)
	overall := overallPick(assertions)

	return model.PredictionBundle{
		RunID:            runID,
		ExpertID:         expertID,
		GameID:           gameID,
		Overall:          overall,
		Assertions:       assertions,
		SchemaValid:      len(lastErrs) == 0,
		Degraded:         len(lastErrs) > 0,
		RepairIterations: iterations,
		LatencyMS:        int(latency.Milliseconds()),
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// shapeByPersonality applies the §4.6 personality-shaping step to a drafted
// bundle before it is validated: confidence is widened or narrowed by risk
// tolerance, and numeric/percentage values are scaled by optimism (scoring
// categories only) and analytics trust. An assertion is treated as
// evidence-driven when the generator cited supporting memories in Why —
// analytics-trust experts weight those up and intuition-only picks down.
func (d *Drafter) shapeByPersonality(traits model.PersonalityTraits, assertions map[string]model.Assertion) map[string]model.Assertion {
	for id, a := range assertions {
		a.Confidence = personality.ShapeConfidence(traits, a.Confidence)

		if v, ok := toFloat(a.Value); ok {
			evidenceDriven := len(a.Why) > 0
			if shaped, err := personality.ShapeCategoryValue(d.registry, id, v, traits, evidenceDriven); err == nil {
				a.Value = shaped
			}
		}
		assertions[id] = a
	}
	return assertions
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// draftTemperature scales generation temperature with the expert's risk
// tolerance trait: a cautious expert samples closer to greedy, a
// risk-tolerant one explores more.
func draftTemperature(cfg model.ExpertConfig) float64 {
	base := 0.7
	t := base * clampPositive(cfg.Traits.RiskTolerance, 1.0)
	if t > 1.2 {
		t = 1.2
	}
	if t < 0.1 {
		t = 0.1
	}
	return t
}

func clampPositive(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}

func buildDraftPrompt(cfg model.ExpertConfig, contextPack string, registry *model.CategoryRegistry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an NFL prediction expert with this personality: %s\n\n", cfg.DisplayName, cfg.Personality)
	b.WriteString("Context for this game:\n")
	b.WriteString(contextPack)
	b.WriteString("\n\nProduce a prediction for every one of the following categories. ")
	fmt.Fprintf(&b, "Respond with a single JSON object mapping each category_id to {value, confidence, stake, why, rationale}. ")
	b.WriteString("confidence and stake must each be in [0,1].\n\nCategories:\n")
	for _, cat := range registry.All() {
		fmt.Fprintf(&b, "- %s (%s)\n", cat.ID, cat.PredType)
	}
	return b.String()
}

func buildRepairPrompt(cfg model.ExpertConfig, contextPack string, registry *model.CategoryRegistry, errs []ValidationError) string {
	var b strings.Builder
	b.WriteString(buildDraftPrompt(cfg, contextPack, registry))
	b.WriteString("\nYour previous response had the following problems. Fix only these and resubmit the full JSON object:\n")
	for _, e := range errs {
		fmt.Fprintf(&b, "- %s\n", e.Error())
	}
	return b.String()
}

func parseDraft(raw string) (map[string]draftAssertion, error) {
	raw = strings.TrimSpace(raw)
	// Generators sometimes wrap JSON in a markdown fence; strip it.
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(raw, "```")
		raw = strings.TrimSpace(raw)
	}
	var parsed map[string]draftAssertion
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("bundle: parse draft JSON: %w", err)
	}
	return parsed, nil
}

func toAssertions(parsed map[string]draftAssertion) map[string]model.Assertion {
	out := make(map[string]model.Assertion, len(parsed))
	for id, a := range parsed {
		out[id] = model.Assertion{
			CategoryID: id,
			Value:      a.Value,
			Confidence: a.Confidence,
			Stake:      a.Stake,
			Why:        a.Why,
			Rationale:  a.Rationale,
		}
	}
	return out
}

// overallPick surfaces the expert's headline pick (the winner category's
// value) for display purposes; it has no effect on council aggregation.
func overallPick(assertions map[string]model.Assertion) string {
	if a, ok := assertions["winner"]; ok {
		if s, ok := a.Value.(string); ok {
			return s
		}
	}
	return ""
}
