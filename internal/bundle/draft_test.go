package bundle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/council/internal/llm"
	"github.com/ashita-ai/council/internal/model"
)

func testExpertConfig() model.ExpertConfig {
	return model.ExpertConfig{
		ExpertID:    "sharp-money-sam",
		DisplayName: "Sharp Money Sam",
		Personality: "data-driven contrarian who trusts closing-line value over narrative",
		Traits:      model.PersonalityTraits{RiskTolerance: 1.0},
	}
}

func validDraftJSON() string {
	b, _ := json.Marshal(map[string]draftAssertion{
		"winner":          {Value: "HOME", Confidence: 0.7, Stake: 0.5},
		"spread_cover":    {Value: "HOME", Confidence: 0.6, Stake: 0.4},
		"moneyline_value": {Value: "HOME", Confidence: 0.6, Stake: 0.4},
		"home_score":      {Value: 27.0, Confidence: 0.5, Stake: 0.5},
		"away_score":      {Value: 20.0, Confidence: 0.5, Stake: 0.5},
		"total_points":    {Value: 47.0, Confidence: 0.5, Stake: 0.5},
		"q1_margin":       {Value: 3.0, Confidence: 0.4, Stake: 0.3},
		"q2_margin":       {Value: 0.0, Confidence: 0.4, Stake: 0.3},
		"q3_margin":       {Value: 4.0, Confidence: 0.4, Stake: 0.3},
		"q4_margin":       {Value: 0.0, Confidence: 0.4, Stake: 0.3},
		"final_margin":    {Value: 7.0, Confidence: 0.4, Stake: 0.3},
		"win_probability": {Value: 0.65, Confidence: 0.65, Stake: 0.5},
		"game_script":     {Value: "close", Confidence: 0.5, Stake: 0.5},
	})
	return string(b)
}

func TestDrafter_Generate_ValidOnFirstAttempt(t *testing.T) {
	gen := llm.NewTemplateGenerator(func(req llm.GenerateRequest) string {
		return validDraftJSON()
	})
	d := NewDrafter(gen, testRegistry())

	bundle, err := d.Generate(context.Background(), "run-1", "sharp-money-sam", "game-1",
		testExpertConfig(), model.RunPlaybook{RepairMaxIters: 2}, "home team: Chiefs, away team: Bills")

	require.NoError(t, err)
	assert.True(t, bundle.SchemaValid)
	assert.False(t, bundle.Degraded)
	assert.Equal(t, 0, bundle.RepairIterations)
	assert.Equal(t, "HOME", bundle.Overall)
	assert.Len(t, bundle.Assertions, 13)
}

func TestDrafter_Generate_RepairsAfterInvalidFirstAttempt(t *testing.T) {
	attempt := 0
	gen := llm.NewTemplateGenerator(func(req llm.GenerateRequest) string {
		attempt++
		if attempt == 1 {
			// First draft omits a required category and has a nonsense winner value.
			b, _ := json.Marshal(map[string]draftAssertion{
				"winner": {Value: "MAYBE", Confidence: 0.5, Stake: 0.5},
			})
			return string(b)
		}
		return validDraftJSON()
	})
	d := NewDrafter(gen, testRegistry())

	bundle, err := d.Generate(context.Background(), "run-1", "sharp-money-sam", "game-1",
		testExpertConfig(), model.RunPlaybook{RepairMaxIters: 2}, "context")

	require.NoError(t, err)
	assert.True(t, bundle.SchemaValid)
	assert.Equal(t, 1, bundle.RepairIterations)
	assert.Equal(t, 2, attempt)
}

func TestDrafter_Generate_DegradedWhenRepairBudgetExhausted(t *testing.T) {
	gen := llm.NewTemplateGenerator(func(req llm.GenerateRequest) string {
		// Always invalid: missing every required category.
		return `{}`
	})
	d := NewDrafter(gen, testRegistry())

	bundle, err := d.Generate(context.Background(), "run-1", "sharp-money-sam", "game-1",
		testExpertConfig(), model.RunPlaybook{RepairMaxIters: 2}, "context")

	require.NoError(t, err)
	assert.False(t, bundle.SchemaValid)
	assert.True(t, bundle.Degraded)
	assert.Equal(t, 2, bundle.RepairIterations)
}

func TestDrafter_Generate_StripsMarkdownFence(t *testing.T) {
	gen := llm.NewTemplateGenerator(func(req llm.GenerateRequest) string {
		return "```json\n" + validDraftJSON() + "\n```"
	})
	d := NewDrafter(gen, testRegistry())

	bundle, err := d.Generate(context.Background(), "run-1", "sharp-money-sam", "game-1",
		testExpertConfig(), model.RunPlaybook{RepairMaxIters: 1}, "context")

	require.NoError(t, err)
	assert.True(t, bundle.SchemaValid)
}

func TestDraftTemperature_ScalesWithRiskTolerance(t *testing.T) {
	cautious := draftTemperature(model.ExpertConfig{Traits: model.PersonalityTraits{RiskTolerance: 0.5}})
	bold := draftTemperature(model.ExpertConfig{Traits: model.PersonalityTraits{RiskTolerance: 2.0}})
	assert.Less(t, cautious, bold)
}

func TestDraftTemperature_DefaultsWhenRiskToleranceUnset(t *testing.T) {
	temp := draftTemperature(model.ExpertConfig{})
	assert.InDelta(t, 0.7, temp, 1e-9)
}
