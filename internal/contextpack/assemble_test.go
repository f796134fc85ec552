package contextpack

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/council/internal/model"
)

func TestBuildQueryText_IncludesMatchupAndMarket(t *testing.T) {
	spread := -3.5
	total := 47.0
	game := model.Game{
		HomeTeam: "KC", AwayTeam: "BUF", Week: 5, Season: 2026,
		Market: model.MarketLines{Spread: &spread, Total: &total},
	}
	cfg := model.ExpertConfig{AnalyticalFocus: map[string]float64{"pace": 0.8, "injuries": 0.3}}

	text := buildQueryText(game, cfg)
	assert.Contains(t, text, "BUF @ KC")
	assert.Contains(t, text, "week 5")
	assert.Contains(t, text, "season 2026")
	assert.Contains(t, text, "spread -3.5")
	assert.Contains(t, text, "total 47.0")
	assert.Contains(t, text, "injuries:0.30")
	assert.Contains(t, text, "pace:0.80")
}

func TestBuildQueryText_DeterministicForSameInputs(t *testing.T) {
	game := model.Game{HomeTeam: "KC", AwayTeam: "BUF", Week: 5, Season: 2026}
	cfg := model.ExpertConfig{AnalyticalFocus: map[string]float64{"pace": 0.8}}
	assert.Equal(t, buildQueryText(game, cfg), buildQueryText(game, cfg))
}

func TestTruncate_CapsAtKMax(t *testing.T) {
	memories := make([]model.RankedMemory, 25)
	out := truncate(memories)
	assert.Len(t, out, 20)
}

func TestTruncate_LeavesShorterListUntouched(t *testing.T) {
	memories := make([]model.RankedMemory, 5)
	out := truncate(memories)
	assert.Len(t, out, 5)
}

func TestBuildQueryText_OmitsAbsentWeather(t *testing.T) {
	game := model.Game{HomeTeam: "KC", AwayTeam: "BUF"}
	text := buildQueryText(game, model.ExpertConfig{})
	assert.NotContains(t, text, "wind")
}

func newMemory(id uuid.UUID, rank float64) model.RankedMemory {
	return model.RankedMemory{Memory: model.EpisodicMemory{MemoryID: id}, RankScore: rank}
}

func TestNewMemory_ExposesMemoryIDAndRank(t *testing.T) {
	id := uuid.New()
	rm := newMemory(id, 0.75)
	assert.Equal(t, id, rm.Memory.MemoryID)
	assert.Equal(t, 0.75, rm.RankScore)
}
