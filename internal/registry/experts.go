package registry

import "github.com/ashita-ai/council/internal/model"

// DefaultExperts returns the fifteen-expert roster (§2: "an ensemble of
// fifteen independent expert agents"), each a distinct ExpertConfig —
// personality as data, not polymorphism (§9). Deploy-time seed data;
// council.New loads this unless a caller supplies its own via
// council.WithExpertConfigs.
func DefaultExperts() []model.ExpertConfig {
	base := model.ToolBudget{MaxCalls: 10, MaxTimeMS: 2000}
	neutralTraits := model.PersonalityTraits{RiskTolerance: 1.0, Contrarian: 0.5, Optimism: 1.0, AnalyticsTrust: 1.0}

	return []model.ExpertConfig{
		expert("the-analyst", "The Analyst", "data-driven",
			map[string]float64{"advanced": 1.0, "team_props": 0.8}, 21, 0.7, 0.3,
			model.PersonalityTraits{RiskTolerance: 0.8, Contrarian: 0.5, Optimism: 1.0, AnalyticsTrust: 1.5}, base),
		expert("the-gambler", "The Gambler", "high-variance",
			map[string]float64{"markets": 1.0, "live": 0.6}, 10, 0.6, 0.4,
			model.PersonalityTraits{RiskTolerance: 1.5, Contrarian: 0.6, Optimism: 1.2, AnalyticsTrust: 0.8}, base),
		expert("the-contrarian", "The Contrarian", "fades-the-public",
			map[string]float64{"markets": 0.9, "situational": 0.7}, 14, 0.55, 0.45,
			model.PersonalityTraits{RiskTolerance: 1.1, Contrarian: 1.0, Optimism: 0.9, AnalyticsTrust: 0.9}, base),
		expert("the-homer", "The Homer", "recency-biased",
			map[string]float64{"scores": 0.9, "team_props": 0.6}, 7, 0.65, 0.35,
			model.PersonalityTraits{RiskTolerance: 1.2, Contrarian: 0.2, Optimism: 1.4, AnalyticsTrust: 0.9}, base),
		expert("the-grinder", "The Grinder", "conservative",
			map[string]float64{"quarters": 0.8, "game_props": 0.8}, 28, 0.75, 0.25,
			model.PersonalityTraits{RiskTolerance: 0.6, Contrarian: 0.4, Optimism: 0.8, AnalyticsTrust: 1.1}, base),
		expert("the-scout", "The Scout", "player-focused",
			map[string]float64{"player_props": 1.0, "team_props": 0.5}, 14, 0.6, 0.4,
			neutralTraits, base),
		expert("the-meteorologist", "The Meteorologist", "weather-driven",
			map[string]float64{"situational": 1.0, "game_props": 0.6}, 10, 0.6, 0.4,
			model.PersonalityTraits{RiskTolerance: 0.9, Contrarian: 0.4, Optimism: 0.9, AnalyticsTrust: 1.2}, base),
		expert("the-historian", "The Historian", "matchup-history",
			map[string]float64{"situational": 0.9, "scores": 0.6}, 35, 0.8, 0.2,
			model.PersonalityTraits{RiskTolerance: 0.85, Contrarian: 0.5, Optimism: 1.0, AnalyticsTrust: 1.1}, base),
		expert("the-optimist", "The Optimist", "upside-seeking",
			map[string]float64{"live": 0.8, "markets": 0.6}, 7, 0.55, 0.45,
			model.PersonalityTraits{RiskTolerance: 1.3, Contrarian: 0.3, Optimism: 1.5, AnalyticsTrust: 0.9}, base),
		expert("the-pessimist", "The Pessimist", "downside-seeking",
			map[string]float64{"live": 0.8, "team_props": 0.6}, 7, 0.55, 0.45,
			model.PersonalityTraits{RiskTolerance: 0.7, Contrarian: 0.6, Optimism: 0.5, AnalyticsTrust: 1.0}, base),
		expert("the-quant", "The Quant", "model-driven",
			map[string]float64{"advanced": 1.0, "markets": 0.7}, 21, 0.7, 0.3,
			model.PersonalityTraits{RiskTolerance: 1.0, Contrarian: 0.5, Optimism: 1.0, AnalyticsTrust: 1.5}, base),
		expert("the-narrator", "The Narrator", "storyline-driven",
			map[string]float64{"situational": 1.0, "live": 0.5}, 10, 0.6, 0.4,
			model.PersonalityTraits{RiskTolerance: 1.0, Contrarian: 0.3, Optimism: 1.1, AnalyticsTrust: 0.8}, base),
		expert("the-closer", "The Closer", "late-game-focused",
			map[string]float64{"quarters": 1.0, "live": 0.7}, 7, 0.6, 0.4,
			model.PersonalityTraits{RiskTolerance: 1.1, Contrarian: 0.5, Optimism: 1.0, AnalyticsTrust: 1.0}, base),
		expert("the-veteran", "The Veteran", "experience-weighted",
			map[string]float64{"team_props": 0.8, "scores": 0.7}, 28, 0.75, 0.25,
			model.PersonalityTraits{RiskTolerance: 0.9, Contrarian: 0.5, Optimism: 1.0, AnalyticsTrust: 1.0}, base),
		expert("the-rookie", "The Rookie", "exploratory",
			map[string]float64{"markets": 0.6, "player_props": 0.6}, 7, 0.5, 0.5,
			model.PersonalityTraits{RiskTolerance: 1.4, Contrarian: 0.6, Optimism: 1.2, AnalyticsTrust: 0.7}, base),
	}
}

func expert(id, name, personality string, focus map[string]float64, halfLifeDays, alpha, beta float64, traits model.PersonalityTraits, budget model.ToolBudget) model.ExpertConfig {
	return model.ExpertConfig{
		ExpertID:        id,
		DisplayName:     name,
		Personality:     personality,
		AnalyticalFocus: focus,
		Temporal: model.TemporalConfig{
			HalfLifeDays:      halfLifeDays,
			SimilarityWeight:  alpha,
			TemporalWeight:    beta,
			EarlySeasonFactor: 1.35,
			LateSeasonFactor:  0.85,
		},
		ConfidenceRange: model.ConfidenceRange{Lo: 0.05, Hi: 0.95},
		ToolBudget:      budget,
		Traits:          traits,
	}
}
