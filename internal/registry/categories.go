package registry

import "github.com/ashita-ai/council/internal/model"

// DefaultCategories returns the canonical, ordered 83-category registry
// content for a run (§3 Category Registry). It is pure data: the families
// and pred_types follow the taxonomy in §3 directly (markets, scores,
// quarters, team_props, game_props, player_props, advanced, live,
// situational); there is no external catalog source to ground this on, so
// the category set is fixed here rather than loaded from config — a new run
// never needs a different 83, only different ExpertConfigs looking at them.
func DefaultCategories() []model.Category {
	var cats []model.Category
	cats = append(cats, marketCategories()...)
	cats = append(cats, scoreCategories()...)
	cats = append(cats, quarterCategories()...)
	cats = append(cats, teamPropCategories()...)
	cats = append(cats, gamePropCategories()...)
	cats = append(cats, playerPropCategories()...)
	cats = append(cats, advancedCategories()...)
	cats = append(cats, liveCategories()...)
	cats = append(cats, situationalCategories()...)
	return cats
}

func binary(id string, family model.CategoryFamily, pair [2]string) model.Category {
	return model.Category{ID: id, Family: family, PredType: model.PredBinary, Binary: pair}
}

func enum(id string, family model.CategoryFamily, values []string) model.Category {
	return model.Category{ID: id, Family: family, PredType: model.PredEnum, Enum: values}
}

func numeric(id string, family model.CategoryFamily, lo, hi float64) model.Category {
	return model.Category{ID: id, Family: family, PredType: model.PredNumeric, Range: &model.NumericRange{Min: lo, Max: hi}}
}

func percentage(id string, family model.CategoryFamily) model.Category {
	return model.Category{ID: id, Family: family, PredType: model.PredPercentage, Range: &model.NumericRange{Min: 0, Max: 1}}
}

var homeAway = [2]string{"HOME", "AWAY"}
var yesNo = [2]string{"YES", "NO"}

func marketCategories() []model.Category {
	const f = model.FamilyMarkets
	return []model.Category{
		binary("winner", f, homeAway),
		binary("spread_cover", f, homeAway),
		binary("total_over", f, [2]string{"OVER", "UNDER"}),
		enum("moneyline_value", f, []string{"HOME", "AWAY", "PUSH"}),
		binary("first_score_team", f, homeAway),
		binary("largest_lead_team", f, homeAway),
		enum("game_decided_by", f, []string{"FG", "TD", "OT", "BLOWOUT"}),
		binary("lead_changes_over_3", f, yesNo),
	}
}

func scoreCategories() []model.Category {
	const f = model.FamilyScores
	return []model.Category{
		numeric("home_score", f, 0, 70),
		numeric("away_score", f, 0, 70),
		numeric("total_points", f, 0, 100),
		numeric("final_margin", f, -50, 50),
		binary("overtime", f, yesNo),
		binary("shutout", f, yesNo),
	}
}

func quarterCategories() []model.Category {
	const f = model.FamilyQuarters
	cats := []model.Category{
		binary("q1_winner", f, homeAway),
		binary("q2_winner", f, homeAway),
		binary("q3_winner", f, homeAway),
		binary("q4_winner", f, homeAway),
		numeric("q1_margin", f, -30, 30),
		numeric("q2_margin", f, -30, 30),
		numeric("q3_margin", f, -30, 30),
		numeric("q4_margin", f, -30, 30),
	}
	cats = append(cats,
		binary("halftime_leader", f, homeAway),
		enum("largest_quarter_swing", f, []string{"Q1", "Q2", "Q3", "Q4"}),
		enum("highest_scoring_quarter", f, []string{"Q1", "Q2", "Q3", "Q4"}),
		binary("fourth_quarter_comeback", f, yesNo),
	)
	return cats
}

func teamPropCategories() []model.Category {
	const f = model.FamilyTeamProps
	return []model.Category{
		numeric("home_total_yards", f, 0, 700),
		numeric("away_total_yards", f, 0, 700),
		numeric("home_turnovers", f, 0, 8),
		numeric("away_turnovers", f, 0, 8),
		percentage("home_time_of_possession_pct", f),
		percentage("away_time_of_possession_pct", f),
		percentage("home_third_down_pct", f),
		percentage("away_third_down_pct", f),
		numeric("home_penalties", f, 0, 20),
	}
}

func gamePropCategories() []model.Category {
	const f = model.FamilyGameProps
	return []model.Category{
		numeric("total_touchdowns", f, 0, 14),
		numeric("total_field_goals", f, 0, 10),
		numeric("total_turnovers", f, 0, 12),
		numeric("total_penalties", f, 0, 30),
		numeric("longest_play_yards", f, 0, 99),
		numeric("largest_comeback", f, 0, 50),
		numeric("overtime_periods", f, 0, 3),
		numeric("game_pace_plays", f, 100, 200),
		numeric("time_of_game_minutes", f, 150, 240),
	}
}

func playerPropCategories() []model.Category {
	const f = model.FamilyPlayerProps
	return []model.Category{
		numeric("home_qb_passing_yards", f, 0, 550),
		numeric("away_qb_passing_yards", f, 0, 550),
		numeric("home_qb_passing_tds", f, 0, 7),
		numeric("away_qb_passing_tds", f, 0, 7),
		numeric("home_leading_rusher_yards", f, 0, 300),
		numeric("away_leading_rusher_yards", f, 0, 300),
		numeric("home_leading_receiver_yards", f, 0, 300),
		numeric("away_leading_receiver_yards", f, 0, 300),
		numeric("home_sacks", f, 0, 12),
		numeric("away_sacks", f, 0, 12),
	}
}

func advancedCategories() []model.Category {
	const f = model.FamilyAdvanced
	return []model.Category{
		numeric("home_epa_per_play", f, -1, 1),
		numeric("away_epa_per_play", f, -1, 1),
		percentage("home_success_rate_pct", f),
		percentage("away_success_rate_pct", f),
		percentage("home_explosive_play_rate_pct", f),
		percentage("away_explosive_play_rate_pct", f),
		percentage("home_red_zone_pct", f),
		percentage("away_red_zone_pct", f),
		percentage("home_pressure_rate_pct", f),
		percentage("away_pressure_rate_pct", f),
	}
}

func liveCategories() []model.Category {
	const f = model.FamilyLive
	return []model.Category{
		binary("first_half_winner", f, homeAway),
		binary("second_half_winner", f, homeAway),
		binary("live_win_prob_swing_over_30", f, yesNo),
		binary("biggest_live_upset", f, yesNo),
		numeric("largest_live_lead", f, 0, 50),
		numeric("garbage_time_points", f, 0, 30),
		binary("live_injury_impact", f, yesNo),
		numeric("momentum_shift_count", f, 0, 20),
	}
}

func situationalCategories() []model.Category {
	const f = model.FamilySituational
	return []model.Category{
		enum("primetime_performance", f, []string{"HOME", "AWAY", "NEITHER"}),
		binary("revenge_game_factor", f, yesNo),
		binary("short_week_impact", f, yesNo),
		binary("travel_distance_impact", f, yesNo),
		binary("dome_advantage", f, yesNo),
		enum("rivalry_intensity", f, []string{"LOW", "MEDIUM", "HIGH"}),
		binary("playoff_implications", f, yesNo),
		binary("injury_report_impact", f, homeAway),
		binary("coaching_matchup_edge", f, homeAway),
		percentage("public_betting_pct_home", f),
		binary("sharp_money_side", f, homeAway),
	}
}
