package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/council/internal/model"
)

// CreateRun persists a new playbook. run_id scopes
// every subsequent memory/bundle/outcome read and write; it is created once
// at pilot start and never deleted.
func (db *DB) CreateRun(ctx context.Context, p model.RunPlaybook) error {
	shadowModels, err := json.Marshal(p.ShadowModels)
	if err != nil {
		return fmt.Errorf("storage: marshal shadow models: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO run_playbooks (
		     run_id, council_size, rolling_window_weeks, mode, k_desired,
		     repair_max_iters, per_expert_deadline_ms, tool_max_calls, tool_max_time_ms,
		     shadow_enabled, shadow_models, stake_payoff_schedule,
		     tool_calls_orchestrator_mediated, eligibility_eviction_at_week_boundary,
		     created_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13, $14, $15)`,
		p.RunID, p.CouncilSize, p.RollingWindowWeeks, string(p.Mode), p.KDesired,
		p.RepairMaxIters, p.PerExpertDeadlineMS, p.ToolBudget.MaxCalls, p.ToolBudget.MaxTimeMS,
		p.ShadowEnabled, shadowModels, p.StakePayoffSchedule,
		p.ToolCallsOrchestratorMediated, p.EligibilityEvictionAtWeekBoundary,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a playbook by run_id.
func (db *DB) GetRun(ctx context.Context, runID string) (model.RunPlaybook, error) {
	var p model.RunPlaybook
	var mode string
	var shadowModels []byte

	err := db.pool.QueryRow(ctx,
		`SELECT run_id, council_size, rolling_window_weeks, mode, k_desired,
		        repair_max_iters, per_expert_deadline_ms, tool_max_calls, tool_max_time_ms,
		        shadow_enabled, shadow_models, stake_payoff_schedule,
		        tool_calls_orchestrator_mediated, eligibility_eviction_at_week_boundary
		 FROM run_playbooks WHERE run_id = $1`, runID,
	).Scan(
		&p.RunID, &p.CouncilSize, &p.RollingWindowWeeks, &mode, &p.KDesired,
		&p.RepairMaxIters, &p.PerExpertDeadlineMS, &p.ToolBudget.MaxCalls, &p.ToolBudget.MaxTimeMS,
		&p.ShadowEnabled, &shadowModels, &p.StakePayoffSchedule,
		&p.ToolCallsOrchestratorMediated, &p.EligibilityEvictionAtWeekBoundary,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RunPlaybook{}, fmt.Errorf("storage: run %s: %w", runID, ErrNotFound)
		}
		return model.RunPlaybook{}, fmt.Errorf("storage: get run: %w", err)
	}
	p.Mode = model.BundleMode(mode)
	if len(shadowModels) > 0 {
		if err := json.Unmarshal(shadowModels, &p.ShadowModels); err != nil {
			return model.RunPlaybook{}, fmt.Errorf("storage: unmarshal shadow models: %w", err)
		}
	}
	return p, nil
}

// UpsertGame stores a game's pregame context. Called once when a game enters
// a run's slate and again as lines/weather/injuries move before kickoff, and
// again with a FinalScore once the game settles.
func (db *DB) UpsertGame(ctx context.Context, runID string, g model.Game) error {
	injuries, err := json.Marshal(g.Injuries)
	if err != nil {
		return fmt.Errorf("storage: marshal injuries: %w", err)
	}

	var tempF, windMPH *float64
	var precip *string
	if g.Weather != nil {
		tempF, windMPH, precip = g.Weather.TempF, g.Weather.WindMPH, g.Weather.Precip
	}

	var homeScore, awayScore *int
	var props []byte
	if g.Final != nil {
		hs, as := g.Final.HomeScore, g.Final.AwayScore
		homeScore, awayScore = &hs, &as
		props, err = json.Marshal(g.Final.Props)
		if err != nil {
			return fmt.Errorf("storage: marshal final props: %w", err)
		}
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO games (
		     run_id, game_id, season, week, kickoff, home_team, away_team, venue,
		     weather_temp_f, weather_wind_mph, weather_precip,
		     market_spread, market_total, market_moneyline,
		     injuries, status, final_home_score, final_away_score, final_props
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::jsonb, $16, $17, $18, $19::jsonb)
		 ON CONFLICT (run_id, game_id) DO UPDATE SET
		     week = EXCLUDED.week,
		     kickoff = EXCLUDED.kickoff,
		     weather_temp_f = EXCLUDED.weather_temp_f,
		     weather_wind_mph = EXCLUDED.weather_wind_mph,
		     weather_precip = EXCLUDED.weather_precip,
		     market_spread = EXCLUDED.market_spread,
		     market_total = EXCLUDED.market_total,
		     market_moneyline = EXCLUDED.market_moneyline,
		     injuries = EXCLUDED.injuries,
		     status = EXCLUDED.status,
		     final_home_score = EXCLUDED.final_home_score,
		     final_away_score = EXCLUDED.final_away_score,
		     final_props = EXCLUDED.final_props`,
		runID, g.GameID, g.Season, g.Week, g.Date, g.HomeTeam, g.AwayTeam, g.Venue,
		tempF, windMPH, precip,
		g.Market.Spread, g.Market.Total, g.Market.Moneyline,
		injuries, string(g.Status), homeScore, awayScore, props,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert game: %w", err)
	}
	return nil
}

// scanGame reads one games row, populating Weather/Final only when the
// settled or weather columns are non-null.
func scanGame(row pgx.Row) (model.Game, error) {
	var g model.Game
	var status string
	var injuries, props []byte
	var tempF, windMPH *float64
	var precip *string
	var homeScore, awayScore *int

	if err := row.Scan(
		&g.GameID, &g.Season, &g.Week, &g.Date, &g.HomeTeam, &g.AwayTeam, &g.Venue,
		&tempF, &windMPH, &precip,
		&g.Market.Spread, &g.Market.Total, &g.Market.Moneyline,
		&injuries, &status, &homeScore, &awayScore, &props,
	); err != nil {
		return model.Game{}, err
	}

	g.Status = model.GameStatus(status)
	if tempF != nil || windMPH != nil || precip != nil {
		g.Weather = &model.Weather{TempF: tempF, WindMPH: windMPH, Precip: precip}
	}
	if len(injuries) > 0 {
		if err := json.Unmarshal(injuries, &g.Injuries); err != nil {
			return model.Game{}, fmt.Errorf("unmarshal injuries: %w", err)
		}
	}
	if homeScore != nil && awayScore != nil {
		final := model.FinalScore{HomeScore: *homeScore, AwayScore: *awayScore}
		if len(props) > 0 {
			if err := json.Unmarshal(props, &final.Props); err != nil {
				return model.Game{}, fmt.Errorf("unmarshal final props: %w", err)
			}
		}
		g.Final = &final
	}
	return g, nil
}

const gameColumns = `game_id, season, week, kickoff, home_team, away_team, venue,
	        weather_temp_f, weather_wind_mph, weather_precip,
	        market_spread, market_total, market_moneyline,
	        injuries, status, final_home_score, final_away_score, final_props`

// GetGame retrieves one game within a run's slate.
func (db *DB) GetGame(ctx context.Context, runID, gameID string) (model.Game, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games WHERE run_id = $1 AND game_id = $2`, runID, gameID,
	)
	g, err := scanGame(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Game{}, fmt.Errorf("storage: game %s: %w", gameID, ErrNotFound)
		}
		return model.Game{}, fmt.Errorf("storage: get game: %w", err)
	}
	return g, nil
}

// ListGamesByWeek returns every game on a run's slate for one season/week,
// ordered by kickoff, the unit the eligibility-eviction boundary acts on.
func (db *DB) ListGamesByWeek(ctx context.Context, runID string, season, week int) ([]model.Game, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+gameColumns+` FROM games WHERE run_id = $1 AND season = $2 AND week = $3
		 ORDER BY kickoff ASC`, runID, season, week,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list games by week: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}
