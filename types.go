package council

import "time"

// GameStatus is the lifecycle state of a Game.
type GameStatus string

const (
	GameScheduled GameStatus = "scheduled"
	GameLive      GameStatus = "live"
	GameFinal     GameStatus = "final"
)

// MarketLines is the public representation of internal/model.MarketLines —
// no internal package imports, safe to use from outside the module.
type MarketLines struct {
	Spread    *float64
	Total     *float64
	Moneyline *int
}

// Weather is the public representation of internal/model.Weather.
type Weather struct {
	TempF   *float64
	WindMPH *float64
	Precip  *string
}

// FinalScore is the public representation of internal/model.FinalScore.
type FinalScore struct {
	HomeScore int
	AwayScore int
	Props     map[string]any
}

// Game is the public representation of internal/model.Game, returned by a
// GameFeed implementation.
type Game struct {
	GameID   string
	Season   int
	Week     int
	Date     time.Time
	HomeTeam string
	AwayTeam string
	Venue    string
	Weather  *Weather
	Market   MarketLines
	Injuries []string
	Status   GameStatus
	Final    *FinalScore
}

// ConsensusBundle is the public representation of internal/model.ConsensusBundle,
// returned by Engine.RunGame.
type ConsensusBundle struct {
	RunID              string
	GameID             string
	Categories         map[string]CategoryConsensus
	ContributingExperts []string
	InsufficientQuorum bool
	CreatedAt          time.Time
}

// CategoryConsensus is the public representation of internal/model.CategoryConsensus.
type CategoryConsensus struct {
	CategoryID    string
	Value         any
	AgreementMass float64
	Stdev         *float64
	Confidence    float64
	Weights       map[string]float64
	Explanation   string
}

// OutcomeResult summarises one call to Engine.IngestOutcome (§6 "POST
// /outcomes { run_id, game_id, final } -> { settled_assertions,
// updated_experts }").
type OutcomeResult struct {
	SettledAssertions int
	UpdatedExperts    []string
}
