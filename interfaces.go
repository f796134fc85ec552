package council

import "context"

// Embedder produces a fixed-dimension embedding for text. Its method set
// mirrors internal/llm.Embedder but returns []float32 instead of
// pgvector.Vector so that external implementations never need to import
// pgvector — council.New wraps the result in an adapter (see council.go).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Generator produces text from a prompt, honoring the per-expert tool/time
// budget named in GenerateRequest. Real implementations (OpenAI, Ollama, a
// hosted model) are supplied by the caller of council.New via
// WithGenerator; the core never imports a provider SDK directly.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest bounds one call to Generator by the expert's tool/time budget.
type GenerateRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	MaxToolCalls int
	MaxTimeMS    int
}

// GameFeed is the read-only external collaborator supplying scheduled and
// in-progress games for a run (§6 "game/score feed"). The core never writes
// back to it; settlement flows through IngestOutcome instead.
type GameFeed interface {
	// ScheduledGames returns every game the engine should build context packs
	// and bundles for, for the given season/week.
	ScheduledGames(ctx context.Context, season, week int) ([]Game, error)
	// FinalScore returns the settled score for a game once it has concluded,
	// or ok=false if the game has not yet finished.
	FinalScore(ctx context.Context, gameID string) (FinalScore, bool, error)
}

// OddsFeed is the read-only external collaborator supplying market lines
// (§6 "odds/market lines").
type OddsFeed interface {
	MarketLines(ctx context.Context, gameID string) (MarketLines, error)
}

// WeatherFeed is the read-only external collaborator supplying pre-game
// weather (§6 "weather").
type WeatherFeed interface {
	Weather(ctx context.Context, gameID string) (*Weather, error)
}

// InjuryFeed is the read-only external collaborator supplying injury
// reports (§6 "injuries").
type InjuryFeed interface {
	Injuries(ctx context.Context, gameID string) ([]string, error)
}

// LiveBriefSource supplies short-TTL, non-system-of-record context (breaking
// news, injury updates) attached to a Context Pack (§4.5 step 4). Optional —
// a nil source simply means no live briefs are attached.
type LiveBriefSource interface {
	RecentBriefs(ctx context.Context, gameID string, limit int) ([]string, error)
}
