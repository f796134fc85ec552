package council

import (
	"log/slog"

	"github.com/ashita-ai/council/internal/model"
)

// Option configures an Engine.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger      *slog.Logger
	version     string
	databaseURL string
	notifyURL   string

	embedder  Embedder
	generator Generator

	gameFeed    GameFeed
	oddsFeed    OddsFeed
	weatherFeed WeatherFeed
	injuryFeed  InjuryFeed
	liveBriefs  LiveBriefSource

	experts    []model.ExpertConfig
	categories []model.Category

	runID string
}

// WithLogger sets the structured logger for the Engine. If not set, the
// default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithNotifyURL overrides the direct Postgres URL used for LISTEN/NOTIFY (NOTIFY_URL env var).
func WithNotifyURL(url string) Option {
	return func(o *resolvedOptions) { o.notifyURL = url }
}

// WithEmbedder replaces the auto-detected embedding provider.
func WithEmbedder(e Embedder) Option {
	return func(o *resolvedOptions) { o.embedder = e }
}

// WithGenerator replaces the auto-detected text generation provider.
func WithGenerator(g Generator) Option {
	return func(o *resolvedOptions) { o.generator = g }
}

// WithGameFeed registers the external game/score feed collaborator (§6).
// Required for Engine.Run's polling loop; Engine.RunGame can still be
// called directly with an explicit Game when no feed is configured.
func WithGameFeed(f GameFeed) Option {
	return func(o *resolvedOptions) { o.gameFeed = f }
}

// WithOddsFeed registers the external odds/market-lines collaborator (§6).
func WithOddsFeed(f OddsFeed) Option {
	return func(o *resolvedOptions) { o.oddsFeed = f }
}

// WithWeatherFeed registers the external weather collaborator (§6).
func WithWeatherFeed(f WeatherFeed) Option {
	return func(o *resolvedOptions) { o.weatherFeed = f }
}

// WithInjuryFeed registers the external injury-report collaborator (§6).
func WithInjuryFeed(f InjuryFeed) Option {
	return func(o *resolvedOptions) { o.injuryFeed = f }
}

// WithLiveBriefSource registers the optional short-TTL live brief source
// attached to Context Packs (§4.5 step 4).
func WithLiveBriefSource(s LiveBriefSource) Option {
	return func(o *resolvedOptions) { o.liveBriefs = s }
}

// WithExpertConfigs replaces the default fifteen-expert roster.
func WithExpertConfigs(experts []model.ExpertConfig) Option {
	return func(o *resolvedOptions) { o.experts = experts }
}

// WithCategories replaces the default 83-category registry. Must contain
// exactly model.ExactCategoryCount entries (§3, §8.1).
func WithCategories(categories []model.Category) Option {
	return func(o *resolvedOptions) { o.categories = categories }
}

// WithRunID overrides the run_id scoping all storage reads/writes. If not
// set, a new UUID is generated (§3 Run: "acts as an experiment boundary").
func WithRunID(runID string) Option {
	return func(o *resolvedOptions) { o.runID = runID }
}
