// Package council is the public API for embedding the prediction engine.
//
// Enterprise and batch-job consumers import this package to construct and
// drive a run without forking it:
//
//	engine, err := council.New(
//	    council.WithVersion(version),
//	    council.WithLogger(logger),
//	    council.WithEmbedder(myEmbedder),
//	    council.WithGenerator(myGenerator),
//	    council.WithGameFeed(myFeed),
//	)
//	if err != nil { ... }
//	consensus, err := engine.RunGame(ctx, game)
//
// The import graph enforces a strict no-cycle rule: council (root) imports
// internal/*, but internal/* never imports council (root). Public types
// (Game, ConsensusBundle, etc.) are standalone structs with no internal
// imports; conversion helpers (toInternalGame, toPublicConsensusBundle) live
// here because this is the only file that sees both sides of the boundary.
package council

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/council/internal/bundle"
	"github.com/ashita-ai/council/internal/config"
	"github.com/ashita-ai/council/internal/contextpack"
	councilcore "github.com/ashita-ai/council/internal/council"
	"github.com/ashita-ai/council/internal/ctxutil"
	"github.com/ashita-ai/council/internal/graph"
	"github.com/ashita-ai/council/internal/integrity"
	"github.com/ashita-ai/council/internal/llm"
	"github.com/ashita-ai/council/internal/memory"
	"github.com/ashita-ai/council/internal/model"
	"github.com/ashita-ai/council/internal/outcome"
	"github.com/ashita-ai/council/internal/ratelimit"
	"github.com/ashita-ai/council/internal/registry"
	"github.com/ashita-ai/council/internal/search"
	"github.com/ashita-ai/council/internal/shadow"
	"github.com/ashita-ai/council/internal/stats"
	"github.com/ashita-ai/council/internal/storage"
	"github.com/ashita-ai/council/internal/telemetry"
	"github.com/ashita-ai/council/migrations"
)

// Engine is the prediction pipeline's lifecycle. Construct with New(), run
// background workers with Run(), or drive individual games directly with
// RunGame and IngestOutcome. Engine has no public fields — use New() options
// to configure it.
type Engine struct {
	cfg   config.Config
	db    *storage.DB
	runID string

	experts    *registry.Registry
	categories *model.CategoryRegistry

	assembler *contextpack.Assembler
	drafter   *bundle.Drafter
	statsProv *stats.Provider
	grader    *outcome.Grader
	mirror    *graph.Mirror

	searchOutbox *search.OutboxWorker
	graphOutbox  *graph.OutboxWorker
	qdrantIndex  *search.QdrantIndex // nil when Qdrant is not configured
	toolLimiter  ratelimit.Limiter   // per-(run,expert) tool-call rate limit (§5)

	shadowRunner     *shadow.Runner
	shadowComparator *shadow.Comparator
	shadowModels     map[string]string

	gameFeed    GameFeed
	oddsFeed    OddsFeed
	weatherFeed WeatherFeed
	injuryFeed  InjuryFeed

	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the prediction engine. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready-to-run Engine. It
// does NOT start any background goroutines — call Run(), or drive games
// directly with RunGame/IngestOutcome without ever calling Run().
func New(opts ...Option) (*Engine, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	runID := o.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	logger.Info("council starting", "version", version, "run_id", runID)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}

	var schemaOK bool
	if err := db.Pool().QueryRow(context.Background(),
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'prediction_bundles')`,
	).Scan(&schemaOK); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("schema verification: %w", err)
	}
	if !schemaOK {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("critical table 'prediction_bundles' does not exist after migration — check that pgvector is installed")
	}

	experts := o.experts
	if len(experts) == 0 {
		experts = registry.DefaultExperts()
	}
	expertRegistry, err := registry.New(experts)
	if err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("expert registry: %w", err)
	}

	categories := o.categories
	if len(categories) == 0 {
		categories = registry.DefaultCategories()
	}
	if len(categories) != model.ExactCategoryCount {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("category registry: got %d categories, want exactly %d", len(categories), model.ExactCategoryCount)
	}
	categoryRegistry := model.NewCategoryRegistry(categories)

	playbook := cfg.Playbook(runID)
	if err := db.CreateRun(context.Background(), playbook); err != nil {
		logger.Warn("run already exists, continuing against existing playbook", "run_id", runID, "error", err)
	}

	// Embedding/generation providers — external override takes priority over
	// the deterministic stub (§9: "The core has no SDK dependency; tests use
	// deterministic stubs. Real provider implementations are wired in by the
	// caller of council.New").
	var embedder llm.Embedder
	if o.embedder != nil {
		embedder = &embedderAdapter{pub: o.embedder}
	} else {
		embedder = llm.NewDeterministicEmbedder(model.EmbeddingDims)
	}

	var generator llm.Generator
	if o.generator != nil {
		generator = &generatorAdapter{pub: o.generator}
	} else {
		generator = llm.NewTemplateGenerator(nil)
	}

	var searcher search.Searcher
	var qdrantIndex *search.QdrantIndex
	var searchOutbox *search.OutboxWorker
	if cfg.QdrantURL != "" {
		var idxErr error
		qdrantIndex, idxErr = search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(embedder.Dimensions()), //nolint:gosec // Dimensions() is always positive
		}, logger)
		if idxErr != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant: %w", idxErr)
		}
		if err := qdrantIndex.EnsureCollection(context.Background()); err != nil {
			_ = qdrantIndex.Close()
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant ensure collection: %w", err)
		}
		searcher = qdrantIndex
		searchOutbox = search.NewOutboxWorker(db.Pool(), qdrantIndex, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled (no QDRANT_URL) — retrieval falls back to pgvector")
	}

	memStore := memory.NewStore(db, searcher, logger)
	assembler := contextpack.NewAssembler(memStore, embedder, categoryRegistry, &liveBriefAdapter{pub: o.liveBriefs})
	drafter := bundle.NewDrafter(generator, categoryRegistry)
	statsProv := stats.NewProvider(db)
	grader := outcome.NewGrader(db, categoryRegistry)
	mirror := graph.NewMirror(db)
	toolLimiter := ratelimit.NewMemoryLimiter(cfg.ToolRateLimitPerSec, cfg.ToolMaxCalls)
	graphOutbox := graph.NewOutboxWorker(db, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)

	var shadowRunner *shadow.Runner
	var shadowComparator *shadow.Comparator
	if playbook.ShadowEnabled {
		shadowRunner = shadow.NewRunner(db)
		shadowComparator = shadow.NewComparator(db)
	}

	return &Engine{
		cfg:   cfg,
		db:    db,
		runID: runID,

		experts:    expertRegistry,
		categories: categoryRegistry,

		assembler: assembler,
		drafter:   drafter,
		statsProv: statsProv,
		grader:    grader,
		mirror:    mirror,

		searchOutbox: searchOutbox,
		graphOutbox:  graphOutbox,
		qdrantIndex:  qdrantIndex,
		toolLimiter:  toolLimiter,

		shadowRunner:     shadowRunner,
		shadowComparator: shadowComparator,
		shadowModels:     playbook.ShadowModels,

		gameFeed:    o.gameFeed,
		oddsFeed:    o.oddsFeed,
		weatherFeed: o.weatherFeed,
		injuryFeed:  o.injuryFeed,

		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// RunID returns the run_id scoping every storage read/write this Engine
// performs (§3 Run: "acts as an experiment boundary").
func (e *Engine) RunID() string { return e.runID }

// Run starts the write-behind outbox workers and polls the configured
// GameFeed for scheduled games, building context packs, bundles, and council
// consensus for each, until ctx is cancelled. Callers that only need
// RunGame/IngestOutcome on demand (e.g. a request-driven server) never need
// to call Run.
func (e *Engine) Run(ctx context.Context) error {
	if e.searchOutbox != nil {
		e.searchOutbox.Start(ctx)
	}
	e.graphOutbox.Start(ctx)

	if e.gameFeed == nil {
		<-ctx.Done()
		return e.Shutdown(context.Background())
	}

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return e.Shutdown(context.Background())
		case <-ticker.C:
			now := time.Now().UTC()
			games, err := e.gameFeed.ScheduledGames(ctx, now.Year(), isoWeek(now))
			if err != nil {
				e.logger.Error("game feed poll failed", "error", err)
				continue
			}
			for _, g := range games {
				if _, err := e.RunGame(ctx, g); err != nil {
					e.logger.Error("run game failed", "game_id", g.GameID, "error", err)
				}
			}
		}
	}
}

// Shutdown drains the write-behind outboxes and closes the database pool and
// OTEL provider. Safe to call even if Run was never started.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info("council shutting down")

	if e.searchOutbox != nil {
		e.searchOutbox.Drain(ctx)
	}
	e.graphOutbox.Drain(ctx)

	if e.qdrantIndex != nil {
		_ = e.qdrantIndex.Close()
	}
	_ = e.toolLimiter.Close()
	_ = e.otelShutdown(context.Background())
	e.db.Close(context.Background())

	e.logger.Info("council stopped")
	return nil
}

// RunGame drives the full per-game pipeline for one Game (§2 System
// Overview): every registered expert builds a Context Pack and a Prediction
// Bundle concurrently (§5 "parallel at the expert grain"), each bundle is
// persisted and mirrored into the provenance graph, rolling stats are
// computed for every eligible expert, the council is selected, and the
// weighted consensus is aggregated and returned.
func (e *Engine) RunGame(ctx context.Context, g Game) (ConsensusBundle, error) {
	ctx = ctxutil.WithRunID(ctx, e.runID)
	ctx = ctxutil.WithGameID(ctx, g.GameID)

	game := toInternalGame(g)
	if e.oddsFeed != nil {
		if lines, err := e.oddsFeed.MarketLines(ctx, g.GameID); err == nil {
			game.Market = toInternalMarketLines(lines)
		}
	}
	if e.weatherFeed != nil {
		if w, err := e.weatherFeed.Weather(ctx, g.GameID); err == nil && w != nil {
			iw := toInternalWeather(*w)
			game.Weather = &iw
		}
	}
	if e.injuryFeed != nil {
		if inj, err := e.injuryFeed.Injuries(ctx, g.GameID); err == nil {
			game.Injuries = inj
		}
	}

	// Persisted before the council runs so IngestOutcome can later look the
	// game's week back up by (run_id, game_id) alone.
	if err := e.db.UpsertGame(ctx, e.runID, game); err != nil {
		return ConsensusBundle{}, fmt.Errorf("council: upsert game %s: %w", g.GameID, err)
	}

	experts := e.experts.List()
	bundles := make(map[string]model.PredictionBundle, len(experts))
	var mu sync.Mutex

	grp, grpCtx := errgroup.WithContext(ctx)
	for _, cfg := range experts {
		cfg := cfg
		grp.Go(func() error {
			b, err := e.runExpertTask(grpCtx, cfg, game)
			if err != nil {
				e.logger.Error("expert task failed", "expert_id", cfg.ExpertID, "game_id", g.GameID, "error", err)
				return nil // one expert's failure never aborts the others (§5: no shared mutable state)
			}
			mu.Lock()
			bundles[cfg.ExpertID] = b
			mu.Unlock()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return ConsensusBundle{}, fmt.Errorf("council: run game %s: %w", g.GameID, err)
	}

	playbook := e.cfg.Playbook(e.runID)
	var statsList []model.ExpertStats
	for _, cfg := range experts {
		s, err := e.statsProv.Compute(ctx, e.runID, cfg.ExpertID, e.categories, cfg.AnalyticalFocus, playbook.RollingWindowWeeks)
		if err != nil {
			e.logger.Error("stats compute failed", "expert_id", cfg.ExpertID, "error", err)
			continue
		}
		if s.Eligible {
			statsList = append(statsList, s)
		}
	}

	selected := councilcore.Select(statsList, playbook.CouncilSize)
	consensus := councilcore.Aggregate(e.categories, selected, bundles)
	return toPublicConsensusBundle(consensus), nil
}

// runExpertTask runs one expert's sequential Retrieve -> Draft -> Store
// chain (§5: "parallel at the expert grain, cooperative within an expert").
// Critic/Repair is already driven internally by Drafter.Generate.
func (e *Engine) runExpertTask(ctx context.Context, cfg model.ExpertConfig, game model.Game) (model.PredictionBundle, error) {
	ctx = ctxutil.WithExpertID(ctx, cfg.ExpertID)
	budget := ctxutil.Budget{
		Deadline:     time.Now().Add(time.Duration(e.cfg.PerExpertDeadlineMS) * time.Millisecond),
		MaxToolCalls: cfg.ToolBudget.MaxCalls,
	}
	ctx, cancel := ctxutil.WithBudget(ctx, budget)
	defer cancel()

	playbook := e.cfg.Playbook(e.runID)
	policy := model.BundlePolicy{Mode: playbook.Mode, RepairMaxIters: playbook.RepairMaxIters}
	guardrails := model.Guardrails{ToolBudget: cfg.ToolBudget, RiskProfile: cfg.Personality}

	allowed, err := e.toolLimiter.Allow(ctx, e.runID+"|"+cfg.ExpertID+"|generate")
	if err != nil {
		return model.PredictionBundle{}, fmt.Errorf("tool rate limit: %w", err)
	}
	if !allowed {
		return model.PredictionBundle{}, model.NewError(model.KindToolBudgetExceeded, "council", fmt.Errorf("expert %s exceeded its tool rate limit for run %s", cfg.ExpertID, e.runID))
	}

	pack, err := e.assembler.Build(ctx, e.runID, cfg, game, policy, guardrails, nil)
	if err != nil {
		return model.PredictionBundle{}, fmt.Errorf("context pack: %w", err)
	}

	b, err := e.drafter.Generate(ctx, e.runID, cfg.ExpertID, game.GameID, cfg, playbook, contextpack.Render(pack))
	if err != nil {
		return model.PredictionBundle{}, fmt.Errorf("bundle gen: %w", err)
	}

	categoryValues := make(map[string]string, len(b.Assertions))
	for id, a := range b.Assertions {
		categoryValues[id] = fmt.Sprintf("%v", a.Value)
	}
	b.ContentHash = integrity.ComputeBundleContentHash(b.RunID, b.ExpertID, b.GameID, categoryValues)
	b.Model = "template" // the Generator returns text only, so every bundle carries this label

	// On cancellation, a partial bundle is discarded rather than persisted
	// (§5: "on cancellation, any partial bundle... discarded, not persisted").
	if ctx.Err() != nil {
		return model.PredictionBundle{}, ctx.Err()
	}

	if err := e.db.InsertBundle(ctx, b); err != nil {
		return model.PredictionBundle{}, fmt.Errorf("insert bundle: %w", err)
	}
	if err := e.mirror.MirrorBundle(ctx, b); err != nil {
		e.logger.Warn("graph mirror failed for bundle", "expert_id", cfg.ExpertID, "game_id", game.GameID, "error", err)
	}

	thought := pregameThoughtMemory(e.runID, cfg.ExpertID, game, b)
	if _, err := e.db.InsertMemory(ctx, thought); err != nil {
		e.logger.Warn("pre-game thought memory insert failed", "expert_id", cfg.ExpertID, "game_id", game.GameID, "error", err)
	}

	if e.shadowRunner != nil {
		shadowModel := e.shadowModels[cfg.ExpertID]
		if shadowModel != "" {
			shadowRunID := "shadow-" + e.runID
			if err := e.shadowRunner.Run(ctx, e.drafter, shadowRunID, e.runID, game.GameID, cfg, playbook, contextpack.Render(pack), shadowModel, b.Model); err != nil {
				e.logger.Warn("shadow run failed", "expert_id", cfg.ExpertID, "game_id", game.GameID, "error", err)
			}
		}
	}

	return b, nil
}

// IngestOutcome settles a game's final score against every expert's bundle
// for that game, running belief revision (§4.8) and returning a summary of
// what was settled (§6 "POST /outcomes { run_id, game_id, final } ->
// { settled_assertions, updated_experts }"). Ingestion for one (run_id,
// game_id) pair must be single-writer (§5) — callers running concurrent
// games must not call IngestOutcome twice for the same game concurrently.
func (e *Engine) IngestOutcome(ctx context.Context, runID, gameID string, final FinalScore) (OutcomeResult, error) {
	ctx = ctxutil.WithRunID(ctx, runID)
	ctx = ctxutil.WithGameID(ctx, gameID)

	bundles, err := e.db.ListBundlesForGame(ctx, runID, gameID)
	if err != nil {
		return OutcomeResult{}, fmt.Errorf("list bundles: %w", err)
	}

	game, err := e.db.GetGame(ctx, runID, gameID)
	if err != nil {
		return OutcomeResult{}, fmt.Errorf("get game: %w", err)
	}
	graded := model.GradedGame{RunID: runID, GameID: gameID, Week: game.Week, Final: toInternalFinalScore(final)}

	var result OutcomeResult
	for _, b := range bundles {
		ageDays := time.Since(b.CreatedAt).Hours() / 24
		halfLife := e.halfLifeFor(b.ExpertID)
		gradeResult, err := e.grader.Grade(ctx, graded, b, ageDays, halfLife)
		if err != nil {
			e.logger.Error("grade failed", "expert_id", b.ExpertID, "game_id", gameID, "error", err)
			continue
		}
		result.SettledAssertions += len(gradeResult.Outcomes)
		result.UpdatedExperts = append(result.UpdatedExperts, gradeResult.ExpertID)
		for _, o := range gradeResult.Outcomes {
			if err := e.mirror.MirrorOutcome(ctx, o); err != nil {
				e.logger.Warn("graph mirror failed for outcome", "expert_id", b.ExpertID, "category_id", o.CategoryID, "error", err)
			}
		}
	}
	return result, nil
}

func (e *Engine) halfLifeFor(expertID string) float64 {
	cfg, err := e.experts.Get(expertID)
	if err != nil {
		return 14 // neutral fallback half-life when the expert has since been removed from the roster
	}
	return cfg.Temporal.HalfLifeDays
}

// pregameThoughtMemory records the bundle as a reasoning memory immediately
// after it is persisted (§5: "memory read -> bundle insert -> memory write of
// pre-game thoughts" ordering guarantee).
func pregameThoughtMemory(runID, expertID string, game model.Game, b model.PredictionBundle) model.EpisodicMemory {
	return model.EpisodicMemory{
		MemoryID: uuid.New(),
		RunID:    runID,
		ExpertID: expertID,
		GameID:   game.GameID,
		Type:     model.MemoryReasoning,
		Content:  fmt.Sprintf("Pre-game pick: %s (%d/%d assertions, degraded=%t)", b.Overall, len(b.Assertions), model.ExactCategoryCount, b.Degraded),
		HomeTeam: game.HomeTeam,
		AwayTeam: game.AwayTeam,
		Season:   game.Season,
		Week:     game.Week,
		GameDate: game.Date,
		Metadata: map[string]any{"schema_valid": b.SchemaValid, "repair_iterations": b.RepairIterations},

		MemoryStrength: 0.7,
		Vividness:      0.6,
		DecayRate:      0.1,
		CreatedAt:      time.Now().UTC(),
	}
}

func isoWeek(t time.Time) int {
	_, week := t.ISOWeek()
	return week
}

// embedderAdapter wraps a public Embedder so it satisfies internal/llm.Embedder.
// Uses pgvector.Vector (not []float32) internally; the public interface stays
// free of the pgvector dependency (see interfaces.go).
type embedderAdapter struct{ pub Embedder }

func (a *embedderAdapter) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	v, err := a.pub.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	return pgvector.NewVector(v), nil
}

func (a *embedderAdapter) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vs, err := a.pub.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]pgvector.Vector, len(vs))
	for i, v := range vs {
		out[i] = pgvector.NewVector(v)
	}
	return out, nil
}

func (a *embedderAdapter) Dimensions() int { return a.pub.Dimensions() }

// generatorAdapter wraps a public Generator so it satisfies internal/llm.Generator.
type generatorAdapter struct{ pub Generator }

func (a *generatorAdapter) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	return a.pub.Generate(ctx, GenerateRequest{
		Prompt:       req.Prompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		MaxToolCalls: req.Budget.MaxCalls,
		MaxTimeMS:    req.Budget.MaxTimeMS,
	})
}

// liveBriefAdapter wraps a public LiveBriefSource so it satisfies
// internal/contextpack.LiveBriefSource. A nil pub means "no live briefs" —
// Assembler.Build treats a nil source the same way.
type liveBriefAdapter struct{ pub LiveBriefSource }

func (a *liveBriefAdapter) RecentBriefs(ctx context.Context, gameID string, limit int) ([]string, error) {
	if a.pub == nil {
		return nil, nil
	}
	return a.pub.RecentBriefs(ctx, gameID, limit)
}

func toInternalGame(g Game) model.Game {
	return model.Game{
		GameID:   g.GameID,
		Season:   g.Season,
		Week:     g.Week,
		Date:     g.Date,
		HomeTeam: g.HomeTeam,
		AwayTeam: g.AwayTeam,
		Venue:    g.Venue,
		Weather:  toInternalWeatherPtr(g.Weather),
		Market:   toInternalMarketLines(g.Market),
		Injuries: g.Injuries,
		Status:   model.GameStatus(g.Status),
		Final:    toInternalFinalScorePtr(g.Final),
	}
}

func toInternalWeatherPtr(w *Weather) *model.Weather {
	if w == nil {
		return nil
	}
	iw := toInternalWeather(*w)
	return &iw
}

func toInternalWeather(w Weather) model.Weather {
	return model.Weather{TempF: w.TempF, WindMPH: w.WindMPH, Precip: w.Precip}
}

func toInternalMarketLines(m MarketLines) model.MarketLines {
	return model.MarketLines{Spread: m.Spread, Total: m.Total, Moneyline: m.Moneyline}
}

func toInternalFinalScorePtr(f *FinalScore) *model.FinalScore {
	if f == nil {
		return nil
	}
	fs := toInternalFinalScore(*f)
	return &fs
}

func toInternalFinalScore(f FinalScore) model.FinalScore {
	return model.FinalScore{HomeScore: f.HomeScore, AwayScore: f.AwayScore, Props: f.Props}
}

func toPublicConsensusBundle(c model.ConsensusBundle) ConsensusBundle {
	categories := make(map[string]CategoryConsensus, len(c.Categories))
	for id, cc := range c.Categories {
		categories[id] = CategoryConsensus{
			CategoryID:    cc.CategoryID,
			Value:         cc.Value,
			AgreementMass: cc.AgreementMass,
			Stdev:         cc.Stdev,
			Confidence:    cc.Confidence,
			Weights:       cc.Weights,
			Explanation:   cc.Explanation,
		}
	}
	return ConsensusBundle{
		RunID:               c.RunID,
		GameID:              c.GameID,
		Categories:          categories,
		ContributingExperts: c.ContributingExperts,
		InsufficientQuorum:  c.InsufficientQuorum,
		CreatedAt:           c.CreatedAt,
	}
}
