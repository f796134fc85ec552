package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashita-ai/council"
	"github.com/ashita-ai/council/internal/config"
	"github.com/ashita-ai/council/internal/model"
	"github.com/ashita-ai/council/internal/service/embedding"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := parseLogLevel(os.Getenv("COUNCIL_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	engine, err := council.New(
		council.WithVersion(version),
		council.WithLogger(logger),
		council.WithEmbedder(newEmbedderBridge(cfg, logger)),
	)
	if err != nil {
		return err
	}

	logger.Info("councild starting", "version", version, "run_id", engine.RunID())
	return engine.Run(ctx)
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// embedderBridge adapts internal/service/embedding.Provider (pgvector-based,
// matching internal/llm.Embedder's method set exactly) into the public,
// SDK-free council.Embedder ([]float32-based) so it can travel through
// council.WithEmbedder and be re-adapted back to internal/llm.Embedder inside
// council.New. councild is the only place that sees both the concrete
// provider and the public boundary.
type embedderBridge struct {
	provider embedding.Provider
}

// newEmbedderBridge selects an embedding provider based on configuration:
// "ollama", "openai", "noop", or "auto" (default). Auto tries Ollama first
// (on-premises, no external API cost), then OpenAI if a key is present, else
// noop.
func newEmbedderBridge(cfg config.Config, logger *slog.Logger) *embedderBridge {
	dims := model.EmbeddingDims

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when COUNCIL_EMBEDDING_PROVIDER=openai")
			return &embedderBridge{provider: embedding.NewNoopProvider(dims)}
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		if err != nil {
			logger.Error("openai provider init failed", "error", err)
			return &embedderBridge{provider: embedding.NewNoopProvider(dims)}
		}
		return &embedderBridge{provider: p}

	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return &embedderBridge{provider: embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)}

	case "noop":
		logger.Info("embedding provider: noop (semantic search disabled)")
		return &embedderBridge{provider: embedding.NewNoopProvider(dims)}

	default: // "auto"
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return &embedderBridge{provider: embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)}
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
			if err != nil {
				logger.Error("openai provider init failed", "error", err)
				return &embedderBridge{provider: embedding.NewNoopProvider(dims)}
			}
			return &embedderBridge{provider: p}
		}
		logger.Warn("no embedding provider available, using noop (semantic search disabled)")
		return &embedderBridge{provider: embedding.NewNoopProvider(dims)}
	}
}

func (b *embedderBridge) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := b.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return v.Slice(), nil
}

func (b *embedderBridge) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vs, err := b.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(vs))
	for i, v := range vs {
		out[i] = v.Slice()
	}
	return out, nil
}

func (b *embedderBridge) Dimensions() int { return b.provider.Dimensions() }

// ollamaReachable checks if an Ollama server is responding.
func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
