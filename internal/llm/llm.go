// Package llm declares the Embedder and Generator contracts (§9: "Modelled
// as an interface generate(prompt, budget) -> text and embed(text) ->
// float[1536]. The core has no SDK dependency; tests use deterministic
// stubs.") and provides exactly those stubs. Real provider implementations
// (OpenAI, Ollama, a hosted LLM) are wired in by the caller of council.New
// via the root package's Embedder/Generator options; they are collaborators,
// never an import of this module.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/pgvector/pgvector-go"

	"github.com/ashita-ai/council/internal/model"
)

// Embedder produces a fixed-dimension embedding for text. Grounded on the
// teacher's embedding.Provider shape (Embed/EmbedBatch/Dimensions).
type Embedder interface {
	Embed(ctx context.Context, text string) (pgvector.Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error)
	Dimensions() int
}

// GenerateRequest bounds one call to Generator by the expert's tool/time budget.
type GenerateRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Budget      model.ToolBudget
}

// Generator produces text from a prompt, honoring the orchestrator-mediated
// tool budget (§9 Open Questions: "the spec here treats tool calls as
// orchestrator-mediated").
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// DeterministicEmbedder produces reproducible embeddings from a SHA-256
// stream of the input text, satisfying §4.5's contract that "repeated calls
// with the same inputs are deterministic within a run" without depending on
// any external embedding provider. Used by tests and as a fallback when no
// provider is configured.
type DeterministicEmbedder struct {
	dims int
}

// NewDeterministicEmbedder returns a stub Embedder with the given dimensionality.
func NewDeterministicEmbedder(dims int) *DeterministicEmbedder {
	if dims <= 0 {
		dims = model.EmbeddingDims
	}
	return &DeterministicEmbedder{dims: dims}
}

func (e *DeterministicEmbedder) Dimensions() int { return e.dims }

func (e *DeterministicEmbedder) Embed(_ context.Context, text string) (pgvector.Vector, error) {
	return pgvector.NewVector(deterministicVector(text, e.dims)), nil
}

func (e *DeterministicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	out := make([]pgvector.Vector, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// deterministicVector expands a SHA-256 stream of text into a unit-norm
// vector of the requested dimensionality. Each 32-byte digest round provides
// eight float32 components (4 bytes each, interpreted as a big-endian uint32
// scaled to [-1,1]); re-hashing the previous digest extends the stream.
func deterministicVector(text string, dims int) []float32 {
	out := make([]float32, dims)
	digest := sha256.Sum256([]byte(text))
	i := 0
	for i < dims {
		for j := 0; j < 32 && i < dims; j += 4 {
			if j+4 > 32 {
				break
			}
			bits := binary.BigEndian.Uint32(digest[j : j+4])
			out[i] = float32(bits)/float32(math.MaxUint32)*2 - 1
			i++
		}
		digest = sha256.Sum256(digest[:])
	}

	var norm float64
	for _, v := range out {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range out {
			out[i] = float32(float64(out[i]) / norm)
		}
	}
	return out
}

// TemplateGenerator produces deterministic template text for tests and for
// running the engine end-to-end against deterministic stubs of every
// external collaborator (§6).
type TemplateGenerator struct {
	Template func(req GenerateRequest) string
}

// NewTemplateGenerator returns a Generator producing req.Prompt echoed back,
// or a custom template if supplied.
func NewTemplateGenerator(template func(req GenerateRequest) string) *TemplateGenerator {
	if template == nil {
		template = func(req GenerateRequest) string { return req.Prompt }
	}
	return &TemplateGenerator{Template: template}
}

func (g *TemplateGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	return g.Template(req), nil
}
