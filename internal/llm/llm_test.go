package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicEmbedder_Deterministic(t *testing.T) {
	e := NewDeterministicEmbedder(1536)
	v1, err := e.Embed(context.Background(), "Chiefs @ Bills, week 12")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "Chiefs @ Bills, week 12")
	require.NoError(t, err)
	assert.Equal(t, v1.Slice(), v2.Slice())
	assert.Len(t, v1.Slice(), 1536)
}

func TestDeterministicEmbedder_DiffersOnDifferentText(t *testing.T) {
	e := NewDeterministicEmbedder(1536)
	v1, err := e.Embed(context.Background(), "home team favored by 3")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "away team favored by 3")
	require.NoError(t, err)
	assert.NotEqual(t, v1.Slice(), v2.Slice())
}

func TestDeterministicEmbedder_DefaultsDimsWhenNonPositive(t *testing.T) {
	e := NewDeterministicEmbedder(0)
	assert.Equal(t, 1536, e.Dimensions())
}

func TestDeterministicEmbedder_UnitNorm(t *testing.T) {
	e := NewDeterministicEmbedder(64)
	v, err := e.Embed(context.Background(), "unit norm check")
	require.NoError(t, err)

	var sumSquares float64
	for _, f := range v.Slice() {
		sumSquares += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, sumSquares, 1e-4)
}

func TestDeterministicEmbedder_EmbedBatch(t *testing.T) {
	e := NewDeterministicEmbedder(32)
	vs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Len(t, vs, 3)
	assert.Equal(t, vs[0].Slice(), vs[2].Slice())
	assert.NotEqual(t, vs[0].Slice(), vs[1].Slice())
}

func TestTemplateGenerator_DefaultEchoesPrompt(t *testing.T) {
	g := NewTemplateGenerator(nil)
	out, err := g.Generate(context.Background(), GenerateRequest{Prompt: "predict the spread"})
	require.NoError(t, err)
	assert.Equal(t, "predict the spread", out)
}

func TestTemplateGenerator_CustomTemplate(t *testing.T) {
	g := NewTemplateGenerator(func(req GenerateRequest) string {
		return "echo:" + req.Prompt
	})
	out, err := g.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "echo:x", out)
}
