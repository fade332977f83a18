package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how many texts actually reach the model so the
// tests can observe cache hits.
type countingEmbedder struct {
	embeddedTexts []string
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *countingEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		c.embeddedTexts = append(c.embeddedTexts, text)
		out = append(out, []float32{float32(len(text)), 0, 0})
	}
	return out, nil
}

func (c *countingEmbedder) BatchEmbedWithPool(ctx context.Context, model Embedder, texts []string) ([][]float32, error) {
	return model.BatchEmbed(ctx, texts)
}

func (c *countingEmbedder) GetModelName() string { return "counting" }
func (c *countingEmbedder) GetDimensions() int   { return 3 }
func (c *countingEmbedder) GetModelID() string   { return "counting" }

func TestProviderEmbedCachesByText(t *testing.T) {
	embedder := &countingEmbedder{}
	provider, err := NewProvider(embedder)
	require.NoError(t, err)

	first, err := provider.Embed(context.Background(), []string{"what is climate change"})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Len(t, embedder.embeddedTexts, 1)

	second, err := provider.Embed(context.Background(), []string{"what is climate change"})
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Len(t, embedder.embeddedTexts, 1, "an identical text must be served from the cache, not re-embedded")
	assert.Equal(t, first[0], second[0])
}

func TestProviderEmbedOnlyMissesReachTheModel(t *testing.T) {
	embedder := &countingEmbedder{}
	provider, err := NewProvider(embedder)
	require.NoError(t, err)

	_, err = provider.Embed(context.Background(), []string{"cached text"})
	require.NoError(t, err)

	vectors, err := provider.Embed(context.Background(), []string{"cached text", "fresh text"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	assert.Equal(t, []string{"cached text", "fresh text"}, embedder.embeddedTexts,
		"only the miss goes to the model; the cached text is filled from the LRU")
	assert.NotNil(t, vectors[0])
	assert.NotNil(t, vectors[1])
}
