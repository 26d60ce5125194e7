package hashed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"a", "clip", "2", "springs"}, tokens("a clip, 2 springs."))
	assert.Equal(t, []string{"請", "求", "請求", "項", "求項", "1"}, tokens("請求項1"))
	assert.Empty(t, tokens(" ,.; "))
}

func TestEmbed_Deterministic(t *testing.T) {
	svc, err := NewEmbeddingService(Config{Dimensions: 64})
	require.NoError(t, err)
	ctx := context.Background()

	a, err := svc.Embed(ctx, "A fastening device comprising a clip")
	require.NoError(t, err)
	b, err := svc.Embed(ctx, "a FASTENING device, comprising a clip")
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.Equal(t, a, b)

	c, err := svc.Embed(ctx, "an unrelated sentence about optics")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestEmbed_FullWidthFolds(t *testing.T) {
	svc, err := NewEmbeddingService(Config{})
	require.NoError(t, err)
	a, err := svc.Embed(context.Background(), "ＡＢＣ１２３")
	require.NoError(t, err)
	b, err := svc.Embed(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmbed_InputLimitCutsSilently(t *testing.T) {
	svc, err := NewEmbeddingService(Config{InputLimit: 9})
	require.NoError(t, err)
	assert.Equal(t, 9, svc.InputLimit())

	a, err := svc.Embed(context.Background(), "clip lock")
	require.NoError(t, err)
	b, err := svc.Embed(context.Background(), "clip lock and a long tail")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmbedBatch(t *testing.T) {
	svc, err := NewEmbeddingService(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, svc.ModelName())
	assert.Equal(t, DefaultDimensions, svc.Dimensions())
	assert.NoError(t, svc.Ping(context.Background()))

	out, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.EmbedBatch(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEmbeddingService_Invalid(t *testing.T) {
	_, err := NewEmbeddingService(Config{Dimensions: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
