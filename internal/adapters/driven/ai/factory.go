// Package ai provides factory functions for creating embedding service adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/patentgov/internal/adapters/driven/embedding/hashed"
	ollamaembed "github.com/custodia-labs/patentgov/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/patentgov/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
func CreateAndValidateEmbeddingService(ctx context.Context, settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(pingCtx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err)
	}
	return svc, nil
}

// CreateEmbeddingService creates the embedding service selected by settings.
// The model name must be set; it becomes part of the embedding version.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: no embedding settings", domain.ErrEmbeddingUnavailable)
	}
	if !settings.Provider.IsValid() {
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", domain.ErrEmbeddingUnavailable, settings.Provider)
	}
	if !settings.IsConfigured() {
		return nil, fmt.Errorf("%w: %s requires an API key", domain.ErrEmbeddingUnavailable, settings.Provider)
	}

	switch settings.Provider {
	case domain.EmbeddingProviderOllama:
		return createOllamaEmbedding(settings), nil
	case domain.EmbeddingProviderOpenAI:
		return createOpenAIEmbedding(settings)
	default:
		return createHashedEmbedding(settings)
	}
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[settings.Model]
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		Dimensions:        dimensions,
		RequestsPerSecond: settings.RequestsPerSecond,
	})
}

// createOpenAIEmbedding creates an OpenAI embedding service.
func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:            settings.APIKey,
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		Dimensions:        settings.Dimensions,
		RequestsPerSecond: settings.RequestsPerSecond,
	})
}

// createHashedEmbedding creates the offline embedder.
func createHashedEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	return hashed.NewEmbeddingService(hashed.Config{
		Model:      settings.Model,
		Dimensions: settings.Dimensions,
	})
}

// QueryEmbedders returns a function opening a validated embedder for
// another model with the same connection settings. The provider is taken
// from the model name when it is known, else from base.
func QueryEmbedders(base domain.EmbeddingSettings) func(context.Context, string, int) (driven.EmbeddingService, error) {
	return func(ctx context.Context, model string, dim int) (driven.EmbeddingService, error) {
		settings := base
		settings.Model = model
		settings.Dimensions = dim
		if p, ok := domain.ModelProvider(model); ok {
			settings.Provider = p
		}
		return CreateAndValidateEmbeddingService(ctx, &settings)
	}
}
