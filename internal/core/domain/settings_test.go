package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestEmbeddingProvider_IsValid tests provider validation
func TestEmbeddingProvider_IsValid(t *testing.T) {
	for _, p := range AllEmbeddingProviders() {
		assert.True(t, p.IsValid(), p)
		assert.NotEqual(t, unknownDescription, p.Description())
	}
	assert.False(t, EmbeddingProvider("anthropic").IsValid())
	assert.Equal(t, unknownDescription, EmbeddingProvider("x").Description())
}

// TestEmbeddingProvider_Capabilities tests key and locality flags
func TestEmbeddingProvider_Capabilities(t *testing.T) {
	assert.True(t, EmbeddingProviderOpenAI.RequiresAPIKey())
	assert.False(t, EmbeddingProviderOllama.RequiresAPIKey())
	assert.True(t, EmbeddingProviderHashed.IsLocal())
	assert.False(t, EmbeddingProviderOpenAI.IsLocal())
}

// TestEmbeddingSettings_IsConfigured tests configuration completeness
func TestEmbeddingSettings_IsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		settings EmbeddingSettings
		want     bool
	}{
		{"empty", EmbeddingSettings{}, false},
		{"ollama", EmbeddingSettings{Provider: EmbeddingProviderOllama}, true},
		{"openai without key", EmbeddingSettings{Provider: EmbeddingProviderOpenAI}, false},
		{"openai with key", EmbeddingSettings{Provider: EmbeddingProviderOpenAI, APIKey: "sk"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.settings.IsConfigured())
		})
	}
}

// TestDefaults tests that every default model has known dimensions
func TestDefaults(t *testing.T) {
	dims := EmbeddingDimensions()
	for p, model := range DefaultEmbeddingModels() {
		assert.Positive(t, dims[model], "%s default %s", p, model)
	}
}

// TestModelProvider tests that every known model maps to a provider
func TestModelProvider(t *testing.T) {
	for model := range EmbeddingDimensions() {
		p, ok := ModelProvider(model)
		assert.True(t, ok, model)
		assert.True(t, p.IsValid(), model)
	}
	for p, model := range DefaultEmbeddingModels() {
		got, _ := ModelProvider(model)
		assert.Equal(t, p, got, model)
	}
	_, ok := ModelProvider("in-house-encoder")
	assert.False(t, ok)
}

// TestPipelineConfig_GetProcessorConfig tests per-normaliser config lookup
func TestPipelineConfig_GetProcessorConfig(t *testing.T) {
	cfg := DefaultPipelineConfig()
	assert.Equal(t, []string{"charset", "whitespace", "langhint"}, cfg.Processors)
	assert.NotNil(t, cfg.GetProcessorConfig("langhint"))
	assert.Nil(t, cfg.GetProcessorConfig("missing"))

	empty := PipelineConfig{}
	assert.Nil(t, empty.GetProcessorConfig("langhint"))
}
