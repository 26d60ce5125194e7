package domain

const unknownDescription = "Unknown"

// EmbeddingProvider identifies the service that computes embeddings.
type EmbeddingProvider string

// Available embedding providers.
const (
	// EmbeddingProviderOllama is a local Ollama instance.
	EmbeddingProviderOllama EmbeddingProvider = "ollama"

	// EmbeddingProviderOpenAI is the OpenAI cloud API.
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"

	// EmbeddingProviderHashed is the offline feature-hashing embedder.
	EmbeddingProviderHashed EmbeddingProvider = "hashed"
)

// IsValid returns true if the provider is recognised.
func (p EmbeddingProvider) IsValid() bool {
	switch p {
	case EmbeddingProviderOllama, EmbeddingProviderOpenAI, EmbeddingProviderHashed:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p EmbeddingProvider) RequiresAPIKey() bool {
	return p == EmbeddingProviderOpenAI
}

// IsLocal returns true if this provider runs without network access to a cloud API.
func (p EmbeddingProvider) IsLocal() bool {
	return p == EmbeddingProviderOllama || p == EmbeddingProviderHashed
}

// String returns the string representation.
func (p EmbeddingProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p EmbeddingProvider) Description() string {
	switch p {
	case EmbeddingProviderOllama:
		return "Ollama (local)"
	case EmbeddingProviderOpenAI:
		return "OpenAI (cloud)"
	case EmbeddingProviderHashed:
		return "Hashed (offline, deterministic)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider EmbeddingProvider

	// Model is the embedding model name.
	Model string

	// Revision pins the model weights. Part of the embedding version.
	Revision string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// RequestsPerSecond caps embed calls. Zero disables limiting.
	RequestsPerSecond float64

	// Dimensions overrides the known model dimensions.
	Dimensions int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// AllEmbeddingProviders returns every supported provider.
func AllEmbeddingProviders() []EmbeddingProvider {
	return []EmbeddingProvider{
		EmbeddingProviderOllama,
		EmbeddingProviderOpenAI,
		EmbeddingProviderHashed,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[EmbeddingProvider]string {
	return map[EmbeddingProvider]string{
		EmbeddingProviderOllama: "nomic-embed-text",
		EmbeddingProviderOpenAI: "text-embedding-3-small",
		EmbeddingProviderHashed: "hashed-bow",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		"bge-m3":            1024,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Offline
		"hashed-bow": 256,
	}
}

// ModelProvider returns the provider serving a known model name.
func ModelProvider(model string) (EmbeddingProvider, bool) {
	switch model {
	case "nomic-embed-text", "mxbai-embed-large", "all-minilm", "bge-m3":
		return EmbeddingProviderOllama, true
	case "text-embedding-3-small", "text-embedding-3-large", "text-embedding-ada-002":
		return EmbeddingProviderOpenAI, true
	case "hashed-bow":
		return EmbeddingProviderHashed, true
	}
	return "", false
}

// PipelineConfig holds text normaliser pipeline configuration.
// Uses generic map-based config so new normalisers can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of normaliser names to run.
	Processors []string

	// ProcessorConfigs holds per-normaliser configuration as generic maps.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific normaliser, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// DefaultPipelineConfig returns the default normaliser pipeline.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Processors: []string{"charset", "whitespace", "langhint"},
		ProcessorConfigs: map[string]map[string]any{
			"langhint": {
				"low_signal_ratio": 0.3,
			},
		},
	}
}
