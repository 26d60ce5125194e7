package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Defaults applied when a key is absent.
const (
	DefaultPolicyVersion = "v1"
	DefaultTopK          = 10
	DefaultNResults      = 50
	DefaultNATSSubject   = "patentgov.builds"
	DefaultAPIKeyEnv     = "OPENAI_API_KEY"
)

// PathsConfig locates the pipeline's files.
type PathsConfig struct {
	// Root holds staging, builds and production.
	Root string
	// Records is the JSONL file of text records.
	Records string
	// Chunks is the chunk set directory.
	Chunks string
	// Runs is where evaluation runs are written.
	Runs string
}

// ChunkConfig controls chunk generation.
type ChunkConfig struct {
	PolicyVersion string
	SpecPolicy    string
	SpecMaxChars  int
	Detectors     []string
	// MinExplainParagraphs is the spec_focus per-family floor.
	MinExplainParagraphs int
	// LineageKeys must be non-empty on every record when set.
	LineageKeys []string
	Normalisers []string
}

// EmbeddingConfig selects the embedder.
type EmbeddingConfig struct {
	domain.EmbeddingSettings
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string
}

// EvalConfig holds evaluator defaults.
type EvalConfig struct {
	TopK     int
	NResults int
}

// QdrantConfig enables the optional vector database mirror.
type QdrantConfig struct {
	Enabled bool
	Addr    string
}

// NATSConfig enables optional build event publishing.
type NATSConfig struct {
	URL     string
	Subject string
}

// Config is the typed pipeline configuration.
type Config struct {
	Paths     PathsConfig
	Chunk     ChunkConfig
	Build     domain.ResourceProfile
	Embedding EmbeddingConfig
	Isolation domain.IsolationFilter
	Eval      EvalConfig
	Qdrant    QdrantConfig
	NATS      NATSConfig
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Root:    "data",
			Records: filepath.Join("data", "records.jsonl"),
			Chunks:  filepath.Join("data", "chunks"),
			Runs:    filepath.Join("data", "runs"),
		},
		Chunk: ChunkConfig{
			PolicyVersion:        DefaultPolicyVersion,
			SpecPolicy:           domain.SpecPolicyFullDescription,
			Detectors:            []string{"numbered", "cjk"},
			MinExplainParagraphs: 2,
			Normalisers:          domain.DefaultPipelineConfig().Processors,
		},
		Build: domain.DefaultResourceProfile(),
		Embedding: EmbeddingConfig{
			EmbeddingSettings: domain.EmbeddingSettings{
				Provider: domain.EmbeddingProviderHashed,
				Model:    domain.DefaultEmbeddingModels()[domain.EmbeddingProviderHashed],
				Revision: "1",
			},
			APIKeyEnv: DefaultAPIKeyEnv,
		},
		Eval: EvalConfig{
			TopK:     DefaultTopK,
			NResults: DefaultNResults,
		},
		NATS: NATSConfig{
			Subject: DefaultNATSSubject,
		},
	}
}

// Load reads the typed configuration from a store, falling back to defaults.
func Load(store driven.ConfigStore) (*Config, error) {
	cfg := DefaultConfig()

	setString(store, "paths.root", &cfg.Paths.Root)
	setString(store, "paths.records", &cfg.Paths.Records)
	setString(store, "paths.chunks", &cfg.Paths.Chunks)
	setString(store, "paths.runs", &cfg.Paths.Runs)

	setString(store, "chunk.policy_version", &cfg.Chunk.PolicyVersion)
	setString(store, "chunk.spec_policy", &cfg.Chunk.SpecPolicy)
	setInt(store, "chunk.spec_max_chars", &cfg.Chunk.SpecMaxChars)
	setInt(store, "chunk.min_explain_paragraphs", &cfg.Chunk.MinExplainParagraphs)
	setStrings(store, "chunk.detectors", &cfg.Chunk.Detectors)
	setStrings(store, "chunk.lineage_keys", &cfg.Chunk.LineageKeys)
	setStrings(store, "chunk.normalisers", &cfg.Chunk.Normalisers)

	setInt(store, "build.workers", &cfg.Build.Workers)
	setInt(store, "build.batch_size", &cfg.Build.BatchSize)
	setInt(store, "build.max_input_chars", &cfg.Build.MaxInputChars)
	setString(store, "build.device", &cfg.Build.Device)
	setBool(store, "build.normalize", &cfg.Build.Normalize)
	setBool(store, "build.truncation_declared", &cfg.Build.TruncationDeclared)
	setString(store, "build.normalization_version", &cfg.Build.NormalizationVersion)
	if cfg.Build.NormalizationVersion == "" {
		cfg.Build.NormalizationVersion = cfg.Normalization()
	}

	if p := store.GetString("embedding.provider"); p != "" {
		cfg.Embedding.Provider = domain.EmbeddingProvider(p)
		cfg.Embedding.Model = domain.DefaultEmbeddingModels()[cfg.Embedding.Provider]
	}
	setString(store, "embedding.model", &cfg.Embedding.Model)
	setString(store, "embedding.revision", &cfg.Embedding.Revision)
	setString(store, "embedding.base_url", &cfg.Embedding.BaseURL)
	setString(store, "embedding.api_key_env", &cfg.Embedding.APIKeyEnv)
	setInt(store, "embedding.dimensions", &cfg.Embedding.Dimensions)
	if _, ok := store.Get("embedding.requests_per_second"); ok {
		cfg.Embedding.RequestsPerSecond = store.GetFloat("embedding.requests_per_second")
	}
	if cfg.Embedding.APIKeyEnv != "" {
		cfg.Embedding.APIKey = os.Getenv(cfg.Embedding.APIKeyEnv)
	}

	setString(store, "isolation.language_hint", &cfg.Isolation.LanguageHint)
	setInt(store, "isolation.expected_families", &cfg.Isolation.ExpectedFamilies)

	setInt(store, "eval.top_k", &cfg.Eval.TopK)
	setInt(store, "eval.n_results", &cfg.Eval.NResults)

	setBool(store, "qdrant.enabled", &cfg.Qdrant.Enabled)
	setString(store, "qdrant.addr", &cfg.Qdrant.Addr)

	setString(store, "nats.url", &cfg.NATS.URL)
	setString(store, "nats.subject", &cfg.NATS.Subject)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every configuration error at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is empty"))
	}
	if c.Chunk.PolicyVersion == "" {
		errs = append(errs, errors.New("chunk.policy_version is empty"))
	}
	if c.Chunk.SpecPolicy != domain.SpecPolicyFullDescription && c.Chunk.SpecPolicy != domain.SpecPolicySpecFocus {
		errs = append(errs, fmt.Errorf("chunk.spec_policy %q is not supported", c.Chunk.SpecPolicy))
	}
	if c.Chunk.SpecMaxChars < 0 {
		errs = append(errs, errors.New("chunk.spec_max_chars must not be negative"))
	}
	if len(c.Chunk.Detectors) == 0 {
		errs = append(errs, errors.New("chunk.detectors is empty"))
	}
	if missing := c.Build.Missing(); len(missing) > 0 {
		errs = append(errs, fmt.Errorf("build profile missing %v", missing))
	}
	if !c.Embedding.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("embedding.provider %q is not supported", c.Embedding.Provider))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, errors.New("embedding.model is empty"))
	}
	if c.Embedding.Revision == "" {
		errs = append(errs, errors.New("embedding.revision is empty"))
	}
	if c.Eval.TopK <= 0 || c.Eval.NResults < c.Eval.TopK {
		errs = append(errs, fmt.Errorf("eval.n_results (%d) must be >= eval.top_k (%d) > 0", c.Eval.NResults, c.Eval.TopK))
	}
	if c.Qdrant.Enabled && c.Qdrant.Addr == "" {
		errs = append(errs, errors.New("qdrant.addr is required when qdrant is enabled"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidInput, errors.Join(errs...))
}

// SpecControl renders the spec control component of the embedding version.
func (c *Config) SpecControl() string {
	if c.Chunk.SpecMaxChars > 0 {
		return c.Chunk.SpecPolicy + "-head" + strconv.Itoa(c.Chunk.SpecMaxChars)
	}
	return c.Chunk.SpecPolicy + "-none"
}

// Normalization is the norm component of the embedding version: the
// declared build.normalization_version, else l2 or none after build.normalize.
func (c *Config) Normalization() string {
	if c.Build.NormalizationVersion != "" {
		return c.Build.NormalizationVersion
	}
	if c.Build.Normalize {
		return "l2"
	}
	return "none"
}

// EmbeddingVersion assembles the embedding version from configuration.
func (c *Config) EmbeddingVersion() domain.EmbeddingVersion {
	return domain.EmbeddingVersion{
		Model:         c.Embedding.Model,
		Revision:      c.Embedding.Revision,
		ChunkPolicy:   c.Chunk.PolicyVersion,
		Normalization: c.Normalization(),
		SpecControl:   c.SpecControl(),
	}
}

func setString(store driven.ConfigStore, key string, dst *string) {
	if v := store.GetString(key); v != "" {
		*dst = v
	}
}

func setInt(store driven.ConfigStore, key string, dst *int) {
	if _, ok := store.Get(key); ok {
		*dst = store.GetInt(key)
	}
}

func setBool(store driven.ConfigStore, key string, dst *bool) {
	if _, ok := store.Get(key); ok {
		*dst = store.GetBool(key)
	}
}

func setStrings(store driven.ConfigStore, key string, dst *[]string) {
	if v := store.GetStringSlice(key); v != nil {
		*dst = v
	}
}
