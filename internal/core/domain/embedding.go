package domain

import "time"

// EmbeddingVersion is the set of inputs that fully determine an embedding
// space. Two builds with equal versions must be comparable vector for vector.
type EmbeddingVersion struct {
	// Model is the embedding model name.
	Model string `json:"model"`

	// Revision pins the model weights.
	Revision string `json:"revision"`

	// ChunkPolicy is the chunk policy version the chunks were produced under.
	ChunkPolicy string `json:"chunk_policy"`

	// Normalization names the vector normalisation (e.g. l2, none).
	Normalization string `json:"normalization"`

	// SpecControl names the spec policy and truncation settings.
	SpecControl string `json:"spec_control"`
}

// Vector is one embedded chunk inside a build workspace.
type Vector struct {
	VectorID  string         `json:"vector_id"`
	Embedding []float32      `json:"-"`
	Text      string         `json:"text"`
	Metadata  VectorMetadata `json:"metadata"`
}

// VectorMetadata is the payload stored next to every vector.
type VectorMetadata struct {
	// Identity fields.
	VectorID            string    `json:"vector_id"`
	FamilyID            string    `json:"family_id"`
	SelectedPublication string    `json:"selected_publication"`
	Source              string    `json:"source"`
	ChunkType           ChunkType `json:"chunk_type"`
	ChunkPolicyVersion  string    `json:"chunk_policy_version"`
	RunID               string    `json:"run_id"`
	ChunkID             string    `json:"chunk_id"`
	AssetID             string    `json:"asset_id"`

	// Embedding fields.
	EmbeddingModel     string    `json:"embedding_model"`
	EmbeddingVersionID string    `json:"embedding_version_id"`
	EmbeddingDim       int       `json:"embedding_dim"`
	EmbeddedAt         time.Time `json:"embedded_at"`

	// Spec control, spec chunks only.
	Spec *SpecControl `json:"spec_control,omitempty"`

	// Language evidence.
	LanguageHint string      `json:"language_hint"`
	ScriptFlags  ScriptFlags `json:"script_flags"`

	GovernanceFlags []GovernanceFlag `json:"governance_flags,omitempty"`

	// InputChars is the rune length of the text handed to the embedder.
	InputChars int `json:"input_chars"`
}

// SearchHit is one chunk-level result from a collection search.
type SearchHit struct {
	VectorID  string
	FamilyID  string
	ChunkType ChunkType
	Text      string
	Score     float64
}
