// Package hashed provides a deterministic offline embedder.
//
// Texts are folded to NFKC lower case and split into word tokens; CJK runs
// contribute one token per rune plus adjacent bigrams. Each token is hashed
// into a fixed number of signed buckets. The result depends only on the
// text and the dimension count, so rebuilds are reproducible without a
// model server.
package hashed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interfaces.
var (
	_ driven.EmbeddingService = (*EmbeddingService)(nil)
	_ driven.InputLimiter     = (*EmbeddingService)(nil)
)

// Default configuration values.
const (
	DefaultModel      = "hashed-bow"
	DefaultDimensions = 256
)

// Config holds configuration for the hashed embedder.
type Config struct {
	// Model names the embedder in embedding versions (default: hashed-bow).
	Model string

	// Dimensions is the bucket count (default: 256).
	Dimensions int

	// InputLimit cuts inputs to this many runes before hashing.
	// Zero means unbounded. The cut is not reported.
	InputLimit int
}

// EmbeddingService hashes text into bag-of-words vectors.
type EmbeddingService struct {
	model      string
	dimensions int
	inputLimit int
}

// NewEmbeddingService creates a hashed embedder.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Dimensions < 0 || cfg.InputLimit < 0 {
		return nil, fmt.Errorf("hashed: %w: dimensions and input limit must not be negative", domain.ErrInvalidInput)
	}
	return &EmbeddingService{
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		inputLimit: cfg.InputLimit,
	}, nil
}

// Embed hashes one text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, s.dimensions)
	for _, tok := range tokens(s.normalise(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[sum%uint64(s.dimensions)] += sign
	}
	return vec, nil
}

// EmbedBatch hashes every text in order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the bucket count.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the configured model name.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// InputLimit returns the rune limit, zero when unbounded.
func (s *EmbeddingService) InputLimit() int {
	return s.inputLimit
}

// Ping always succeeds.
func (s *EmbeddingService) Ping(context.Context) error {
	return nil
}

// Close releases nothing.
func (s *EmbeddingService) Close() error {
	return nil
}

func (s *EmbeddingService) normalise(text string) string {
	if s.inputLimit > 0 {
		n := 0
		for i := range text {
			if n == s.inputLimit {
				text = text[:i]
				break
			}
			n++
		}
	}
	// A Caser is stateful and the build embeds from several goroutines.
	return cases.Fold().String(norm.NFKC.String(text))
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// tokens splits text into words and CJK unigrams and bigrams.
func tokens(text string) []string {
	var out []string
	var word strings.Builder
	var prev rune
	flush := func() {
		if word.Len() > 0 {
			out = append(out, word.String())
			word.Reset()
		}
	}
	for _, r := range text {
		switch {
		case isCJK(r):
			flush()
			out = append(out, string(r))
			if prev != 0 {
				out = append(out, string([]rune{prev, r}))
			}
			prev = r
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
		prev = 0
	}
	flush()
	return out
}
