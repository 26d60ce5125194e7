// Package spec provides the postprocessor that emits the spec chunk of a
// family under a named spec policy, with optional head truncation.
package spec

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Name is the registry name of the processor.
const Name = "spec"

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor emits the spec chunk.
type Processor struct {
	policy   Policy
	maxChars int
}

// Option configures the spec processor.
type Option func(*Processor)

// WithPolicy sets the spec policy.
func WithPolicy(policy Policy) Option {
	return func(p *Processor) {
		if policy != nil {
			p.policy = policy
		}
	}
}

// WithMaxChars caps the spec text at n runes, keeping the head.
// Zero disables truncation.
func WithMaxChars(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.maxChars = n
		}
	}
}

// New creates a spec processor. The default policy is full_description.
func New(opts ...Option) *Processor {
	p := &Processor{policy: FullDescription{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return Name
}

// Policy returns the configured policy name.
func (p *Processor) Policy() string {
	return p.policy.Name()
}

// Process appends the spec chunk of the record.
func (p *Processor) Process(_ context.Context, rec *domain.PreparedRecord, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if rec == nil {
		return nil, domain.ErrInvalidInput
	}
	if rec.Description == "" {
		return nil, fmt.Errorf("%w: description text is empty", domain.ErrMissingInput)
	}

	text, offset := p.policy.Select(rec.Description)
	if text == "" {
		return nil, fmt.Errorf("%w: %s left no spec text", domain.ErrMissingInput, p.policy.Name())
	}

	ctl := &domain.SpecControl{
		Policy:         p.policy.Name(),
		TruncationMode: domain.TruncationNone,
		OriginalLength: utf8.RuneCountInString(text),
	}
	if p.maxChars > 0 && ctl.OriginalLength > p.maxChars {
		text = head(text, p.maxChars)
		ctl.Truncated = true
		ctl.TruncationMode = domain.TruncationHead
	}

	c := rec.NewChunk(domain.ChunkTypeSpec, text, offset)
	c.Spec = ctl
	return append(chunks, c), nil
}

// head returns the first n runes of s.
func head(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
