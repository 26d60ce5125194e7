// Package claims provides the postprocessor that emits the claim_1 and
// claim_set chunks of a family.
//
// Claim boundaries are found by a chain of BoundaryDetectors tried in
// order; the first detector that recognises the text wins. Claims are never
// split or rewritten beyond header and enumeration-prefix stripping.
package claims

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
	"github.com/custodia-labs/patentgov/internal/normalisers/whitespace"
)

// Name is the registry name of the processor.
const Name = "claims"

var claimOnePrefix = regexp.MustCompile(`^\s*1\s*[\.):]\s*`)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor emits claim_1 and claim_set chunks.
type Processor struct {
	detectors []BoundaryDetector
}

// Option configures the claims processor.
type Option func(*Processor)

// WithDetectors replaces the boundary detector chain.
func WithDetectors(detectors ...BoundaryDetector) Option {
	return func(p *Processor) {
		if len(detectors) > 0 {
			p.detectors = detectors
		}
	}
}

// New creates a claims processor. The default chain is numbered then CJK.
func New(opts ...Option) *Processor {
	p := &Processor{
		detectors: []BoundaryDetector{Numbered{}, CJK{}},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return Name
}

// Detectors returns the detector names in the order they are tried.
func (p *Processor) Detectors() []string {
	names := make([]string, len(p.detectors))
	for i, d := range p.detectors {
		names[i] = d.Name()
	}
	return names
}

// Process appends the claim_1 and claim_set chunks of the record.
func (p *Processor) Process(_ context.Context, rec *domain.PreparedRecord, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if rec == nil {
		return nil, domain.ErrInvalidInput
	}
	text := StripHeader(rec.Claims)
	if text == "" {
		return nil, fmt.Errorf("%w: claims text is empty", domain.ErrMissingInput)
	}

	b, ok := p.detect(text)
	if !ok {
		return nil, fmt.Errorf("%w: tried %s", domain.ErrNoClaimBoundary, strings.Join(p.Detectors(), ","))
	}

	first := b.Claims[0]
	claimOne := whitespace.Fold(claimOnePrefix.ReplaceAllString(first.Text, ""))
	if claimOne == "" {
		return nil, fmt.Errorf("%w: claim %d is empty", domain.ErrNoClaimBoundary, first.Number)
	}

	claimSet := b.Whole
	setStart := 0
	if claimSet == "" {
		texts := make([]string, len(b.Claims))
		for i, c := range b.Claims {
			texts[i] = c.Text
		}
		claimSet = whitespace.Fold(strings.Join(texts, "\n\n"))
		setStart = first.Offset
		for _, c := range b.Claims {
			if c.Offset < setStart {
				setStart = c.Offset
			}
		}
	}

	c1 := rec.NewChunk(domain.ChunkTypeClaim1, claimOne, first.Offset)
	c1.ClaimsParseMethod = b.Method
	if first.Number != 1 {
		c1.GovernanceFlags = append(c1.GovernanceFlags, domain.FlagClaim1FallbackFirst)
	}

	cs := rec.NewChunk(domain.ChunkTypeClaimSet, claimSet, setStart)
	cs.ClaimsParseMethod = b.Method

	return append(chunks, c1, cs), nil
}

func (p *Processor) detect(text string) (Boundaries, bool) {
	for _, d := range p.detectors {
		if b, ok := d.Detect(text); ok && len(b.Claims) > 0 {
			return b, true
		}
	}
	return Boundaries{}, false
}
