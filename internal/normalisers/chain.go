package normalisers

import (
	"context"
	"fmt"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Ensure Chain implements the interface.
var _ driven.NormaliserChain = (*Chain)(nil)

// Chain runs normalisers in order over a prepared record.
type Chain struct {
	normalisers []driven.Normaliser
}

// NewChain creates a chain with the given normalisers.
// Normalisers are executed in the order provided.
func NewChain(normalisers ...driven.Normaliser) *Chain {
	return &Chain{normalisers: normalisers}
}

// BuildChain assembles a chain from the pipeline configuration.
func BuildChain(r *Registry, cfg domain.PipelineConfig) (*Chain, error) {
	chain := NewChain()
	for _, name := range cfg.Processors {
		n, err := r.Build(name, cfg.GetProcessorConfig(name))
		if err != nil {
			return nil, err
		}
		chain.Add(n)
	}
	return chain, nil
}

// Prepare seeds a prepared record and runs every normaliser over it.
func (c *Chain) Prepare(ctx context.Context, rec domain.TextRecord) (*domain.PreparedRecord, error) {
	prepared := domain.NewPreparedRecord(rec)
	for _, n := range c.normalisers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := n.Normalise(ctx, prepared); err != nil {
			return nil, fmt.Errorf("normaliser %s: %w", n.Name(), err)
		}
	}
	return prepared, nil
}

// Names returns the normaliser names in run order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.normalisers))
	for i, n := range c.normalisers {
		names[i] = n.Name()
	}
	return names
}

// Add appends a normaliser to the chain.
func (c *Chain) Add(n driven.Normaliser) {
	c.normalisers = append(c.normalisers, n)
}

// Len returns the number of normalisers in the chain.
func (c *Chain) Len() int {
	return len(c.normalisers)
}
