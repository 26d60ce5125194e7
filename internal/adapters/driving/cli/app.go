package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/custodia-labs/patentgov/internal/adapters/driven/ai"
	"github.com/custodia-labs/patentgov/internal/adapters/driven/config/file"
	"github.com/custodia-labs/patentgov/internal/adapters/driven/events/natspub"
	"github.com/custodia-labs/patentgov/internal/adapters/driven/metrics/prom"
	"github.com/custodia-labs/patentgov/internal/adapters/driven/storage/filesystem"
	"github.com/custodia-labs/patentgov/internal/adapters/driven/storage/jsonl"
	"github.com/custodia-labs/patentgov/internal/adapters/driven/storage/qdrant"
	"github.com/custodia-labs/patentgov/internal/adapters/driven/vectorindex/flat"
	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
	"github.com/custodia-labs/patentgov/internal/core/services"
	"github.com/custodia-labs/patentgov/internal/logger"
	"github.com/custodia-labs/patentgov/internal/normalisers"
	"github.com/custodia-labs/patentgov/internal/postprocessors"
	"github.com/custodia-labs/patentgov/internal/postprocessors/claims"
	"github.com/custodia-labs/patentgov/internal/postprocessors/spec"
)

// closers releases adapters in reverse order of opening.
type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newChunkService assembles the normaliser chain and postprocessor
// pipeline named by the configuration.
func newChunkService(cfg *file.Config, runID string) (*services.ChunkService, error) {
	nreg := normalisers.NewRegistry()
	normalisers.RegisterDefaults(nreg)
	chain, err := normalisers.BuildChain(nreg, domain.PipelineConfig{Processors: cfg.Chunk.Normalisers})
	if err != nil {
		return nil, fmt.Errorf("building normalisers: %w", err)
	}

	preg := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(preg)
	pipeline, err := preg.BuildPipeline(postprocessors.DefaultOrder, map[string]map[string]any{
		claims.Name: {
			"detectors": cfg.Chunk.Detectors,
		},
		spec.Name: {
			"policy":                 cfg.Chunk.SpecPolicy,
			"min_explain_paragraphs": cfg.Chunk.MinExplainParagraphs,
			"max_chars":              cfg.Chunk.SpecMaxChars,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("building postprocessors: %w", err)
	}

	opts := []services.ChunkOption{services.WithLineageKeys(cfg.Chunk.LineageKeys...)}
	if runID != "" {
		opts = append(opts, services.WithChunkRunID(runID))
	}
	return services.NewChunkService(chain, pipeline, cfg.Chunk.PolicyVersion, opts...), nil
}

// openEmbedder creates the configured embedder. With ping set the
// embedder must answer before it is returned.
func openEmbedder(ctx context.Context, cfg *file.Config, ping bool) (driven.EmbeddingService, error) {
	settings := cfg.Embedding.EmbeddingSettings
	if ping {
		return ai.CreateAndValidateEmbeddingService(ctx, &settings)
	}
	return ai.CreateEmbeddingService(&settings)
}

// openBuildService wires the orchestrator with metrics and the optional
// event publisher and vector database mirror.
func openBuildService(ctx context.Context, cfg *file.Config, ping bool) (*services.BuildOrchestrator, io.Closer, error) {
	store, err := filesystem.NewStore(cfg.Paths.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("opening collection store: %w", err)
	}

	embedder, err := openEmbedder(ctx, cfg, ping)
	if err != nil {
		return nil, nil, err
	}
	done := closers{embedder}

	opts := []services.BuildOption{services.WithBuildMetrics(prom.NewRecorder())}

	if cfg.NATS.URL != "" {
		pub, err := natspub.Connect(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			// Events are advisory; the build still runs.
			logger.Warn("build events disabled: %v", err)
		} else {
			done = append(done, pub)
			opts = append(opts, services.WithBuildEvents(pub))
		}
	}

	if cfg.Qdrant.Enabled {
		mirror, err := qdrant.New(cfg.Qdrant.Addr)
		if err != nil {
			_ = done.Close()
			return nil, nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		done = append(done, mirror)
		opts = append(opts, services.WithCollectionMirror(mirror))
	}

	return services.NewBuildOrchestrator(store, embedder, opts...), done, nil
}

// openEvaluator wires the evaluator over the promoted collections.
func openEvaluator(ctx context.Context, cfg *file.Config) (*services.EvalService, io.Closer, error) {
	store, err := filesystem.NewStore(cfg.Paths.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("opening collection store: %w", err)
	}

	embedder, err := openEmbedder(ctx, cfg, true)
	if err != nil {
		return nil, nil, err
	}

	eval := services.NewEvalService(store, embedder, jsonl.NewRunStore(cfg.Paths.Runs), flat.Factory,
		services.WithQueryEmbedders(ai.QueryEmbedders(cfg.Embedding.EmbeddingSettings)))
	return eval, closers{embedder, eval}, nil
}
