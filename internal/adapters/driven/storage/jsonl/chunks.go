package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// ReportFile is the chunk generation report inside a chunk set directory.
const ReportFile = "report.json"

// Ensure ChunkSetStore implements the interface.
var _ driven.ChunkSetStore = (*ChunkSetStore)(nil)

// ChunkSetStore stores a chunk set as one JSONL file per chunk type.
type ChunkSetStore struct {
	dir string
}

// NewChunkSetStore creates a chunk set store in dir.
func NewChunkSetStore(dir string) *ChunkSetStore {
	return &ChunkSetStore{dir: dir}
}

// Save writes <type>.jsonl for every chunk type and report.json.
func (d *ChunkSetStore) Save(ctx context.Context, set *domain.ChunkSet, report *domain.ChunkReport) error {
	if set == nil {
		return fmt.Errorf("%w: chunk set is nil", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}
	for _, t := range domain.AllChunkTypes() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeLines(d.path(t), set.Chunks(t)); err != nil {
			return err
		}
	}
	if report != nil {
		if err := writeJSON(filepath.Join(d.dir, ReportFile), report); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the three chunk files back and re-checks that every chunk
// type holds the same families. Run id and policy version are taken from
// report.json when present, else from the first chunk.
func (d *ChunkSetStore) Load(ctx context.Context) (*domain.ChunkSet, error) {
	var runID, policy string
	if data, err := os.ReadFile(filepath.Join(d.dir, ReportFile)); err == nil {
		var report domain.ChunkReport
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", ReportFile, err)
		}
		runID, policy = report.RunID, report.PolicyVersion
	}

	byType := make(map[domain.ChunkType][]domain.Chunk, 3)
	for _, t := range domain.AllChunkTypes() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks, err := readLines[domain.Chunk](d.path(t))
		if err != nil {
			if isNotExist(err) {
				return nil, fmt.Errorf("%w: chunk file %s", domain.ErrNotFound, d.path(t))
			}
			return nil, err
		}
		byType[t] = chunks
		if policy == "" && len(chunks) > 0 {
			policy = chunks[0].ChunkPolicyVersion
		}
	}

	set := domain.NewChunkSet(runID, policy)
	for _, t := range domain.AllChunkTypes() {
		for _, c := range byType[t] {
			if c.ChunkType != t {
				return nil, fmt.Errorf("%w: %s holds a %s chunk for %s", domain.ErrInvalidInput, filepath.Base(d.path(t)), c.ChunkType, c.FamilyID)
			}
			set.Add(c)
		}
	}
	// Files edited or truncated after generation must not reach a build.
	if err := set.CheckSymmetry(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.dir, err)
	}
	return set, nil
}

func (d *ChunkSetStore) path(t domain.ChunkType) string {
	return filepath.Join(d.dir, string(t)+".jsonl")
}
