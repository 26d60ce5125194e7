package jsonl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/identity"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Ensure QuerySetLoader implements the interface.
var _ driven.QuerySetLoader = QuerySetLoader{}

// QuerySetLoader loads query sets from .yaml/.yml or .jsonl files.
//
// A YAML query set is a document with name, hash and queries. A JSONL
// query set is one query per line; its hash is read from a sibling
// <file>.sha256.
type QuerySetLoader struct{}

// LoadQuerySet reads a query set without verifying its hash.
func (QuerySetLoader) LoadQuerySet(_ context.Context, path string) (*domain.QuerySet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, wrapNotFound(err, path)
		}
		var qs domain.QuerySet
		if err := yaml.Unmarshal(data, &qs); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		if qs.Name == "" {
			qs.Name = baseName(path)
		}
		return &qs, nil
	default:
		queries, err := readLines[domain.Query](path)
		if err != nil {
			return nil, wrapNotFound(err, path)
		}
		hash, err := os.ReadFile(path + ".sha256")
		if err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("reading hash: %w", err)
		}
		return &domain.QuerySet{
			Name:    baseName(path),
			Hash:    strings.TrimSpace(string(hash)),
			Queries: queries,
		}, nil
	}
}

// FreezeQuerySet computes the hash of a query set and writes it as YAML.
// Existing files are never overwritten.
func FreezeQuerySet(path string, qs *domain.QuerySet) error {
	if qs == nil || len(qs.Queries) == 0 {
		return fmt.Errorf("%w: query set is empty", domain.ErrMissingInput)
	}
	seen := make(map[string]bool, len(qs.Queries))
	for _, q := range qs.Queries {
		if strings.TrimSpace(q.QueryID) == "" || strings.TrimSpace(q.QueryText) == "" {
			return fmt.Errorf("%w: query needs an id and text", domain.ErrMissingInput)
		}
		if seen[q.QueryID] {
			return fmt.Errorf("%w: duplicate query id %s", domain.ErrInvalidInput, q.QueryID)
		}
		seen[q.QueryID] = true
	}
	hash, err := identity.QuerySetHash(qs.Queries)
	if err != nil {
		return err
	}
	frozen := *qs
	frozen.Hash = hash
	if frozen.Name == "" {
		frozen.Name = baseName(path)
	}

	data, err := yaml.Marshal(&frozen)
	if err != nil {
		return fmt.Errorf("encoding query set: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: frozen query set %s", domain.ErrAlreadyExists, path)
		}
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func wrapNotFound(err error, path string) error {
	if isNotExist(err) {
		return fmt.Errorf("%w: query set %s", domain.ErrNotFound, path)
	}
	return fmt.Errorf("reading query set: %w", err)
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
