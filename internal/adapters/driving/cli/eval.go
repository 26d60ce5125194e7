package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/patentgov/internal/adapters/driven/storage/filesystem"
	"github.com/custodia-labs/patentgov/internal/adapters/driven/storage/jsonl"
	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
	"github.com/custodia-labs/patentgov/internal/core/ports/driving"
)

var (
	evalCollections []string
	evalTopK        int
	evalNResults    int
	evalTruth       string
	evalSplit       bool
	evalRunID       string
	evalJSON        bool
)

var evalCmd = &cobra.Command{
	Use:   "eval [query-set]",
	Short: "Compare promoted collections against a frozen query set",
	Long: `Runs every query of a frozen query set against each promoted collection,
collapses chunk hits to families and reports pairwise overlap at k.

Recall at k is reported only when --ground-truth is given. The ground truth
file is YAML mapping query ids to relevant family ids.`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Query set commands",
}

var queriesFreezeCmd = &cobra.Command{
	Use:   "freeze [source] [frozen.yaml]",
	Short: "Hash a query set and write it as a frozen YAML file",
	Long: `Reads a query set (YAML, or JSONL with one query per line), computes its
hash and writes it to a new YAML file. Existing files are never overwritten.`,
	Args: cobra.ExactArgs(2),
	RunE: runQueriesFreeze,
}

func init() {
	evalCmd.Flags().StringSliceVarP(&evalCollections, "collection", "c", nil,
		"embedding version ids to compare (default: all promoted)")
	evalCmd.Flags().IntVarP(&evalTopK, "top-k", "k", 0, "family cut-off (default: eval.top_k)")
	evalCmd.Flags().IntVar(&evalNResults, "n-results", 0, "chunk candidates per query (default: eval.n_results)")
	evalCmd.Flags().StringVar(&evalTruth, "ground-truth", "", "YAML file of relevant families per query")
	evalCmd.Flags().BoolVar(&evalSplit, "split-layers", false, "evaluate each chunk type as its own layer")
	evalCmd.Flags().StringVar(&evalRunID, "run-id", "", "evaluation run id (default: generated)")
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "output the summary as JSON")
	rootCmd.AddCommand(evalCmd)

	queriesCmd.AddCommand(queriesFreezeCmd)
	rootCmd.AddCommand(queriesCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	qs, err := jsonl.QuerySetLoader{}.LoadQuerySet(ctx, args[0])
	if err != nil {
		return err
	}

	var truth map[string][]string
	if evalTruth != "" {
		data, err := os.ReadFile(evalTruth)
		if err != nil {
			return fmt.Errorf("reading ground truth: %w", err)
		}
		if err := yaml.Unmarshal(data, &truth); err != nil {
			return fmt.Errorf("decoding ground truth %s: %w", evalTruth, err)
		}
	}

	store, err := filesystem.NewStore(appConfig.Paths.Root)
	if err != nil {
		return fmt.Errorf("opening collection store: %w", err)
	}
	cols, err := selectCollections(ctx, store, evalCollections)
	if err != nil {
		return err
	}

	evaluator, done, err := openEvaluator(ctx, appConfig)
	if err != nil {
		return err
	}
	defer done.Close()

	summary, err := evaluator.Run(ctx, driving.EvalRequest{
		RunID:       evalRunID,
		QuerySet:    qs,
		Collections: cols,
		TopK:        intOrDefault(evalTopK, appConfig.Eval.TopK),
		NResults:    intOrDefault(evalNResults, appConfig.Eval.NResults),
		GroundTruth: truth,
		SplitLayers: evalSplit,
	})
	if err != nil {
		return err
	}

	if evalJSON {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	printEvalSummary(cmd, summary)
	return nil
}

// selectCollections resolves the requested versions among the promoted
// collections. No request selects all of them.
func selectCollections(ctx context.Context, store driven.CollectionStore, evids []string) ([]domain.Collection, error) {
	promoted, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	if len(evids) == 0 {
		if len(promoted) == 0 {
			return nil, fmt.Errorf("%w: no promoted collections", domain.ErrNotFound)
		}
		return promoted, nil
	}

	byID := make(map[string]domain.Collection, len(promoted))
	for _, c := range promoted {
		byID[c.EmbeddingVersionID] = c
	}
	out := make([]domain.Collection, 0, len(evids))
	for _, evid := range evids {
		c, ok := byID[evid]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotPromoted, evid)
		}
		out = append(out, c)
	}
	return out, nil
}

func printEvalSummary(cmd *cobra.Command, s *domain.EvalSummary) {
	cmd.Printf("Run %s: %d queries, %d records (top_k=%d, n_results=%d)\n",
		s.RunID, s.Queries, s.Records, s.TopK, s.NResults)
	cmd.Printf("Query set %s (%s)\n", s.QuerySet, s.QuerySetHash)
	cmd.Println("Layers:")
	for _, l := range s.Layers {
		cmd.Printf("  %s\n", l)
	}
	if len(s.Overlap) > 0 {
		cmd.Printf("Jaccard@%d:\n", s.TopK)
		for _, o := range s.Overlap {
			cmd.Printf("  %s vs %s: %.3f\n", o.A, o.B, o.Jaccard)
		}
	}
	if len(s.Recall) > 0 {
		cmd.Printf("Recall@%d:\n", s.TopK)
		layers := make([]string, 0, len(s.Recall))
		for l := range s.Recall {
			layers = append(layers, l)
		}
		sort.Strings(layers)
		for _, l := range layers {
			cmd.Printf("  %s: %.3f\n", l, s.Recall[l])
		}
	}
}

func runQueriesFreeze(cmd *cobra.Command, args []string) error {
	qs, err := jsonl.QuerySetLoader{}.LoadQuerySet(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := jsonl.FreezeQuerySet(args[1], qs); err != nil {
		return err
	}
	cmd.Printf("Froze %d queries to %s\n", len(qs.Queries), args[1])
	return nil
}

func intOrDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
