package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/patentgov/internal/adapters/driven/storage/jsonl"
	"github.com/custodia-labs/patentgov/internal/core/domain"
)

var (
	chunkRecords string
	chunkOut     string
	chunkRunID   string
	chunkJSON    bool
)

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Generate the governed chunk set from text records",
	Long: `Reads text records (one JSON object per line), normalises them and emits
exactly one claim_1, claim_set and spec chunk per usable family.

Families that cannot yield all three chunks are excluded and listed in the
report. The chunk set is written only when the three populations cover the
same families.`,
	Args: cobra.NoArgs,
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().StringVar(&chunkRecords, "records", "", "text records file (default: paths.records)")
	chunkCmd.Flags().StringVarP(&chunkOut, "out", "o", "", "chunk set directory (default: paths.chunks)")
	chunkCmd.Flags().StringVar(&chunkRunID, "run-id", "", "run id stamped on the chunk set")
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(chunkCmd)
}

func runChunk(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	records := orDefault(chunkRecords, appConfig.Paths.Records)
	out := orDefault(chunkOut, appConfig.Paths.Chunks)

	recs, err := jsonl.NewRecordSource(records).Records(ctx)
	if err != nil {
		return fmt.Errorf("reading records: %w", err)
	}

	chunker, err := newChunkService(appConfig, chunkRunID)
	if err != nil {
		return err
	}

	set, report, err := chunker.Generate(ctx, recs)
	if err != nil {
		var symErr *domain.SymmetryError
		if errors.As(err, &symErr) {
			return fmt.Errorf("chunk set rejected: %w", err)
		}
		return err
	}

	if err := jsonl.NewChunkSetStore(out).Save(ctx, set, report); err != nil {
		return fmt.Errorf("saving chunk set: %w", err)
	}

	if chunkJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Chunk set %s (policy %s) written to %s\n", report.RunID, report.PolicyVersion, out)
	cmd.Printf("  records:  %d\n", report.RecordsSeen)
	cmd.Printf("  families: %d\n", report.FamiliesKept)
	for _, ct := range domain.AllChunkTypes() {
		cmd.Printf("  %-10s %d\n", string(ct)+":", len(set.Chunks(ct)))
	}
	if len(report.ExclusionCount) > 0 {
		cmd.Println("Excluded:")
		reasons := make([]string, 0, len(report.ExclusionCount))
		for reason := range report.ExclusionCount {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			cmd.Printf("  %s: %d\n", reason, report.ExclusionCount[reason])
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
