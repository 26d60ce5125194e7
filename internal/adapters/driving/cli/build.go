package cli

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/patentgov/internal/adapters/driven/storage/jsonl"
	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/identity"
	"github.com/custodia-labs/patentgov/internal/core/ports/driving"
)

var (
	buildChunks string
	buildRunID  string
	buildJSON   bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed a chunk set and promote it if every gate passes",
	Long: `Embeds the chunk set into an isolated staging workspace, writes the
manifest, runs the validation gates and atomically promotes the build.

A failed build is never visible to readers; the previous production
collection of the same embedding version stays in place.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildChunks, "chunks", "", "chunk set directory (default: paths.chunks)")
	buildCmd.Flags().StringVar(&buildRunID, "run-id", "", "build run id (default: random)")
	buildCmd.Flags().BoolVar(&buildJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	set, err := jsonl.NewChunkSetStore(orDefault(buildChunks, appConfig.Paths.Chunks)).Load(ctx)
	if err != nil {
		return fmt.Errorf("loading chunk set: %w", err)
	}
	version := appConfig.EmbeddingVersion()
	if set.PolicyVersion != version.ChunkPolicy {
		return fmt.Errorf("%w: chunk set was generated under policy %q but config names %q",
			domain.ErrInvalidInput, set.PolicyVersion, version.ChunkPolicy)
	}

	orchestrator, done, err := openBuildService(ctx, appConfig, true)
	if err != nil {
		return err
	}
	defer done.Close()

	runID := buildRunID
	if runID == "" {
		runID = uuid.NewString()
	}

	result, buildErr := orchestrator.Build(ctx, driving.BuildRequest{
		ChunkSet: set,
		Version:  version,
		RunID:    runID,
		Profile:  appConfig.Build,
		Filter:   appConfig.Isolation,
	})
	if result == nil {
		return buildErr
	}

	if buildJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return buildErr
	}

	printBuildResult(cmd, result)
	return buildErr
}

func printBuildResult(cmd *cobra.Command, result *domain.BuildResult) {
	b := result.Build
	cmd.Printf("Build %s: %s\n", b.RunID, b.Status)
	cmd.Printf("  version:   %s\n", b.EmbeddingVersionID)
	cmd.Printf("  workspace: %s\n", identity.WorkspaceName(b.EmbeddingVersionID))
	if result.Manifest != nil {
		cmd.Printf("  vectors:   %d\n", result.Manifest.Observations.Vectors)
	}
	if b.Reason != "" {
		cmd.Printf("  reason:    %s\n", b.Reason)
	}
	if result.Report != nil {
		printGateReport(cmd, result.Report)
	}
	if result.Collection != nil {
		cmd.Printf("Promoted to %s\n", result.Collection.Path)
	}
}

func printGateReport(cmd *cobra.Command, report *domain.GateReport) {
	cmd.Printf("Gates (%s):\n", report.Phase)
	for _, r := range report.Results {
		line := fmt.Sprintf("  [%s] %s", r.Outcome, r.Name)
		if r.Reason != "" {
			line += ": " + r.Reason
		}
		if r.Expected != "" || r.Actual != "" {
			line += fmt.Sprintf(" (expected %s, got %s)", r.Expected, r.Actual)
		}
		cmd.Println(line)
	}
}
