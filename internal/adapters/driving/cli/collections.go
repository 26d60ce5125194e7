package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/patentgov/internal/adapters/driven/storage/filesystem"
	"github.com/custodia-labs/patentgov/internal/core/domain"
)

var (
	collectionsJSON bool
	queryCollection string
	queryTopK       int
)

var collectionsCmd = &cobra.Command{
	Use:     "collections",
	Aliases: []string{"col"},
	Short:   "Inspect promoted collections",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List promoted collections",
	Args:  cobra.NoArgs,
	RunE:  runCollectionsList,
}

var collectionsVerifyCmd = &cobra.Command{
	Use:   "verify [embedding-version-id]",
	Short: "Re-run the promotion gates against a production collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsVerify,
}

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search one promoted collection",
	Long: `Embeds a free-text query and returns the top families of a promoted
collection. Chunk hits are collapsed to their best-scoring family.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	collectionsCmd.PersistentFlags().BoolVar(&collectionsJSON, "json", false, "output as JSON")
	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsVerifyCmd)
	rootCmd.AddCommand(collectionsCmd)

	queryCmd.Flags().StringVarP(&queryCollection, "collection", "c", "", "embedding version id (required with several collections)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of families (default: eval.top_k)")
	rootCmd.AddCommand(queryCmd)
}

func runCollectionsList(cmd *cobra.Command, _ []string) error {
	store, err := filesystem.NewStore(appConfig.Paths.Root)
	if err != nil {
		return fmt.Errorf("opening collection store: %w", err)
	}
	cols, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	if collectionsJSON {
		data, err := json.MarshalIndent(cols, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal collections: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(cols) == 0 {
		cmd.Println("No promoted collections.")
		return nil
	}
	for _, c := range cols {
		cmd.Printf("%s\n", c.EmbeddingVersionID)
		cmd.Printf("  run:      %s\n", c.RunID)
		cmd.Printf("  promoted: %s\n", c.PromotedAt.UTC().Format("2006-01-02 15:04:05"))
		cmd.Printf("  path:     %s\n", c.Path)
	}
	return nil
}

func runCollectionsVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orchestrator, done, err := openBuildService(ctx, appConfig, false)
	if err != nil {
		return err
	}
	defer done.Close()

	report, verifyErr := orchestrator.Verify(ctx, args[0])
	if report == nil {
		return verifyErr
	}

	if collectionsJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		cmd.Println(string(data))
		return verifyErr
	}

	printGateReport(cmd, report)
	return verifyErr
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := filesystem.NewStore(appConfig.Paths.Root)
	if err != nil {
		return fmt.Errorf("opening collection store: %w", err)
	}
	var evids []string
	if queryCollection != "" {
		evids = []string{queryCollection}
	}
	cols, err := selectCollections(ctx, store, evids)
	if err != nil {
		return err
	}
	if len(cols) != 1 {
		return fmt.Errorf("%w: %d collections are promoted, choose one with --collection", domain.ErrMissingInput, len(cols))
	}

	evaluator, done, err := openEvaluator(ctx, appConfig)
	if err != nil {
		return err
	}
	defer done.Close()

	hits, err := evaluator.Query(ctx, cols[0], args[0], intOrDefault(queryTopK, appConfig.Eval.TopK))
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for _, h := range hits {
		cmd.Printf("[%d] %s %.4f (%s)\n", h.Rank, h.FamilyID, h.Score, h.ChunkType)
		if h.Preview != "" {
			cmd.Printf("    %s\n", h.Preview)
		}
	}
	return nil
}
