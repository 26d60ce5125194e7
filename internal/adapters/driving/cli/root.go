// Package cli provides the patentgov command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/patentgov/internal/adapters/driven/config/file"
	"github.com/custodia-labs/patentgov/internal/logger"
)

// version is set at build time with -ldflags "-X .../cli.version=...".
var version = "dev"

var (
	configPath string
	verbose    bool

	// appConfig is loaded before every command runs.
	appConfig *file.Config
)

var rootCmd = &cobra.Command{
	Use:   "patentgov",
	Short: "Governed patent chunking, embedding builds and retrieval evaluation",
	Long: `patentgov turns patent text records into governed chunk sets, embeds them
into versioned collections that are promoted only when every gate passes,
and compares promoted collections against frozen query sets.

Configuration is read from ~/.patentgov/config.toml unless --config is
given. A .env file in the working directory is loaded first.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show progress output")
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(_ *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	// A missing .env is normal.
	_ = godotenv.Load()

	var (
		store *file.ConfigStore
		err   error
	)
	if configPath != "" {
		store, err = file.NewConfigStoreAt(configPath)
	} else {
		store, err = file.NewConfigStore("")
	}
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}

	cfg, err := file.Load(store)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", store.Path(), err)
	}
	appConfig = cfg
	logger.Debug("config loaded from %s", store.Path())
	return nil
}
