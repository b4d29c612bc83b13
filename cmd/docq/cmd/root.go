// Package cmd provides the CLI commands for docq.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/docq/docq/internal/config"
	"github.com/docq/docq/internal/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	flagConfigDir string
	flagDebug     bool

	logCleanup func()
)

// NewRootCmd creates the root command for the docq CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docq",
		Short: "Incremental document indexing and semantic retrieval",
		Long: `docq keeps a local semantic index over a directory of documents.

Indexing is incremental: unchanged documents are detected by content
fingerprint and never re-embedded. Queries run against a local HNSW
vector index with passages hydrated from the manifest.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("docq version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&flagConfigDir, "config-dir", "C", ".",
		"Directory containing .docq.yaml")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		// .env supplies API keys for the openai provider.
		_ = godotenv.Load()
		return nil
	}
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads configuration and wires logging from it.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flagConfigDir)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Logging.Level
	if flagDebug {
		level = "debug"
	}
	logger, cleanup, err := logging.Setup(logging.Config{
		Level:    level,
		FilePath: cfg.Logging.File,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}
	logCleanup = cleanup
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func printErr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
