package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docq/docq/internal/index"
)

func newIndexCmd() *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "index [docs-dir]",
		Short: "Index documents incrementally",
		Long: `Scan the docs directory, embed new and changed documents and update
the local index. Unchanged documents are skipped by content fingerprint.

Use --rebuild to discard the existing index and start from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Paths.DocsDir = args[0]
			}

			engine, err := index.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			var result *index.RunResult
			if rebuild {
				result, err = engine.Manager.Rebuild(ctx)
			} else {
				result, err = engine.Manager.Run(ctx)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Indexed %s in %s\n", cfg.Paths.DocsDir, result.Duration.Round(time.Millisecond))
			fmt.Printf("  added: %d  changed: %d  removed: %d  unchanged: %d  chunks: %d\n",
				result.Added, result.Changed, result.Removed, result.Unchanged, result.ChunksIndexed)
			for _, f := range result.Failed {
				printErr("  skipped %s: %v", f.DocID, f.Err)
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d document(s) failed", len(result.Failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Discard the existing index and rebuild from scratch")
	return cmd
}
