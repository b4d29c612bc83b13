package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docq/docq/internal/index"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			engine, err := index.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			docs, chunks, err := engine.Manifest.Count(ctx)
			if err != nil {
				return err
			}
			lastRunID, err := engine.Manifest.GetState(ctx, "last_run_id")
			if err != nil {
				return err
			}
			lastRunAt, err := engine.Manifest.GetState(ctx, "last_run_at")
			if err != nil {
				return err
			}

			fmt.Printf("docs dir:   %s\n", cfg.Paths.DocsDir)
			fmt.Printf("data dir:   %s\n", cfg.Paths.DataDir)
			fmt.Printf("documents:  %d\n", docs)
			fmt.Printf("chunks:     %d\n", chunks)
			fmt.Printf("vectors:    %d\n", engine.Vectors.Count())
			fmt.Printf("model:      %s (%d dimensions)\n",
				engine.Embedder.ModelName(), engine.Embedder.Dimensions())
			if lastRunID != "" {
				fmt.Printf("last run:   %s at %s\n", lastRunID, lastRunAt)
			} else {
				fmt.Println("last run:   never")
			}
			return nil
		},
	}
}
