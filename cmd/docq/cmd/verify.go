package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docq/docq/internal/index"
)

func newVerifyCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Cross-check the manifest against the vector index",
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

			result, verifyErr := engine.Manager.Verify(ctx)
			if result != nil {
				fmt.Printf("manifest chunks: %d\nvector chunks:   %d\n",
					result.ManifestChunks, result.VectorChunks)
				for _, id := range result.MissingVectors {
					printErr("missing vector for chunk %s", id)
				}
				for _, id := range result.OrphanVectors {
					printErr("orphan vector %s", id)
				}
			}
			if verifyErr == nil {
				fmt.Println("Index is consistent.")
				return nil
			}
			if !repair {
				return verifyErr
			}

			if err := engine.Manager.Repair(ctx); err != nil {
				return err
			}
			fmt.Println("Repaired. Run 'docq index' to re-index affected documents.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Delete orphan vectors and requeue documents with missing vectors")
	return cmd
}
