package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docq/docq/internal/index"
	"github.com/docq/docq/internal/retrieve"
)

func newQueryCmd() *cobra.Command {
	var (
		topK     int
		minScore float32
		perDoc   bool
		full     bool
	)

	cmd := &cobra.Command{
		Use:   "query <text>...",
		Short: "Retrieve the most relevant passages",
		Args:  cobra.MinimumNArgs(1),
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

			retriever := retrieve.New(engine.Embedder, engine.Vectors, engine.Manifest, retrieve.Config{
				K:           cfg.Retrieval.TopK,
				MinScore:    float32(cfg.Retrieval.MinScore),
				PerDocument: cfg.Retrieval.PerDocument,
			})

			opts := []retrieve.Option{}
			if topK > 0 {
				opts = append(opts, retrieve.WithK(topK))
			}
			if cmd.Flags().Changed("min-score") {
				opts = append(opts, retrieve.WithMinScore(minScore))
			}
			if cmd.Flags().Changed("per-doc") {
				opts = append(opts, retrieve.WithPerDocument(perDoc))
			}

			query := strings.Join(args, " ")
			result, err := retriever.Retrieve(ctx, query, opts...)
			if err != nil {
				return err
			}

			if len(result.Passages) == 0 {
				fmt.Println("No matching passages.")
				return nil
			}
			for i, p := range result.Passages {
				fmt.Printf("%d. %s #%d  (score %.3f)\n", i+1, p.DocID, p.Seq, p.Score)
				if full {
					fmt.Println(indent(p.Text, "   "))
				} else {
					fmt.Printf("   %s\n", preview(p.Text, 160))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top", "k", 0, "Number of passages to return (default from config)")
	cmd.Flags().Float32Var(&minScore, "min-score", 0, "Minimum similarity score")
	cmd.Flags().BoolVar(&perDoc, "per-doc", false, "At most one passage per document")
	cmd.Flags().BoolVar(&full, "full", false, "Print full passage text")
	return cmd
}

func preview(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
