package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docq/docq/internal/answer"
	"github.com/docq/docq/internal/index"
	"github.com/docq/docq/internal/retrieve"
)

func newAskCmd() *cobra.Command {
	var (
		topK  int
		model string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>...",
		Short: "Answer a question grounded in the indexed documents",
		Long: `Retrieve the most relevant passages and ask a chat model to answer
the question using only those passages.

Requires OPENAI_API_KEY in the environment or a .env file.`,
		Args: cobra.MinimumNArgs(1),
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
				K:        cfg.Retrieval.TopK,
				MinScore: float32(cfg.Retrieval.MinScore),
			})

			question := strings.Join(args, " ")
			opts := []retrieve.Option{}
			if topK > 0 {
				opts = append(opts, retrieve.WithK(topK))
			}
			result, err := retriever.Retrieve(ctx, question, opts...)
			if err != nil {
				return err
			}
			if len(result.Passages) == 0 {
				fmt.Println("No relevant passages found; nothing to answer from.")
				return nil
			}

			generator, err := answer.NewOpenAIGenerator(answer.Config{
				APIKey: os.Getenv("OPENAI_API_KEY"),
				Model:  model,
			})
			if err != nil {
				return err
			}

			text, err := generator.Generate(ctx, question, result.Passages)
			if err != nil {
				return err
			}

			fmt.Println(text)
			fmt.Println("\nSources:")
			for _, p := range result.Passages {
				fmt.Printf("  %s #%d (score %.3f)\n", p.DocID, p.Seq, p.Score)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top", "k", 0, "Number of passages to ground the answer on")
	cmd.Flags().StringVar(&model, "model", "", "Chat model to use")
	return cmd
}
