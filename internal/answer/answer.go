// Package answer composes retrieved passages into a prompt and asks a
// chat model to answer grounded in them.
package answer

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docq/docq/internal/retrieve"
)

const systemPrompt = "You are a helpful assistant that answers questions " +
	"using only the provided document excerpts. If the excerpts do not " +
	"contain enough information, say so instead of guessing. Cite the " +
	"source document when possible."

// Generator produces a grounded answer from a question and its
// supporting passages.
type Generator interface {
	Generate(ctx context.Context, question string, passages []retrieve.Passage) (string, error)
}

// OpenAIGenerator generates answers through the OpenAI chat API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
}

var _ Generator = (*OpenAIGenerator)(nil)

// Config configures the OpenAI generator.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint for compatible servers.
	BaseURL     string
	Temperature float32
}

// NewOpenAIGenerator creates a generator.
func NewOpenAIGenerator(cfg Config) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Generate builds the grounded prompt and returns the model's answer.
func (g *OpenAIGenerator) Generate(ctx context.Context, question string, passages []retrieve.Passage) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(question, passages)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// BuildPrompt renders the question with its supporting excerpts.
func BuildPrompt(question string, passages []retrieve.Passage) string {
	var sb strings.Builder
	sb.WriteString(question)
	sb.WriteString("\n\n--- Document excerpts ---\n\n")
	for _, p := range passages {
		fmt.Fprintf(&sb, "[%s #%d]\n%s\n\n", p.DocID, p.Seq, p.Text)
	}
	sb.WriteString("--- End excerpts ---")
	return sb.String()
}
