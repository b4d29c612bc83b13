package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docq/docq/internal/retrieve"
)

func TestBuildPrompt(t *testing.T) {
	passages := []retrieve.Passage{
		{DocID: "guide.md", Seq: 0, Text: "Install with the package manager."},
		{DocID: "faq.md", Seq: 3, Text: "Restart after installation."},
	}

	prompt := BuildPrompt("How do I install it?", passages)

	assert.Contains(t, prompt, "How do I install it?")
	assert.Contains(t, prompt, "[guide.md #0]")
	assert.Contains(t, prompt, "Install with the package manager.")
	assert.Contains(t, prompt, "[faq.md #3]")
	assert.Contains(t, prompt, "Restart after installation.")
}

func TestBuildPrompt_NoPassages(t *testing.T) {
	prompt := BuildPrompt("question", nil)
	assert.Contains(t, prompt, "question")
	assert.Contains(t, prompt, "Document excerpts")
}

func TestNewOpenAIGenerator_RequiresKey(t *testing.T) {
	_, err := NewOpenAIGenerator(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}
