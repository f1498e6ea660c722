package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/nikhilbhutani/chatdocs/internal/llm"
)

// answerTemperature stays low so answers track the supplied context
// instead of the model's imagination.
const answerTemperature = 0.3

const promptTemplate = `You are a helpful assistant.
Answer the question based on the context below.
If the context doesn't contain the answer, just say that you don't know.
Don't try to make up an answer. If the answer is not contained within the context, say "I don't know."
Context: %s
Question: %s`

// Generator turns an assembled context and a question into an answer via
// the LLM gateway.
type Generator struct {
	gateway  llm.Gateway
	provider string
	model    string
	timeout  time.Duration
}

func NewGenerator(gateway llm.Gateway, provider, model string, timeout time.Duration) (*Generator, error) {
	if gateway == nil {
		return nil, fmt.Errorf("generator requires an LLM gateway")
	}
	if model == "" {
		return nil, fmt.Errorf("generator requires a model name")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Generator{gateway: gateway, provider: provider, model: model, timeout: timeout}, nil
}

// FormatPrompt renders the grounding prompt. The instruction to answer
// only from the context and otherwise say "I don't know" is load-bearing.
func FormatPrompt(query, context string) string {
	return fmt.Sprintf(promptTemplate, context, query)
}

// Generate is a single completion call. Provider failures propagate to the
// caller, which substitutes the degraded response.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.gateway.Chat(ctx, llm.ChatRequest{
		Provider:    g.provider,
		Model:       g.model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: answerTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return resp.Content, nil
}
