package chatbot

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// systemPrompt frames the assistant for single-turn exchanges. Each reply is
// generated from the user message alone; history is not replayed upstream.
const systemPrompt = "You are a helpful assistant. Answer the user's message directly and concisely."

// OpenAIGenerator produces replies via the OpenAI chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator builds a generator for the given API key and model.
// An empty model falls back to gpt-3.5-turbo.
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// GenerateReply implements Generator. Upstream failures and empty completions
// are wrapped in ErrUnavailable so callers can map them uniformly.
func (g *OpenAIGenerator) GenerateReply(ctx context.Context, content string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: blank completion", ErrUnavailable)
	}
	return reply, nil
}
