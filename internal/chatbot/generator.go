// Package chatbot defines the reply-generation boundary of the application.
//
// The rest of the system talks to a single narrow Generator interface; the
// concrete adapters (OpenAI-backed, static) live alongside it in this package.
// Services treat any Generator error as "assistant unavailable" and roll back
// the pending user message, so adapters must return errors instead of
// degrading silently.
package chatbot

import (
	"context"
	"errors"
)

// ErrUnavailable indicates that the upstream model could not produce a reply
// (network failure, rate limit, empty completion).
var ErrUnavailable = errors.New("chatbot unavailable")

// Generator produces an assistant reply for a user message.
type Generator interface {
	// GenerateReply returns the assistant's reply to content. Implementations
	// must honor ctx cancellation and return a non-empty string on success.
	GenerateReply(ctx context.Context, content string) (string, error)
}

// The function type below adapts plain functions (tests, one-off fakes) to
// the Generator interface.

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, content string) (string, error)

// GenerateReply implements Generator.
func (f GeneratorFunc) GenerateReply(ctx context.Context, content string) (string, error) {
	return f(ctx, content)
}
