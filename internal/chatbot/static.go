package chatbot

import (
	"context"
	"strings"
	"unicode/utf8"
)

// maxEchoRunes caps how much of the user message a static reply quotes back.
const maxEchoRunes = 120

// StaticGenerator is a deterministic offline generator used when no API key
// is configured, and in tests. It never fails.
type StaticGenerator struct {
	// Prefix leads every reply. Defaults to "You said: " when empty.
	Prefix string
}

// NewStaticGenerator returns a generator that echoes the user message.
func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

// GenerateReply implements Generator.
func (g *StaticGenerator) GenerateReply(_ context.Context, content string) (string, error) {
	prefix := g.Prefix
	if prefix == "" {
		prefix = "You said: "
	}
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) > maxEchoRunes {
		content = string([]rune(content)[:maxEchoRunes]) + "…"
	}
	return prefix + content, nil
}
