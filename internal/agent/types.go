// Package agent implements the AI reflection responder.
package agent

import (
	"context"

	"github.com/ashureev/gita-reflect/internal/domain"
)

// Reply is a validated responder answer for one turn.
type Reply struct {
	Message         string   `json:"message"`
	Options         []string `json:"options"`
	Progress        *int     `json:"progressPercentage,omitempty"`
	ShouldShowVerse bool     `json:"shouldShowVerse"`
	VerseQuery      string   `json:"verseQuery,omitempty"`
}

// Responder produces the assistant's next turn from the conversation history.
// The last history entry is the user message being answered.
type Responder interface {
	Respond(ctx context.Context, history []domain.Message) (*Reply, error)
	Name() string
}

// Provider names accepted by New.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds responder configuration.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string // optional endpoint override
}
