package agent

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ashureev/gita-reflect/internal/domain"
	"github.com/ashureev/gita-reflect/internal/shared"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiResponder answers turns with the Gemini API.
type GeminiResponder struct {
	client *genai.Client
	model  string
}

// NewGeminiResponder creates a Gemini-backed responder.
func NewGeminiResponder(ctx context.Context, cfg Config) (*GeminiResponder, error) {
	if cfg.APIKey == "" {
		return nil, shared.InvalidInput("gemini API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiResponder{client: client, model: model}, nil
}

// Name implements Responder.
func (g *GeminiResponder) Name() string { return ProviderGemini + ":" + g.model }

// Respond implements Responder.
func (g *GeminiResponder) Respond(ctx context.Context, history []domain.Message) (*Reply, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := genai.RoleUser
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}

	res, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleModel),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    replySchema,
	})
	if err != nil {
		return nil, shared.ProcessingFailed(fmt.Errorf("gemini: calling GenerateContent: %w", err))
	}
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return nil, shared.ProcessingFailed(fmt.Errorf("gemini: empty response"))
	}

	var text strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	return ParseReply(text.String())
}

var replySchema = &genai.Schema{
	Type: "object",
	Properties: map[string]*genai.Schema{
		"message": {
			Type:        "string",
			Description: "The reflective response shown to the person.",
		},
		"options": {
			Type:        "array",
			Description: "Two or three short introspective replies.",
			Items:       &genai.Schema{Type: "string"},
			MinItems:    genai.Ptr[int64](MinOptions),
			MaxItems:    genai.Ptr[int64](MaxOptions),
		},
		"progressPercentage": {
			Type:        "integer",
			Description: "How far the reflection has progressed, 0 to 100.",
		},
		"shouldShowShloka": {
			Type:        "boolean",
			Description: "Whether a verse should be shown with this turn.",
		},
		"shlokaQuery": {
			Type:        "string",
			Description: "Keywords used to find the verse.",
		},
	},
	Required: []string{"message", "options", "shouldShowShloka"},
}
