package agent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/ashureev/gita-reflect/internal/domain"
	apperrors "github.com/ashureev/gita-reflect/internal/shared"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIResponder answers turns with an OpenAI-compatible chat completions API.
type OpenAIResponder struct {
	client openai.Client
	model  string
}

// NewOpenAIResponder creates an OpenAI-backed responder. Each turn is a
// single attempt; the SDK's own retries are disabled.
func NewOpenAIResponder(cfg Config) (*OpenAIResponder, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.InvalidInput("openai API key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIResponder{client: openai.NewClient(opts...), model: model}, nil
}

// Name implements Responder.
func (o *OpenAIResponder) Name() string { return ProviderOpenAI + ":" + o.model }

// Respond implements Responder.
func (o *OpenAIResponder) Respond(ctx context.Context, history []domain.Message) (*Reply, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(SystemPrompt))
	for _, m := range history {
		if m.Role == domain.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, apperrors.ProcessingFailed(fmt.Errorf("openai: chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.ProcessingFailed(fmt.Errorf("openai: no choices in response"))
	}
	return ParseReply(resp.Choices[0].Message.Content)
}
