package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/normanking/jarvis/internal/apperr"
)

// OpenAIProvider implements Provider over the OpenAI chat completions API,
// or any server that speaks it.
type OpenAIProvider struct {
	config *ProviderConfig
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider. The SDK's own retries are
// disabled; the gateway owns the retry policy.
func NewOpenAIProvider(cfg *ProviderConfig) *OpenAIProvider {
	cfg = applyDefaults(cfg, "openai")

	client := openai.NewClient(
		option.WithBaseURL(cfg.Endpoint),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(0),
	)

	return &OpenAIProvider{config: cfg, client: client}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.config.Name
}

// Config returns a copy of the provider's configuration.
func (p *OpenAIProvider) Config() ProviderConfig {
	return *p.config
}

// Chat sends a chat request. Non-2xx responses come back as
// *apperr.StatusError; transport failures are returned as-is.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req.APIKey == "" {
		return nil, apperr.ErrMissingCredential
	}

	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params, option.WithAPIKey(req.APIKey))
	if err != nil {
		return nil, mapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", apperr.ErrMalformedResponse)
	}

	choice := resp.Choices[0]
	return &ChatResponse{
		Content:          strings.TrimSpace(choice.Message.Content),
		Model:            resp.Model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		Duration:         time.Since(start),
		FinishReason:     string(choice.FinishReason),
	}, nil
}

func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &apperr.StatusError{StatusCode: apiErr.StatusCode, Message: msg}
	}
	return err
}
