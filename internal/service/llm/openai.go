package llm

import (
	"context"
	"errors"
	"math"
	"net/http"

	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/lifeline/backend/internal/config"
)

const providerOpenAI = "openai"

// OpenAIGateway talks to any OpenAI compatible chat completion endpoint.
type OpenAIGateway struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewOpenAIGateway(cfg config.LLMConfig) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm.api_key is required for the openai provider")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return NewOpenAIGatewayWithClient(openai.NewClientWithConfig(clientCfg), model, cfg.MaxTokens, float32(cfg.Temperature)), nil
}

func NewOpenAIGatewayWithClient(client *openai.Client, model string, maxTokens int, temperature float32) *OpenAIGateway {
	return &OpenAIGateway{client: client, model: model, maxTokens: maxTokens, temperature: temperature}
}

func (g *OpenAIGateway) Invoke(ctx context.Context, messages []*schema.Message, opts ...Option) (string, error) {
	o := ApplyOptions(opts...)
	temperature := g.temperature
	if o.Temperature != nil {
		temperature = *o.Temperature
	}
	// go-openai drops a zero temperature via omitempty.
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
	}
	if g.maxTokens > 0 {
		req.MaxTokens = g.maxTokens
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(providerOpenAI, openAIStatus(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", NewFatal(providerOpenAI, errors.New("response contained no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case schema.System:
			role = openai.ChatMessageRoleSystem
		case schema.Assistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
