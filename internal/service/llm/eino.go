package llm

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModelGateway adapts an eino chat model (ark by default) to Gateway.
type ChatModelGateway struct {
	provider string
	model    model.BaseChatModel
}

func NewChatModelGateway(provider string, m model.BaseChatModel) *ChatModelGateway {
	if provider == "" {
		provider = "eino"
	}
	return &ChatModelGateway{provider: provider, model: m}
}

func (g *ChatModelGateway) Invoke(ctx context.Context, messages []*schema.Message, opts ...Option) (string, error) {
	if g.model == nil {
		return "", NewFatal(g.provider, errors.New("chat model not configured"))
	}

	o := ApplyOptions(opts...)
	var modelOpts []model.Option
	if o.Temperature != nil {
		modelOpts = append(modelOpts, model.WithTemperature(*o.Temperature))
	}

	msg, err := g.model.Generate(ctx, messages, modelOpts...)
	if err != nil {
		return "", classify(g.provider, statusFromError(err), err)
	}
	if msg == nil {
		return "", NewFatal(g.provider, errors.New("empty completion"))
	}
	return msg.Content, nil
}

// statusFromError reads an HTTP status from provider SDK errors that expose one.
func statusFromError(err error) int {
	var withStatus interface{ StatusCode() int }
	if errors.As(err, &withStatus) {
		return withStatus.StatusCode()
	}
	return 0
}
