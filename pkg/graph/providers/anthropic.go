package providers

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/pkg/graph"
)

const anthropicMaxTokens = 4096

// AnthropicProvider sends extraction requests to the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
	log    *logrus.Entry
}

// NewAnthropicProvider builds the hosted Anthropic provider. client may be
// nil when no API key is configured; every call then fails with AuthFailure.
func NewAnthropicProvider(client *anthropic.Client, model string, logger *logrus.Logger) *AnthropicProvider {
	return &AnthropicProvider{client: client, model: model, log: logger.WithField("provider", NameAnthropic)}
}

func (p *AnthropicProvider) Name() string { return NameAnthropic }

func (p *AnthropicProvider) Extract(ctx context.Context, req Request) (string, error) {
	if p.client == nil {
		return "", graph.NewProviderError(NameAnthropic, graph.ProviderAuthFailure,
			errors.New("ANTHROPIC_API_KEY is not set"))
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
	})
	if err != nil {
		return "", graph.NewProviderError(NameAnthropic, p.classify(err), err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if text.Len() == 0 {
		return "", graph.NewProviderError(NameAnthropic, graph.ProviderInvalidResponse,
			errors.New("no text blocks in response"))
	}
	return text.String(), nil
}

func (p *AnthropicProvider) classify(err error) graph.ProviderErrorKind {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode)
	}
	return classifyTransport(err)
}
