package providers

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/pkg/graph"
)

// OpenAIProvider sends extraction requests to the OpenAI chat completions
// API (or any compatible endpoint via OPENAI_BASE_URL).
type OpenAIProvider struct {
	client *openai.Client
	model  string
	log    *logrus.Entry
}

// NewOpenAIProvider builds the hosted OpenAI provider. client may be nil when
// no API key is configured; every call then fails with AuthFailure.
func NewOpenAIProvider(client *openai.Client, model string, logger *logrus.Logger) *OpenAIProvider {
	return &OpenAIProvider{client: client, model: model, log: logger.WithField("provider", NameOpenAI)}
}

func (p *OpenAIProvider) Name() string { return NameOpenAI }

func (p *OpenAIProvider) Extract(ctx context.Context, req Request) (string, error) {
	if p.client == nil {
		return "", graph.NewProviderError(NameOpenAI, graph.ProviderAuthFailure,
			errors.New("OPENAI_API_KEY is not set"))
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
	})
	if err != nil {
		return "", graph.NewProviderError(NameOpenAI, p.classify(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", graph.NewProviderError(NameOpenAI, graph.ProviderInvalidResponse,
			errors.New("no choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) classify(err error) graph.ProviderErrorKind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return classifyStatus(reqErr.HTTPStatusCode)
	}
	return classifyTransport(err)
}
