package providers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/pkg/graph"
)

// ollamaMaxCtx caps num_ctx so a misconfigured budget cannot ask the model
// server for more context than any local model supports.
const ollamaMaxCtx = 128000

// OllamaProvider talks to a long-lived local model process over the Ollama
// generate API. keep_alive keeps the model loaded between entries.
type OllamaProvider struct {
	client    *ollama.Client
	model     string
	keepAlive time.Duration
	log       *logrus.Entry
}

// NewOllamaProvider builds the self-hosted model provider. A malformed base
// URL degrades to a nil client, which surfaces as a network error per call.
func NewOllamaProvider(baseURL, model string, keepAlive time.Duration, logger *logrus.Logger) *OllamaProvider {
	log := logger.WithField("provider", NameOllama)
	var client *ollama.Client
	if u, err := url.Parse(strings.TrimRight(baseURL, "/")); err == nil {
		client = ollama.NewClient(u, http.DefaultClient)
	} else {
		log.WithError(err).Errorf("invalid ollama base url %q", baseURL)
	}
	return &OllamaProvider{client: client, model: model, keepAlive: keepAlive, log: log}
}

func (p *OllamaProvider) Name() string { return NameOllama }

func (p *OllamaProvider) Extract(ctx context.Context, req Request) (string, error) {
	if p.client == nil {
		return "", graph.NewProviderError(NameOllama, graph.ProviderNetworkError,
			errors.New("ollama client not configured"))
	}

	numCtx := req.ContextWindowTokens
	if numCtx <= 0 || numCtx > ollamaMaxCtx {
		numCtx = ollamaMaxCtx
	}
	stream := false
	genReq := &ollama.GenerateRequest{
		Model:     p.model,
		Prompt:    buildPrompt(req),
		Stream:    &stream,
		KeepAlive: &ollama.Duration{Duration: p.keepAlive},
		Options:   map[string]any{"num_ctx": numCtx},
	}

	var text strings.Builder
	err := p.client.Generate(ctx, genReq, func(resp ollama.GenerateResponse) error {
		text.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", graph.NewProviderError(NameOllama, p.classify(err), err)
	}
	return text.String(), nil
}

func (p *OllamaProvider) classify(err error) graph.ProviderErrorKind {
	var statusErr ollama.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode)
	}
	return classifyTransport(err)
}
