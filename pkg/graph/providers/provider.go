package providers

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/config"
	"github.com/momento-app/momento-graph/pkg/graph"
	"github.com/momento-app/momento-graph/services"
)

// Request carries the budget-fitted entry text to a provider.
type Request = graph.ProviderRequest

// Provider is a single extraction backend. Extract returns the provider's raw
// structured output (a JSON document as text); parsing and validation happen
// in the runner so malformed output is subject to the fallback-or-fail policy.
type Provider = graph.ExtractionProvider

const (
	NameLocal     = "local"
	NameOllama    = "ollama"
	NameOpenAI    = "openai"
	NameAnthropic = "anthropic"
)

// FromSettings builds the configured provider. Unknown selectors log a
// warning and default to the local heuristic, matching ingestion's promise
// that a provider is always available.
func FromSettings(cfg config.Settings, logger *logrus.Logger) Provider {
	log := logger.WithField("component", "providers")
	switch cfg.ExtractionProvider {
	case NameOllama:
		return NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.OllamaKeepAlive, logger)
	case NameOpenAI:
		return NewOpenAIProvider(services.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), cfg.OpenAIModel, logger)
	case NameAnthropic:
		return NewAnthropicProvider(services.NewAnthropicClient(cfg.AnthropicAPIKey), cfg.AnthropicModel, logger)
	case NameLocal, "":
		return NewLocalProvider(logger)
	default:
		log.Warnf("unknown extraction provider %q, defaulting to local heuristic", cfg.ExtractionProvider)
		return NewLocalProvider(logger)
	}
}

// classifyStatus maps an upstream HTTP status onto a provider error kind.
func classifyStatus(status int) graph.ProviderErrorKind {
	switch {
	case status == 401 || status == 403:
		return graph.ProviderAuthFailure
	case status == 429:
		return graph.ProviderRateLimited
	case status == 408 || status == 504:
		return graph.ProviderTimeout
	default:
		return graph.ProviderNetworkError
	}
}

// classifyTransport maps context and socket failures onto provider error
// kinds. Anything unrecognized counts as a network error.
func classifyTransport(err error) graph.ProviderErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return graph.ProviderTimeout
	case errors.Is(err, context.Canceled):
		return graph.ProviderCancelled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return graph.ProviderTimeout
	}
	if strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline") {
		return graph.ProviderTimeout
	}
	return graph.ProviderNetworkError
}
