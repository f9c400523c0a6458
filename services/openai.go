package services

import (
	"github.com/sashabaranov/go-openai"
)

// NewOpenAIClient builds an OpenAI client from configured credentials.
// Returns nil when no API key is set; the provider adapter reports that as
// an auth failure instead of crashing at startup.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	if apiKey == "" {
		return nil
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return openai.NewClientWithConfig(config)
}
