package services

import (
	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// NewAnthropicClient builds an Anthropic client from configured credentials.
// Returns nil when no API key is set.
func NewAnthropicClient(apiKey string) *anthropic.Client {
	if apiKey == "" {
		return nil
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &client
}
