package services

import "testing"

func TestNewOpenAIClientWithoutKey(t *testing.T) {
	if c := NewOpenAIClient("", "https://example.invalid/v1"); c != nil {
		t.Fatal("expected nil client without an API key")
	}
	if c := NewOpenAIClient("sk-test", ""); c == nil {
		t.Fatal("expected client with an API key")
	}
}

func TestNewAnthropicClientWithoutKey(t *testing.T) {
	if c := NewAnthropicClient(""); c != nil {
		t.Fatal("expected nil client without an API key")
	}
	if c := NewAnthropicClient("sk-ant-test"); c == nil {
		t.Fatal("expected client with an API key")
	}
}
