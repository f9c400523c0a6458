package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds the process-wide configuration. It is loaded once at startup
// and never mutated afterwards; components receive it by value.
type Settings struct {
	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// Extraction pipeline
	ExtractionProvider      string
	AllowFallback           bool
	ContextWindowTokens     int
	ExtractionTimeout       time.Duration
	MaxRetries              int
	RetryBackoffBase        time.Duration

	// Ollama
	OllamaBaseURL   string
	OllamaModel     string
	OllamaKeepAlive time.Duration

	// OpenAI
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Anthropic
	AnthropicAPIKey string
	AnthropicModel  string

	// Dispatcher
	DispatcherWorkers   int
	DispatcherQueueSize int

	// HTTP
	HTTPAddr string

	LogLevel string
}

// Load reads settings from the environment, applying the same defaults the
// service ships with in .env.example.
func Load() Settings {
	return Settings{
		Neo4jURI:      getString("NEO4J_URI", ""),
		Neo4jUser:     getString("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword: getString("NEO4J_PASSWORD", ""),
		Neo4jDatabase: getString("NEO4J_DATABASE", "neo4j"),

		ExtractionProvider:  strings.ToLower(getString("EXTRACTION_PROVIDER", "local")),
		AllowFallback:       getBool("EXTRACTION_ALLOW_FALLBACK", false),
		ContextWindowTokens: getInt("EXTRACTION_CONTEXT_WINDOW_TOKENS", 128000),
		ExtractionTimeout:   getDuration("EXTRACTION_TIMEOUT_SECONDS", 150*time.Second),
		MaxRetries:          getNonNegInt("EXTRACTION_MAX_RETRIES", 2),
		RetryBackoffBase:    getDuration("EXTRACTION_RETRY_BACKOFF_SECONDS", 1*time.Second),

		OllamaBaseURL:   getString("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:     getString("OLLAMA_DEFAULT_MODEL", "gpt-oss:20b"),
		OllamaKeepAlive: getDuration("OLLAMA_KEEP_ALIVE_SECONDS", 5*time.Minute),

		OpenAIAPIKey:  getString("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getString("OPENAI_BASE_URL", ""),
		OpenAIModel:   getString("OPENAI_DEFAULT_MODEL", "gpt-4.1"),

		AnthropicAPIKey: getString("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getString("ANTHROPIC_DEFAULT_MODEL", "claude-3-opus-20240229"),

		DispatcherWorkers:   getInt("DISPATCHER_WORKERS", 4),
		DispatcherQueueSize: getInt("DISPATCHER_QUEUE_SIZE", 64),

		HTTPAddr: getString("HTTP_ADDR", ":8080"),
		LogLevel: getString("LOG_LEVEL", "info"),
	}
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// getInt reads a positive integer; zero and below fall back, which suits
// sizes and counts that must be at least one.
func getInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// getNonNegInt also accepts zero, for settings where zero is a meaningful
// value rather than a misconfiguration (retry counts).
func getNonNegInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDuration reads an integer number of seconds from the environment.
func getDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Second
		}
	}
	return fallback
}
