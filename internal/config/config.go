package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the transcriber service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// STT engines to dispatch to, in priority order. The first entry is the
	// primary engine used for tie-breaking during the fallback merge.
	// Supported: deepgram, assemblyai, mock
	Engines []string `envconfig:"ENGINES" default:"deepgram,assemblyai"`

	// Per-engine transcription timeout in seconds
	EngineTimeout int `envconfig:"ENGINE_TIMEOUT" default:"10"`

	// Deepgram STT API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`  // Language code (en, es, fr, etc.)

	// AssemblyAI STT API configuration
	AssemblyAIAPIKey string `envconfig:"ASSEMBLYAI_API_KEY" default:""`
	AssemblyAIURL    string `envconfig:"ASSEMBLYAI_URL" default:"wss://streaming.assemblyai.com/v3/ws"`

	// Arbiter (LLM consolidation) configuration. An empty endpoint disables
	// the arbiter and every chunk is merged by the deterministic fallback.
	ArbiterEndpoint string `envconfig:"ARBITER_ENDPOINT" default:""`
	ArbiterModel    string `envconfig:"ARBITER_MODEL" default:"llama3.2:latest"`
	ArbiterTimeout  int    `envconfig:"ARBITER_TIMEOUT" default:"8"` // seconds

	// Number of prior consolidated sentences supplied to the arbiter
	ContextWindow int `envconfig:"CONSOLIDATION_CONTEXT_WINDOW" default:"5"`

	// Session management
	SessionTimeoutMinutes int `envconfig:"SESSION_TIMEOUT_MINUTES" default:"60"`
	MaxConcurrentSessions int `envconfig:"MAX_CONCURRENT_SESSIONS" default:"10"`

	// Audio processing configuration (PCM16 mono)
	SampleRate    int `envconfig:"SAMPLE_RATE" default:"16000"`
	MaxChunkBytes int `envconfig:"MAX_AUDIO_BUFFER_SIZE" default:"10485760"` // 10MB

	// Kafka transcript event publishing
	KafkaEnabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"transcriber.chunks"`

	// SQLite chunk archive
	DatabasePath  string `envconfig:"DATABASE_PATH" default:"data/transcriber.db"`
	StoreEnabled  bool   `envconfig:"STORE_ENABLED" default:"true"`
	RetentionDays int    `envconfig:"STORE_RETENTION_DAYS" default:"30"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that every configured engine has its credentials set
func (c *Config) Validate() error {
	if len(c.Engines) == 0 {
		return fmt.Errorf("at least one STT engine must be configured")
	}
	for _, name := range c.Engines {
		switch name {
		case "deepgram":
			if c.DeepgramAPIKey == "" {
				return fmt.Errorf("DEEPGRAM_API_KEY is required when the deepgram engine is enabled")
			}
		case "assemblyai":
			if c.AssemblyAIAPIKey == "" {
				return fmt.Errorf("ASSEMBLYAI_API_KEY is required when the assemblyai engine is enabled")
			}
		case "mock":
			// no credentials needed
		default:
			return fmt.Errorf("unknown STT engine: %s", name)
		}
	}
	if c.ContextWindow < 0 {
		return fmt.Errorf("CONSOLIDATION_CONTEXT_WINDOW must be >= 0")
	}
	return nil
}

// PrimaryEngine returns the engine designated primary for tie-breaking
func (c *Config) PrimaryEngine() string {
	if len(c.Engines) == 0 {
		return ""
	}
	return c.Engines[0]
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
