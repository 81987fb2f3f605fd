// Package config loads the retrieval core's runtime configuration from
// environment variables (with an optional .env overlay) and an optional
// YAML file, in that precedence order: YAML sets defaults, env overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StoreConfig describes how to reach the vector store collaborator.
type StoreConfig struct {
	Addr               string `yaml:"addr"`
	APIKey             string `yaml:"api_key,omitempty"`
	SessionsCollection string `yaml:"sessions_collection"`
	TurnsCollection    string `yaml:"turns_collection"`
	ChunksCollection   string `yaml:"chunks_collection"`
}

// EmbedderConfig describes the HTTP embedding endpoints per capability.
type EmbedderConfig struct {
	TextDenseURL string `yaml:"text_dense_url"`
	CodeDenseURL string `yaml:"code_dense_url"`
	SparseURL    string `yaml:"sparse_url"`
	ColBERTURL   string `yaml:"colbert_url,omitempty"`
	APIKey       string `yaml:"api_key,omitempty"`
}

// RerankerConfig describes the tiered reranker endpoints and timeout budget.
type RerankerConfig struct {
	FastURL       string `yaml:"fast_url,omitempty"`
	AccurateURL   string `yaml:"accurate_url,omitempty"`
	CodeURL       string `yaml:"code_url,omitempty"`
	ColBERTURL    string `yaml:"colbert_url,omitempty"`
	TimeoutMillis int    `yaml:"timeout_ms"`
}

// LLMConfig selects and configures the LLM provider used for reranking
// fallback and multi-query expansion.
type LLMConfig struct {
	Provider          string  `yaml:"provider"` // "openai" or "anthropic"
	APIKey            string  `yaml:"api_key,omitempty"`
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	CostPerKTokensIn  float64 `yaml:"cost_per_1k_tokens_in"`
	CostPerKTokensOut float64 `yaml:"cost_per_1k_tokens_out"`
}

// KafkaConfig describes the event-stream broker collaborator.
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	GroupID     string   `yaml:"group_id"`
	DLQTopic    string   `yaml:"dlq_topic"`
	StatusTopic string   `yaml:"status_topic"`
}

// RateLimitConfig bounds requests and cost for a rate-limited collaborator
// (currently: the LLM provider behind the llm reranker tier).
type RateLimitConfig struct {
	MaxRequests   int     `yaml:"max_requests"`
	MaxCostCents  float64 `yaml:"max_cost_cents"`
	WindowSeconds int     `yaml:"window_seconds"`
}

// ObsConfig describes the OpenTelemetry bootstrap: where to export traces
// and metrics, and how the process identifies itself in that telemetry.
type ObsConfig struct {
	OTLP           string `yaml:"otlp,omitempty"` // empty disables telemetry export
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
}

// Config is the complete set of knobs the retrieval core reads at startup.
type Config struct {
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path,omitempty"`

	Store     StoreConfig     `yaml:"store"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Reranker  RerankerConfig  `yaml:"reranker"`
	LLM       LLMConfig       `yaml:"llm"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Obs       ObsConfig       `yaml:"obs"`

	SessionCandidates   int `yaml:"session_candidates"`
	TurnsPerSession     int `yaml:"turns_per_session"`
	MultiQueryVariants  int `yaml:"multiquery_variants"`
	HeartbeatIntervalMS int `yaml:"heartbeat_interval_ms"`

	BatchMaxSize        int `yaml:"batch_max_size"`
	BatchMaxDelayMillis int `yaml:"batch_max_delay_ms"`
	BatchCapacity       int `yaml:"batch_capacity"`
}

// Load reads an optional YAML file first (as defaults), then overlays
// environment variables, matching the precedence the rest of this codebase
// uses for its ambient configuration. envFile, if non-empty, is merged into
// the process environment via godotenv before env vars are read.
func Load(yamlPath string, envFile string) (Config, error) {
	if envFile != "" {
		_ = godotenv.Overload(envFile)
	} else {
		_ = godotenv.Overload()
	}

	cfg := defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return cfg, fmt.Errorf("config: read yaml %q: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: unmarshal yaml %q: %w", yamlPath, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		LogLevel: "info",
		Store: StoreConfig{
			SessionsCollection: "sessions",
			TurnsCollection:    "turns",
			ChunksCollection:   "chunks",
		},
		Reranker:  RerankerConfig{TimeoutMillis: 500},
		LLM:       LLMConfig{Provider: "openai", Model: "gpt-4o-mini"},
		Kafka:     KafkaConfig{Topic: "documents.index", GroupID: "memquery-indexer", DLQTopic: "documents.index.dlq", StatusTopic: "memquery.status"},
		RateLimit: RateLimitConfig{MaxRequests: 60, MaxCostCents: 500, WindowSeconds: 60},
		Obs:       ObsConfig{ServiceName: "memquery", ServiceVersion: "dev", Environment: "development"},

		SessionCandidates:   5,
		TurnsPerSession:     5,
		MultiQueryVariants:  2,
		HeartbeatIntervalMS: 30000,

		BatchMaxSize:        64,
		BatchMaxDelayMillis: 2000,
		BatchCapacity:       4096,
	}
}

func applyEnv(cfg *Config) {
	if v := trimmed("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := trimmed("LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	if v := trimmed("STORE_ADDR"); v != "" {
		cfg.Store.Addr = v
	}
	if v := trimmed("STORE_API_KEY"); v != "" {
		cfg.Store.APIKey = v
	}
	if v := trimmed("EMBEDDER_TEXT_DENSE_URL"); v != "" {
		cfg.Embedder.TextDenseURL = v
	}
	if v := trimmed("EMBEDDER_CODE_DENSE_URL"); v != "" {
		cfg.Embedder.CodeDenseURL = v
	}
	if v := trimmed("EMBEDDER_SPARSE_URL"); v != "" {
		cfg.Embedder.SparseURL = v
	}
	if v := trimmed("EMBEDDER_COLBERT_URL"); v != "" {
		cfg.Embedder.ColBERTURL = v
	}
	if v := trimmed("EMBEDDER_API_KEY"); v != "" {
		cfg.Embedder.APIKey = v
	}
	if v := trimmed("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := trimmed("OPENAI_API_KEY"); v != "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.APIKey = v
	}
	if v := trimmed("ANTHROPIC_API_KEY"); v != "" && cfg.LLM.Provider == "anthropic" {
		cfg.LLM.APIKey = v
	}
	if v := trimmed("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := trimmed("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := trimmed("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := trimmed("KAFKA_GROUP_ID"); v != "" {
		cfg.Kafka.GroupID = v
	}
	if n := trimmedInt("BATCH_MAX_SIZE"); n > 0 {
		cfg.BatchMaxSize = n
	}
	if n := trimmedInt("BATCH_MAX_DELAY_MS"); n > 0 {
		cfg.BatchMaxDelayMillis = n
	}
	if v := trimmed("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Obs.OTLP = v
	}
}

func trimmed(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func trimmedInt(key string) int {
	v := trimmed(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
