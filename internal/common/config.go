package common

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/hermes/internal/models"
)

// MemoryDBPath is the chroma_db_path sentinel selecting the in-memory
// vector store instead of an on-disk one.
const MemoryDBPath = ":memory:"

// Config represents the application configuration. The flat keys form the
// pipeline contract and can each be overridden by an environment variable
// of the same name uppercased (e.g. LLM_PROVIDER). Nested sections hold
// runtime behavior and use the HERMES_ prefix for overrides.
type Config struct {
	LLMProvider           string                 `toml:"llm_provider" validate:"required,oneof=claude gemini"`
	LLMAPIKey             string                 `toml:"llm_api_key"`
	LLMProviderURL        string                 `toml:"llm_provider_url"`
	LLMStrongModelName    string                 `toml:"llm_strong_model_name" validate:"required"`
	LLMWeakModelName      string                 `toml:"llm_weak_model_name" validate:"required"`
	EmbeddingModelName    string                 `toml:"embedding_model_name" validate:"required"`
	ChromaEmbeddingDim    int                    `toml:"chroma_embedding_dim" validate:"gt=0"`
	ChromaDBPath          string                 `toml:"chroma_db_path"`
	ChromaCollectionName  string                 `toml:"chroma_collection_name" validate:"required"`
	PromotionSpecs        []models.PromotionSpec `toml:"promotion_specs" validate:"dive"`
	InputSpreadsheetID    string                 `toml:"input_spreadsheet_id"`
	OutputSpreadsheetID   string                 `toml:"output_spreadsheet_id"`
	OutputSpreadsheetName string                 `toml:"output_spreadsheet_name"`
	HermesProcessingLimit int                    `toml:"hermes_processing_limit" validate:"gte=0"`

	LLM      LLMRuntimeConfig `toml:"llm"`
	Logging  LoggingConfig    `toml:"logging"`
	Workers  WorkersConfig    `toml:"workers"`
	Composer ComposerConfig   `toml:"composer"`
	IMAP     IMAPConfig       `toml:"imap"`
	Report   ReportConfig     `toml:"report"`
}

// LLMRuntimeConfig tunes provider behavior shared by both families
type LLMRuntimeConfig struct {
	Timeout     string  `toml:"timeout"`      // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`   // Minimum interval between provider calls (default: "1s")
	Temperature float32 `toml:"temperature"`  // Completion temperature (default: 0.2)
	MaxTokens   int     `toml:"max_tokens"`   // Maximum tokens in a response (default: 8192)
	MaxTurns    int     `toml:"max_turns"`    // Maximum tool-use turns per call (default: 10)
	MaxRetries  int     `toml:"max_retries"`  // Structured-output correction retries (default: 2)
}

// LoggingConfig mirrors the arbor writer setup
type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for log lines (default: "15:04:05")
}

// WorkersConfig controls the batch pool
type WorkersConfig struct {
	Count       int  `toml:"count" validate:"gt=0"` // Concurrent emails in flight (default: 2)
	StopOnError bool `toml:"stop_on_error"`         // Abort enqueueing after the first failed email
}

// ComposerConfig fixes the reply voice
type ComposerConfig struct {
	Signature string `toml:"signature"` // Closing signature appended to every reply
	Tone      string `toml:"tone"`      // Brand voice hint for the reply prompt
}

// IMAPConfig configures the optional mailbox source and watch mode
type IMAPConfig struct {
	Server   string `toml:"server"`   // host:port, TLS assumed
	Username string `toml:"username"`
	Password string `toml:"password"`
	Folder   string `toml:"folder"`   // Mailbox to poll (default: "INBOX")
	Schedule string `toml:"schedule"` // Cron schedule for watch mode (default: "@every 5m")
}

// ReportConfig controls the optional PDF batch report
type ReportConfig struct {
	PDF bool   `toml:"pdf"` // Generate a run summary PDF
	Dir string `toml:"dir"` // Report directory (default: output dir)
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings belong in hermes.toml; tuning parameters keep
// their defaults here.
func NewDefaultConfig() *Config {
	return &Config{
		LLMProvider:           "gemini",
		LLMStrongModelName:    "gemini-2.5-pro",
		LLMWeakModelName:      "gemini-2.5-flash",
		EmbeddingModelName:    "gemini-embedding-001",
		ChromaEmbeddingDim:    768,
		ChromaDBPath:          "./data/chroma",
		ChromaCollectionName:  "hermes_products",
		HermesProcessingLimit: 0, // 0 = process every email
		LLM: LLMRuntimeConfig{
			Timeout:     "5m",
			RateLimit:   "1s",
			Temperature: 0.2,
			MaxTokens:   8192,
			MaxTurns:    10,
			MaxRetries:  2,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Workers: WorkersConfig{
			Count:       2,
			StopOnError: false,
		},
		Composer: ComposerConfig{
			Signature: "Customer Care Team\nHermes Fashion",
			Tone:      "warm, professional, concise",
		},
		IMAP: IMAPConfig{
			Folder:   "INBOX",
			Schedule: "@every 5m",
		},
		Report: ReportConfig{
			PDF: false,
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files; later files
// override earlier ones, environment variables override everything.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Flat pipeline keys use their exact uppercase names; nested sections use
// the HERMES_ prefix.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		config.LLMProvider = strings.ToLower(v)
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		config.LLMAPIKey = v
	}
	if v := os.Getenv("LLM_PROVIDER_URL"); v != "" {
		config.LLMProviderURL = v
	}
	if v := os.Getenv("LLM_STRONG_MODEL_NAME"); v != "" {
		config.LLMStrongModelName = v
	}
	if v := os.Getenv("LLM_WEAK_MODEL_NAME"); v != "" {
		config.LLMWeakModelName = v
	}
	if v := os.Getenv("EMBEDDING_MODEL_NAME"); v != "" {
		config.EmbeddingModelName = v
	}
	if v := os.Getenv("CHROMA_EMBEDDING_DIM"); v != "" {
		if dim, err := strconv.Atoi(v); err == nil {
			config.ChromaEmbeddingDim = dim
		}
	}
	if v := os.Getenv("CHROMA_DB_PATH"); v != "" {
		config.ChromaDBPath = v
	}
	if v := os.Getenv("CHROMA_COLLECTION_NAME"); v != "" {
		config.ChromaCollectionName = v
	}
	if v := os.Getenv("PROMOTION_SPECS"); v != "" {
		var specs []models.PromotionSpec
		if err := json.Unmarshal([]byte(v), &specs); err == nil {
			config.PromotionSpecs = specs
		}
	}
	if v := os.Getenv("INPUT_SPREADSHEET_ID"); v != "" {
		config.InputSpreadsheetID = v
	}
	if v := os.Getenv("OUTPUT_SPREADSHEET_ID"); v != "" {
		config.OutputSpreadsheetID = v
	}
	if v := os.Getenv("OUTPUT_SPREADSHEET_NAME"); v != "" {
		config.OutputSpreadsheetName = v
	}
	if v := os.Getenv("HERMES_PROCESSING_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			config.HermesProcessingLimit = limit
		}
	}

	// LLM runtime tuning
	if v := os.Getenv("HERMES_LLM_TIMEOUT"); v != "" {
		config.LLM.Timeout = v
	}
	if v := os.Getenv("HERMES_LLM_RATE_LIMIT"); v != "" {
		config.LLM.RateLimit = v
	}
	if v := os.Getenv("HERMES_LLM_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.LLM.MaxRetries = n
		}
	}

	// Logging
	if v := os.Getenv("HERMES_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("HERMES_LOG_OUTPUT"); v != "" {
		var outputs []string
		for _, o := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Workers
	if v := os.Getenv("HERMES_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Workers.Count = n
		}
	}
	if v := os.Getenv("HERMES_STOP_ON_ERROR"); v != "" {
		config.Workers.StopOnError = v == "true" || v == "1"
	}

	// IMAP
	if v := os.Getenv("HERMES_IMAP_SERVER"); v != "" {
		config.IMAP.Server = v
	}
	if v := os.Getenv("HERMES_IMAP_USERNAME"); v != "" {
		config.IMAP.Username = v
	}
	if v := os.Getenv("HERMES_IMAP_PASSWORD"); v != "" {
		config.IMAP.Password = v
	}
	if v := os.Getenv("HERMES_IMAP_FOLDER"); v != "" {
		config.IMAP.Folder = v
	}
	if v := os.Getenv("HERMES_IMAP_SCHEDULE"); v != "" {
		config.IMAP.Schedule = v
	}
}

// Validate checks the configuration and returns a ConfigurationError on
// the first problem found. Runs after defaults, files and env overrides.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return &ConfigError{Err: err}
	}

	for i, spec := range c.PromotionSpecs {
		if spec.Effects.IsEmpty() {
			return &ConfigError{Err: fmt.Errorf("promotion_specs[%d]: needs apply_discount, free_items or free_gift", i)}
		}
		if spec.Conditions.MinQuantity <= 0 && spec.Conditions.AppliesEvery <= 0 && len(spec.Conditions.ProductCombination) == 0 {
			return &ConfigError{Err: fmt.Errorf("promotion_specs[%d]: needs min_quantity, applies_every or product_combination", i)}
		}
		if discount := spec.Effects.ApplyDiscount; discount != nil {
			switch discount.Type {
			case models.DiscountPercentage, models.DiscountBogoHalf:
				if discount.Amount <= 0 || discount.Amount > 100 {
					return &ConfigError{Err: fmt.Errorf("promotion_specs[%d]: %s amount must be in (0, 100]", i, discount.Type)}
				}
			case models.DiscountFixed:
				if discount.Amount <= 0 {
					return &ConfigError{Err: fmt.Errorf("promotion_specs[%d]: fixed amount must be positive", i)}
				}
			}
		}
	}

	return nil
}

// IsMemoryVectorStore reports whether the vector store should live in memory
func (c *Config) IsMemoryVectorStore() bool {
	return c.ChromaDBPath == "" || c.ChromaDBPath == MemoryDBPath
}

// ResolveLLMAPIKey resolves the chat provider key.
// Resolution order: LLM_API_KEY env (handled by overrides), config value,
// provider-specific environment variables.
func (c *Config) ResolveLLMAPIKey() (string, error) {
	if c.LLMAPIKey != "" {
		return c.LLMAPIKey, nil
	}
	switch c.LLMProvider {
	case "claude":
		if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
			return v, nil
		}
	case "gemini":
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			return v, nil
		}
		if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
			return v, nil
		}
	}
	return "", &ConfigError{Err: fmt.Errorf("no API key for provider %q (set LLM_API_KEY or llm_api_key)", c.LLMProvider)}
}

// ResolveEmbeddingAPIKey resolves the key for the embeddings API, which is
// Google-backed regardless of the chat provider. Falls back to the chat
// key when the chat provider is also Google. Empty means offline
// embeddings.
func (c *Config) ResolveEmbeddingAPIKey() string {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		return v
	}
	if c.LLMProvider == "gemini" {
		if key, err := c.ResolveLLMAPIKey(); err == nil {
			return key
		}
	}
	return ""
}

// Redacted returns a copy safe for logging: key material is masked.
func (c *Config) Redacted() Config {
	out := *c
	out.LLMAPIKey = redactSecret(c.LLMAPIKey)
	out.IMAP.Password = redactSecret(c.IMAP.Password)
	return out
}

func redactSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}
