package common

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ternarybob/hermes/internal/models"
)

// clearConfigEnv blanks every override variable so tests see only what they
// set themselves.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_PROVIDER", "LLM_API_KEY", "LLM_PROVIDER_URL",
		"LLM_STRONG_MODEL_NAME", "LLM_WEAK_MODEL_NAME", "EMBEDDING_MODEL_NAME",
		"CHROMA_EMBEDDING_DIM", "CHROMA_DB_PATH", "CHROMA_COLLECTION_NAME",
		"PROMOTION_SPECS", "INPUT_SPREADSHEET_ID", "OUTPUT_SPREADSHEET_ID",
		"OUTPUT_SPREADSHEET_NAME", "HERMES_PROCESSING_LIMIT",
		"HERMES_LLM_TIMEOUT", "HERMES_LLM_RATE_LIMIT", "HERMES_LLM_MAX_RETRIES",
		"HERMES_LOG_LEVEL", "HERMES_LOG_OUTPUT",
		"HERMES_WORKER_COUNT", "HERMES_STOP_ON_ERROR",
		"HERMES_IMAP_SERVER", "HERMES_IMAP_USERNAME", "HERMES_IMAP_PASSWORD",
		"HERMES_IMAP_FOLDER", "HERMES_IMAP_SCHEDULE",
		"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.LLMProvider != "gemini" {
		t.Errorf("LLMProvider = %q, want gemini", cfg.LLMProvider)
	}
	if cfg.LLMStrongModelName != "gemini-2.5-pro" {
		t.Errorf("LLMStrongModelName = %q", cfg.LLMStrongModelName)
	}
	if cfg.ChromaEmbeddingDim != 768 {
		t.Errorf("ChromaEmbeddingDim = %d, want 768", cfg.ChromaEmbeddingDim)
	}
	if cfg.ChromaCollectionName != "hermes_products" {
		t.Errorf("ChromaCollectionName = %q", cfg.ChromaCollectionName)
	}
	if cfg.HermesProcessingLimit != 0 {
		t.Errorf("HermesProcessingLimit = %d, want 0", cfg.HermesProcessingLimit)
	}
	if cfg.Workers.Count != 2 {
		t.Errorf("Workers.Count = %d, want 2", cfg.Workers.Count)
	}
	if cfg.LLM.MaxRetries != 2 {
		t.Errorf("LLM.MaxRetries = %d, want 2", cfg.LLM.MaxRetries)
	}
	if cfg.IMAP.Folder != "INBOX" {
		t.Errorf("IMAP.Folder = %q, want INBOX", cfg.IMAP.Folder)
	}
	if cfg.IMAP.Schedule != "@every 5m" {
		t.Errorf("IMAP.Schedule = %q", cfg.IMAP.Schedule)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadFromFiles_LaterFilesOverrideEarlier(t *testing.T) {
	clearConfigEnv(t)

	base := writeConfigFile(t, "base.toml", `
llm_provider = "claude"
llm_strong_model_name = "claude-sonnet-4-20250514"
llm_weak_model_name = "claude-3-5-haiku-20241022"
`)
	override := writeConfigFile(t, "override.toml", `
llm_weak_model_name = "claude-3-5-haiku-latest"

[workers]
count = 4
`)

	cfg, err := LoadFromFiles(base, override)
	if err != nil {
		t.Fatalf("LoadFromFiles: %v", err)
	}

	if cfg.LLMProvider != "claude" {
		t.Errorf("LLMProvider = %q, want claude", cfg.LLMProvider)
	}
	if cfg.LLMStrongModelName != "claude-sonnet-4-20250514" {
		t.Errorf("LLMStrongModelName = %q", cfg.LLMStrongModelName)
	}
	if cfg.LLMWeakModelName != "claude-3-5-haiku-latest" {
		t.Errorf("LLMWeakModelName = %q, want the override value", cfg.LLMWeakModelName)
	}
	if cfg.Workers.Count != 4 {
		t.Errorf("Workers.Count = %d, want 4", cfg.Workers.Count)
	}
	// Untouched keys keep their defaults.
	if cfg.ChromaEmbeddingDim != 768 {
		t.Errorf("ChromaEmbeddingDim = %d, want default 768", cfg.ChromaEmbeddingDim)
	}
}

func TestLoadFromFiles_EmptyPathsAreSkipped(t *testing.T) {
	clearConfigEnv(t)

	path := writeConfigFile(t, "hermes.toml", `hermes_processing_limit = 7`)
	cfg, err := LoadFromFiles("", path, "")
	if err != nil {
		t.Fatalf("LoadFromFiles: %v", err)
	}
	if cfg.HermesProcessingLimit != 7 {
		t.Errorf("HermesProcessingLimit = %d, want 7", cfg.HermesProcessingLimit)
	}
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	clearConfigEnv(t)

	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadFromFiles_MalformedTOML(t *testing.T) {
	clearConfigEnv(t)

	path := writeConfigFile(t, "broken.toml", `llm_provider = [unclosed`)
	_, err := LoadFromFiles(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadFromFiles_ParsesPromotionSpecs(t *testing.T) {
	clearConfigEnv(t)

	path := writeConfigFile(t, "promos.toml", `
[[promotion_specs]]
description = "buy one get one half off"

[promotion_specs.conditions]
min_quantity = 2

[promotion_specs.effects.apply_discount]
type = "bogo_half"
amount = 50.0

[[promotion_specs]]
description = "wallet and belt bundle"

[promotion_specs.conditions]
product_combination = ["LTH0976", "LTH5432"]

[promotion_specs.effects]
free_gift = "leather care kit"
`)

	cfg, err := LoadFromFiles(path)
	if err != nil {
		t.Fatalf("LoadFromFiles: %v", err)
	}
	if len(cfg.PromotionSpecs) != 2 {
		t.Fatalf("got %d promotion specs, want 2", len(cfg.PromotionSpecs))
	}

	bogo := cfg.PromotionSpecs[0]
	if bogo.Conditions.MinQuantity != 2 {
		t.Errorf("MinQuantity = %d, want 2", bogo.Conditions.MinQuantity)
	}
	if bogo.Effects.ApplyDiscount == nil || bogo.Effects.ApplyDiscount.Type != models.DiscountBogoHalf {
		t.Errorf("ApplyDiscount = %+v, want bogo_half", bogo.Effects.ApplyDiscount)
	}

	bundle := cfg.PromotionSpecs[1]
	if len(bundle.Conditions.ProductCombination) != 2 {
		t.Errorf("ProductCombination = %v", bundle.Conditions.ProductCombination)
	}
	if bundle.Effects.FreeGift != "leather care kit" {
		t.Errorf("FreeGift = %q", bundle.Effects.FreeGift)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("LLM_PROVIDER", "CLAUDE")
	t.Setenv("CHROMA_EMBEDDING_DIM", "256")
	t.Setenv("HERMES_PROCESSING_LIMIT", "25")
	t.Setenv("HERMES_WORKER_COUNT", "6")
	t.Setenv("HERMES_STOP_ON_ERROR", "1")
	t.Setenv("HERMES_IMAP_FOLDER", "Support")
	t.Setenv("HERMES_LLM_MAX_RETRIES", "4")

	cfg, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles: %v", err)
	}

	if cfg.LLMProvider != "claude" {
		t.Errorf("LLMProvider = %q, want lowercased claude", cfg.LLMProvider)
	}
	if cfg.ChromaEmbeddingDim != 256 {
		t.Errorf("ChromaEmbeddingDim = %d, want 256", cfg.ChromaEmbeddingDim)
	}
	if cfg.HermesProcessingLimit != 25 {
		t.Errorf("HermesProcessingLimit = %d, want 25", cfg.HermesProcessingLimit)
	}
	if cfg.Workers.Count != 6 {
		t.Errorf("Workers.Count = %d, want 6", cfg.Workers.Count)
	}
	if !cfg.Workers.StopOnError {
		t.Error("Workers.StopOnError should be set")
	}
	if cfg.IMAP.Folder != "Support" {
		t.Errorf("IMAP.Folder = %q", cfg.IMAP.Folder)
	}
	if cfg.LLM.MaxRetries != 4 {
		t.Errorf("LLM.MaxRetries = %d, want 4", cfg.LLM.MaxRetries)
	}
}

func TestEnvOverrides_BeatFileValues(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("HERMES_WORKER_COUNT", "8")

	path := writeConfigFile(t, "hermes.toml", "[workers]\ncount = 3\n")
	cfg, err := LoadFromFiles(path)
	if err != nil {
		t.Fatalf("LoadFromFiles: %v", err)
	}
	if cfg.Workers.Count != 8 {
		t.Errorf("Workers.Count = %d, want env value 8", cfg.Workers.Count)
	}
}

func TestEnvOverrides_LogOutputSplitsOnComma(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("HERMES_LOG_OUTPUT", "stdout, file")

	cfg, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles: %v", err)
	}
	if len(cfg.Logging.Output) != 2 || cfg.Logging.Output[0] != "stdout" || cfg.Logging.Output[1] != "file" {
		t.Errorf("Logging.Output = %v", cfg.Logging.Output)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mangle  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mangle: func(c *Config) {},
		},
		{
			name:    "unknown provider",
			mangle:  func(c *Config) { c.LLMProvider = "openai" },
			wantErr: "configuration error",
		},
		{
			name:    "missing strong model",
			mangle:  func(c *Config) { c.LLMStrongModelName = "" },
			wantErr: "configuration error",
		},
		{
			name:    "zero worker count",
			mangle:  func(c *Config) { c.Workers.Count = 0 },
			wantErr: "configuration error",
		},
		{
			name:    "negative processing limit",
			mangle:  func(c *Config) { c.HermesProcessingLimit = -1 },
			wantErr: "configuration error",
		},
		{
			name: "promotion without effects",
			mangle: func(c *Config) {
				c.PromotionSpecs = []models.PromotionSpec{{
					Conditions: models.PromotionConditions{MinQuantity: 2},
				}}
			},
			wantErr: "needs apply_discount",
		},
		{
			name: "promotion without conditions",
			mangle: func(c *Config) {
				c.PromotionSpecs = []models.PromotionSpec{{
					Effects: models.PromotionEffects{FreeGift: "scarf"},
				}}
			},
			wantErr: "needs min_quantity",
		},
		{
			name: "percentage above 100",
			mangle: func(c *Config) {
				c.PromotionSpecs = []models.PromotionSpec{{
					Conditions: models.PromotionConditions{MinQuantity: 1},
					Effects: models.PromotionEffects{
						ApplyDiscount: &models.DiscountSpec{Type: models.DiscountPercentage, Amount: 150},
					},
				}}
			},
			wantErr: "must be in (0, 100]",
		},
		{
			name: "fixed amount not positive",
			mangle: func(c *Config) {
				c.PromotionSpecs = []models.PromotionSpec{{
					Conditions: models.PromotionConditions{MinQuantity: 1},
					Effects: models.PromotionEffects{
						ApplyDiscount: &models.DiscountSpec{Type: models.DiscountFixed, Amount: 0},
					},
				}}
			},
			wantErr: "must be positive",
		},
		{
			name: "valid promotion passes",
			mangle: func(c *Config) {
				c.PromotionSpecs = []models.PromotionSpec{{
					Conditions: models.PromotionConditions{MinQuantity: 2},
					Effects: models.PromotionEffects{
						ApplyDiscount: &models.DiscountSpec{Type: models.DiscountPercentage, Amount: 20},
					},
				}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mangle(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error type %T, want *ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadFromFiles_InvalidConfigIsConfigError(t *testing.T) {
	clearConfigEnv(t)

	path := writeConfigFile(t, "bad.toml", `llm_provider = "openai"`)
	_, err := LoadFromFiles(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error type %T, want *ConfigError", err)
	}
}

func TestResolveLLMAPIKey(t *testing.T) {
	t.Run("config value wins", func(t *testing.T) {
		clearConfigEnv(t)
		cfg := NewDefaultConfig()
		cfg.LLMAPIKey = "from-config"

		key, err := cfg.ResolveLLMAPIKey()
		if err != nil || key != "from-config" {
			t.Errorf("got %q, %v", key, err)
		}
	})

	t.Run("claude env fallback", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
		cfg := NewDefaultConfig()
		cfg.LLMProvider = "claude"

		key, err := cfg.ResolveLLMAPIKey()
		if err != nil || key != "sk-ant-test" {
			t.Errorf("got %q, %v", key, err)
		}
	})

	t.Run("gemini prefers GEMINI_API_KEY over GOOGLE_API_KEY", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("GEMINI_API_KEY", "gm-key")
		t.Setenv("GOOGLE_API_KEY", "gg-key")
		cfg := NewDefaultConfig()

		key, err := cfg.ResolveLLMAPIKey()
		if err != nil || key != "gm-key" {
			t.Errorf("got %q, %v", key, err)
		}
	})

	t.Run("no key anywhere", func(t *testing.T) {
		clearConfigEnv(t)
		cfg := NewDefaultConfig()

		_, err := cfg.ResolveLLMAPIKey()
		if err == nil {
			t.Fatal("expected error")
		}
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("error type %T, want *ConfigError", err)
		}
	})
}

func TestResolveEmbeddingAPIKey(t *testing.T) {
	t.Run("google env wins", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("GOOGLE_API_KEY", "gg-key")
		cfg := NewDefaultConfig()
		cfg.LLMProvider = "claude"

		if key := cfg.ResolveEmbeddingAPIKey(); key != "gg-key" {
			t.Errorf("got %q", key)
		}
	})

	t.Run("falls back to gemini chat key", func(t *testing.T) {
		clearConfigEnv(t)
		cfg := NewDefaultConfig()
		cfg.LLMAPIKey = "shared-key"

		if key := cfg.ResolveEmbeddingAPIKey(); key != "shared-key" {
			t.Errorf("got %q", key)
		}
	})

	t.Run("claude without google key means offline", func(t *testing.T) {
		clearConfigEnv(t)
		cfg := NewDefaultConfig()
		cfg.LLMProvider = "claude"
		cfg.LLMAPIKey = "sk-ant-test"

		if key := cfg.ResolveEmbeddingAPIKey(); key != "" {
			t.Errorf("got %q, want empty", key)
		}
	})
}

func TestIsMemoryVectorStore(t *testing.T) {
	cfg := NewDefaultConfig()

	cfg.ChromaDBPath = ""
	if !cfg.IsMemoryVectorStore() {
		t.Error("empty path should be memory")
	}
	cfg.ChromaDBPath = MemoryDBPath
	if !cfg.IsMemoryVectorStore() {
		t.Error(":memory: should be memory")
	}
	cfg.ChromaDBPath = "./data/chroma"
	if cfg.IsMemoryVectorStore() {
		t.Error("disk path should not be memory")
	}
}

func TestRedacted(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.LLMAPIKey = "abcd1234efgh5678"
	cfg.IMAP.Password = "short"

	masked := cfg.Redacted()
	if masked.LLMAPIKey != "abcd****" {
		t.Errorf("LLMAPIKey = %q", masked.LLMAPIKey)
	}
	if masked.IMAP.Password != "****" {
		t.Errorf("IMAP.Password = %q", masked.IMAP.Password)
	}
	// The original is untouched.
	if cfg.LLMAPIKey != "abcd1234efgh5678" {
		t.Errorf("original mutated: %q", cfg.LLMAPIKey)
	}
}
