package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/common"
	"github.com/ternarybob/hermes/internal/interfaces"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// ContentRequest represents a provider-agnostic content generation request
type ContentRequest struct {
	Messages          []interfaces.Message
	Model             string
	Temperature       float32
	MaxTokens         int
	SystemInstruction string
	OutputSchema      map[string]interface{} // JSON schema for structured output
	Tools             []ToolDefinition       // Tools the model may call
	RequiredTools     []string               // Tool names the model must call at least once
	MaxTurns          int                    // Tool loop bound; 0 uses the configured default
}

// ContentResponse represents a provider-agnostic content generation response
type ContentResponse struct {
	Text      string
	Provider  ProviderType
	Model     string
	ToolCalls []interfaces.ToolCall // Transcript of executed tool calls, in order
}

// Generator is the content generation surface consumed by the workflow
// agents. ProviderFactory implements it; tests substitute a stub.
type Generator interface {
	GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error)
}

// ProviderFactory creates and manages AI provider clients. A single factory
// is shared by all workflow nodes so the rate limiter spans every LLM call
// the process makes.
type ProviderFactory struct {
	config       *common.Config
	logger       arbor.ILogger
	limiter      *rate.Limiter
	timeout      time.Duration
	audit        AuditLogger
	geminiClient *genai.Client
	claudeClient anthropic.Client
	claudeReady  bool
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(cfg *common.Config, logger arbor.ILogger) *ProviderFactory {
	f := &ProviderFactory{
		config: cfg,
		logger: logger,
	}

	if interval, err := time.ParseDuration(cfg.LLM.RateLimit); err == nil && interval > 0 {
		f.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	if timeout, err := time.ParseDuration(cfg.LLM.Timeout); err == nil && timeout > 0 {
		f.timeout = timeout
	}

	return f
}

// SetAuditLogger attaches an audit trail for provider calls.
func (f *ProviderFactory) SetAuditLogger(audit AuditLogger) {
	f.audit = audit
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-sonnet-4-20250514" -> Claude
// - "claude/claude-sonnet-4-20250514" -> Claude (with prefix)
// - "gemini-2.5-flash" -> Gemini
// - "gemini/gemini-2.5-flash" -> Gemini (with prefix)
// - Empty string -> uses the configured provider
func (f *ProviderFactory) DetectProvider(model string) ProviderType {
	if model == "" {
		return ProviderType(f.config.LLMProvider)
	}

	model = strings.ToLower(model)

	// Check for explicit provider prefix
	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") {
		return ProviderGemini
	}

	// Check for model name patterns
	if strings.HasPrefix(model, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}

	// Default to configured provider
	return ProviderType(f.config.LLMProvider)
}

// NormalizeModel removes provider prefix from model name if present
func (f *ProviderFactory) NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// StrongModel returns the configured model for reasoning-heavy nodes.
func (f *ProviderFactory) StrongModel() string {
	return f.config.LLMStrongModelName
}

// WeakModel returns the configured model for lighter extraction nodes,
// falling back to the strong model when none is set.
func (f *ProviderFactory) WeakModel() string {
	if f.config.LLMWeakModelName != "" {
		return f.config.LLMWeakModelName
	}
	return f.config.LLMStrongModelName
}

// MaxRetries returns the configured structured-output correction budget.
func (f *ProviderFactory) MaxRetries() int {
	return f.config.LLM.MaxRetries
}

// GetGeminiClient returns a Gemini client, creating one if necessary
func (f *ProviderFactory) GetGeminiClient(ctx context.Context) (*genai.Client, error) {
	if f.geminiClient != nil {
		return f.geminiClient, nil
	}

	apiKey, err := f.config.ResolveLLMAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if f.config.LLMProviderURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: f.config.LLMProviderURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	f.geminiClient = client
	return client, nil
}

// GetClaudeClient returns a Claude client, creating one if necessary
func (f *ProviderFactory) GetClaudeClient(ctx context.Context) (anthropic.Client, error) {
	if f.claudeReady {
		return f.claudeClient, nil
	}

	apiKey, err := f.config.ResolveLLMAPIKey()
	if err != nil {
		return anthropic.Client{}, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if f.config.LLMProviderURL != "" {
		opts = append(opts, option.WithBaseURL(f.config.LLMProviderURL))
	}

	f.claudeClient = anthropic.NewClient(opts...)
	f.claudeReady = true
	return f.claudeClient, nil
}

// GenerateContent generates content using the appropriate provider based on
// model. The shared rate limiter is applied before every provider turn.
func (f *ProviderFactory) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	provider := f.DetectProvider(request.Model)
	model := f.NormalizeModel(request.Model)
	if model == "" {
		model = f.config.LLMStrongModelName
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	f.logger.Debug().
		Str("provider", string(provider)).
		Str("model", model).
		Int("message_count", len(request.Messages)).
		Int("tool_count", len(request.Tools)).
		Msg("Generating content with provider")

	start := time.Now()
	var resp *ContentResponse
	var err error
	switch provider {
	case ProviderClaude:
		resp, err = f.generateWithClaude(ctx, request, model)
	case ProviderGemini:
		resp, err = f.generateWithGemini(ctx, request, model)
	default:
		resp, err = f.generateWithGemini(ctx, request, model)
	}
	if f.audit != nil {
		f.audit.LogChat(string(provider), model, err == nil, time.Since(start), err)
	}
	if err != nil {
		var toolErr *ToolCallError
		if errors.As(err, &toolErr) {
			return nil, err
		}
		return nil, &InvocationError{Provider: provider, Model: model, Err: err}
	}
	return resp, nil
}

// waitRateLimit blocks until the shared limiter admits another provider call.
func (f *ProviderFactory) waitRateLimit(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	return f.limiter.Wait(ctx)
}

// maxTurns resolves the tool loop bound for a request.
func (f *ProviderFactory) maxTurns(request *ContentRequest) int {
	if request.MaxTurns > 0 {
		return request.MaxTurns
	}
	if f.config.LLM.MaxTurns > 0 {
		return f.config.LLM.MaxTurns
	}
	return 10
}

// resolveTemperature picks the request temperature or the configured default.
func (f *ProviderFactory) resolveTemperature(request *ContentRequest) float32 {
	if request.Temperature > 0 {
		return request.Temperature
	}
	return f.config.LLM.Temperature
}

// resolveMaxTokens picks the request token budget or the configured default.
func (f *ProviderFactory) resolveMaxTokens(request *ContentRequest) int {
	if request.MaxTokens > 0 {
		return request.MaxTokens
	}
	return f.config.LLM.MaxTokens
}

// Close closes all provider clients
func (f *ProviderFactory) Close() error {
	f.geminiClient = nil
	f.claudeClient = anthropic.Client{}
	f.claudeReady = false
	return nil
}

// convertToGenaiSchema converts a map[string]interface{} representation of a
// JSON schema to a genai.Schema structure.
func convertToGenaiSchema(schemaMap map[string]interface{}) (*genai.Schema, error) {
	if len(schemaMap) == 0 {
		return nil, nil
	}

	schema := &genai.Schema{}

	if typeStr, ok := schemaMap["type"].(string); ok {
		switch strings.ToLower(typeStr) {
		case "object":
			schema.Type = genai.TypeObject
		case "array":
			schema.Type = genai.TypeArray
		case "string":
			schema.Type = genai.TypeString
		case "number":
			schema.Type = genai.TypeNumber
		case "integer":
			schema.Type = genai.TypeInteger
		case "boolean":
			schema.Type = genai.TypeBoolean
		}
	}

	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}

	if enumVals, ok := schemaMap["enum"].([]interface{}); ok {
		for _, v := range enumVals {
			if s, ok := v.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	} else if enumVals, ok := schemaMap["enum"].([]string); ok {
		schema.Enum = enumVals
	}

	if reqVals, ok := schemaMap["required"].([]interface{}); ok {
		for _, v := range reqVals {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	} else if reqVals, ok := schemaMap["required"].([]string); ok {
		schema.Required = reqVals
	}

	if props, ok := schemaMap["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			propMap, ok := prop.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("property %q is not a schema object", name)
			}
			propSchema, err := convertToGenaiSchema(propMap)
			if err != nil {
				return nil, err
			}
			schema.Properties[name] = propSchema
		}
	}

	if items, ok := schemaMap["items"].(map[string]interface{}); ok {
		itemSchema, err := convertToGenaiSchema(items)
		if err != nil {
			return nil, err
		}
		schema.Items = itemSchema
	}

	return schema, nil
}
