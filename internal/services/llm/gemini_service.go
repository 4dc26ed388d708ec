package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/hermes/internal/interfaces"
	"google.golang.org/genai"
)

// convertMessagesToGemini converts []interfaces.Message to Gemini Content format.
// Maps Role values to provider's expected values and maintains chronological ordering.
// Extracts system messages separately for use with SystemInstruction.
// Returns the user/model messages, the first system message content (if any), and an error.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	// Check that at least one message has role "user"
	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	// Convert messages to Gemini format, excluding system messages
	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		// Handle system messages separately
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		var geminiRole genai.Role
		switch msg.Role {
		case "assistant":
			geminiRole = genai.RoleModel
		case "user":
			geminiRole = genai.RoleUser
		default:
			geminiRole = genai.RoleUser
		}

		contents = append(contents, genai.NewContentFromText(msg.Content, geminiRole))
	}

	return contents, systemText, nil
}

// convertToolsToGemini converts tool definitions to Gemini function
// declarations.
func convertToolsToGemini(tools []ToolDefinition) ([]*genai.Tool, error) {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		params, err := convertToGenaiSchema(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("converting schema for tool %q: %w", tool.Name, err)
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}, nil
}

// generateWithGemini generates content using Gemini API. When the request
// carries tools, the call runs as a bounded function-calling loop. Gemini
// rejects Tools combined with ResponseSchema, so when both are requested the
// tool phase runs first and a final formatting turn enforces the schema.
func (f *ProviderFactory) generateWithGemini(ctx context.Context, request *ContentRequest, model string) (*ContentResponse, error) {
	client, err := f.GetGeminiClient(ctx)
	if err != nil {
		return nil, err
	}

	contents, systemText, err := convertMessagesToGemini(request.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	if request.SystemInstruction != "" {
		systemText = request.SystemInstruction
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(f.resolveTemperature(request)),
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	var responseSchema *genai.Schema
	if len(request.OutputSchema) > 0 {
		responseSchema, err = convertToGenaiSchema(request.OutputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output schema: %w", err)
		}
	}

	toolIndex := toolByName(request.Tools)
	hasTools := len(request.Tools) > 0
	if hasTools {
		config.Tools, err = convertToolsToGemini(request.Tools)
		if err != nil {
			return nil, err
		}
	} else if responseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = responseSchema
	}

	var toolCalls []interfaces.ToolCall
	var finalText string
	maxTurns := f.maxTurns(request)

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := f.geminiTurn(ctx, client, model, contents, config)
		if err != nil {
			return nil, err
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			finalText = resp.Text()
			if finalText == "" {
				return nil, fmt.Errorf("empty text in Gemini response")
			}
			break
		}

		// Execute the requested functions and feed responses back
		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			contents = append(contents, resp.Candidates[0].Content)
		}
		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			result, isErr, execErr := executeTool(ctx, toolIndex, call.Name, call.Args)
			if execErr != nil {
				return nil, execErr
			}

			toolCalls = append(toolCalls, interfaces.ToolCall{
				ID:     call.ID,
				Name:   call.Name,
				Args:   call.Args,
				Result: result,
				IsErr:  isErr,
			})

			f.logger.Debug().
				Str("tool", call.Name).
				Bool("is_error", isErr).
				Msg("Executed Gemini function call")

			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       call.ID,
					Name:     call.Name,
					Response: map[string]interface{}{"output": result},
				},
			})
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	if finalText == "" {
		return nil, fmt.Errorf("tool loop did not converge after %d turns", maxTurns)
	}

	// Formatting turn: re-ask for the final answer with the schema enforced,
	// now that the tool phase is complete.
	if hasTools && responseSchema != nil {
		contents = append(contents,
			genai.NewContentFromText(finalText, genai.RoleModel),
			genai.NewContentFromText("Restate your final answer as a single JSON object matching the response schema. Do not change any facts or figures.", genai.RoleUser),
		)
		formatConfig := &genai.GenerateContentConfig{
			Temperature:      genai.Ptr(f.resolveTemperature(request)),
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema,
		}
		if systemText != "" {
			formatConfig.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
		}

		resp, err := f.geminiTurn(ctx, client, model, contents, formatConfig)
		if err != nil {
			return nil, err
		}
		if resp.Text() == "" {
			return nil, fmt.Errorf("empty text in Gemini formatting response")
		}
		finalText = resp.Text()
	}

	return &ContentResponse{
		Text:      finalText,
		Provider:  ProviderGemini,
		Model:     model,
		ToolCalls: toolCalls,
	}, nil
}

// geminiTurn makes a single Gemini API call with rate limiting and retry.
func (f *ProviderFactory) geminiTurn(ctx context.Context, client *genai.Client, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var apiErr error
	retryConfig := NewDefaultRetryConfig()

	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		if err := f.waitRateLimit(ctx); err != nil {
			return nil, err
		}

		resp, apiErr = client.Models.GenerateContent(ctx, model, contents, config)
		if apiErr == nil {
			break
		}

		if attempt == retryConfig.MaxRetries {
			break
		}

		var backoff time.Duration
		if IsRateLimitError(apiErr) {
			backoff = retryConfig.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))
		} else {
			backoff = time.Duration(attempt+1) * 2 * time.Second
		}

		f.logger.Warn().
			Int("attempt", attempt+1).
			Str("backoff", backoff.String()).
			Err(apiErr).
			Msg("Retrying Gemini API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return nil, fmt.Errorf("Gemini API call failed after %d retries: %w", retryConfig.MaxRetries, apiErr)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}
	return resp, nil
}
