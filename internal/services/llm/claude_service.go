package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ternarybob/hermes/internal/interfaces"
)

// convertMessagesToClaude converts []interfaces.Message to Claude MessageParam format.
// Maps Role values to provider's expected values and maintains chronological ordering.
// Extracts system messages separately for use with System parameter.
// Returns the user/assistant messages, the first system message content (if any), and an error.
func convertMessagesToClaude(messages []interfaces.Message) ([]anthropic.MessageParam, string, error) {
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

	// Convert messages to Claude format, excluding system messages
	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		// Handle system messages separately
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		switch msg.Role {
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case "user":
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			// Default to user for unknown roles
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	return claudeMessages, systemText, nil
}

// convertToolsToClaude converts tool definitions to Claude's tool parameter
// format. The JSON schema properties and required list are passed through.
func convertToolsToClaude(tools []ToolDefinition) []anthropic.ToolUnionParam {
	claudeTools := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := tool.InputSchema["properties"].(map[string]interface{}); ok {
			schema.Properties = props
		}
		if reqVals, ok := tool.InputSchema["required"].([]interface{}); ok {
			for _, v := range reqVals {
				if s, ok := v.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		} else if reqVals, ok := tool.InputSchema["required"].([]string); ok {
			schema.Required = reqVals
		}

		claudeTools = append(claudeTools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: schema,
			},
		})
	}
	return claudeTools
}

// generateWithClaude generates content using Claude API. When the request
// carries tools, the call runs as a bounded tool loop: tool_use blocks are
// executed locally and fed back as tool_result messages until the model
// stops requesting tools or MaxTurns is reached.
//
// Claude has no response-schema parameter, so OutputSchema is enforced by
// appending format instructions to the system prompt; the structured layer
// parses and validates the reply.
func (f *ProviderFactory) generateWithClaude(ctx context.Context, request *ContentRequest, model string) (*ContentResponse, error) {
	client, err := f.GetClaudeClient(ctx)
	if err != nil {
		return nil, err
	}

	claudeMessages, systemText, err := convertMessagesToClaude(request.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	if request.SystemInstruction != "" {
		systemText = request.SystemInstruction
	}
	if request.OutputSchema != nil {
		schemaJSON, err := json.Marshal(request.OutputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode output schema: %w", err)
		}
		systemText += "\n\nRespond with a single JSON object matching this schema, with no text outside the JSON:\n" + string(schemaJSON)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(f.resolveMaxTokens(request)),
		Messages:  claudeMessages,
	}

	if temp := f.resolveTemperature(request); temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}

	toolIndex := toolByName(request.Tools)
	if len(request.Tools) > 0 {
		params.Tools = convertToolsToClaude(request.Tools)
	}

	var toolCalls []interfaces.ToolCall
	maxTurns := f.maxTurns(request)

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := f.claudeTurn(ctx, client, &params)
		if err != nil {
			return nil, err
		}

		// Collect text and tool requests from the response blocks
		var text strings.Builder
		type pendingCall struct {
			id   string
			name string
			args map[string]interface{}
		}
		var pending []pendingCall
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.Text)
			case "tool_use":
				var args map[string]interface{}
				if len(block.Input) > 0 {
					if err := json.Unmarshal(block.Input, &args); err != nil {
						return nil, &ToolCallError{Tool: block.Name, Err: fmt.Errorf("decoding arguments: %w", err)}
					}
				}
				pending = append(pending, pendingCall{id: block.ID, name: block.Name, args: args})
			}
		}

		if resp.StopReason != "tool_use" || len(pending) == 0 {
			if text.Len() == 0 {
				return nil, fmt.Errorf("empty response from Claude API")
			}
			return &ContentResponse{
				Text:      text.String(),
				Provider:  ProviderClaude,
				Model:     model,
				ToolCalls: toolCalls,
			}, nil
		}

		// Execute the requested tools and feed results back
		params.Messages = append(params.Messages, resp.ToParam())
		resultBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(pending))
		for _, call := range pending {
			result, isErr, execErr := executeTool(ctx, toolIndex, call.name, call.args)
			if execErr != nil {
				return nil, execErr
			}

			toolCalls = append(toolCalls, interfaces.ToolCall{
				ID:     call.id,
				Name:   call.name,
				Args:   call.args,
				Result: result,
				IsErr:  isErr,
			})

			f.logger.Debug().
				Str("tool", call.name).
				Bool("is_error", isErr).
				Msg("Executed Claude tool call")

			resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(call.id, result, isErr))
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(resultBlocks...))
	}

	return nil, fmt.Errorf("tool loop did not converge after %d turns", maxTurns)
}

// claudeTurn makes a single Claude API call with rate limiting and retry.
func (f *ProviderFactory) claudeTurn(ctx context.Context, client anthropic.Client, params *anthropic.MessageNewParams) (*anthropic.Message, error) {
	var resp *anthropic.Message
	var apiErr error
	retryConfig := NewDefaultRetryConfig()

	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		if err := f.waitRateLimit(ctx); err != nil {
			return nil, err
		}

		resp, apiErr = client.Messages.New(ctx, *params)
		if apiErr == nil {
			break
		}

		if attempt == retryConfig.MaxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * 2 * time.Second
		if IsRateLimitError(apiErr) {
			backoff = retryConfig.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))
		}

		f.logger.Warn().
			Int("attempt", attempt+1).
			Str("backoff", backoff.String()).
			Err(apiErr).
			Msg("Retrying Claude API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return nil, fmt.Errorf("Claude API call failed after %d retries: %w", retryConfig.MaxRetries, apiErr)
	}
	return resp, nil
}
