package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/hermes/internal/interfaces"
)

// Correction templates rendered at retry time. The placeholders are filled
// with the concrete missing items of the failed attempt, never interpolated
// into the main prompt up front.
const (
	schemaGuidanceTemplate = "Your previous reply was not valid: {validation_error}. Respond again with only a single JSON object matching the required schema, with no surrounding text or markdown fences."
	toolGuidanceTemplate   = "Your previous reply did not use the required tools: {missing_tools}. Call each of them, then answer again using their results."
)

// InvokeStructured calls the provider and decodes the reply into T, checking
// it against T's validator tags and against the request's required tools. On
// a parse or validation failure the raw reply and a correction instruction
// are appended to the conversation and the call is retried, up to maxRetries
// corrections. Provider failures are returned immediately; they have their
// own transport-level retry.
//
// After the retry budget is exhausted a missing-tool failure is promoted to
// *ToolCallError carrying the tools that were never called; schema failures
// surface as *SchemaValidationError. The request's Messages slice is never
// mutated.
func InvokeStructured[T any](ctx context.Context, gen Generator, validate *validator.Validate, request *ContentRequest, maxRetries int) (*T, *ContentResponse, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	messages := make([]interfaces.Message, len(request.Messages))
	copy(messages, request.Messages)

	var lastErr error
	var lastRaw string
	var lastMissing []string

	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptReq := *request
		attemptReq.Messages = messages

		resp, err := gen.GenerateContent(ctx, &attemptReq)
		if err != nil {
			return nil, nil, err
		}

		missing := missingRequiredTools(request.RequiredTools, resp.ToolCalls)
		out, parseErr := decodeAndValidate[T](validate, resp.Text)
		if parseErr == nil && len(missing) == 0 {
			return out, resp, nil
		}

		lastErr = parseErr
		lastRaw = resp.Text
		lastMissing = missing

		if attempt < maxRetries {
			messages = append(messages,
				interfaces.Message{Role: "assistant", Content: resp.Text},
				interfaces.Message{Role: "user", Content: correctionPrompt(parseErr, missing)},
			)
		}
	}

	if len(lastMissing) > 0 {
		return nil, nil, &ToolCallError{MissingTools: lastMissing, Err: lastErr}
	}
	return nil, nil, &SchemaValidationError{
		Attempts: maxRetries + 1,
		Raw:      lastRaw,
		Err:      lastErr,
	}
}

// missingRequiredTools returns the required tools absent from the call
// transcript. Failed tool executions do not count as called.
func missingRequiredTools(required []string, calls []interfaces.ToolCall) []string {
	if len(required) == 0 {
		return nil
	}

	called := make(map[string]bool, len(calls))
	for _, call := range calls {
		if !call.IsErr {
			called[call.Name] = true
		}
	}

	var missing []string
	for _, name := range required {
		if !called[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// decodeAndValidate extracts the JSON payload from a model reply and decodes
// it into T, then applies validator tags.
func decodeAndValidate[T any](validate *validator.Validate, text string) (*T, error) {
	raw := ExtractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}

	if validate != nil {
		if err := validate.Struct(&out); err != nil {
			return nil, fmt.Errorf("validating response: %w", err)
		}
	}

	return &out, nil
}

// correctionPrompt renders the guidance templates for the failures of the
// last attempt.
func correctionPrompt(parseErr error, missingTools []string) string {
	var parts []string
	if len(missingTools) > 0 {
		parts = append(parts, strings.ReplaceAll(toolGuidanceTemplate, "{missing_tools}", strings.Join(missingTools, ", ")))
	}
	if parseErr != nil {
		parts = append(parts, strings.ReplaceAll(schemaGuidanceTemplate, "{validation_error}", parseErr.Error()))
	}
	return strings.Join(parts, "\n")
}
