package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolHandler executes a tool call with the arguments produced by the model.
// The returned value is JSON-encoded before being sent back to the model.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// ToolDefinition describes a tool the model may call during generation.
// InputSchema is a JSON schema (type/properties/required) shared by both
// providers; each provider adapter converts it to its native format.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Handler     ToolHandler
}

// toolByName indexes tool definitions for dispatch during the tool loop.
func toolByName(tools []ToolDefinition) map[string]*ToolDefinition {
	index := make(map[string]*ToolDefinition, len(tools))
	for i := range tools {
		index[tools[i].Name] = &tools[i]
	}
	return index
}

// executeTool runs a single tool call and returns the JSON-encoded result.
// Handler failures are returned as an error string so the model can recover;
// an unknown tool name is a hard error.
func executeTool(ctx context.Context, index map[string]*ToolDefinition, name string, args map[string]interface{}) (string, bool, error) {
	tool, ok := index[name]
	if !ok {
		return "", true, &ToolCallError{Tool: name, Err: fmt.Errorf("tool is not registered")}
	}

	result, err := tool.Handler(ctx, args)
	if err != nil {
		// Report the failure to the model rather than aborting the turn
		return fmt.Sprintf(`{"error": %q}`, err.Error()), true, nil
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return "", true, &ToolCallError{Tool: name, Err: fmt.Errorf("encoding result: %w", err)}
	}
	return string(encoded), false, nil
}
