package llm

import (
	"fmt"
	"strings"
)

// InvocationError indicates the provider API call itself failed after all
// transport-level retries were exhausted.
type InvocationError struct {
	Provider ProviderType
	Model    string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s invocation failed (model %s): %v", e.Provider, e.Model, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// SchemaValidationError indicates the model produced output that could not be
// parsed or validated against the expected schema, even after correction retries.
type SchemaValidationError struct {
	Attempts int
	Raw      string
	Err      error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("structured output invalid after %d attempts: %v", e.Attempts, e.Err)
}

func (e *SchemaValidationError) Unwrap() error {
	return e.Err
}

// ToolCallError is terminal for a workflow node: either a tool could not be
// dispatched at all, or the model never invoked tools the call requires,
// even after correction retries. MissingTools carries the required tools
// that were absent from the call transcript.
type ToolCallError struct {
	Tool         string
	MissingTools []string
	Err          error
}

func (e *ToolCallError) Error() string {
	if len(e.MissingTools) > 0 {
		return fmt.Sprintf("required tools not called: %s: %v", strings.Join(e.MissingTools, ", "), e.Err)
	}
	return fmt.Sprintf("tool call %q failed: %v", e.Tool, e.Err)
}

func (e *ToolCallError) Unwrap() error {
	return e.Err
}

// ExtractMissingTools scans error text for known tool names. It is the
// fallback when a provider error carries no tool-call transcript; set
// membership against the transcript is always preferred.
func ExtractMissingTools(err error, knownTools []string) []string {
	if err == nil {
		return nil
	}
	text := strings.ToLower(err.Error())

	var missing []string
	for _, tool := range knownTools {
		if strings.Contains(text, strings.ToLower(tool)) {
			missing = append(missing, tool)
		}
	}
	return missing
}
