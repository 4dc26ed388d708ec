package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/interfaces"
)

// auditKeyPrefix namespaces audit entries in the key/value store.
const auditKeyPrefix = "llm_audit:"

// AuditEntry records a single provider operation for the run report.
type AuditEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Operation string    `json:"operation"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Duration  int64     `json:"duration_ms"`
}

// AuditLogger defines the interface for LLM audit logging
type AuditLogger interface {
	LogChat(provider, model string, success bool, duration time.Duration, err error)
	LogEmbed(model string, success bool, duration time.Duration, err error)
	Entries(limit int) ([]AuditEntry, error)
}

// KVAuditLogger implements AuditLogger on top of the key/value store.
// Failures to persist are logged and swallowed so audit never breaks a run.
type KVAuditLogger struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewKVAuditLogger creates an audit logger backed by the key/value store.
func NewKVAuditLogger(kv interfaces.KeyValueStorage, logger arbor.ILogger) *KVAuditLogger {
	return &KVAuditLogger{kv: kv, logger: logger}
}

// LogChat records a chat completion operation
func (l *KVAuditLogger) LogChat(provider, model string, success bool, duration time.Duration, err error) {
	l.logOperation("chat", provider, model, success, duration, err)
}

// LogEmbed records an embedding operation
func (l *KVAuditLogger) LogEmbed(model string, success bool, duration time.Duration, err error) {
	l.logOperation("embed", "gemini", model, success, duration, err)
}

func (l *KVAuditLogger) logOperation(operation, provider, model string, success bool, duration time.Duration, err error) {
	entry := AuditEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Provider:  provider,
		Model:     model,
		Operation: operation,
		Success:   success,
		Duration:  duration.Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	encoded, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		l.logger.Warn().Err(marshalErr).Msg("Failed to encode audit entry")
		return
	}

	key := fmt.Sprintf("%s%d:%s", auditKeyPrefix, entry.Timestamp.UnixNano(), entry.ID)
	if storeErr := l.kv.Set(context.Background(), key, string(encoded)); storeErr != nil {
		l.logger.Warn().Err(storeErr).Msg("Failed to persist audit entry")
	}
}

// Entries returns the most recent audit entries, newest first.
func (l *KVAuditLogger) Entries(limit int) ([]AuditEntry, error) {
	values, err := l.kv.GetAll(context.Background())
	if err != nil {
		return nil, fmt.Errorf("loading audit entries: %w", err)
	}

	entries := make([]AuditEntry, 0, len(values))
	for key, value := range values {
		if !strings.HasPrefix(key, auditKeyPrefix) {
			continue
		}
		var entry AuditEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			l.logger.Warn().Str("key", key).Err(err).Msg("Skipping malformed audit entry")
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// NoopAuditLogger discards all audit entries.
type NoopAuditLogger struct{}

func (NoopAuditLogger) LogChat(string, string, bool, time.Duration, error) {}

func (NoopAuditLogger) LogEmbed(string, bool, time.Duration, error) {}

func (NoopAuditLogger) Entries(int) ([]AuditEntry, error) { return nil, nil }
