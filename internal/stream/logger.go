package stream

import (
	"encoding/json"
	"strings"

	"phobos.org.uk/sajtmaskin/internal/logging"
)

// ChunkLogger logs interpreted chunks in human-readable format
type ChunkLogger interface {
	Log(chunk *Chunk)
}

// DefaultChunkLogger logs chunks with part-specific formatting. It logs a
// chat or version id at info the first time the stream reports it.
type DefaultChunkLogger struct {
	log       *logging.StreamLogger
	chatID    string
	versionID string
}

// NewChunkLogger creates a new logger for interpreted chunks
func NewChunkLogger(log *logging.StreamLogger) *DefaultChunkLogger {
	return &DefaultChunkLogger{log: log}
}

// Log logs a chunk and each fact it carries
func (l *DefaultChunkLogger) Log(chunk *Chunk) {
	if chunk == nil {
		return
	}
	if chunk.Empty() {
		l.log.Debug("no-op chunk", map[string]any{"event": chunk.Event})
		return
	}

	fields := map[string]any{"event": chunk.Event}
	if chunk.ChatID != nil {
		fields["chat_id"] = *chunk.ChatID
	}
	if chunk.VersionID != nil {
		fields["version_id"] = *chunk.VersionID
	}
	if chunk.Content != nil {
		fields["content_bytes"] = len(*chunk.Content)
	}
	if chunk.Thinking != nil {
		fields["thinking"] = truncate(*chunk.Thinking, 48)
	}
	if len(chunk.Parts) > 0 {
		fields["parts"] = len(chunk.Parts)
	}
	l.log.Debug("chunk", fields)

	if chunk.ChatID != nil && *chunk.ChatID != l.chatID {
		l.chatID = *chunk.ChatID
		l.log.Info("chat discovered", map[string]any{"chat_id": l.chatID})
	}
	if chunk.VersionID != nil && *chunk.VersionID != l.versionID {
		l.versionID = *chunk.VersionID
		l.log.Info("version discovered", map[string]any{"version_id": l.versionID})
	}

	for _, part := range chunk.Parts {
		l.logPart(part)
	}
	for _, sig := range chunk.Signals {
		l.logSignal(sig)
	}
	if chunk.DemoURL != nil {
		l.log.Info("preview available", map[string]any{"url": *chunk.DemoURL})
	}
	if chunk.Done {
		l.log.Info("stream done", map[string]any{"event": chunk.Event})
	}
}

func (l *DefaultChunkLogger) logPart(part Part) {
	switch {
	case part.Type == "plan":
		l.log.Debug("plan", map[string]any{"steps": len(getArray(part.Data, "steps"))})

	case part.Type == "sources" || part.Type == "source":
		fields := map[string]any{"type": part.Type}
		if sources := getArray(part.Data, "sources"); sources != nil {
			fields["count"] = len(sources)
		}
		if url := getString(part.Data, "url"); url != "" {
			fields["url"] = truncate(url, 64)
		}
		l.log.Debug("sources", fields)

	case part.IsToolCall():
		l.logToolCall(part)

	default:
		l.log.Debug("part", map[string]any{"type": part.Type})
	}
}

func (l *DefaultChunkLogger) logToolCall(part Part) {
	fields := map[string]any{
		"tool":  part.ToolName,
		"id":    part.ToolCallID,
		"state": string(part.State),
	}

	switch part.State {
	case StateInputStreaming:
		l.log.Debug("tool input streaming", fields)

	case StateInputAvailable:
		if input, ok := part.Input.(map[string]any); ok {
			fields["input_keys"] = len(input)
		}
		l.log.Info("tool call", fields)

	case StateApprovalRequested:
		if q := getString(asMap(part.Input), "question"); q != "" {
			fields["question"] = truncate(q, 64)
		}
		l.log.Info("tool awaiting approval", fields)

	case StateApprovalResponded:
		l.log.Info("tool approval answered", fields)

	case StateOutputAvailable:
		fields["output_bytes"] = outputSize(part.Output)
		l.log.Debug("tool result", fields)

	case StateOutputDenied:
		l.log.Info("tool denied", fields)

	case StateOutputError:
		fields["error"] = truncate(part.ErrorText, 64)
		l.log.Warn("tool failed", fields)
	}
}

func (l *DefaultChunkLogger) logSignal(sig IntegrationSignal) {
	fields := map[string]any{"key": sig.Key}
	if sig.Provider != "" {
		fields["provider"] = sig.Provider
	}
	if sig.Name != "" {
		fields["name"] = sig.Name
	}
	if sig.Intent != "" {
		fields["intent"] = sig.Intent
	}
	if len(sig.EnvVars) > 0 {
		fields["env_vars"] = strings.Join(sig.EnvVars, ",")
	}
	l.log.Info("integration requested", fields)
}

// Helper functions

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getArray(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}

func outputSize(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		return len(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
