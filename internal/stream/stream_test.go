package stream

import (
	"bytes"
	"strings"
	"testing"

	"phobos.org.uk/sajtmaskin/internal/logging"
)

func newTestChunkLogger(buf *bytes.Buffer) *DefaultChunkLogger {
	log := logging.New(logging.Config{
		Output:     buf,
		Level:      logging.LevelDebug,
		Component:  "test",
		MaxEntries: 100,
	})
	return NewChunkLogger(log.WithStream("test-stream"))
}

func TestChunkLogger_ToolCall(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newTestChunkLogger(&buf)

	logger.Log(Interpret("message.delta", `{"toolCalls":[{"id":"call_1","name":"search","input":{"query":"go"}}]}`))

	output := buf.String()
	if !strings.Contains(output, `"message":"tool call"`) {
		t.Errorf("expected tool call entry, got %s", output)
	}
	if !strings.Contains(output, `"stream_id":"test-stream"`) {
		t.Errorf("expected stream id in output, got %s", output)
	}
	if !strings.Contains(output, "call_1") {
		t.Errorf("expected tool call id in output, got %s", output)
	}
}

func TestChunkLogger_ToolError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newTestChunkLogger(&buf)

	logger.Log(&Chunk{Parts: []Part{{
		Type:       "tool:deploy",
		ToolCallID: "call_2",
		ToolName:   "deploy",
		State:      StateOutputError,
		ErrorText:  "build failed",
	}}})

	output := buf.String()
	if !strings.Contains(output, `"level":"warn"`) {
		t.Errorf("expected warn level, got %s", output)
	}
	if !strings.Contains(output, "build failed") {
		t.Errorf("expected error text, got %s", output)
	}
}

func TestChunkLogger_Approval(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newTestChunkLogger(&buf)

	logger.Log(&Chunk{Parts: []Part{{
		Type:     "tool:ask",
		ToolName: "ask",
		Input:    map[string]any{"question": "Use Postgres?"},
		State:    StateApprovalRequested,
	}}})

	output := buf.String()
	if !strings.Contains(output, "tool awaiting approval") {
		t.Errorf("expected approval entry, got %s", output)
	}
	if !strings.Contains(output, "Use Postgres?") {
		t.Errorf("expected question in output, got %s", output)
	}
}

func TestChunkLogger_SignalsAndPreview(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newTestChunkLogger(&buf)

	demo := "https://demo.example/v1"
	logger.Log(&Chunk{
		DemoURL: &demo,
		Signals: []IntegrationSignal{{Key: "k", Provider: "neon", EnvVars: []string{"DATABASE_URL", "PGHOST"}}},
		Done:    true,
	})

	output := buf.String()
	for _, want := range []string{"integration requested", "DATABASE_URL,PGHOST", "preview available", demo, "stream done"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got %s", want, output)
		}
	}
}

func TestChunkLogger_NoOp(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newTestChunkLogger(&buf)

	logger.Log(nil)
	if buf.Len() != 0 {
		t.Errorf("expected nothing logged for nil chunk, got %s", buf.String())
	}

	logger.Log(Interpret("ping", "{}"))
	if !strings.Contains(buf.String(), "no-op chunk") {
		t.Errorf("expected no-op entry, got %s", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		max      int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is a long string", 10, "this is a ..."},
		{"", 5, ""},
	}

	for _, tc := range tests {
		result := truncate(tc.input, tc.max)
		if result != tc.expected {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.input, tc.max, result, tc.expected)
		}
	}
}

func TestOutputSize(t *testing.T) {
	t.Parallel()

	if got := outputSize(nil); got != 0 {
		t.Errorf("outputSize(nil) = %d", got)
	}
	if got := outputSize("abc"); got != 3 {
		t.Errorf("outputSize(string) = %d", got)
	}
	if got := outputSize(map[string]any{"a": 1.0}); got != len(`{"a":1}`) {
		t.Errorf("outputSize(map) = %d", got)
	}
}

func TestChunkLogger_DiscoveredIDs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newTestChunkLogger(&buf)

	logger.Log(Interpret("chat.created", `{"id":"chat_abc123","object":"chat"}`))
	logger.Log(Interpret("chat.created", `{"id":"chat_abc123","object":"chat"}`))
	logger.Log(Interpret("version.created", `{"versionId":"ver_1"}`))

	output := buf.String()
	if n := strings.Count(output, `"message":"chat discovered"`); n != 1 {
		t.Errorf("expected one chat discovered entry, got %d in %s", n, output)
	}
	if !strings.Contains(output, `"level":"info","message":"chat discovered"`) {
		t.Errorf("expected chat id at info, got %s", output)
	}
	if !strings.Contains(output, `"message":"version discovered"`) || !strings.Contains(output, `"version_id":"ver_1"`) {
		t.Errorf("expected version discovered entry, got %s", output)
	}
}
