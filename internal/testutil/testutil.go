package testutil

import (
	"encoding/json"
	"hash/fnv"
	"net/http"
	"strings"
	"testing"
	"time"
)

// AllocateTestPort returns a deterministic port based on test name
func AllocateTestPort(t *testing.T) int {
	t.Helper()
	return AllocateTestPortN(t, 0)
}

// AllocateTestPortN returns a deterministic port based on test name and index.
// Use different index values to get multiple unique ports within the same test.
func AllocateTestPortN(t *testing.T, n int) int {
	t.Helper()
	h := fnv.New32a()
	h.Write([]byte(t.Name()))
	h.Write([]byte{byte(n)})
	return 10000 + int(h.Sum32()%10000)
}

// WaitForHealthy waits for a URL to return 200 OK
func WaitForHealthy(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 500 * time.Millisecond}

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatalf("Service at %s did not become healthy within %v", url, timeout)
}

// Eventually retries a condition until it returns true or timeout expires
func Eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Condition did not become true within timeout")
}

// SSEEvent is one frame for SSEBody.
type SSEEvent struct {
	Event string
	Data  any // string sent as is, anything else JSON encoded
}

// SSEBody renders events as a text/event-stream body.
func SSEBody(t *testing.T, events ...SSEEvent) string {
	t.Helper()
	var b strings.Builder
	for _, ev := range events {
		if ev.Event != "" {
			b.WriteString("event: " + ev.Event + "\n")
		}
		data, ok := ev.Data.(string)
		if !ok {
			raw, err := json.Marshal(ev.Data)
			if err != nil {
				t.Fatalf("encoding SSE data: %v", err)
			}
			data = string(raw)
		}
		for _, line := range strings.Split(data, "\n") {
			b.WriteString("data: " + line + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// GenerationStream returns a typical generation stream: chat creation,
// thinking, two content deltas, a tool call with its result, an
// integration request and completion.
func GenerationStream(t *testing.T) string {
	t.Helper()
	return SSEBody(t,
		SSEEvent{Event: "chat.created", Data: map[string]any{
			"object": "chat", "id": "chat_test0001", "webUrl": "https://v0.dev/chat/test0001",
		}},
		SSEEvent{Event: "message.delta", Data: map[string]any{"thinking": "Planning the layout"}},
		SSEEvent{Event: "message.delta", Data: map[string]any{"delta": "Hello "}},
		SSEEvent{Event: "message.delta", Data: map[string]any{"delta": "world"}},
		SSEEvent{Event: "message.delta", Data: map[string]any{"toolCalls": []any{
			map[string]any{"id": "call_1", "name": "createFile", "arguments": `{"path":"app/page.tsx"}`},
		}}},
		SSEEvent{Event: "message.delta", Data: map[string]any{"toolCalls": []any{
			map[string]any{"id": "call_1", "name": "createFile", "output": "ok"},
		}}},
		SSEEvent{Event: "integration.required", Data: map[string]any{
			"integration": map[string]any{"name": "Neon", "envVars": []any{"DATABASE_URL"}},
		}},
		SSEEvent{Event: "message.completed", Data: map[string]any{
			"latestVersion": map[string]any{"id": "ver_1", "demoUrl": "https://demo.v0.dev/ver_1"},
		}},
	)
}
