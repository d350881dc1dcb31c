package stream

import "testing"

func TestExtractChatID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload any
		event   string
		want    string
		wantOK  bool
	}{
		{
			name:    "explicit chatId",
			payload: map[string]any{"chatId": "abc12345"},
			want:    "abc12345",
			wantOK:  true,
		},
		{
			name:    "bare id without corroboration",
			payload: map[string]any{"id": "abc12345"},
		},
		{
			name:    "bare id with web url",
			payload: map[string]any{"id": "abc12345", "webUrl": "https://x"},
			want:    "abc12345",
			wantOK:  true,
		},
		{
			name:    "bare id with chat event hint",
			payload: map[string]any{"id": "abc12345"},
			event:   "chat.created",
			want:    "abc12345",
			wantOK:  true,
		},
		{
			name:    "short id fails shape even with hints",
			payload: map[string]any{"id": "short", "webUrl": "https://x"},
			event:   "chat.created",
		},
		{
			name:    "object chat corroborates",
			payload: map[string]any{"id": "chat_0001", "object": "chat"},
			want:    "chat_0001",
			wantOK:  true,
		},
		{
			name:    "message object id is not a chat id",
			payload: map[string]any{"id": "msg_12345678", "object": "message", "url": "https://x"},
			event:   "chat.message",
		},
		{
			name:    "snake case under data",
			payload: map[string]any{"data": map[string]any{"chat_id": "chat_ABCDEFGH"}},
			want:    "chat_ABCDEFGH",
			wantOK:  true,
		},
		{
			name:    "chat.id path",
			payload: map[string]any{"chat": map[string]any{"id": "nested-chat-1"}},
			want:    "nested-chat-1",
			wantOK:  true,
		},
		{
			name: "invalid explicit value skipped for valid nested one",
			payload: map[string]any{
				"chatId": "has space 123",
				"data":   map[string]any{"chatId": "valid_chat_1"},
			},
			want:   "valid_chat_1",
			wantOK: true,
		},
		{
			name: "deep fallback",
			payload: map[string]any{
				"a": map[string]any{"b": []any{map[string]any{"chatId": "deepchat_01"}}},
			},
			want:   "deepchat_01",
			wantOK: true,
		},
		{
			name:    "tool call id is not a chat id",
			payload: map[string]any{"toolCallId": "call_abcdefgh", "id": "call_abcdefgh", "name": "search"},
		},
		{
			name: "batched events take first hit",
			payload: []any{
				map[string]any{"foo": 1.0},
				map[string]any{"chatId": "second_chat"},
				map[string]any{"chatId": "third_chat"},
			},
			want:   "second_chat",
			wantOK: true,
		},
		{name: "null", payload: nil},
		{name: "string", payload: "chatId abc12345"},
		{name: "number", payload: 42.0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractChatID(tc.payload, tc.event)
			if ok != tc.wantOK || got != tc.want {
				t.Errorf("ExtractChatID() = %q, %v; want %q, %v", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestExtractVersionAndDemo(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"object": "chat",
		"latestVersion": map[string]any{
			"id":      "ver_1",
			"demoUrl": "https://demo.example/1",
		},
	}
	if got, ok := ExtractVersionID(payload); !ok || got != "ver_1" {
		t.Errorf("ExtractVersionID() = %q, %v", got, ok)
	}
	if got, ok := ExtractDemoURL(payload); !ok || got != "https://demo.example/1" {
		t.Errorf("ExtractDemoURL() = %q, %v", got, ok)
	}

	deep := map[string]any{"x": map[string]any{"y": []any{map[string]any{"versionId": "v9", "demo_url": "https://d"}}}}
	if got, ok := ExtractVersionID(deep); !ok || got != "v9" {
		t.Errorf("deep ExtractVersionID() = %q, %v", got, ok)
	}
	if got, ok := ExtractDemoURL(deep); !ok || got != "https://d" {
		t.Errorf("deep ExtractDemoURL() = %q, %v", got, ok)
	}

	empty := map[string]any{"versionId": "", "demoUrl": "  "}
	if _, ok := ExtractVersionID(empty); ok {
		t.Error("empty version id should not be found")
	}
	if _, ok := ExtractDemoURL(empty); ok {
		t.Error("blank demo url should not be found")
	}

	if _, ok := ExtractDemoURL(map[string]any{"demo": true}); ok {
		t.Error("non-string demo should not be found")
	}
}

func TestExtractMessageID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload any
		want    string
		wantOK  bool
	}{
		{"messageId", map[string]any{"messageId": "m1"}, "m1", true},
		{"message_id", map[string]any{"message_id": "m2"}, "m2", true},
		{"latestVersion", map[string]any{"latestVersion": map[string]any{"messageId": "m3"}}, "m3", true},
		{"message.id", map[string]any{"message": map[string]any{"id": "m4"}}, "m4", true},
		{"message object", map[string]any{"object": "message.delta", "id": "m5"}, "m5", true},
		{"bare id", map[string]any{"id": "m6"}, "", false},
		{"no deep search", map[string]any{"a": map[string]any{"messageId": "m7"}}, "", false},
		{"array", []any{map[string]any{"messageId": "m8"}}, "", false},
	}
	for _, tc := range tests {
		got, ok := ExtractMessageID(tc.payload)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("%s: ExtractMessageID() = %q, %v; want %q, %v", tc.name, got, ok, tc.want, tc.wantOK)
		}
	}
}
