package stream

import (
	"regexp"
	"strings"
)

// chatIDPattern keeps unrelated ids (tool calls, short codes) from being
// taken for a chat id.
var chatIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,}$`)

func isChatID(s string) bool {
	return chatIDPattern.MatchString(s)
}

// idContainers are the wrappers producers have put around the interesting
// fields at one time or another.
var idContainers = []string{"data", "payload", "result", "message", "delta", "chat", "latestChat"}

var (
	chatIDPaths = under([]fieldPath{
		path("chatId"),
		path("chat_id"),
		path("chat", "id"),
		path("latestChat", "id"),
	}, idContainers...)
	chatIDDeepKeys = []string{"chatId", "chat_id"}

	// chatIDScopes are the objects whose own "id" may be a chat id. Message
	// and delta wrappers carry message ids.
	chatIDScopes = []string{"data", "payload", "result", "chat", "latestChat"}

	// chatCorroborators are fields only a chat object carries next to its id.
	chatCorroborators = []string{
		"webUrl", "web_url", "apiUrl", "api_url", "url", "shareUrl",
		"demo", "demoUrl", "demo_url", "projectId", "project_id",
		"modelId", "model_id", "modelConfiguration", "latestVersion",
		"messages", "privacy", "vercelProjectId",
	}

	versionIDPaths = under([]fieldPath{
		path("versionId"),
		path("version_id"),
		path("latestVersion", "id"),
		path("latestVersion", "versionId"),
		path("version", "id"),
	}, idContainers...)
	versionIDDeepKeys = []string{"versionId", "version_id"}

	demoURLPaths = under([]fieldPath{
		path("demoUrl"),
		path("demo_url"),
		path("demo"),
		path("latestVersion", "demoUrl"),
		path("latestVersion", "demo_url"),
		path("latestVersion", "demo"),
	}, idContainers...)
	demoURLDeepKeys = []string{"demoUrl", "demo_url"}

	messageIDPaths = []fieldPath{
		path("messageId"),
		path("message_id"),
		path("latestVersion", "messageId"),
		path("message", "id"),
	}
)

// chatIDStrategy is one way of recovering a chat id from an object payload.
// Strategies run in order; the first hit wins.
type chatIDStrategy func(obj map[string]any, eventName string) (string, bool)

var chatIDStrategies = []chatIDStrategy{
	directChatID,
	corroboratedChatID,
	deepChatID,
}

// ExtractChatID recovers the chat id. Explicit chat id fields are tried
// first, then a bare "id" when the object otherwise looks like a chat or the
// event name mentions a chat, then every chatId/chat_id field in the tree.
// Array payloads are searched element by element.
func ExtractChatID(payload any, eventName string) (string, bool) {
	if items, ok := payload.([]any); ok {
		for _, item := range items {
			if id, ok := ExtractChatID(item, eventName); ok {
				return id, true
			}
		}
		return "", false
	}
	obj, ok := asObject(payload)
	if !ok {
		return "", false
	}
	for _, strategy := range chatIDStrategies {
		if id, ok := strategy(obj, eventName); ok {
			return id, true
		}
	}
	return "", false
}

func directChatID(obj map[string]any, _ string) (string, bool) {
	return firstString(obj, chatIDPaths, isChatID)
}

func corroboratedChatID(obj map[string]any, eventName string) (string, bool) {
	hinted := strings.Contains(strings.ToLower(eventName), "chat")
	scopes := []map[string]any{obj}
	for _, key := range chatIDScopes {
		if nested, ok := asObject(obj[key]); ok {
			scopes = append(scopes, nested)
		}
	}
	for _, scope := range scopes {
		id, ok := scope["id"].(string)
		if !ok || !isChatID(id) {
			continue
		}
		if kind, ok := scope["object"].(string); ok && !strings.HasPrefix(strings.ToLower(kind), "chat") {
			continue
		}
		if hinted || looksLikeChat(scope) {
			return id, true
		}
	}
	return "", false
}

func looksLikeChat(obj map[string]any) bool {
	if kind, ok := obj["object"].(string); ok && strings.EqualFold(kind, "chat") {
		return true
	}
	for _, key := range chatCorroborators {
		if v, ok := obj[key]; ok && v != nil {
			return true
		}
	}
	return false
}

func deepChatID(obj map[string]any, _ string) (string, bool) {
	return findKeyedString(obj, chatIDDeepKeys, isChatID)
}

// ExtractVersionID recovers the generated version id from known field paths,
// falling back to any versionId/version_id field in the tree.
func ExtractVersionID(payload any) (string, bool) {
	if id, ok := firstString(payload, versionIDPaths, nonEmpty); ok {
		return id, true
	}
	return findKeyedString(payload, versionIDDeepKeys, nonEmpty)
}

// ExtractDemoURL recovers the preview URL from known field paths, falling
// back to any demoUrl/demo_url field in the tree.
func ExtractDemoURL(payload any) (string, bool) {
	if u, ok := firstString(payload, demoURLPaths, nonEmpty); ok {
		return u, true
	}
	return findKeyedString(payload, demoURLDeepKeys, nonEmpty)
}

// ExtractMessageID recovers the message id from direct fields only. A miss
// is acceptable here, so there is no deep search.
func ExtractMessageID(payload any) (string, bool) {
	obj, ok := asObject(payload)
	if !ok {
		return "", false
	}
	if id, ok := firstString(obj, messageIDPaths, nonEmpty); ok {
		return id, true
	}
	if kind, ok := obj["object"].(string); ok && strings.HasPrefix(kind, "message") {
		if id, ok := obj["id"].(string); ok && nonEmpty(id) {
			return id, true
		}
	}
	return "", false
}
