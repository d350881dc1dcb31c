package stream

import "strings"

// Interpret parses one raw chunk and runs every extractor over it. The
// event name is the transport's label for the chunk (an SSE event line) and
// may be empty.
func Interpret(eventName, raw string) *Chunk {
	return InterpretPayload(eventName, Parse(raw))
}

// InterpretPayload runs every extractor over an already decoded payload.
func InterpretPayload(eventName string, payload any) *Chunk {
	event := strings.ToLower(strings.TrimSpace(eventName))
	c := &Chunk{Event: event, Payload: payload}

	c.ChatID = optional(ExtractChatID(payload, event))
	c.VersionID = optional(ExtractVersionID(payload))
	c.MessageID = optional(ExtractMessageID(payload))
	c.DemoURL = optional(ExtractDemoURL(payload))
	c.Thinking = optional(FindThought(payload))
	c.Content = optional(ExtractContentText(payload))
	c.Parts = ExtractUIParts(payload)
	c.Signals = ExtractIntegrationSignals(payload, event, c.Parts)
	c.Done = IsDoneLikeEvent(event, payload)
	return c
}

func optional(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}
