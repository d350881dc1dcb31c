package stream

import "strings"

// partLocations are where producers have put part arrays, probed in order.
var partLocations = append(
	under([]fieldPath{path("parts"), path("ui"), path("uiParts"), path("ui_parts")}, "delta", "message"),
	under([]fieldPath{path("content"), path("output")}, "delta", "message")...,
)

// toolCallLocations hold OpenAI-style tool_calls arrays.
var toolCallLocations = []fieldPath{
	path("tool_calls"),
	path("toolCalls"),
	path("delta", "tool_calls"),
	path("delta", "toolCalls"),
	path("message", "tool_calls"),
	path("message", "toolCalls"),
	path("data", "tool_calls"),
	path("data", "toolCalls"),
	path("choices", "0", "delta", "tool_calls"),
	path("choices", "0", "message", "tool_calls"),
}

// partDecoder turns a candidate array into parts, or nil when the array is
// not in the decoder's shape.
type partDecoder func(items []any) []Part

var partDecoders = []partDecoder{
	typedParts,
	ExtractToolCallParts,
}

// ExtractUIParts recovers the renderable parts carried by a payload. It
// returns nil, not an empty slice, when the payload carries none.
//
// The payload itself may be a part. Otherwise the known part locations are
// probed in order with each decoder, then tool_calls arrays, and finally the
// whole tree is searched for part-typed objects.
func ExtractUIParts(payload any) []Part {
	if isTypedPart(payload) {
		return []Part{typedPart(payload.(map[string]any))}
	}
	for _, loc := range partLocations {
		raw, ok := lookup(payload, loc)
		if !ok {
			continue
		}
		items, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, decode := range partDecoders {
			if parts := decode(items); parts != nil {
				return parts
			}
		}
	}
	for _, loc := range toolCallLocations {
		raw, ok := lookup(payload, loc)
		if !ok {
			continue
		}
		if items, ok := raw.([]any); ok {
			if parts := ExtractToolCallParts(items); parts != nil {
				return parts
			}
		}
	}
	found := collectObjects(payload, unbounded, func(obj map[string]any) bool {
		return isTypedPart(obj)
	})
	if len(found) == 0 {
		return nil
	}
	parts := make([]Part, 0, len(found))
	for _, obj := range found {
		parts = append(parts, typedPart(obj))
	}
	return parts
}

// isTypedPart reports whether v is an object whose type names a plan, a
// source or a tool.
func isTypedPart(v any) bool {
	obj, ok := asObject(v)
	if !ok {
		return false
	}
	t, ok := obj["type"].(string)
	if !ok {
		return false
	}
	switch t {
	case "plan", "sources", "source":
		return true
	}
	return strings.HasPrefix(t, "tool")
}

func typedParts(items []any) []Part {
	var parts []Part
	for _, item := range items {
		if isTypedPart(item) {
			parts = append(parts, typedPart(item.(map[string]any)))
		}
	}
	return parts
}

func typedPart(obj map[string]any) Part {
	t, _ := obj["type"].(string)
	if strings.HasPrefix(t, "tool") {
		if part, ok := toolCallPart(obj); ok {
			part.Type = t
			return part
		}
		status, _ := firstString(obj, toolStateFields, nonEmpty)
		input, _ := firstValue(obj, toolInputFields)
		output, _ := firstValue(obj, toolOutputFields)
		errorText, _ := firstString(obj, toolErrorFields, nonEmpty)
		approval, _ := firstValue(obj, toolApprovalFields)
		return Part{
			Type:      t,
			Input:     input,
			Output:    output,
			Approval:  approval,
			ErrorText: errorText,
			State: classifyToolState(toolSignals{
				status: status, approval: approval, input: input, output: output, errorText: errorText,
			}),
		}
	}
	data := make(map[string]any, len(obj))
	for k, v := range obj {
		data[k] = v
	}
	return Part{Type: t, Data: data}
}
