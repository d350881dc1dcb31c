package stream

import (
	"regexp"
	"strings"
)

// Field aliases used by the producer for tool calls across releases, in
// order of preference.
var (
	toolCallIDFields = []fieldPath{path("toolCallId"), path("tool_call_id"), path("id")}
	toolNameFields   = []fieldPath{path("toolName"), path("tool_name"), path("name"), path("function", "name")}
	toolInputFields  = []fieldPath{
		path("input"), path("args"), path("parameters"), path("arguments"), path("function", "arguments"),
	}
	toolOutputFields = []fieldPath{
		path("output"), path("result"), path("response"), path("toolOutput"), path("tool_output"),
	}
	toolStateFields    = []fieldPath{path("state"), path("status")}
	toolApprovalFields = []fieldPath{path("approval")}
	toolErrorFields    = []fieldPath{path("errorText"), path("error_text"), path("error"), path("error", "message")}
)

// explicitStates maps the status strings seen on the wire, lowercased with
// "_" and " " folded to "-", onto normalized states.
var explicitStates = map[string]ToolCallState{
	"input-streaming":    StateInputStreaming,
	"streaming":          StateInputStreaming,
	"partial-call":       StateInputStreaming,
	"partial":            StateInputStreaming,
	"input-available":    StateInputAvailable,
	"call":               StateInputAvailable,
	"called":             StateInputAvailable,
	"pending":            StateInputAvailable,
	"queued":             StateInputAvailable,
	"running":            StateInputAvailable,
	"in-progress":        StateInputAvailable,
	"executing":          StateInputAvailable,
	"approval-requested": StateApprovalRequested,
	"awaiting-approval":  StateApprovalRequested,
	"pending-approval":   StateApprovalRequested,
	"needs-approval":     StateApprovalRequested,
	"requires-approval":  StateApprovalRequested,
	"requires-action":    StateApprovalRequested,
	"approval-responded": StateApprovalResponded,
	"approved":           StateApprovalResponded,
	"responded":          StateApprovalResponded,
	"output-available":   StateOutputAvailable,
	"result":             StateOutputAvailable,
	"completed":          StateOutputAvailable,
	"complete":           StateOutputAvailable,
	"done":               StateOutputAvailable,
	"success":            StateOutputAvailable,
	"succeeded":          StateOutputAvailable,
	"output-denied":      StateOutputDenied,
	"denied":             StateOutputDenied,
	"rejected":           StateOutputDenied,
	"declined":           StateOutputDenied,
	"cancelled":          StateOutputDenied,
	"canceled":           StateOutputDenied,
	"output-error":       StateOutputError,
	"error":              StateOutputError,
	"failed":             StateOutputError,
	"failure":            StateOutputError,
}

var stateFolder = strings.NewReplacer("_", "-", " ", "-")

// NormalizeToolState maps a wire status string onto a ToolCallState.
func NormalizeToolState(raw string) (ToolCallState, bool) {
	key := stateFolder.Replace(strings.ToLower(strings.TrimSpace(raw)))
	s, ok := explicitStates[key]
	return s, ok
}

// toolSignals are the raw inputs to state classification.
type toolSignals struct {
	status    string
	approval  any
	input     any
	output    any
	errorText string
}

type stateRule func(toolSignals) (ToolCallState, bool)

// toolStatePrecedence is the order in which evidence decides a tool call's
// state. The first rule that applies wins; input-available is the default.
var toolStatePrecedence = []stateRule{
	explicitToolState,
	approvalToolState,
	questionToolState,
	errorToolState,
	outputToolState,
}

func classifyToolState(sig toolSignals) ToolCallState {
	for _, rule := range toolStatePrecedence {
		if s, ok := rule(sig); ok {
			return s
		}
	}
	return StateInputAvailable
}

func explicitToolState(sig toolSignals) (ToolCallState, bool) {
	if sig.status == "" {
		return "", false
	}
	return NormalizeToolState(sig.status)
}

func approvalToolState(sig toolSignals) (ToolCallState, bool) {
	approval, ok := asObject(sig.approval)
	if !ok {
		return "", false
	}
	approved, decided := approval["approved"].(bool)
	switch {
	case !decided:
		return StateApprovalRequested, true
	case approved:
		return StateApprovalResponded, true
	default:
		return StateOutputDenied, true
	}
}

func questionToolState(sig toolSignals) (ToolCallState, bool) {
	if looksLikeQuestion(sig.input) || looksLikeQuestion(sig.output) {
		return StateApprovalRequested, true
	}
	return "", false
}

func errorToolState(sig toolSignals) (ToolCallState, bool) {
	if nonEmpty(sig.errorText) {
		return StateOutputError, true
	}
	return "", false
}

func outputToolState(sig toolSignals) (ToolCallState, bool) {
	if sig.output != nil {
		return StateOutputAvailable, true
	}
	return "", false
}

var questionKeyHints = []string{"question", "option", "choice", "select"}

// looksLikeQuestion reports whether v, within a few levels, has keys that
// suggest the tool is asking the user to pick something.
func looksLikeQuestion(v any) bool {
	found := false
	walk(v, questionScanDepth, func(node any, _ int) visitAction {
		obj, ok := node.(map[string]any)
		if !ok {
			return descend
		}
		for key := range obj {
			lower := strings.ToLower(key)
			for _, hint := range questionKeyHints {
				if strings.Contains(lower, hint) {
					found = true
					return stopWalk
				}
			}
		}
		return descend
	})
	return found
}

// ExtractToolCallParts decodes an array of tool-call shaped objects. It
// returns nil when no element names a tool or carries a call id.
func ExtractToolCallParts(items []any) []Part {
	var parts []Part
	for _, item := range items {
		obj, ok := asObject(item)
		if !ok {
			continue
		}
		if part, ok := toolCallPart(obj); ok {
			parts = append(parts, part)
		}
	}
	return parts
}

func toolCallPart(obj map[string]any) (Part, bool) {
	id, _ := firstString(obj, toolCallIDFields, nonEmpty)
	name, _ := firstString(obj, toolNameFields, nonEmpty)
	if id == "" && name == "" {
		return Part{}, false
	}
	input, _ := firstValue(obj, toolInputFields)
	input = decodeArguments(input)
	output, _ := firstValue(obj, toolOutputFields)
	status, _ := firstString(obj, toolStateFields, nonEmpty)
	approval, _ := firstValue(obj, toolApprovalFields)
	errorText, _ := firstString(obj, toolErrorFields, nonEmpty)

	part := Part{
		Type:       toolPartType(obj, name),
		ToolCallID: id,
		ToolName:   name,
		Input:      input,
		Output:     output,
		Approval:   approval,
		ErrorText:  errorText,
	}
	part.State = classifyToolState(toolSignals{
		status:    status,
		approval:  approval,
		input:     input,
		output:    output,
		errorText: errorText,
	})
	return part, true
}

// GenericToolType is the part type of a tool call whose name is unknown.
const GenericToolType = "tool-call"

// toolPartType keeps an explicit tool type, otherwise synthesizes one from
// the tool name so callers always get a stable discriminator.
func toolPartType(obj map[string]any, name string) string {
	if t, ok := obj["type"].(string); ok && strings.HasPrefix(t, "tool") {
		return t
	}
	if slug := slugify(name); slug != "" {
		return "tool:" + slug
	}
	return GenericToolType
}

// decodeArguments expands JSON-encoded argument strings. Partial strings
// that do not decode yet are kept as they are.
func decodeArguments(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch decoded := Parse(s).(type) {
	case map[string]any, []any:
		return decoded
	}
	return s
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
