// Package stream interprets the builder's live generation event stream.
//
// Every chunk of the upstream stream is an arbitrarily shaped JSON value whose
// layout drifts between producer releases. The extractors in this package
// recover a small set of stable facts from such values (chat id, preview URL,
// version id, message id, thinking text, content deltas, UI parts, tool-call
// state, integration signals and completion). They are pure: no extractor
// keeps state between calls or mutates its input, so they are safe to call
// concurrently for independent streams. Absence is always reported with a
// false ok value or a nil slice, never with an error.
package stream

// ToolCallState is the normalized lifecycle state of a tool invocation.
type ToolCallState string

const (
	StateInputStreaming    ToolCallState = "input-streaming"
	StateInputAvailable    ToolCallState = "input-available"
	StateApprovalRequested ToolCallState = "approval-requested"
	StateApprovalResponded ToolCallState = "approval-responded"
	StateOutputAvailable   ToolCallState = "output-available"
	StateOutputDenied      ToolCallState = "output-denied"
	StateOutputError       ToolCallState = "output-error"
)

// stateRank orders states along the tool-call lifecycle.
var stateRank = map[ToolCallState]int{
	StateInputStreaming:    1,
	StateInputAvailable:    2,
	StateApprovalRequested: 3,
	StateApprovalResponded: 4,
	StateOutputAvailable:   5,
	StateOutputDenied:      5,
	StateOutputError:       5,
}

// Rank returns the lifecycle position of s. Unknown states rank zero.
func (s ToolCallState) Rank() int {
	return stateRank[s]
}

// IsTerminal reports whether no further transition is expected after s.
func (s ToolCallState) IsTerminal() bool {
	switch s {
	case StateOutputAvailable, StateOutputDenied, StateOutputError:
		return true
	}
	return false
}

// Part is one normalized renderable unit of stream content: a plan, a source
// reference or a tool invocation.
type Part struct {
	Type       string         `json:"type"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	Input      any            `json:"input,omitempty"`
	Output     any            `json:"output,omitempty"`
	State      ToolCallState  `json:"state,omitempty"`
	Approval   any            `json:"approval,omitempty"`
	ErrorText  string         `json:"errorText,omitempty"`
	Data       map[string]any `json:"data,omitempty"` // plan/source fields as received
}

// IsToolCall reports whether the part describes a tool invocation.
func (p Part) IsToolCall() bool {
	return p.State != ""
}

// IntegrationSignal is a request embedded in the stream for the user to
// install, connect or configure an external service.
type IntegrationSignal struct {
	Key            string   `json:"key"`
	Name           string   `json:"name,omitempty"`
	Provider       string   `json:"provider,omitempty"`
	Status         string   `json:"status,omitempty"`
	Intent         string   `json:"intent,omitempty"`
	EnvVars        []string `json:"envVars,omitempty"`
	MarketplaceURL string   `json:"marketplaceUrl,omitempty"`
	SourceEvent    string   `json:"sourceEvent,omitempty"`
}

// Integration intents.
const (
	IntentInstall   = "install"
	IntentConnect   = "connect"
	IntentConfigure = "configure"
	IntentEnvVars   = "env_vars"
)

// Chunk holds every fact recovered from one stream chunk. Pointer fields are
// nil when the chunk did not carry that fact.
type Chunk struct {
	Event     string              `json:"event,omitempty"`
	Payload   any                 `json:"-"`
	ChatID    *string             `json:"chatId,omitempty"`
	VersionID *string             `json:"versionId,omitempty"`
	MessageID *string             `json:"messageId,omitempty"`
	DemoURL   *string             `json:"demoUrl,omitempty"`
	Thinking  *string             `json:"thinking,omitempty"`
	Content   *string             `json:"content,omitempty"`
	Parts     []Part              `json:"parts,omitempty"`
	Signals   []IntegrationSignal `json:"integrationSignals,omitempty"`
	Done      bool                `json:"done"`
}

// Empty reports whether the chunk carried no information at all.
func (c *Chunk) Empty() bool {
	return c.ChatID == nil && c.VersionID == nil && c.MessageID == nil &&
		c.DemoURL == nil && c.Thinking == nil && c.Content == nil &&
		c.Parts == nil && len(c.Signals) == 0 && !c.Done
}
