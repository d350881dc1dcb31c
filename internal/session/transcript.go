// Package session tracks observed generation streams: it accumulates the
// facts interpreted from each chunk, keeps a bounded registry of streams and
// fans live events out to subscribers.
package session

import (
	"strings"
	"sync"

	"phobos.org.uk/sajtmaskin/internal/stream"
)

// Snapshot is the accumulated state of one stream at a point in time. It
// shares no memory with the transcript it was taken from.
type Snapshot struct {
	ChatID     string                     `json:"chatId,omitempty"`
	VersionID  string                     `json:"versionId,omitempty"`
	MessageID  string                     `json:"messageId,omitempty"`
	DemoURL    string                     `json:"demoUrl,omitempty"`
	Thinking   string                     `json:"thinking,omitempty"`
	Content    string                     `json:"content"`
	Parts      []stream.Part              `json:"parts"`
	Signals    []stream.IntegrationSignal `json:"integrationSignals"`
	Chunks     int                        `json:"chunks"`
	NoopChunks int                        `json:"noopChunks"`
	Done       bool                       `json:"done"`
}

// Transcript accumulates interpreted chunks of one stream.
//
// The first chat id seen is kept; later version ids, message ids, demo URLs
// and thinking text replace earlier ones. Content deltas are appended in
// arrival order. Parts sharing a toolCallId are merged into one entry whose
// state only moves forward, except that a terminal state always replaces the
// current one. Integration signals are kept once per key.
type Transcript struct {
	mu sync.Mutex

	chatID    string
	versionID string
	messageID string
	demoURL   string
	thinking  string
	content   strings.Builder

	parts      []stream.Part
	partByID   map[string]int
	signals    []stream.IntegrationSignal
	signalKeys map[string]bool

	chunks int
	noops  int
	done   bool
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{
		partByID:   make(map[string]int),
		signalKeys: make(map[string]bool),
	}
}

// Apply folds one chunk into the transcript. It reports whether the chunk
// carried anything.
func (t *Transcript) Apply(c *stream.Chunk) bool {
	if c == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.chunks++
	if c.Empty() {
		t.noops++
		return false
	}

	if c.ChatID != nil && t.chatID == "" {
		t.chatID = *c.ChatID
	}
	if c.VersionID != nil {
		t.versionID = *c.VersionID
	}
	if c.MessageID != nil {
		t.messageID = *c.MessageID
	}
	if c.DemoURL != nil {
		t.demoURL = *c.DemoURL
	}
	if c.Thinking != nil {
		t.thinking = *c.Thinking
	}
	if c.Content != nil {
		t.content.WriteString(*c.Content)
	}
	for _, p := range c.Parts {
		t.addPart(p)
	}
	for _, sig := range c.Signals {
		if t.signalKeys[sig.Key] {
			continue
		}
		t.signalKeys[sig.Key] = true
		t.signals = append(t.signals, sig)
	}
	if c.Done {
		t.done = true
	}
	return true
}

func (t *Transcript) addPart(p stream.Part) {
	if p.ToolCallID == "" {
		t.parts = append(t.parts, p)
		return
	}
	i, ok := t.partByID[p.ToolCallID]
	if !ok {
		t.partByID[p.ToolCallID] = len(t.parts)
		t.parts = append(t.parts, p)
		return
	}
	t.parts[i] = mergePart(t.parts[i], p)
}

// mergePart overlays the non-empty fields of next onto cur. A generic tool
// type never replaces a named one.
func mergePart(cur, next stream.Part) stream.Part {
	if next.Type != "" && (next.Type != stream.GenericToolType || cur.Type == "") {
		cur.Type = next.Type
	}
	if next.ToolName != "" {
		cur.ToolName = next.ToolName
	}
	if next.Input != nil {
		cur.Input = next.Input
	}
	if next.Output != nil {
		cur.Output = next.Output
	}
	if next.Approval != nil {
		cur.Approval = next.Approval
	}
	if next.ErrorText != "" {
		cur.ErrorText = next.ErrorText
	}
	if next.Data != nil {
		cur.Data = next.Data
	}
	if next.State.IsTerminal() || next.State.Rank() > cur.State.Rank() {
		cur.State = next.State
	}
	return cur
}

// Done reports whether a done-like chunk has been applied.
func (t *Transcript) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Snapshot returns a deep copy of the accumulated state.
func (t *Transcript) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		ChatID:     t.chatID,
		VersionID:  t.versionID,
		MessageID:  t.messageID,
		DemoURL:    t.demoURL,
		Thinking:   t.thinking,
		Content:    t.content.String(),
		Parts:      make([]stream.Part, 0, len(t.parts)),
		Signals:    make([]stream.IntegrationSignal, 0, len(t.signals)),
		Chunks:     t.chunks,
		NoopChunks: t.noops,
		Done:       t.done,
	}
	for _, p := range t.parts {
		snap.Parts = append(snap.Parts, clonePart(p))
	}
	for _, sig := range t.signals {
		sig.EnvVars = append([]string(nil), sig.EnvVars...)
		snap.Signals = append(snap.Signals, sig)
	}
	return snap
}
