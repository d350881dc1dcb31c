package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"phobos.org.uk/sajtmaskin/internal/stream"
	"phobos.org.uk/sajtmaskin/internal/streamstate"
)

var (
	// ErrNotFound is returned for unknown stream ids.
	ErrNotFound = errors.New("stream not found")

	// ErrClosed is returned when acting on a stream that already ended.
	ErrClosed = errors.New("stream already closed")

	// ErrStoreFull is returned when every retained stream is still active.
	ErrStoreFull = errors.New("too many active streams")
)

// Stream sources.
const (
	SourceIngest   = "ingest"
	SourceGenerate = "generate"
)

// Session is one observed stream.
type Session struct {
	ID        string
	Source    string
	CreatedAt time.Time

	transcript *Transcript

	mu        sync.RWMutex
	state     streamstate.State
	updatedAt time.Time
	errMsg    string
	seq       uint64
	cancel    context.CancelFunc
}

// Summary is the list view of a session.
type Summary struct {
	ID        string            `json:"stream_id"`
	Source    string            `json:"source"`
	State     streamstate.State `json:"state"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	ChatID    string            `json:"chat_id,omitempty"`
	DemoURL   string            `json:"demo_url,omitempty"`
	Chunks    int               `json:"chunks"`
	Error     string            `json:"error,omitempty"`
}

// View is a consistent read of a session: Snapshot reflects exactly the
// chunks numbered up to Seq.
type View struct {
	Summary
	Seq      uint64   `json:"seq"`
	Snapshot Snapshot `json:"snapshot"`
}

func newSession(id, source string, now time.Time) *Session {
	return &Session{
		ID:         id,
		Source:     source,
		CreatedAt:  now,
		transcript: NewTranscript(),
		state:      streamstate.Open,
		updatedAt:  now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() streamstate.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Transcript returns the session's accumulator.
func (s *Session) Transcript() *Transcript {
	return s.transcript
}

// SetCancel registers the function that stops the session's consumer. It
// reports false, registering nothing, when the session already ended.
func (s *Session) SetCancel(cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return false
	}
	s.cancel = cancel
	return true
}

// Cancel stops the stream. A session with a running consumer is marked
// cancelled by that consumer; one without is marked cancelled directly.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", s.ID, ErrClosed)
	}
	cancel := s.cancel
	if cancel == nil {
		s.state = streamstate.Cancelled
		s.updatedAt = time.Now()
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// apply folds a chunk into the transcript and returns its sequence number.
// Chunks arriving after the session ended are dropped and reported false.
func (s *Session) apply(c *stream.Chunk) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return s.seq, false
	}
	if s.state == streamstate.Open {
		s.state = streamstate.Streaming
	}
	s.transcript.Apply(c)
	s.seq++
	s.updatedAt = time.Now()
	return s.seq, true
}

// finish moves the session to a terminal state. It reports false when the
// session had already ended.
func (s *Session) finish(state streamstate.State, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !streamstate.CanTransition(s.state, state) {
		return false
	}
	s.state = state
	s.updatedAt = time.Now()
	if err != nil {
		s.errMsg = err.Error()
	}
	return true
}

// Summary returns the list view of the session.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaryLocked(s.transcript.Snapshot())
}

// View returns the session with its accumulated snapshot.
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.transcript.Snapshot()
	return View{Summary: s.summaryLocked(snap), Seq: s.seq, Snapshot: snap}
}

func (s *Session) summaryLocked(snap Snapshot) Summary {
	return Summary{
		ID:        s.ID,
		Source:    s.Source,
		State:     s.state,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.updatedAt,
		ChatID:    snap.ChatID,
		DemoURL:   snap.DemoURL,
		Chunks:    snap.Chunks,
		Error:     s.errMsg,
	}
}
