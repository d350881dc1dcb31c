package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"phobos.org.uk/sajtmaskin/internal/streamstate"
)

// DefaultMaxRetained is used when NewStore is given a non-positive limit.
const DefaultMaxRetained = 256

// Store is the in-memory registry of sessions. It retains at most max
// sessions; the oldest ended sessions are evicted to make room.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	max      int
	now      func() time.Time
}

// ListOptions controls pagination and filtering for List.
type ListOptions struct {
	Page  int               // 1-indexed page number
	Limit int               // Items per page (max 100)
	State streamstate.State // Only sessions in this state, if set
}

// ListResult contains a page of session summaries, newest first.
type ListResult struct {
	Streams    []Summary `json:"streams"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	Total      int       `json:"total"`
	TotalPages int       `json:"total_pages"`
}

// NewStore creates a store retaining at most max sessions.
func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultMaxRetained
	}
	return &Store{
		sessions: make(map[string]*Session),
		max:      max,
		now:      time.Now,
	}
}

// Create registers a new open session.
func (s *Store) Create(source string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.max && !s.evictUnlocked() {
		return nil, fmt.Errorf("retaining %d streams: %w", s.max, ErrStoreFull)
	}
	sess := newSession(uuid.New().String(), source, s.now())
	s.sessions[sess.ID] = sess
	return sess, nil
}

// Get returns the session with the given id.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("stream %s: %w", id, ErrNotFound)
	}
	return sess, nil
}

// Counts returns the number of active and retained sessions.
func (s *Store) Counts() (active, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.State().IsActive() {
			active++
		}
	}
	return active, len(s.sessions)
}

// List returns a page of session summaries, newest first.
func (s *Store) List(opts ListOptions) ListResult {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}

	s.mu.RLock()
	sorted := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if opts.State != "" && sess.State() != opts.State {
			continue
		}
		sorted = append(sorted, sess)
	}
	s.mu.RUnlock()

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	total := len(sorted)
	totalPages := (total + opts.Limit - 1) / opts.Limit

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	streams := make([]Summary, 0, end-start)
	for _, sess := range sorted[start:end] {
		streams = append(streams, sess.Summary())
	}

	return ListResult{
		Streams:    streams,
		Page:       opts.Page,
		Limit:      opts.Limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// evictUnlocked removes the ended session that was created first. It
// reports false when every session is still active.
// Must be called with lock held.
func (s *Store) evictUnlocked() bool {
	var oldest *Session
	for _, sess := range s.sessions {
		if !sess.State().IsTerminal() {
			continue
		}
		if oldest == nil || sess.CreatedAt.Before(oldest.CreatedAt) {
			oldest = sess
		}
	}
	if oldest == nil {
		return false
	}
	delete(s.sessions, oldest.ID)
	return true
}
