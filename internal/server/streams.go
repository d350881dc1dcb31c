package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"phobos.org.uk/sajtmaskin/internal/api"
	"phobos.org.uk/sajtmaskin/internal/session"
	"phobos.org.uk/sajtmaskin/internal/stream"
	"phobos.org.uk/sajtmaskin/internal/streamstate"
	"phobos.org.uk/sajtmaskin/internal/upstream"
)

// EventNameHeader carries the default event name for frames of a submitted
// stream that have none.
const EventNameHeader = "X-Event-Name"

var errShuttingDown = errors.New("server is shutting down")

// handleInterpret interprets a single raw chunk.
func (s *Server) handleInterpret(w http.ResponseWriter, r *http.Request) {
	var req api.InterpretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrValidation, "Invalid JSON: "+err.Error())
		return
	}
	if req.Event == "" && req.Data == "" {
		api.WriteError(w, http.StatusBadRequest, api.ErrValidation, "event or data is required")
		return
	}
	api.WriteJSON(w, http.StatusOK, stream.Interpret(req.Event, req.Data))
}

// handleIngest consumes a captured stream from the request body and
// returns the resulting snapshot. Returns 201 even when the stream fails
// part way; the state and error fields report that.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.createSession(w, session.SourceIngest)
	if !ok {
		return
	}

	eventName := strings.TrimSpace(r.Header.Get(EventNameHeader))
	s.log.WithStream(sess.ID).Info("stream submitted", map[string]any{
		"event_name": eventName,
	})
	s.consumer.Consume(r.Context(), sess, r.Body, eventName)

	view := sess.View()
	api.WriteJSON(w, http.StatusCreated, api.StreamCreated{
		StreamID: sess.ID,
		State:    view.State,
		Snapshot: &view.Snapshot,
		Error:    view.Error,
	})
}

// handleGenerate starts a generation on the upstream API and relays its
// stream in the background. Returns 202 with the stream id.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrValidation, "Invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		api.WriteError(w, http.StatusBadRequest, api.ErrValidation, "message is required")
		return
	}
	if !s.upstream.Ready() {
		api.WriteError(w, http.StatusServiceUnavailable, api.ErrUpstream, upstream.ErrNoAPIKey.Error())
		return
	}

	sess, ok := s.createSession(w, session.SourceGenerate)
	if !ok {
		return
	}

	chat := upstream.ChatRequest{
		Message: req.Message,
		ChatID:  req.ChatID,
		System:  req.System,
		ModelID: req.ModelID,
	}
	open := func(ctx context.Context) (io.ReadCloser, error) {
		return s.upstream.CreateChatStream(ctx, chat)
	}
	if err := s.startRelay(sess, open); err != nil {
		sess.Cancel()
		api.WriteError(w, http.StatusServiceUnavailable, api.ErrInternal, err.Error())
		return
	}

	s.log.WithStream(sess.ID).Info("generation started", map[string]any{
		"chat_id": req.ChatID,
	})
	api.WriteJSON(w, http.StatusAccepted, api.StreamCreated{
		StreamID: sess.ID,
		State:    sess.State(),
	})
}

// startRelay runs a relay for sess until it ends or the server shuts down.
func (s *Server) startRelay(sess *session.Session, open session.Opener) error {
	s.serverMu.Lock()
	defer s.serverMu.Unlock()
	select {
	case <-s.shutdown:
		return errShuttingDown
	default:
	}

	s.relays.Add(1)
	go func() {
		defer s.relays.Done()
		s.consumer.Relay(s.relayCtx, sess, open, "")
	}()
	return nil
}

func (s *Server) createSession(w http.ResponseWriter, source string) (*session.Session, bool) {
	sess, err := s.store.Create(source)
	if err != nil {
		if errors.Is(err, session.ErrStoreFull) {
			api.WriteError(w, http.StatusConflict, api.ErrConflict, "Too many active streams")
			return nil, false
		}
		api.WriteError(w, http.StatusInternalServerError, api.ErrInternal, err.Error())
		return nil, false
	}
	return sess, true
}

// handleListStreams returns a page of stream summaries, newest first.
// Query params: page (default 1), limit (default 20, max 100), state.
func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := api.ParseIntParam(query.Get("page"), 1, 10000, 1)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrValidation, "page "+err.Error())
		return
	}
	limit, err := api.ParseIntParam(query.Get("limit"), 1, 100, 20)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrValidation, "limit "+err.Error())
		return
	}

	opts := session.ListOptions{Page: page, Limit: limit}
	if v := query.Get("state"); v != "" {
		state, ok := streamstate.Parse(v)
		if !ok {
			api.WriteError(w, http.StatusBadRequest, api.ErrValidation, fmt.Sprintf("unknown state %q", v))
			return
		}
		opts.State = state
	}

	api.WriteJSON(w, http.StatusOK, s.store.List(opts))
}

// handleGetStream returns a stream with its accumulated snapshot.
// Returns 404 if not found.
func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, sess.View())
}

// handleCancelStream cancels a running stream.
// Returns 404 if not found, 409 if it already ended.
func (s *Server) handleCancelStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if err := sess.Cancel(); err != nil {
		api.WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"error":       api.ErrConflict,
			"message":     fmt.Sprintf("Stream %s has already ended", sess.ID),
			"final_state": sess.State(),
		})
		return
	}

	s.log.WithStream(sess.ID).Info("stream cancellation requested")
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"stream_id": sess.ID,
		"message":   "Stream cancellation initiated",
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.Get(id)
	if err != nil {
		api.WriteError(w, http.StatusNotFound, api.ErrNotFound, fmt.Sprintf("Stream %s not found", id))
		return nil, false
	}
	return sess, true
}
