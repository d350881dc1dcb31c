package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phobos.org.uk/sajtmaskin/internal/api"
	"phobos.org.uk/sajtmaskin/internal/config"
	"phobos.org.uk/sajtmaskin/internal/logging"
	"phobos.org.uk/sajtmaskin/internal/server"
	"phobos.org.uk/sajtmaskin/internal/session"
	"phobos.org.uk/sajtmaskin/internal/streamstate"
	"phobos.org.uk/sajtmaskin/internal/testutil"
	"phobos.org.uk/sajtmaskin/internal/upstream"
)

// newStack starts a fake builder API and a service relaying from it.
func newStack(t *testing.T) *Client {
	t.Helper()

	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chats" || r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, testutil.GenerationStream(t))
	}))
	t.Cleanup(fake.Close)

	gen := upstream.NewClient(upstream.Config{
		BaseURL: fake.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
		Rate:    100,
		Burst:   10,
	})
	log := logging.New(logging.Config{Output: io.Discard, Component: "server"})
	srv := server.New(config.Default(), "test-version", server.WithLogger(log), server.WithGenerator(gen))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	return New(ts.URL, WithPollInterval(20*time.Millisecond))
}

func TestClient_Status(t *testing.T) {
	t.Parallel()

	c := newStack(t)
	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, api.ComponentType, status.Type)
	assert.Equal(t, "test-version", status.Version)
	assert.True(t, status.UpstreamReady)
}

func TestClient_Interpret(t *testing.T) {
	t.Parallel()

	c := newStack(t)
	chunk, err := c.Interpret(context.Background(), "message.delta", `{"delta":"Hi"}`)
	require.NoError(t, err)
	require.NotNil(t, chunk.Content)
	assert.Equal(t, "Hi", *chunk.Content)
	assert.False(t, chunk.Done)
}

func TestClient_IngestAndList(t *testing.T) {
	t.Parallel()

	c := newStack(t)
	ctx := context.Background()

	created, err := c.Ingest(ctx, strings.NewReader(testutil.GenerationStream(t)), "")
	require.NoError(t, err)
	assert.Equal(t, streamstate.Completed, created.State)
	require.NotNil(t, created.Snapshot)
	assert.Equal(t, "Hello world", created.Snapshot.Content)

	view, err := c.Stream(ctx, created.StreamID)
	require.NoError(t, err)
	assert.Equal(t, session.SourceIngest, view.Source)
	assert.Equal(t, "chat_test0001", view.ChatID)

	list, err := c.List(ctx, 1, 10, "completed")
	require.NoError(t, err)
	require.Len(t, list.Streams, 1)
	assert.Equal(t, created.StreamID, list.Streams[0].ID)
}

func TestClient_GenerateWaitWatch(t *testing.T) {
	t.Parallel()

	c := newStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	created, err := c.Generate(ctx, api.GenerateRequest{Message: "Build a landing page"})
	require.NoError(t, err)
	require.NotEmpty(t, created.StreamID)

	view, err := c.Wait(ctx, created.StreamID)
	require.NoError(t, err)
	assert.Equal(t, streamstate.Completed, view.State)
	assert.Equal(t, "https://demo.v0.dev/ver_1", view.Snapshot.DemoURL)
	require.Len(t, view.Snapshot.Signals, 1)

	var events []session.Event
	err = c.Watch(ctx, created.StreamID, func(ev session.Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, streamstate.Completed, events[0].State)
	require.NotNil(t, events[0].Snapshot)
	assert.Equal(t, "Hello world", events[0].Snapshot.Content)
}

func TestClient_Errors(t *testing.T) {
	t.Parallel()

	c := newStack(t)
	ctx := context.Background()

	err := c.Cancel(ctx, "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, api.ErrNotFound, apiErr.Code)

	_, err = c.Generate(ctx, api.GenerateRequest{})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, api.ErrValidation, apiErr.Code)

	err = c.Watch(ctx, "missing", func(session.Event) error { return nil })
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
