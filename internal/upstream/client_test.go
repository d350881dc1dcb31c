package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChatStream(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chats", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: chat.created\ndata: {\"chatId\":\"chat_abcdef12\"}\n\n")
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL + "/v1/", APIKey: "secret", Timeout: 5 * time.Second})
	body, err := client.CreateChatStream(context.Background(), ChatRequest{Message: "Build a landing page", ChatID: "chat_prev001"})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "chat_abcdef12")

	assert.Equal(t, "Build a landing page", got["message"])
	assert.Equal(t, "chat_prev001", got["chatId"])
	assert.Equal(t, ResponseMode, got["responseMode"])
	assert.NotContains(t, got, "system")
}

func TestCreateChatStream_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "wrong", Timeout: 5 * time.Second})
	_, err := client.CreateChatStream(context.Background(), ChatRequest{Message: "hi"})

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "invalid api key")
	assert.Contains(t, err.Error(), "401")
}

func TestCreateChatStream_Validation(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	assert.False(t, client.Ready())
	_, err := client.CreateChatStream(context.Background(), ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	client = NewClient(Config{BaseURL: "http://127.0.0.1:1", APIKey: "k", Timeout: time.Second})
	_, err = client.CreateChatStream(context.Background(), ChatRequest{Message: "  "})
	assert.ErrorContains(t, err, "message is required")
}

func TestCreateChatStream_RateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Timeout: 5 * time.Second, Rate: 0.001, Burst: 1})

	body, err := client.CreateChatStream(context.Background(), ChatRequest{Message: "first"})
	require.NoError(t, err)
	body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = client.CreateChatStream(ctx, ChatRequest{Message: "second"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestCreateChatStream_ContextCancelled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Timeout: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	body, err := client.CreateChatStream(ctx, ChatRequest{Message: "hi"})
	require.NoError(t, err)
	defer body.Close()

	cancel()
	_, err = io.ReadAll(body)
	assert.Error(t, err)
}
