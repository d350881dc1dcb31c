// Package client talks to a running interpreter service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"phobos.org.uk/sajtmaskin/internal/api"
	"phobos.org.uk/sajtmaskin/internal/session"
	"phobos.org.uk/sajtmaskin/internal/stream"
	"phobos.org.uk/sajtmaskin/internal/tlsutil"
)

// APIError is an error response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Client is an HTTP client for the interpreter service.
type Client struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPollInterval sets how often Wait polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         tlsutil.NewHTTPClient(5 * time.Minute),
		pollInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns the service status.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var status api.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, "", http.StatusOK, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Interpret interprets one raw chunk on the server.
func (c *Client) Interpret(ctx context.Context, event, data string) (*stream.Chunk, error) {
	body, err := json.Marshal(api.InterpretRequest{Event: event, Data: data})
	if err != nil {
		return nil, err
	}
	var chunk stream.Chunk
	if err := c.do(ctx, http.MethodPost, "/interpret", bytes.NewReader(body), "application/json", http.StatusOK, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// Ingest submits a captured stream. eventName is the default event name
// for frames without one.
func (c *Client) Ingest(ctx context.Context, r io.Reader, eventName string) (*api.StreamCreated, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/streams", r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/event-stream")
	if eventName != "" {
		req.Header.Set("X-Event-Name", eventName)
	}
	var created api.StreamCreated
	if err := c.send(req, http.StatusCreated, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Generate starts a generation relayed by the service.
func (c *Client) Generate(ctx context.Context, gen api.GenerateRequest) (*api.StreamCreated, error) {
	body, err := json.Marshal(gen)
	if err != nil {
		return nil, err
	}
	var created api.StreamCreated
	if err := c.do(ctx, http.MethodPost, "/streams/generate", bytes.NewReader(body), "application/json", http.StatusAccepted, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Stream returns a stream with its snapshot.
func (c *Client) Stream(ctx context.Context, id string) (*session.View, error) {
	var view session.View
	if err := c.do(ctx, http.MethodGet, "/streams/"+url.PathEscape(id), nil, "", http.StatusOK, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// List returns a page of stream summaries. Zero values use server defaults.
func (c *Client) List(ctx context.Context, page, limit int, state string) (*session.ListResult, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if state != "" {
		q.Set("state", state)
	}
	path := "/streams"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var result session.ListResult
	if err := c.do(ctx, http.MethodGet, path, nil, "", http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Cancel requests cancellation of a stream.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/streams/"+url.PathEscape(id)+"/cancel", nil, "", http.StatusOK, nil)
}

// Wait polls a stream until it ends or ctx is done.
func (c *Client) Wait(ctx context.Context, id string) (*session.View, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		view, err := c.Stream(ctx, id)
		if err != nil {
			return nil, err
		}
		if view.State.IsTerminal() {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for stream %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Watch follows the live events of a stream over a websocket and calls fn
// for each. It returns nil once the stream ended.
func (c *Client) Watch(ctx context.Context, id string, fn func(session.Event) error) error {
	wsURL := c.baseURL + "/streams/" + url.PathEscape(id) + "/events"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return decodeError(resp)
		}
		return fmt.Errorf("connecting to %s: %w", wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev session.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading events of %s: %w", id, err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.send(req, want, out)
}

func (c *Client) send(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var body api.ErrorResponse
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		apiErr.Code = body.Error
		apiErr.Message = body.Message
	}
	return apiErr
}
