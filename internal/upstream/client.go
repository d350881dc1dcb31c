// Package upstream opens live generation streams on the builder API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"phobos.org.uk/sajtmaskin/internal/tlsutil"
)

// ResponseMode asks the API to stream the generation instead of returning
// the finished chat.
const ResponseMode = "experimental_stream"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

var (
	// ErrRateLimited is returned when the outbound request budget is
	// exhausted before the context ends.
	ErrRateLimited = errors.New("upstream rate limit exceeded")

	// ErrNoAPIKey is returned when no API key is configured.
	ErrNoAPIKey = errors.New("upstream API key not set")
)

// HTTPError is a non-2xx response from the API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Rate    float64 // requests per second
	Burst   int
}

// Client talks to the generation API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client. Requests are paced by a token bucket.
func NewClient(cfg Config) *Client {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    tlsutil.NewHTTPClient(cfg.Timeout),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ready reports whether the client has credentials.
func (c *Client) Ready() bool {
	return c.apiKey != ""
}

// ChatRequest starts or continues a chat.
type ChatRequest struct {
	Message      string `json:"message"`
	ChatID       string `json:"chatId,omitempty"`
	System       string `json:"system,omitempty"`
	ModelID      string `json:"modelId,omitempty"`
	ResponseMode string `json:"responseMode"`
}

// CreateChatStream sends a message and returns the event stream of the
// generation. The caller must close the returned body; cancelling ctx stops
// the stream.
func (c *Client) CreateChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	if !c.Ready() {
		return nil, ErrNoAPIKey
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("message is required")
	}
	req.ResponseMode = ResponseMode

	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chats", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp.Body, nil
}
