// Package httpclassifier implements modguard.ClassifierAdapter against any
// vendor exposing an OpenAI-compatible moderations + chat-completions API.
// Grounded in the teacher's provider/openaicompat HTTP plumbing
// (sendHTTP/httpErr shape), generalized from chat completion to the three
// classifier operations modguard needs.
package httpclassifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/modguard/modguard"
)

// Client implements modguard.ClassifierAdapter over HTTP.
type Client struct {
	apiKey         string
	moderationModel string
	chatModel      string
	baseURL        string
	httpClient     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default *http.Client (e.g. for a custom
// timeout or transport).
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithModerationModel sets the model name sent to the /moderations endpoint.
func WithModerationModel(model string) Option {
	return func(c *Client) { c.moderationModel = model }
}

// WithChatModel sets the model name sent to the /chat/completions endpoint.
func WithChatModel(model string) Option { return func(c *Client) { c.chatModel = model } }

// New creates a Client. baseURL is the API base (e.g.
// "https://api.openai.com/v1"); /moderations and /chat/completions are
// appended automatically.
func New(apiKey, baseURL string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ modguard.ClassifierAdapter = (*Client)(nil)

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &modguard.AdapterError{Operation: path, Body: fmt.Sprintf("marshal request: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &modguard.AdapterError{Operation: path, Body: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.httpClient.Do(req)
}

// httpErr reads the response body and wraps it as an AdapterError carrying
// the status and any Retry-After, for the retry middleware to inspect.
func httpErr(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &modguard.AdapterError{
		Operation:  operation,
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter accepts the delay-seconds form of Retry-After; the
// HTTP-date form is rare from classifier vendors and falls back to zero.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
