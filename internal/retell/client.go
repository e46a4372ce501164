package retell

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
)

const defaultBaseURL = "https://api.retellai.com"

// ErrNoCallID is returned when the platform accepted a call request but the
// response carries no call identifier. Callers must treat this as a hard
// dispatch failure.
var ErrNoCallID = errors.New("retell: response missing call id")

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("retell: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client is a focused Retell API client covering the two call-creation
// endpoints this service uses. Webhook delivery is handled separately by
// WebhookHandler.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if v := strings.TrimSpace(baseURL); v != "" {
			c.baseURL = strings.TrimRight(v, "/")
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("retell: api key is required")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WebCallRequest starts a browser-based call with the given agent.
type WebCallRequest struct {
	AgentID          string            `json:"agent_id"`
	DynamicVariables map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

type WebCallResponse struct {
	AccessToken string `json:"access_token"`
	CallID      string `json:"call_id"`
}

// PhoneCallRequest places an outbound phone call.
type PhoneCallRequest struct {
	FromNumber       string            `json:"from_number"`
	ToNumber         string            `json:"to_number"`
	OverrideAgentID  string            `json:"override_agent_id,omitempty"`
	DynamicVariables map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

type PhoneCallResponse struct {
	CallID string `json:"call_id"`
}

func (c *Client) CreateWebCall(ctx context.Context, req WebCallRequest) (WebCallResponse, error) {
	var out WebCallResponse
	if err := c.post(ctx, "/v2/create-web-call", req, &out); err != nil {
		return WebCallResponse{}, err
	}
	if out.AccessToken == "" || out.CallID == "" {
		return WebCallResponse{}, ErrNoCallID
	}
	return out, nil
}

func (c *Client) CreatePhoneCall(ctx context.Context, req PhoneCallRequest) (PhoneCallResponse, error) {
	var out PhoneCallResponse
	if err := c.post(ctx, "/v2/create-phone-call", req, &out); err != nil {
		return PhoneCallResponse{}, err
	}
	if out.CallID == "" {
		return PhoneCallResponse{}, ErrNoCallID
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("retell: marshal request: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("retell: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("retell: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("retell: read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("retell: decode response: %w", err)
	}
	return nil
}
