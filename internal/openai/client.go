package openai

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

const defaultBaseURL = "https://api.openai.com/v1"

// ChatMessage is the minimal message shape for the Chat Completions endpoint.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	Choices []struct {
		Index   int         `json:"index"`
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// imageRequest is the request shape for the Images endpoint.
type imageRequest struct {
	Model   string `json:"model,omitempty"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
}

// imageResponse is the minimal response shape for the Images endpoint.
type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client is a focused OpenAI client for chat completions and image
// generation. Generative calls can take a while, so the default timeout is
// generous; override it via WithHTTPClient when needed.
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
		return nil, errors.New("openai: api key is required")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Chat runs a chat completion and returns the first choice's content.
// When jsonObject is set the model is constrained to emit a JSON object.
func (c *Client) Chat(ctx context.Context, model string, messages []ChatMessage, jsonObject bool) (string, error) {
	if model == "" {
		return "", errors.New("openai: model must not be empty")
	}

	req := chatRequest{Model: model, Messages: messages}
	if jsonObject {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	raw, err := c.post(ctx, "/chat/completions", req)
	if err != nil {
		return "", err
	}

	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return payload.Choices[0].Message.Content, nil
}

// ImageOptions tunes image generation; zero values fall back to API defaults.
type ImageOptions struct {
	Model   string
	Size    string
	Quality string
	Style   string
}

// GenerateImage renders one image for the prompt and returns its URL.
func (c *Client) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (string, error) {
	if prompt == "" {
		return "", errors.New("openai: image prompt must not be empty")
	}

	raw, err := c.post(ctx, "/images/generations", imageRequest{
		Model:   opts.Model,
		Prompt:  prompt,
		N:       1,
		Size:    opts.Size,
		Quality: opts.Quality,
		Style:   opts.Style,
	})
	if err != nil {
		return "", err
	}

	var payload imageResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("openai: decode image response: %w", err)
	}
	if len(payload.Data) == 0 || payload.Data[0].URL == "" {
		return "", errors.New("openai: no image URL in response")
	}
	return payload.Data[0].URL, nil
}

func (c *Client) post(ctx context.Context, path string, in any) ([]byte, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("openai: read response body: %w", err)
	}
	return buf, nil
}
