// Package modelhttp provides thin HTTP clients for the model gateway that
// serves embeddings, cross-encoder rerank scores, and chat completions.
// Each call carries its own timeout; transport failures are returned as-is
// so callers can map them to stage-specific sentinels.
package modelhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a model gateway exposing /v1/embeddings, /v1/rerank, and
// /v1/chat/completions. One Client is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets a bearer token for the gateway.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithTimeout sets the per-call transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a model gateway client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("modelhttp: marshal %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("modelhttp: request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("modelhttp: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("modelhttp: %s: status %d: %s", path, resp.StatusCode, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("modelhttp: decode %s: %w", path, err)
	}
	return nil
}

// --- Embeddings ---

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embeddings returns one vector per input text, in input order.
func (c *Client) Embeddings(ctx context.Context, model string, texts []string) ([][]float32, error) {
	var resp embedResponse
	if err := c.post(ctx, "/v1/embeddings", embedRequest{Model: model, Input: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("modelhttp: embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("modelhttp: embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// --- Rerank ---

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float32 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores every (query, document) pair with the cross-encoder and
// returns scores in document order.
func (c *Client) Rerank(ctx context.Context, model, query string, documents []string) ([]float32, error) {
	var resp rerankResponse
	if err := c.post(ctx, "/v1/rerank", rerankRequest{Model: model, Query: query, Documents: documents}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(documents) {
		return nil, fmt.Errorf("modelhttp: rerank: got %d scores for %d documents", len(resp.Results), len(documents))
	}
	out := make([]float32, len(documents))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(out) {
			return nil, fmt.Errorf("modelhttp: rerank: index %d out of range", r.Index)
		}
		out[r.Index] = r.Score
	}
	return out, nil
}

// --- Chat ---

// ChatMessage is one turn in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// ChatOpts controls a completion call.
type ChatOpts struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Chat runs a chat completion and returns the assistant reply and token usage.
func (c *Client) Chat(ctx context.Context, opts ChatOpts, messages []ChatMessage) (string, int, error) {
	var resp chatResponse
	req := chatRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if err := c.post(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return "", 0, err
	}
	if len(resp.Choices) == 0 {
		return "", 0, fmt.Errorf("modelhttp: chat: empty choices")
	}
	return resp.Choices[0].Message.Content, resp.Usage.TotalTokens, nil
}
