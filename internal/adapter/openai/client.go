// Package openai implements the generation backend port against an
// OpenAI-compatible chat completions API.
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

	"github.com/lFer17/codebase-gen/internal/config"
	"github.com/lFer17/codebase-gen/internal/port/generator"
	"github.com/lFer17/codebase-gen/internal/resilience"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a new chat completions client.
func NewClient(cfg config.Backend) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls. Only
// retryable errors count against the circuit.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	b.SetFailurePredicate(generator.IsRetryable)
	c.breaker = b
}

// Generate sends one chat completion and returns the first choice's content.
func (c *Client) Generate(ctx context.Context, p generator.Prompt) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.Model,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("chat completion: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			msg := string(data)
			if len(msg) > maxErrorBody {
				msg = msg[:maxErrorBody]
			}
			return &generator.StatusError{StatusCode: resp.StatusCode, Body: msg}
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return nil, fmt.Errorf("%w: %w", generator.ErrUnavailable, err)
			}
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
