package llm

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

	"murmur/internal/config"
	"murmur/internal/services"
)

const userAgent = "Murmur-Go/0.1.0"

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewClient builds a client from the LLM config section.
func NewClient(cfg config.LLM) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends a system and user prompt and returns the model's reply.
// Errors are classified with the services sentinels so callers can decide
// retry eligibility.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "llm", "generate", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "llm", "generate", "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		marker := services.ErrNetwork
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			marker = services.ErrTimeout
		}
		return "", services.Wrap(marker, "llm", "generate", "completion request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", services.Wrap(services.ErrNetwork, "llm", "generate", "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(string(payload))
		var decoded chatResponse
		if json.Unmarshal(payload, &decoded) == nil && decoded.Error != nil {
			message = decoded.Error.Message
		}
		marker := classifyStatus(resp.StatusCode)
		return "", services.Wrap(marker, "llm", "generate",
			fmt.Sprintf("endpoint returned %d: %s", resp.StatusCode, message), nil)
	}

	var decoded chatResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", services.Wrap(services.ErrValidation, "llm", "generate", "decode response", err)
	}
	if len(decoded.Choices) == 0 {
		return "", services.Wrap(services.ErrValidation, "llm", "generate", "response carried no choices", nil)
	}
	return decoded.Choices[0].Message.Content, nil
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return services.ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return services.ErrTimeout
	case status >= 500:
		return services.ErrTransient
	default:
		return services.ErrValidation
	}
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
