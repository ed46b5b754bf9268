package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ChatClient calls an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type ChatConfig struct {
	BaseURL        string // default: https://api.openai.com/v1
	APIKey         string
	Model          string
	ConnectTimeout time.Duration // default: 5s
	OverallTimeout time.Duration // default: 60s
}

func NewChatClient(cfg ChatConfig) *ChatClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = 60 * time.Second
	}
	return &ChatClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  newHTTPClient(cfg.ConnectTimeout, cfg.OverallTimeout),
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// Complete sends the assembled message list and returns the first candidate
// reply. There are three outcomes: a reply, a *ProviderError carrying the
// upstream error message, or ErrMalformedResponse for bodies that parse as
// neither.
func (c *ChatClient) Complete(ctx context.Context, messages []Message) (string, error) {
	payload, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Choices) > 0 {
		return parsed.Choices[0].Message.Content, nil
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != nil && envelope.Error.Message != "" {
			return "", &ProviderError{Message: envelope.Error.Message}
		}
		if envelope.Message != "" {
			return "", &ProviderError{Message: envelope.Message}
		}
	}

	return "", fmt.Errorf("%w: status %d", ErrMalformedResponse, res.StatusCode)
}
