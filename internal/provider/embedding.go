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

// EmbeddingClient calls an OpenAI-compatible embeddings endpoint and returns
// a single fixed-length vector per input text.
type EmbeddingClient struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
}

type EmbeddingConfig struct {
	BaseURL        string // default: https://api.openai.com/v1
	APIKey         string
	Model          string // default: text-embedding-3-small
	Dimensions     int    // default: 1536
	ConnectTimeout time.Duration
	OverallTimeout time.Duration
}

func NewEmbeddingClient(cfg EmbeddingConfig) *EmbeddingClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1536
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = 60 * time.Second
	}
	return &EmbeddingClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     newHTTPClient(cfg.ConnectTimeout, cfg.OverallTimeout),
	}
}

func (c *EmbeddingClient) Dimensions() int {
	return c.dimensions
}

func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]any{
		"model": c.model,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embedding request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		var envelope errorEnvelope
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
			return nil, &ProviderError{Message: envelope.Error.Message}
		}
		return nil, fmt.Errorf("%w: status %d", ErrMalformedResponse, res.StatusCode)
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding data", ErrMalformedResponse)
	}

	return parsed.Data[0].Embedding, nil
}
