package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"video-insight/shared/config"
)

// Client calls the external vision-analysis API for single frames. Each
// Client owns its transport; call Close when the run that acquired it ends.
type Client struct {
	endpoint  string
	apiKey    string
	transport *http.Transport
	client    *http.Client
}

type analyzeRequest struct {
	APIKey string       `json:"api_key,omitempty"`
	Inputs requestInput `json:"inputs"`
}

type requestInput struct {
	Image imageInput `json:"image"`
}

type imageInput struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func NewClient(cfg *config.VisionConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}

	return &Client{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		transport: transport,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// Analyze sends one frame and returns the decoded payload. Non-2xx responses
// and undecodable bodies are errors so the caller can retry.
func (c *Client) Analyze(ctx context.Context, image []byte) (map[string]any, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image cannot be empty")
	}

	body, err := json.Marshal(analyzeRequest{
		APIKey: c.apiKey,
		Inputs: requestInput{
			Image: imageInput{
				Type:  "base64",
				Value: base64.StdEncoding.EncodeToString(image),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call vision API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("vision API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode vision response: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("vision API returned an empty payload")
	}

	return payload, nil
}

// Close drains the connection pool
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}
