package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"video-insight/shared/config"
)

var (
	// ErrNoCandidates means the completion response carried no candidate
	ErrNoCandidates = errors.New("completion response has no candidates")
	// ErrNoContent means the first candidate had no content part
	ErrNoContent = errors.New("completion candidate has no content")
)

// GenerationConfig mirrors the sampling knobs of a text-completion request
type GenerationConfig struct {
	Temperature     float32
	TopK            int
	TopP            float32
	MaxOutputTokens int32
}

// Completer is the text-completion boundary shared by the summary and
// diversity calls
type Completer interface {
	Complete(ctx context.Context, prompt string, gen GenerationConfig) (string, error)
}

// GeminiCompleter sends prompts to Gemini. It owns its HTTP transport so a
// run can release connections with Close.
type GeminiCompleter struct {
	client    *genai.Client
	model     string
	transport *http.Transport
}

func NewGeminiCompleter(ctx context.Context, cfg *config.AIConfig) (*GeminiCompleter, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or ai.gemini_api_key)")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiCompleter{
		client:    client,
		model:     cfg.Model,
		transport: transport,
	}, nil
}

func (g *GeminiCompleter) Complete(ctx context.Context, prompt string, gen GenerationConfig) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(gen.Temperature),
		TopK:            genai.Ptr(float32(gen.TopK)),
		TopP:            genai.Ptr(gen.TopP),
		MaxOutputTokens: gen.MaxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate content with %s: %w", g.model, err)
	}

	return firstPartText(result)
}

// Close drains the connection pool
func (g *GeminiCompleter) Close() {
	g.transport.CloseIdleConnections()
}

func firstPartText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", ErrNoCandidates
	}

	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 || content.Parts[0] == nil {
		return "", ErrNoContent
	}

	return content.Parts[0].Text, nil
}
