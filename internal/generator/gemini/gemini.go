// Package gemini implements generator.Generator on Google's Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/sakif/dreams-saver/internal/generator"
)

// contentGenerator is the slice of *genai.GenerativeModel we call.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client implements the generator.Generator interface using Gemini.
type Client struct {
	client *genai.Client
	model  contentGenerator
	config Config
	logger *slog.Logger
}

var _ generator.Generator = (*Client)(nil)

// New creates a Gemini client with the fixed generation settings applied.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	model.SetTopK(cfg.TopK)
	model.SetTopP(cfg.TopP)
	model.SetMaxOutputTokens(cfg.MaxOutputTokens)
	model.SafetySettings = safetySettings()

	logger.Info("gemini generator ready", slog.String("model", cfg.Model))

	return &Client{
		client: client,
		model:  model,
		config: cfg,
		logger: logger,
	}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Generate sends the prompt and returns the concatenated text of the first
// candidate. It does not retry.
func (c *Client) Generate(ctx context.Context, prompt string) (*generator.Result, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini: generating content: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return nil, generator.ErrEmptyResponse
	}

	c.logger.Debug("gemini generation finished",
		slog.Duration("duration", time.Since(start)),
		slog.Int("chars", len(text)),
	)

	return &generator.Result{Text: text, ModelVersion: c.config.Model}, nil
}

// extractText joins the text parts of the first candidate. Blocked or empty
// responses yield "".
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}
