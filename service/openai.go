package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DR-Danke/Kompass-sub003/config"
	"github.com/DR-Danke/Kompass-sub003/model"
)

// OpenAIClient calls the chat completions API, attaching images as data URLs
type OpenAIClient struct {
	cfg        *config.ProviderConfig
	maxRetries int
	httpClient *http.Client
}

// openaiContentPart is one part of a user message (text or image)
type openaiContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openaiImageURL `json:"image_url,omitempty"`
}

type openaiImageURL struct {
	URL string `json:"url"`
}

func NewOpenAIClient(cfg *config.ProviderConfig, maxRetries, timeoutSeconds int) *OpenAIClient {
	return &OpenAIClient{
		cfg:        cfg,
		maxRetries: maxRetries,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

// IsAvailable reports whether a credential is configured
func (c *OpenAIClient) IsAvailable() bool { return c.cfg.APIKey != "" }

// Extract sends the content to chat/completions and parses the product list
func (c *OpenAIClient) Extract(ctx context.Context, input ExtractInput) ([]*model.ExtractedProduct, error) {
	var parts []openaiContentPart
	if input.Text != "" {
		parts = append(parts, openaiContentPart{Type: "text", Text: input.Text})
	}
	if input.ImagePath != "" {
		dataURL, err := readAsDataURL(input.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		parts = append(parts, openaiContentPart{Type: "image_url", ImageURL: &openaiImageURL{URL: dataURL}})
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty extraction input")
	}

	schema := BuildProductListJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     0,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildExtractionPrompt(input.Instructions)},
			{"role": "user", "content": parts},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	content, err := c.chatCompletion(ctx, body)
	if err != nil {
		return nil, err
	}
	return parseProviderResponse(ctx, []byte(content))
}

// CompleteJSON sends a plain prompt in JSON mode and returns the raw response
// text for the caller to decode
func (c *OpenAIClient) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     0,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
	}
	return c.chatCompletion(ctx, body)
}

// chatCompletion performs one chat/completions call and returns the first
// choice's content
func (c *OpenAIClient) chatCompletion(ctx context.Context, body map[string]any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	resp, err := doWithRetry(ctx, c.maxRetries, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(req)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai status %d: %s", resp.StatusCode, string(raw))
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}

	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}
