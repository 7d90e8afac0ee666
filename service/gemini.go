package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/DR-Danke/Kompass-sub003/config"
	"github.com/DR-Danke/Kompass-sub003/model"
)

// GeminiClient calls the generateContent API with inline image data
type GeminiClient struct {
	cfg        *config.ProviderConfig
	maxRetries int
	httpClient *http.Client
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType string `json:"response_mime_type,omitempty"`
}

func NewGeminiClient(cfg *config.ProviderConfig, maxRetries, timeoutSeconds int) *GeminiClient {
	return &GeminiClient{
		cfg:        cfg,
		maxRetries: maxRetries,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

func (c *GeminiClient) Name() string { return "gemini" }

// IsAvailable reports whether a credential is configured
func (c *GeminiClient) IsAvailable() bool { return c.cfg.APIKey != "" }

// Extract sends the content to generateContent and parses the product list
func (c *GeminiClient) Extract(ctx context.Context, input ExtractInput) ([]*model.ExtractedProduct, error) {
	prompt := buildExtractionPrompt(input.Instructions) + "\n\nJSON Schema:\n" + mustJSON(BuildProductListJSONSchema())

	parts := []geminiPart{{Text: prompt}}
	if input.Text != "" {
		parts = append(parts, geminiPart{Text: input.Text})
	}
	if input.ImagePath != "" {
		data, err := os.ReadFile(input.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MIMEType: mimeTypeForFile(input.ImagePath),
			Data:     base64.StdEncoding.EncodeToString(data),
		}})
	}

	text, err := c.generateContent(ctx, parts)
	if err != nil {
		return nil, err
	}
	return parseProviderResponse(ctx, []byte(stripMarkdownFence(text)))
}

// CompleteJSON sends a plain prompt in JSON mode and returns the raw response
// text for the caller to decode
func (c *GeminiClient) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	text, err := c.generateContent(ctx, []geminiPart{{Text: prompt}})
	if err != nil {
		return "", err
	}
	return stripMarkdownFence(text), nil
}

// generateContent performs one generateContent call and returns the first
// candidate's text
func (c *GeminiClient) generateContent(ctx context.Context, parts []geminiPart) (string, error) {
	payload, err := json.Marshal(geminiRequest{
		Contents:         []geminiContent{{Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{ResponseMIMEType: "application/json"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model, c.cfg.APIKey)
	resp, err := doWithRetry(ctx, c.maxRetries, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
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
		return "", fmt.Errorf("gemini status %d: %s", resp.StatusCode, string(raw))
	}

	var gr struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates in gemini response")
	}

	var text string
	for _, part := range gr.Candidates[0].Content.Parts {
		if part.Text != "" {
			text = part.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("empty text in gemini response")
	}

	return text, nil
}

// stripMarkdownFence removes a ```json ... ``` wrapper some responses carry
func stripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
