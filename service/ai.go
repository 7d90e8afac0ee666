package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DR-Danke/Kompass-sub003/config"
	"github.com/DR-Danke/Kompass-sub003/model"
	"github.com/DR-Danke/Kompass-sub003/pkg/logger"
)

// ErrNoProvider is returned when no AI provider has a usable credential
var ErrNoProvider = errors.New("no AI provider available")

// ExtractInput is the content handed to a provider for structured extraction
type ExtractInput struct {
	Instructions string // task-specific guidance appended to the base prompt
	Text         string // serialized rows or page text
	ImagePath    string // optional image attached to the request
}

// AIClient is one vision-capable provider
type AIClient interface {
	Name() string
	IsAvailable() bool
	Extract(ctx context.Context, input ExtractInput) ([]*model.ExtractedProduct, error)
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

// ProviderSelector prefers the configured provider and falls back to the
// other one. It never reports empty success: with no usable provider it
// returns ErrNoProvider so callers take their own degraded path.
type ProviderSelector struct {
	providers []AIClient
}

// NewProviderSelector builds both provider clients and orders them by the
// configured preference
func NewProviderSelector(cfg *config.AIConfig) *ProviderSelector {
	openai := NewOpenAIClient(&cfg.OpenAI, cfg.MaxRetries, cfg.TimeoutSeconds)
	gemini := NewGeminiClient(&cfg.Gemini, cfg.MaxRetries, cfg.TimeoutSeconds)

	providers := []AIClient{openai, gemini}
	if cfg.Provider == "gemini" {
		providers = []AIClient{gemini, openai}
	}
	return &ProviderSelector{providers: providers}
}

// IsAvailable reports whether at least one provider has a credential
func (s *ProviderSelector) IsAvailable() bool {
	for _, p := range s.providers {
		if p.IsAvailable() {
			return true
		}
	}
	return false
}

// Extract delegates to the first available provider and scores each record
func (s *ProviderSelector) Extract(ctx context.Context, input ExtractInput) ([]*model.ExtractedProduct, error) {
	for _, p := range s.providers {
		if !p.IsAvailable() {
			continue
		}
		products, err := p.Extract(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("%s extraction: %w", p.Name(), err)
		}
		for _, prod := range products {
			prod.ConfidenceScore = ScoreConfidence(prod)
		}
		logger.Debug(ctx, "ai extraction done", "provider", p.Name(), "products", len(products))
		return products, nil
	}
	return nil, ErrNoProvider
}

// CompleteJSON delegates a plain JSON-mode prompt to the first available
// provider
func (s *ProviderSelector) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	for _, p := range s.providers {
		if !p.IsAvailable() {
			continue
		}
		text, err := p.CompleteJSON(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("%s completion: %w", p.Name(), err)
		}
		return text, nil
	}
	return "", ErrNoProvider
}

// buildExtractionPrompt composes the base prompt for product extraction
func buildExtractionPrompt(instructions string) string {
	parts := []string{
		"You are a product catalog extraction assistant.",
		"Return ONLY JSON matching the provided schema, with a top-level \"products\" array.",
		"Extract every distinct product you can identify.",
		"price_fob_usd is the FOB unit price in USD as a plain number, no currency symbols.",
		"moq is the minimum order quantity as an integer.",
		"Never output null. If a field is not present, omit it.",
	}
	if instructions != "" {
		parts = append(parts, instructions)
	}
	return strings.Join(parts, " ")
}

// Retry policy shared by both provider clients
var (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// shouldRetry reports whether an HTTP status is worth retrying
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// calculateBackoff calculates exponential backoff duration
func calculateBackoff(attempt int) time.Duration {
	backoff := float64(initialBackoff) * math.Pow(2, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}

// doWithRetry wraps an HTTP call with retries on 429/5xx. Non-retryable
// statuses are returned to the caller so it can read the error body.
func doWithRetry(ctx context.Context, maxRetries int, reqFunc func() (*http.Response, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := reqFunc()
		if err == nil && resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			if !shouldRetry(resp.StatusCode) {
				return resp, nil
			}
			if resp.Body != nil {
				resp.Body.Close()
			}
		}

		if attempt == maxRetries {
			break
		}

		backoff := calculateBackoff(attempt)
		logger.Warn(ctx, "ai request failed, retrying",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"backoff", backoff.String(),
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}

// mimeTypeForFile guesses the MIME type from the file extension
func mimeTypeForFile(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// readAsDataURL reads a file and encodes it as a base64 data URL
func readAsDataURL(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return "data:" + mimeTypeForFile(path) + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
