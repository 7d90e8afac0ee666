package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/DR-Danke/Kompass-sub003/model"
)

// hsCodePattern is the normalized harmonized-system code format
var hsCodePattern = regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2}$`)

// JSONCompleter is the AI surface the HS code suggester needs
type JSONCompleter interface {
	IsAvailable() bool
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

// HsCodeService suggests harmonized-system codes for product descriptions.
// Unlike the extractors it has no degraded path: without a provider the
// suggestion cannot be produced at all.
type HsCodeService struct {
	ai JSONCompleter
}

func NewHsCodeService(ai JSONCompleter) *HsCodeService {
	return &HsCodeService{ai: ai}
}

type hsCodePayload struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// Suggest asks the AI for an HS code classifying the given description
func (s *HsCodeService) Suggest(ctx context.Context, description string) (*model.HsCodeSuggestion, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("description is required")
	}
	if s.ai == nil || !s.ai.IsAvailable() {
		return nil, ErrNoProvider
	}

	prompt := fmt.Sprintf(
		"You are a customs classification assistant. Suggest the harmonized system (HS) code for the product below. "+
			"Return ONLY a JSON object with fields \"code\" (string, format XXXX.XX.XX), "+
			"\"description\" (string, the official heading text), "+
			"\"confidence\" (number between 0 and 1) and \"reasoning\" (string, one sentence). "+
			"Product: %s", description)

	raw, err := s.ai.CompleteJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("hs code suggestion: %w", err)
	}

	var payload hsCodePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse suggestion: %w", err)
	}

	code := normalizeHsCode(payload.Code)
	if !hsCodePattern.MatchString(code) {
		return nil, fmt.Errorf("provider returned malformed hs code %q", payload.Code)
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &model.HsCodeSuggestion{
		Code:            code,
		Description:     payload.Description,
		ConfidenceScore: confidence,
		Reasoning:       payload.Reasoning,
	}, nil
}

// normalizeHsCode reduces provider output like "690721", "6907.21" or
// "6907 21 00" to the XXXX.XX.XX form. Codes shorter than 8 digits are
// padded with zero subheadings; anything under 6 digits is left for the
// format check to reject.
func normalizeHsCode(code string) string {
	var digits strings.Builder
	for _, r := range code {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	d := digits.String()
	if len(d) < 6 {
		return code
	}
	for len(d) < 8 {
		d += "0"
	}
	d = d[:8]

	return d[:4] + "." + d[4:6] + "." + d[6:8]
}
