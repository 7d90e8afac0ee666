package service

import (
	"math"
	"strings"

	"github.com/DR-Danke/Kompass-sub003/model"
)

// Field weights sum to 1.0 so a fully populated record scores exactly 1.
// Identity fields (name, sku, price) carry the most weight.
const (
	weightName        = 0.20
	weightSKU         = 0.20
	weightPrice       = 0.20
	weightMOQ         = 0.10
	weightDescription = 0.10
	weightDimensions  = 0.05
	weightMaterial    = 0.05
	weightImages      = 0.10
)

// ScoreConfidence rates how complete an extracted record is. Each populated
// business field adds its weight; raw_text alone contributes nothing, so a
// text-only record scores zero.
func ScoreConfidence(p *model.ExtractedProduct) float64 {
	if p == nil {
		return 0
	}

	score := 0.0
	if strings.TrimSpace(p.Name) != "" {
		score += weightName
	}
	if strings.TrimSpace(p.SKU) != "" {
		score += weightSKU
	}
	if p.PriceFobUSD != nil {
		score += weightPrice
	}
	if p.MOQ != nil {
		score += weightMOQ
	}
	if strings.TrimSpace(p.Description) != "" {
		score += weightDescription
	}
	if strings.TrimSpace(p.Dimensions) != "" {
		score += weightDimensions
	}
	if strings.TrimSpace(p.Material) != "" {
		score += weightMaterial
	}
	if len(p.ImageURLs) > 0 {
		score += weightImages
	}

	if score > 1.0 {
		score = 1.0
	}
	return math.Round(score*100) / 100
}
