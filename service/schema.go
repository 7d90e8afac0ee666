package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/DR-Danke/Kompass-sub003/model"
	"github.com/DR-Danke/Kompass-sub003/pkg/logger"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildProductListJSONSchema returns a JSON-Schema (draft 2020-12 subset) as
// a generic map. It is passed to the provider as an output constraint and
// used locally to validate the response.
func BuildProductListJSONSchema() map[string]any {
	product := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"sku":                map[string]any{"type": "string"},
			"name":               map[string]any{"type": "string"},
			"description":        map[string]any{"type": "string"},
			"price_fob_usd":      map[string]any{"type": "number", "minimum": 0},
			"moq":                map[string]any{"type": "integer", "minimum": 0},
			"dimensions":         map[string]any{"type": "string"},
			"material":           map[string]any{"type": "string"},
			"suggested_category": map[string]any{"type": "string"},
			"unit_of_measure":    map[string]any{"type": "string"},
		},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"products": map[string]any{
				"type":  "array",
				"items": product,
			},
		},
		"required": []string{"products"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

var knownProductFields = map[string]bool{
	"sku":                true,
	"name":               true,
	"description":        true,
	"price_fob_usd":      true,
	"moq":                true,
	"dimensions":         true,
	"material":           true,
	"suggested_category": true,
	"unit_of_measure":    true,
}

// SanitizeProductList normalizes a provider response that fails strict
// validation: string numbers are coerced, nulls and unknown fields dropped.
// Returns the cleaned JSON plus a list of adjustments made.
func SanitizeProductList(raw []byte) ([]byte, []string, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("unmarshal response: %w", err)
	}

	items, _ := doc["products"].([]any)
	var adjustments []string

	cleaned := make([]any, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			adjustments = append(adjustments, fmt.Sprintf("products[%d]: dropped non-object entry", i))
			continue
		}

		out := make(map[string]any, len(obj))
		for k, v := range obj {
			if !knownProductFields[k] {
				adjustments = append(adjustments, fmt.Sprintf("products[%d].%s: dropped unknown field", i, k))
				continue
			}
			if v == nil {
				adjustments = append(adjustments, fmt.Sprintf("products[%d].%s: dropped null", i, k))
				continue
			}
			switch k {
			case "price_fob_usd":
				f, ok := toFloat(v)
				if !ok {
					adjustments = append(adjustments, fmt.Sprintf("products[%d].%s: dropped unparseable number %v", i, k, v))
					continue
				}
				out[k] = f
			case "moq":
				n, ok := toInt(v)
				if !ok {
					adjustments = append(adjustments, fmt.Sprintf("products[%d].%s: dropped unparseable integer %v", i, k, v))
					continue
				}
				out[k] = n
			default:
				s, ok := v.(string)
				if !ok {
					s = fmt.Sprintf("%v", v)
					adjustments = append(adjustments, fmt.Sprintf("products[%d].%s: coerced to string", i, k))
				}
				if strings.TrimSpace(s) == "" {
					adjustments = append(adjustments, fmt.Sprintf("products[%d].%s: dropped empty string", i, k))
					continue
				}
				out[k] = s
			}
		}
		cleaned = append(cleaned, out)
	}

	b, err := json.Marshal(map[string]any{"products": cleaned})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal cleaned response: %w", err)
	}
	return b, adjustments, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		s = strings.TrimPrefix(s, "$")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

type productListPayload struct {
	Products []productPayload `json:"products"`
}

type productPayload struct {
	SKU               string   `json:"sku"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	PriceFobUSD       *float64 `json:"price_fob_usd"`
	MOQ               *int     `json:"moq"`
	Dimensions        string   `json:"dimensions"`
	Material          string   `json:"material"`
	SuggestedCategory string   `json:"suggested_category"`
	UnitOfMeasure     string   `json:"unit_of_measure"`
}

// DecodeProductList parses a validated provider response into records
func DecodeProductList(data []byte) ([]*model.ExtractedProduct, error) {
	var payload productListPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal products: %w", err)
	}

	products := make([]*model.ExtractedProduct, 0, len(payload.Products))
	for _, p := range payload.Products {
		products = append(products, &model.ExtractedProduct{
			SKU:               p.SKU,
			Name:              p.Name,
			Description:       p.Description,
			PriceFobUSD:       p.PriceFobUSD,
			MOQ:               p.MOQ,
			Dimensions:        p.Dimensions,
			Material:          p.Material,
			SuggestedCategory: p.SuggestedCategory,
			UnitOfMeasure:     p.UnitOfMeasure,
		})
	}
	return products, nil
}

// parseProviderResponse validates the raw JSON content strictly, falls back
// to the lenient sanitize pass, then decodes the product list
func parseProviderResponse(ctx context.Context, content []byte) ([]*model.ExtractedProduct, error) {
	schema := BuildProductListJSONSchema()

	if err := ValidateJSONAgainstSchema(schema, content); err != nil {
		cleaned, adjustments, sErr := SanitizeProductList(content)
		if sErr != nil {
			return nil, fmt.Errorf("schema validation failed: %w", err)
		}
		if vErr := ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			return nil, fmt.Errorf("schema validation failed: %w", vErr)
		}
		logger.Warn(ctx, "lenient sanitize applied to provider response", "adjustments", len(adjustments))
		content = cleaned
	}

	return DecodeProductList(content)
}
