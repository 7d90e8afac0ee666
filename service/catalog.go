package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DR-Danke/Kompass-sub003/config"
)

// CatalogClient talks to the external product store that confirmed imports
// are written into
type CatalogClient struct {
	config     *config.CatalogConfig
	httpClient *http.Client
}

// ProductCreateRequest is one product-creation call against the catalog
type ProductCreateRequest struct {
	SupplierID    string   `json:"supplier_id"`
	SKU           string   `json:"sku,omitempty"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	PriceFobUSD   *float64 `json:"price_fob_usd,omitempty"`
	MOQ           *int     `json:"moq,omitempty"`
	Dimensions    string   `json:"dimensions,omitempty"`
	UnitOfMeasure string   `json:"unit_of_measure,omitempty"`
	CategoryID    string   `json:"category_id,omitempty"`
	ImageURLs     []string `json:"image_urls,omitempty"`
}

// ProductCreateResponse carries the id the catalog assigned
type ProductCreateResponse struct {
	ID string `json:"id"`
}

func NewCatalogClient(cfg *config.CatalogConfig) *CatalogClient {
	return &CatalogClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateProduct posts one product record to the catalog
func (c *CatalogClient) CreateProduct(ctx context.Context, req *ProductCreateRequest) (*ProductCreateResponse, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("product name is required")
	}
	if req.SupplierID == "" {
		return nil, fmt.Errorf("supplier id is required")
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/products", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("catalog API error: status %d: %s", resp.StatusCode, string(body))
	}

	var result ProductCreateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w, body: %s", err, string(body))
	}

	return &result, nil
}
