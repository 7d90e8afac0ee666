package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParsePageTextLowInformation(t *testing.T) {
	products, reason := parsePageText(1, "  page 3  ")
	if products != nil {
		t.Errorf("Expected no products, got %d", len(products))
	}
	if !strings.Contains(reason, "low information") {
		t.Errorf("Expected low information reason, got %q", reason)
	}
}

func TestParsePageTextNoProductSignal(t *testing.T) {
	text := `Welcome to our company.
We have been manufacturing quality goods since the last century and
ship to customers all over the world from our headquarters.`

	products, reason := parsePageText(1, text)
	if products != nil {
		t.Errorf("Expected no products, got %d", len(products))
	}
	if !strings.Contains(reason, "no product-like text") {
		t.Errorf("Expected no-product reason, got %q", reason)
	}
}

func TestParsePageTextProductBlocks(t *testing.T) {
	text := `Ceramic Floor Tile
Model CT-100, glazed finish
FOB price USD 4.50 per square meter

Porcelain Wall Tile
Model CT-200
$6.80 each, minimum order 500`

	products, reason := parsePageText(3, text)
	if reason != "" {
		t.Fatalf("Expected products, got skip reason %q", reason)
	}
	if len(products) != 2 {
		t.Fatalf("Expected 2 products, got %d", len(products))
	}

	first := products[0]
	if first.SourcePage != 3 {
		t.Errorf("Expected source page 3, got %d", first.SourcePage)
	}
	if first.RawText == "" {
		t.Error("Expected raw_text populated")
	}
	if first.SKU != "CT-100" {
		t.Errorf("Expected SKU CT-100, got %q", first.SKU)
	}
	if first.Name != "Ceramic Floor Tile" {
		t.Errorf("Expected name from leading line, got %q", first.Name)
	}
	if first.PriceFobUSD == nil || *first.PriceFobUSD != 4.5 {
		t.Errorf("Expected price 4.5, got %v", first.PriceFobUSD)
	}
	if first.ConfidenceScore <= 0 {
		t.Errorf("Expected positive confidence, got %f", first.ConfidenceScore)
	}

	second := products[1]
	if second.PriceFobUSD == nil || *second.PriceFobUSD != 6.8 {
		t.Errorf("Expected price 6.8, got %v", second.PriceFobUSD)
	}
}

func TestBlockToProductRawTextOnly(t *testing.T) {
	// A block matched by the SKU pattern but carrying nothing else useful
	p := blockToProduct(2, "REF-2041")

	if p.SourcePage != 2 {
		t.Errorf("Expected source page 2, got %d", p.SourcePage)
	}
	if p.SKU != "REF-2041" {
		t.Errorf("Expected SKU REF-2041, got %q", p.SKU)
	}
	if p.PriceFobUSD != nil {
		t.Errorf("Expected nil price, got %v", p.PriceFobUSD)
	}
}

func TestPDFExtractMissingFile(t *testing.T) {
	extractor := NewPDFExtractor(testExtractionConfig())

	if _, _, err := extractor.Extract(context.Background(), "/nonexistent/file.pdf"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestPDFExtractSizeCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.pdf")
	if err := os.WriteFile(path, bytes.Repeat([]byte("a"), 1536*1024), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	cfg := testExtractionConfig()
	cfg.MaxPDFSizeMB = 1
	extractor := NewPDFExtractor(cfg)

	_, _, err := extractor.Extract(context.Background(), path)
	if err == nil {
		t.Fatal("Expected size limit error")
	}
	if !strings.Contains(err.Error(), "size limit") {
		t.Errorf("Expected size limit in error, got %v", err)
	}
}

func TestPDFExtractInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("not a real document"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	extractor := NewPDFExtractor(testExtractionConfig())

	if _, _, err := extractor.Extract(context.Background(), path); err == nil {
		t.Error("Expected error for invalid document")
	}
}
