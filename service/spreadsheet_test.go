package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DR-Danke/Kompass-sub003/config"
	"github.com/DR-Danke/Kompass-sub003/model"
	"github.com/xuri/excelize/v2"
)

type stubAI struct {
	available bool
	called    bool
	gotInput  ExtractInput
	products  []*model.ExtractedProduct
	err       error
}

func (s *stubAI) IsAvailable() bool { return s.available }

func (s *stubAI) Extract(ctx context.Context, input ExtractInput) ([]*model.ExtractedProduct, error) {
	s.called = true
	s.gotInput = input
	return s.products, s.err
}

func testExtractionConfig() *config.ExtractionConfig {
	return &config.ExtractionConfig{
		MaxFileSizeMB:      20,
		MaxPDFSizeMB:       50,
		AllowedExtensions:  []string{".pdf", ".xlsx", ".xls", ".docx", ".png", ".jpg", ".jpeg"},
		HeaderScanRows:     10,
		FallbackSampleRows: 50,
		FallbackMinColumns: 2,
	}
}

func writeTestWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetList()[0]
	for i, row := range rows {
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("Failed to build cell name: %v", err)
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				t.Fatalf("Failed to set cell value: %v", err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("Failed to save workbook: %v", err)
	}
	return path
}

func TestDetectHeaderRowFirstRow(t *testing.T) {
	rows := [][]string{
		{"SKU", "Product Name", "Price", "MOQ"},
		{"A-1", "Tile", "4.50", "500"},
	}

	d := detectHeaderRow(rows, 10)
	if d.rowIndex != 0 {
		t.Errorf("Expected header row 0, got %d", d.rowIndex)
	}
	if d.score != 4 {
		t.Errorf("Expected 4 matched categories, got %d", d.score)
	}
}

func TestDetectHeaderRowSkipsMetadata(t *testing.T) {
	rows := [][]string{
		{"ACME Trading Co."},
		{"Catalog 2026"},
		{"Contact: sales@acme.example"},
		{""},
		{"Tel: 555-0100"},
		{"All prices FOB Shanghai"},
		{""},
		{"SKU", "Description", "Price", "MOQ"},
		{"A-1", "Glazed tile", "4.50", "500"},
	}

	d := detectHeaderRow(rows, 10)
	if d.rowIndex != 7 {
		t.Errorf("Expected header row 7, got %d", d.rowIndex)
	}
	if d.score < 2 {
		t.Errorf("Expected at least 2 matched categories, got %d", d.score)
	}
}

func TestDetectHeaderRowTieBreak(t *testing.T) {
	// Both rows match exactly two categories; the earlier one must win
	rows := [][]string{
		{"SKU", "Price"},
		{"Model", "Unit Price"},
	}

	d := detectHeaderRow(rows, 10)
	if d.rowIndex != 0 {
		t.Errorf("Expected earliest row on tie, got %d", d.rowIndex)
	}
}

func TestDetectHeaderRowNoMatch(t *testing.T) {
	rows := [][]string{
		{"alpha", "beta"},
		{"1", "2"},
	}

	d := detectHeaderRow(rows, 10)
	if d.rowIndex != -1 {
		t.Errorf("Expected -1 for no match, got %d", d.rowIndex)
	}
	if d.score != 0 {
		t.Errorf("Expected score 0, got %d", d.score)
	}
}

func TestDetectHeaderRowScanLimit(t *testing.T) {
	rows := make([][]string, 12)
	for i := range rows {
		rows[i] = []string{"metadata"}
	}
	rows[11] = []string{"SKU", "Price", "MOQ"}

	// Header sits past the scan window
	d := detectHeaderRow(rows, 10)
	if d.rowIndex != -1 {
		t.Errorf("Expected no header within scan window, got row %d", d.rowIndex)
	}
}

func TestMatchHeaderRowSpanishVariants(t *testing.T) {
	columns := matchHeaderRow([]string{"REFERENCIA", "PRECIO", "CANTIDAD"})

	if idx, ok := columns[CategorySKU]; !ok || idx != 0 {
		t.Errorf("Expected REFERENCIA to map to SKU at 0, got %v", columns)
	}
	if idx, ok := columns[CategoryPrice]; !ok || idx != 1 {
		t.Errorf("Expected PRECIO to map to Price at 1, got %v", columns)
	}
	if idx, ok := columns[CategoryMOQ]; !ok || idx != 2 {
		t.Errorf("Expected CANTIDAD to map to MOQ at 2, got %v", columns)
	}
}

func TestMatchHeaderRowColumnClaimedOnce(t *testing.T) {
	// "Item No" is claimed by SKU first; Name must take "Item Name",
	// not reuse the claimed column
	columns := matchHeaderRow([]string{"Item No", "Item Name"})

	if idx := columns[CategorySKU]; idx != 0 {
		t.Errorf("Expected SKU at column 0, got %d", idx)
	}
	if idx := columns[CategoryName]; idx != 1 {
		t.Errorf("Expected Name at column 1, got %d", idx)
	}
}

func TestMatchHeaderRowPriorityOrder(t *testing.T) {
	// A single "Product Description" column: Description has priority over
	// Name, so Name must not steal it via the "product" substring
	columns := matchHeaderRow([]string{"Product Description"})

	if idx, ok := columns[CategoryDescription]; !ok || idx != 0 {
		t.Errorf("Expected Description to claim column 0, got %v", columns)
	}
	if _, ok := columns[CategoryName]; ok {
		t.Error("Expected Name to remain unmatched")
	}
}

func TestInferUnitFromHeader(t *testing.T) {
	tests := []struct {
		header   string
		expected string
	}{
		{"Price (USD/m2)", "m2"},
		{"Price per sqm", "m2"},
		{"FOB Price USD/pcs", "pcs"},
		{"Unit Price / set", "set"},
		{"Price per pair", "pair"},
		{"Price USD/kg", "kg"},
		{"Price/meter", "meter"},
		{"Unit Price", ""},
		{"PRECIO", ""},
	}

	for _, tt := range tests {
		if got := inferUnitFromHeader(tt.header); got != tt.expected {
			t.Errorf("inferUnitFromHeader(%q) = %q, expected %q", tt.header, got, tt.expected)
		}
	}
}

func TestParsePriceCell(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		ok       bool
	}{
		{"4.50", 4.5, true},
		{"$1,234.50", 1234.5, true},
		{"USD 12", 12, true},
		{"4.50/m2", 4.5, true},
		{"", 0, false},
		{"call us", 0, false},
		{"-5", 0, false},
	}

	for _, tt := range tests {
		got := parsePriceCell(tt.input)
		if tt.ok {
			if got == nil || *got != tt.expected {
				t.Errorf("parsePriceCell(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		} else if got != nil {
			t.Errorf("parsePriceCell(%q) = %v, expected nil", tt.input, *got)
		}
	}
}

func TestParseMOQCell(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		ok       bool
	}{
		{"500", 500, true},
		{"1,000", 1000, true},
		{"500 pcs", 500, true},
		{"", 0, false},
		{"TBD", 0, false},
	}

	for _, tt := range tests {
		got := parseMOQCell(tt.input)
		if tt.ok {
			if got == nil || *got != tt.expected {
				t.Errorf("parseMOQCell(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		} else if got != nil {
			t.Errorf("parseMOQCell(%q) = %v, expected nil", tt.input, *got)
		}
	}
}

func TestSpreadsheetExtract(t *testing.T) {
	path := writeTestWorkbook(t, [][]any{
		{"SKU", "Product Name", "Price (USD/m2)", "MOQ", "Description"},
		{"CT-100", "Ceramic Tile", 4.5, 500, "Glazed ceramic tile"},
		{"CT-200", "Porcelain Tile", "6.80", "1,000", "Matte porcelain tile"},
	})

	ai := &stubAI{available: true}
	extractor := NewSpreadsheetExtractor(testExtractionConfig(), ai)

	products, warnings, err := extractor.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if ai.called {
		t.Error("Expected no AI fallback when enough columns matched")
	}
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", warnings)
	}
	if len(products) != 2 {
		t.Fatalf("Expected 2 products, got %d", len(products))
	}

	first := products[0]
	if first.SKU != "CT-100" {
		t.Errorf("Expected SKU CT-100, got %s", first.SKU)
	}
	if first.Name != "Ceramic Tile" {
		t.Errorf("Expected name Ceramic Tile, got %s", first.Name)
	}
	if first.PriceFobUSD == nil || *first.PriceFobUSD != 4.5 {
		t.Errorf("Expected price 4.5, got %v", first.PriceFobUSD)
	}
	if first.MOQ == nil || *first.MOQ != 500 {
		t.Errorf("Expected MOQ 500, got %v", first.MOQ)
	}
	if first.ConfidenceScore <= 0 || first.ConfidenceScore > 1 {
		t.Errorf("Expected confidence in (0,1], got %f", first.ConfidenceScore)
	}

	second := products[1]
	if second.MOQ == nil || *second.MOQ != 1000 {
		t.Errorf("Expected MOQ 1000, got %v", second.MOQ)
	}

	// Unit inferred from the price header applies to every record
	for i, p := range products {
		if p.UnitOfMeasure != "m2" {
			t.Errorf("Product %d: expected unit m2, got %q", i, p.UnitOfMeasure)
		}
	}
}

func TestSpreadsheetExtractNoUnitToken(t *testing.T) {
	path := writeTestWorkbook(t, [][]any{
		{"SKU", "Price", "MOQ"},
		{"A-1", "2.00", "100"},
	})

	extractor := NewSpreadsheetExtractor(testExtractionConfig(), &stubAI{})
	products, _, err := extractor.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("Expected 1 product, got %d", len(products))
	}
	if products[0].UnitOfMeasure != "" {
		t.Errorf("Expected empty unit, got %q", products[0].UnitOfMeasure)
	}
}

func TestSpreadsheetExtractFallback(t *testing.T) {
	path := writeTestWorkbook(t, [][]any{
		{"Col A", "Col B", "Col C"},
		{"widget one", 3.5, 100},
		{"widget two", 4.5, 200},
	})

	ai := &stubAI{
		available: true,
		products:  []*model.ExtractedProduct{{Name: "Widget One"}, {Name: "Widget Two"}},
	}
	extractor := NewSpreadsheetExtractor(testExtractionConfig(), ai)

	products, warnings, err := extractor.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !ai.called {
		t.Fatal("Expected AI fallback to be invoked")
	}
	if !strings.Contains(ai.gotInput.Text, "widget one") {
		t.Errorf("Expected serialized rows in AI input, got %q", ai.gotInput.Text)
	}
	if len(products) != 2 {
		t.Errorf("Expected AI products returned, got %d", len(products))
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "AI fallback") {
		t.Errorf("Expected fallback warning, got %v", warnings)
	}
}

func TestSpreadsheetExtractFallbackError(t *testing.T) {
	path := writeTestWorkbook(t, [][]any{
		{"Col A", "Col B"},
		{"thing", "3.5"},
	})

	ai := &stubAI{available: true, err: errors.New("provider down")}
	extractor := NewSpreadsheetExtractor(testExtractionConfig(), ai)

	_, _, err := extractor.Extract(context.Background(), path)
	if err == nil {
		t.Fatal("Expected error when AI fallback fails")
	}
}

func TestSpreadsheetExtractFallbackUnavailable(t *testing.T) {
	path := writeTestWorkbook(t, [][]any{
		{"Col A", "Col B", "Col C"},
		{"widget one", "3.5", "100"},
	})

	ai := &stubAI{available: false}
	extractor := NewSpreadsheetExtractor(testExtractionConfig(), ai)

	products, warnings, err := extractor.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if ai.called {
		t.Error("Expected no AI call when unavailable")
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "AI is unavailable") {
		t.Errorf("Expected degraded-mode warning, got %v", warnings)
	}
	// No header matched, so rows become raw-text-only records
	if len(products) == 0 {
		t.Fatal("Expected raw-text records in degraded mode")
	}
	for _, p := range products {
		if p.RawText == "" {
			t.Error("Expected raw_text populated in degraded mode")
		}
	}
}

func TestSpreadsheetExtractSampleLimit(t *testing.T) {
	rows := [][]any{{"Col A", "Col B"}}
	for i := 0; i < 80; i++ {
		rows = append(rows, []any{"item", i})
	}
	path := writeTestWorkbook(t, rows)

	ai := &stubAI{available: true}
	cfg := testExtractionConfig()
	cfg.FallbackSampleRows = 50
	extractor := NewSpreadsheetExtractor(cfg, ai)

	if _, _, err := extractor.Extract(context.Background(), path); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	lines := strings.Count(ai.gotInput.Text, "\n")
	if lines > 50 {
		t.Errorf("Expected at most 50 serialized rows, got %d", lines)
	}
}

func TestSpreadsheetExtractOpenError(t *testing.T) {
	extractor := NewSpreadsheetExtractor(testExtractionConfig(), &stubAI{})

	if _, _, err := extractor.Extract(context.Background(), "/nonexistent/file.xlsx"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestSerializeRows(t *testing.T) {
	rows := [][]string{
		{"a", "b"},
		{"", ""},
		{"c", "d"},
	}

	out := serializeRows(rows, 10)
	if out != "a\tb\nc\td\n" {
		t.Errorf("Unexpected serialization: %q", out)
	}

	out = serializeRows(rows, 1)
	if out != "a\tb\n" {
		t.Errorf("Expected limit to apply, got %q", out)
	}
}

func TestRowToProductBlankRow(t *testing.T) {
	if p := rowToProduct([]string{"", "  ", ""}, map[ColumnCategory]int{CategorySKU: 0}, ""); p != nil {
		t.Errorf("Expected nil for blank row, got %+v", p)
	}
}
