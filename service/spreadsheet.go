package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/DR-Danke/Kompass-sub003/config"
	"github.com/DR-Danke/Kompass-sub003/model"
	"github.com/DR-Danke/Kompass-sub003/pkg/logger"
	"github.com/xuri/excelize/v2"
)

// AIExtractor is the provider-facing surface the format extractors depend on
type AIExtractor interface {
	IsAvailable() bool
	Extract(ctx context.Context, input ExtractInput) ([]*model.ExtractedProduct, error)
}

// ColumnCategory is one semantic field header detection tries to locate
type ColumnCategory string

const (
	CategorySKU         ColumnCategory = "sku"
	CategoryName        ColumnCategory = "name"
	CategoryPrice       ColumnCategory = "price"
	CategoryMOQ         ColumnCategory = "moq"
	CategoryDescription ColumnCategory = "description"
	CategoryMaterial    ColumnCategory = "material"
	CategoryDimensions  ColumnCategory = "dimensions"
)

// categoryPriority fixes the matching order so a generic label cannot steal a
// column meant for a more specific category
var categoryPriority = []ColumnCategory{
	CategorySKU,
	CategoryPrice,
	CategoryMOQ,
	CategoryDescription,
	CategoryMaterial,
	CategoryDimensions,
	CategoryName,
}

// headerCandidates lists known header spellings per category, including
// common Spanish and Chinese supplier variants
var headerCandidates = map[ColumnCategory][]string{
	CategorySKU: {
		"sku", "item no", "item no.", "item number", "item code", "product code",
		"model", "model no", "model no.", "ref", "reference", "referencia",
		"art no", "article", "code", "货号", "型号",
	},
	CategoryPrice: {
		"price", "unit price", "fob price", "fob", "precio", "unit cost",
		"price usd", "usd", "单价", "价格",
	},
	CategoryMOQ: {
		"moq", "min order", "min. order", "minimum order", "min qty",
		"minimum qty", "cantidad", "qty", "quantity", "起订量",
	},
	CategoryDescription: {
		"description", "product description", "descripcion", "descripción",
		"details", "specification", "spec", "描述",
	},
	CategoryMaterial: {
		"material", "materials", "fabric", "composition", "材质",
	},
	CategoryDimensions: {
		"dimensions", "dimension", "size", "sizes", "measurement",
		"measurements", "medidas", "尺寸",
	},
	CategoryName: {
		"name", "product name", "item name", "item", "product", "title",
		"nombre", "producto", "品名", "产品名称",
	},
}

// unitKeywords maps tokens found in a Price header to a unit of measure
var unitKeywords = []struct {
	token string
	unit  string
}{
	{"sqm", "m2"},
	{"m2", "m2"},
	{"m²", "m2"},
	{"pcs", "pcs"},
	{"pc", "pcs"},
	{"set", "set"},
	{"pair", "pair"},
	{"kg", "kg"},
	{"ton", "ton"},
	{"meter", "meter"},
}

// headerDetection is the outcome of scanning one sheet for its header row
type headerDetection struct {
	rowIndex int // -1 when no row matched anything
	columns  map[ColumnCategory]int
	score    int
}

// SpreadsheetExtractor parses xlsx/xls workbooks into candidate records,
// falling back to AI extraction when header detection finds too few columns
type SpreadsheetExtractor struct {
	cfg *config.ExtractionConfig
	ai  AIExtractor
}

func NewSpreadsheetExtractor(cfg *config.ExtractionConfig, ai AIExtractor) *SpreadsheetExtractor {
	return &SpreadsheetExtractor{cfg: cfg, ai: ai}
}

// Extract reads every sheet of the workbook at path
func (e *SpreadsheetExtractor) Extract(ctx context.Context, path string) ([]*model.ExtractedProduct, []string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("no sheets found in workbook")
	}

	var products []*model.ExtractedProduct
	var warnings []string

	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("sheet %s: failed to read rows: %v", sheet, err))
			continue
		}
		sheetProducts, sheetWarnings, err := e.extractSheet(ctx, sheet, rows)
		if err != nil {
			return nil, nil, err
		}
		products = append(products, sheetProducts...)
		warnings = append(warnings, sheetWarnings...)
	}

	return products, warnings, nil
}

func (e *SpreadsheetExtractor) extractSheet(ctx context.Context, sheet string, rows [][]string) ([]*model.ExtractedProduct, []string, error) {
	if len(rows) == 0 {
		return nil, []string{fmt.Sprintf("sheet %s: empty, skipped", sheet)}, nil
	}

	detection := detectHeaderRow(rows, e.cfg.HeaderScanRows)
	logger.Debug(ctx, "header detection",
		"sheet", sheet,
		"header_row", detection.rowIndex,
		"matched_columns", detection.score,
	)

	var warnings []string
	if detection.score < e.cfg.FallbackMinColumns {
		if e.ai != nil && e.ai.IsAvailable() {
			products, err := e.aiFallback(ctx, sheet, rows)
			if err != nil {
				return nil, nil, fmt.Errorf("ai fallback for sheet %s: %w", sheet, err)
			}
			warnings = append(warnings, fmt.Sprintf("sheet %s: header detection matched %d columns, used AI fallback", sheet, detection.score))
			return products, warnings, nil
		}
		warnings = append(warnings, fmt.Sprintf("sheet %s: header detection matched %d columns and AI is unavailable, proceeding with matched columns", sheet, detection.score))
	}

	unit := ""
	if priceCol, ok := detection.columns[CategoryPrice]; ok {
		unit = inferUnitFromHeader(rows[detection.rowIndex][priceCol])
	}

	var products []*model.ExtractedProduct
	for i := detection.rowIndex + 1; i < len(rows); i++ {
		if p := rowToProduct(rows[i], detection.columns, unit); p != nil {
			products = append(products, p)
		}
	}

	return products, warnings, nil
}

// aiFallback serializes the sheet content and delegates to the AI client.
// Header detection failed, so rows are sampled from the top of the sheet.
func (e *SpreadsheetExtractor) aiFallback(ctx context.Context, sheet string, rows [][]string) ([]*model.ExtractedProduct, error) {
	sample := serializeRows(rows, e.cfg.FallbackSampleRows)
	return e.ai.Extract(ctx, ExtractInput{
		Text:         sample,
		Instructions: fmt.Sprintf("The input is tab-separated rows from spreadsheet %q of a supplier catalog. Identify every product row.", sheet),
	})
}

// detectHeaderRow scores the first scanRows rows and returns the best one.
// Ties break to the earliest row.
func detectHeaderRow(rows [][]string, scanRows int) headerDetection {
	best := headerDetection{rowIndex: -1}
	for i := 0; i < len(rows) && i < scanRows; i++ {
		columns := matchHeaderRow(rows[i])
		if len(columns) > best.score {
			best = headerDetection{rowIndex: i, columns: columns, score: len(columns)}
		}
	}
	return best
}

// matchHeaderRow maps categories to column indexes for one candidate row.
// Categories are tried in priority order, each in two passes (exact
// case-insensitive, then substring); a claimed column is not reused.
func matchHeaderRow(cells []string) map[ColumnCategory]int {
	normalized := make([]string, len(cells))
	for i, c := range cells {
		normalized[i] = strings.ToLower(strings.TrimSpace(c))
	}

	claimed := make(map[int]bool)
	columns := make(map[ColumnCategory]int)

	for _, cat := range categoryPriority {
		idx := findColumn(normalized, claimed, headerCandidates[cat], func(cell, cand string) bool {
			return cell == cand
		})
		if idx < 0 {
			idx = findColumn(normalized, claimed, headerCandidates[cat], strings.Contains)
		}
		if idx >= 0 {
			columns[cat] = idx
			claimed[idx] = true
		}
	}

	return columns
}

func findColumn(cells []string, claimed map[int]bool, candidates []string, match func(cell, cand string) bool) int {
	for i, cell := range cells {
		if claimed[i] || cell == "" {
			continue
		}
		for _, cand := range candidates {
			if match(cell, cand) {
				return i
			}
		}
	}
	return -1
}

// inferUnitFromHeader extracts a unit of measure from the Price header text
func inferUnitFromHeader(header string) string {
	h := strings.ToLower(header)
	for _, kw := range unitKeywords {
		if strings.Contains(h, kw.token) {
			return kw.unit
		}
	}
	return ""
}

// rowToProduct builds one candidate record from a data row. Cells outside
// matched columns are preserved in raw_text. Returns nil for blank rows.
func rowToProduct(row []string, columns map[ColumnCategory]int, unit string) *model.ExtractedProduct {
	cell := func(cat ColumnCategory) string {
		idx, ok := columns[cat]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	p := &model.ExtractedProduct{
		SKU:         cell(CategorySKU),
		Name:        cell(CategoryName),
		Description: cell(CategoryDescription),
		Material:    cell(CategoryMaterial),
		Dimensions:  cell(CategoryDimensions),
	}
	p.PriceFobUSD = parsePriceCell(cell(CategoryPrice))
	p.MOQ = parseMOQCell(cell(CategoryMOQ))

	matched := make(map[int]bool, len(columns))
	for _, idx := range columns {
		matched[idx] = true
	}
	var extra []string
	for i, c := range row {
		c = strings.TrimSpace(c)
		if c == "" || matched[i] {
			continue
		}
		extra = append(extra, c)
	}
	p.RawText = strings.Join(extra, " | ")

	if p.SKU == "" && p.Name == "" && p.Description == "" && p.Material == "" &&
		p.Dimensions == "" && p.PriceFobUSD == nil && p.MOQ == nil && p.RawText == "" {
		return nil
	}

	if unit != "" {
		p.UnitOfMeasure = unit
	}
	p.ConfidenceScore = ScoreConfidence(p)
	return p
}

// parsePriceCell parses a price cell, tolerating currency symbols, thousands
// separators and a trailing unit suffix like "4.50/m2"
func parsePriceCell(s string) *float64 {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	s = strings.NewReplacer("usd", "", "us$", "", "$", "", "€", "", ",", "", " ", "").Replace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return nil
	}
	return &f
}

// parseMOQCell parses an MOQ cell, tolerating a trailing unit like "500 pcs"
func parseMOQCell(s string) *int {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return nil
	}
	digits := s
	for i, r := range s {
		if r < '0' || r > '9' {
			digits = s[:i]
			break
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// serializeRows renders up to limit rows as tab-separated lines for the AI
// fallback prompt
func serializeRows(rows [][]string, limit int) string {
	var b strings.Builder
	count := 0
	for _, row := range rows {
		if count >= limit {
			break
		}
		empty := true
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		b.WriteString(strings.Join(row, "\t"))
		b.WriteByte('\n')
		count++
	}
	return b.String()
}
