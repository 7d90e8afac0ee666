package service

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/DR-Danke/Kompass-sub003/config"
	"github.com/DR-Danke/Kompass-sub003/model"
	"github.com/DR-Danke/Kompass-sub003/pkg/logger"
	"github.com/gen2brain/go-fitz"
)

var (
	// pricePattern finds currency-marked or decimal amounts in page text
	pricePattern = regexp.MustCompile(`(?i)(?:usd|us\$|\$|€)\s*\d{1,3}(?:,\d{3})*(?:\.\d+)?|\b\d+\.\d{2}\b`)
	// skuPattern finds catalog codes like CT-100 or AB_2034
	skuPattern = regexp.MustCompile(`\b[A-Z]{2,}[-_]?\d{2,}\b`)
	// blockSplit separates page text into paragraph blocks
	blockSplit = regexp.MustCompile(`\n\s*\n`)
)

// Pages with less text than this carry no extractable signal
const minPageTextLen = 40

// PDFExtractor pulls page text out of PDF and DOCX documents and turns
// product-like blocks into candidate records
type PDFExtractor struct {
	cfg *config.ExtractionConfig
}

func NewPDFExtractor(cfg *config.ExtractionConfig) *PDFExtractor {
	return &PDFExtractor{cfg: cfg}
}

// Extract opens the document and scans every page
func (e *PDFExtractor) Extract(ctx context.Context, path string) ([]*model.ExtractedProduct, []string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat document: %w", err)
	}
	if maxBytes := int64(e.cfg.MaxPDFSizeMB) << 20; maxBytes > 0 && info.Size() > maxBytes {
		return nil, nil, fmt.Errorf("document exceeds %d MB size limit", e.cfg.MaxPDFSizeMB)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer doc.Close()

	var products []*model.ExtractedProduct
	var warnings []string

	for page := 0; page < doc.NumPage(); page++ {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		text, err := doc.Text(page)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: failed to extract text: %v", page+1, err))
			continue
		}

		pageProducts, skipReason := parsePageText(page+1, text)
		if skipReason != "" {
			warnings = append(warnings, fmt.Sprintf("page %d: %s", page+1, skipReason))
			continue
		}
		products = append(products, pageProducts...)
	}

	logger.Debug(ctx, "document extraction done",
		"pages", doc.NumPage(),
		"products", len(products),
		"warnings", len(warnings),
	)
	return products, warnings, nil
}

// parsePageText turns one page of text into candidate records. A non-empty
// skipReason means the page produced nothing and should be recorded as a
// warning.
func parsePageText(pageNum int, text string) ([]*model.ExtractedProduct, string) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minPageTextLen {
		return nil, "low information, skipped"
	}

	var products []*model.ExtractedProduct
	for _, block := range blockSplit.Split(trimmed, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !pricePattern.MatchString(block) && !skuPattern.MatchString(block) {
			continue
		}
		products = append(products, blockToProduct(pageNum, block))
	}

	if len(products) == 0 {
		return nil, "no product-like text found, skipped"
	}
	return products, ""
}

// blockToProduct builds a candidate record from one product-like text block
func blockToProduct(pageNum int, block string) *model.ExtractedProduct {
	p := &model.ExtractedProduct{
		RawText:    block,
		SourcePage: pageNum,
	}

	if m := skuPattern.FindString(block); m != "" {
		p.SKU = m
	}
	if m := pricePattern.FindString(block); m != "" {
		p.PriceFobUSD = parsePriceCell(m)
	}

	// The leading line often names the product
	first := strings.TrimSpace(strings.SplitN(block, "\n", 2)[0])
	if first != "" && len(first) <= 80 && strings.IndexFunc(first, isLetter) >= 0 && !pricePattern.MatchString(first) {
		p.Name = first
	}

	p.ConfidenceScore = ScoreConfidence(p)
	return p
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
