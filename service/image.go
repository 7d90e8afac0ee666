package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/DR-Danke/Kompass-sub003/model"
	"github.com/DR-Danke/Kompass-sub003/pkg/logger"
	"github.com/google/uuid"
)

// ImageStorer is the slice of object storage the image extractor uses
type ImageStorer interface {
	StoreImage(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// ImageExtractor asks the AI client for one structured record per product
// photo. Without a usable AI provider it degrades to a raw-text-only record
// instead of failing the file.
type ImageExtractor struct {
	ai      AIExtractor
	storage ImageStorer // nil when object storage is not configured
}

func NewImageExtractor(ai AIExtractor, storage ImageStorer) *ImageExtractor {
	return &ImageExtractor{ai: ai, storage: storage}
}

func (e *ImageExtractor) Extract(ctx context.Context, path string) ([]*model.ExtractedProduct, []string, error) {
	var warnings []string
	base := filepath.Base(path)

	imageURL := ""
	if e.storage != nil {
		url, err := e.storeOriginal(ctx, path)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: failed to store original image: %v", base, err))
		} else {
			imageURL = url
		}
	}

	if e.ai == nil || !e.ai.IsAvailable() {
		p := &model.ExtractedProduct{
			RawText: fmt.Sprintf("image %s uploaded, no AI provider available for analysis", base),
		}
		if imageURL != "" {
			p.ImageURLs = []string{imageURL}
		}
		p.ConfidenceScore = ScoreConfidence(p)
		warnings = append(warnings, fmt.Sprintf("%s: AI unavailable, image not analyzed", base))
		return []*model.ExtractedProduct{p}, warnings, nil
	}

	products, err := e.ai.Extract(ctx, ExtractInput{
		ImagePath:    path,
		Instructions: "The image is a single product photo from a supplier catalog. Describe the one product shown.",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("image extraction: %w", err)
	}
	if len(products) == 0 {
		warnings = append(warnings, fmt.Sprintf("%s: no product identified in image", base))
		return nil, warnings, nil
	}

	for _, p := range products {
		if imageURL != "" {
			p.ImageURLs = append(p.ImageURLs, imageURL)
		}
		p.ConfidenceScore = ScoreConfidence(p)
	}

	logger.Debug(ctx, "image extraction done", "file", base, "products", len(products))
	return products, warnings, nil
}

func (e *ImageExtractor) storeOriginal(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	objectName := fmt.Sprintf("originals/%s%s", uuid.NewString(), strings.ToLower(filepath.Ext(path)))
	return e.storage.StoreImage(ctx, objectName, data, mimeTypeForFile(path))
}
