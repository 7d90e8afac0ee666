package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/DR-Danke/Kompass-sub003/model"
	"github.com/DR-Danke/Kompass-sub003/pkg/logger"
)

// FileExtractor turns one uploaded file into candidate records plus warnings
type FileExtractor interface {
	Extract(ctx context.Context, path string) ([]*model.ExtractedProduct, []string, error)
}

// UploadedFile pairs an original filename with its transient on-disk copy
type UploadedFile struct {
	Name string
	Path string
}

// BatchProcessor is the deferred task behind an upload: it runs the format
// extractors over a job's files sequentially and folds the outcomes into one
// ExtractionResult on the job.
type BatchProcessor struct {
	jobs        *JobManager
	pdf         FileExtractor
	spreadsheet FileExtractor
	image       FileExtractor
}

func NewBatchProcessor(jobs *JobManager, pdf, spreadsheet, image FileExtractor) *BatchProcessor {
	return &BatchProcessor{
		jobs:        jobs,
		pdf:         pdf,
		spreadsheet: spreadsheet,
		image:       image,
	}
}

// Process owns the job from processing to its final state. The transient
// upload directory is removed on every exit path. Files are handled
// sequentially so progress only moves forward and products keep upload order.
func (p *BatchProcessor) Process(ctx context.Context, jobID, dir string, files []UploadedFile) {
	defer os.RemoveAll(dir)

	start := time.Now()

	if err := p.jobs.MarkProcessing(ctx, jobID); err != nil {
		logger.Error(ctx, "failed to mark job processing", "error", err)
		return
	}

	result := &model.ExtractionResult{
		Products: []*model.ExtractedProduct{},
		Errors:   []string{},
		Warnings: []string{},
	}
	hardErrors := 0

	for i, f := range files {
		products, warnings, err := p.extractFile(ctx, f)
		if err != nil {
			logger.Warn(ctx, "file extraction failed", "file", f.Name, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.Name, err))
			hardErrors++
		} else {
			result.Products = append(result.Products, products...)
			result.Warnings = append(result.Warnings, warnings...)
		}

		if err := p.jobs.SetProgress(ctx, jobID, i+1); err != nil {
			logger.Warn(ctx, "failed to update job progress", "error", err)
		}
	}

	result.TotalExtracted = len(result.Products)
	result.ProcessingTimeSeconds = time.Since(start).Seconds()

	if result.TotalExtracted == 0 && hardErrors > 0 {
		msg := fmt.Sprintf("extraction produced no products: %s", strings.Join(result.Errors, "; "))
		if err := p.jobs.Fail(ctx, jobID, msg); err != nil {
			logger.Error(ctx, "failed to mark job failed", "error", err)
		}
		return
	}

	if err := p.jobs.Complete(ctx, jobID, result); err != nil {
		logger.Error(ctx, "failed to mark job completed", "error", err)
		return
	}

	logger.Info(ctx, "extraction job finished",
		"files", len(files),
		"products", result.TotalExtracted,
		"errors", len(result.Errors),
		"warnings", len(result.Warnings),
		"seconds", result.ProcessingTimeSeconds,
	)
}

// extractFile dispatches one file to its extractor, converting a panic into
// an error so one bad file cannot take down the batch
func (p *BatchProcessor) extractFile(ctx context.Context, f UploadedFile) (products []*model.ExtractedProduct, warnings []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "extractor panic",
				"file", f.Name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			products, warnings = nil, nil
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()

	extractor, err := p.extractorFor(f.Name)
	if err != nil {
		return nil, nil, err
	}
	return extractor.Extract(ctx, f.Path)
}

// extractorFor routes by extension. Upload validation makes the default
// branch unreachable in practice, but a stray file must not abort the batch.
func (p *BatchProcessor) extractorFor(filename string) (FileExtractor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf", ".docx":
		return p.pdf, nil
	case ".xlsx", ".xls":
		return p.spreadsheet, nil
	case ".png", ".jpg", ".jpeg":
		return p.image, nil
	default:
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}
}
