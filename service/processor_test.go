package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DR-Danke/Kompass-sub003/model"
)

type stubExtractor struct {
	products []*model.ExtractedProduct
	warnings []string
	err      error
	panicMsg string
	calls    []string
}

func (s *stubExtractor) Extract(ctx context.Context, path string) ([]*model.ExtractedProduct, []string, error) {
	s.calls = append(s.calls, path)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.products, s.warnings, s.err
}

func newProcessorFixture(t *testing.T, pdf, sheet, image FileExtractor) (*BatchProcessor, *JobManager) {
	t.Helper()
	jobs := NewJobManager(NewMemoryJobStore(100))
	return NewBatchProcessor(jobs, pdf, sheet, image), jobs
}

func createJobForFiles(t *testing.T, jobs *JobManager, names ...string) (string, string, []UploadedFile) {
	t.Helper()
	job, err := jobs.Create(context.Background(), "acme", names, "catalog")
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	dir := t.TempDir()
	files := make([]UploadedFile, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
		files = append(files, UploadedFile{Name: name, Path: path})
	}
	return job.ID, dir, files
}

func TestBatchProcessSuccess(t *testing.T) {
	sheet := &stubExtractor{products: []*model.ExtractedProduct{{Name: "Tile A"}, {Name: "Tile B"}}}
	pdf := &stubExtractor{products: []*model.ExtractedProduct{{Name: "Chair"}}, warnings: []string{"page 2: low information, skipped"}}
	processor, jobs := newProcessorFixture(t, pdf, sheet, &stubExtractor{})

	jobID, dir, files := createJobForFiles(t, jobs, "catalog.xlsx", "brochure.pdf")
	processor.Process(context.Background(), jobID, dir, files)

	job, err := jobs.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}

	if job.Status != model.StatusCompleted {
		t.Fatalf("Expected completed, got %s (%s)", job.Status, job.ErrorMessage)
	}
	if job.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", job.Progress)
	}
	if job.ProcessedFiles != 2 || job.TotalFiles != 2 {
		t.Errorf("Expected 2/2 files, got %d/%d", job.ProcessedFiles, job.TotalFiles)
	}
	if job.Results == nil {
		t.Fatal("Expected results on completed job")
	}
	if job.Results.TotalExtracted != 3 {
		t.Errorf("Expected 3 products, got %d", job.Results.TotalExtracted)
	}
	if len(job.Results.Products) != job.Results.TotalExtracted {
		t.Error("Expected products length to match total_extracted")
	}
	// Upload order: spreadsheet products first, then the PDF's
	if job.Results.Products[0].Name != "Tile A" || job.Results.Products[2].Name != "Chair" {
		t.Errorf("Expected products in upload order, got %v", job.Results.Products)
	}
	if len(job.Results.Warnings) != 1 {
		t.Errorf("Expected 1 warning, got %v", job.Results.Warnings)
	}
	if job.Results.ProcessingTimeSeconds < 0 {
		t.Errorf("Expected non-negative processing time, got %f", job.Results.ProcessingTimeSeconds)
	}
}

func TestBatchProcessOneCorruptFileOfThree(t *testing.T) {
	sheet := &stubExtractor{products: []*model.ExtractedProduct{{Name: "Tile"}}}
	pdf := &stubExtractor{err: errors.New("failed to open document")}
	image := &stubExtractor{products: []*model.ExtractedProduct{{Name: "Chair"}}}
	processor, jobs := newProcessorFixture(t, pdf, sheet, image)

	jobID, dir, files := createJobForFiles(t, jobs, "a.xlsx", "corrupt.pdf", "photo.jpg")
	processor.Process(context.Background(), jobID, dir, files)

	job, _ := jobs.Get(context.Background(), jobID)
	if job.Status != model.StatusCompleted {
		t.Fatalf("Expected completed despite one bad file, got %s", job.Status)
	}
	if len(job.Results.Errors) != 1 || !strings.Contains(job.Results.Errors[0], "corrupt.pdf") {
		t.Errorf("Expected one error naming the bad file, got %v", job.Results.Errors)
	}
	if job.Results.TotalExtracted != 2 {
		t.Errorf("Expected 2 products from surviving files, got %d", job.Results.TotalExtracted)
	}
}

func TestBatchProcessAllFilesFailed(t *testing.T) {
	sheet := &stubExtractor{err: errors.New("not a workbook")}
	pdf := &stubExtractor{err: errors.New("not a document")}
	processor, jobs := newProcessorFixture(t, pdf, sheet, &stubExtractor{})

	jobID, dir, files := createJobForFiles(t, jobs, "a.xlsx", "b.pdf")
	processor.Process(context.Background(), jobID, dir, files)

	job, _ := jobs.Get(context.Background(), jobID)
	if job.Status != model.StatusFailed {
		t.Fatalf("Expected failed, got %s", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "no products") {
		t.Errorf("Expected summarizing error message, got %q", job.ErrorMessage)
	}
	if job.ProcessedFiles != 2 {
		t.Errorf("Expected processed files tracked through failures, got %d", job.ProcessedFiles)
	}
}

func TestBatchProcessPanicRecovered(t *testing.T) {
	sheet := &stubExtractor{panicMsg: "index out of range"}
	image := &stubExtractor{products: []*model.ExtractedProduct{{Name: "Lamp"}}}
	processor, jobs := newProcessorFixture(t, &stubExtractor{}, sheet, image)

	jobID, dir, files := createJobForFiles(t, jobs, "bad.xlsx", "photo.png")
	processor.Process(context.Background(), jobID, dir, files)

	job, _ := jobs.Get(context.Background(), jobID)
	if job.Status != model.StatusCompleted {
		t.Fatalf("Expected completed after recovered panic, got %s", job.Status)
	}
	if len(job.Results.Errors) != 1 || !strings.Contains(job.Results.Errors[0], "panic") {
		t.Errorf("Expected panic recorded as error, got %v", job.Results.Errors)
	}
	if job.Results.TotalExtracted != 1 {
		t.Errorf("Expected the second file still processed, got %d products", job.Results.TotalExtracted)
	}
}

func TestBatchProcessUnsupportedExtension(t *testing.T) {
	sheet := &stubExtractor{products: []*model.ExtractedProduct{{Name: "Tile"}}}
	processor, jobs := newProcessorFixture(t, &stubExtractor{}, sheet, &stubExtractor{})

	jobID, dir, files := createJobForFiles(t, jobs, "notes.txt", "a.xlsx")
	processor.Process(context.Background(), jobID, dir, files)

	job, _ := jobs.Get(context.Background(), jobID)
	if job.Status != model.StatusCompleted {
		t.Fatalf("Expected completed, got %s", job.Status)
	}
	if len(job.Results.Errors) != 1 || !strings.Contains(job.Results.Errors[0], "unsupported file extension") {
		t.Errorf("Expected unsupported extension error, got %v", job.Results.Errors)
	}
}

func TestBatchProcessZeroProductsWithoutErrors(t *testing.T) {
	image := &stubExtractor{warnings: []string{"photo.png: no product identified in image"}}
	processor, jobs := newProcessorFixture(t, &stubExtractor{}, &stubExtractor{}, image)

	jobID, dir, files := createJobForFiles(t, jobs, "photo.png")
	processor.Process(context.Background(), jobID, dir, files)

	job, _ := jobs.Get(context.Background(), jobID)
	if job.Status != model.StatusCompleted {
		t.Fatalf("Expected completed for empty-but-clean batch, got %s", job.Status)
	}
	if job.Results.TotalExtracted != 0 {
		t.Errorf("Expected 0 products, got %d", job.Results.TotalExtracted)
	}
	if len(job.Results.Warnings) != 1 {
		t.Errorf("Expected warning carried into results, got %v", job.Results.Warnings)
	}
}

func TestBatchProcessRemovesUploadDir(t *testing.T) {
	sheet := &stubExtractor{products: []*model.ExtractedProduct{{Name: "Tile"}}}
	processor, jobs := newProcessorFixture(t, &stubExtractor{}, sheet, &stubExtractor{})

	jobID, dir, files := createJobForFiles(t, jobs, "a.xlsx")
	processor.Process(context.Background(), jobID, dir, files)

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Expected upload dir removed, stat err = %v", err)
	}
}

func TestBatchProcessRemovesUploadDirOnFailure(t *testing.T) {
	sheet := &stubExtractor{err: errors.New("boom")}
	processor, jobs := newProcessorFixture(t, &stubExtractor{}, sheet, &stubExtractor{})

	jobID, dir, files := createJobForFiles(t, jobs, "a.xlsx")
	processor.Process(context.Background(), jobID, dir, files)

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Expected upload dir removed on failure, stat err = %v", err)
	}
}

func TestExtractorForRouting(t *testing.T) {
	pdf := &stubExtractor{}
	sheet := &stubExtractor{}
	image := &stubExtractor{}
	processor, _ := newProcessorFixture(t, pdf, sheet, image)

	tests := []struct {
		filename string
		expected FileExtractor
	}{
		{"a.pdf", pdf},
		{"a.docx", pdf},
		{"a.xlsx", sheet},
		{"a.xls", sheet},
		{"a.PNG", image},
		{"a.jpg", image},
		{"a.jpeg", image},
	}

	for _, tt := range tests {
		got, err := processor.extractorFor(tt.filename)
		if err != nil {
			t.Errorf("extractorFor(%q) returned error: %v", tt.filename, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("extractorFor(%q) routed to wrong extractor", tt.filename)
		}
	}

	if _, err := processor.extractorFor("a.txt"); err == nil {
		t.Error("Expected error for unsupported extension")
	}
}
