package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/DR-Danke/Kompass-sub003/config"
	"github.com/DR-Danke/Kompass-sub003/middleware"
	"github.com/DR-Danke/Kompass-sub003/model"
	"github.com/DR-Danke/Kompass-sub003/pkg/logger"
	"github.com/DR-Danke/Kompass-sub003/service"
)

type ExtractionHandler struct {
	config    *config.Config
	jobs      *service.JobManager
	processor *service.BatchProcessor
}

func NewExtractionHandler(cfg *config.Config, jobs *service.JobManager, processor *service.BatchProcessor) *ExtractionHandler {
	return &ExtractionHandler{
		config:    cfg,
		jobs:      jobs,
		processor: processor,
	}
}

// Upload accepts a batch of catalog documents, validates every file up front
// and hands the batch to the deferred processing task. The job id is returned
// immediately; extraction happens after the response.
func (h *ExtractionHandler) Upload(c *gin.Context) {
	tenant := middleware.GetTenant(c)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	extractionType := c.PostForm("extraction_type")
	if extractionType == "" {
		extractionType = "catalog"
	}

	// Every file must pass validation before a job exists
	maxSize := int64(h.config.Extraction.MaxFileSizeMB) << 20
	for _, fh := range uploads {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !h.config.IsExtensionAllowed(ext) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("%s: file type %s is not supported", fh.Filename, ext),
			})
			return
		}
		if fh.Size > maxSize {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("%s: file exceeds %d MB size limit", fh.Filename, h.config.Extraction.MaxFileSizeMB),
			})
			return
		}
	}

	// Write the batch to a job-scoped temp directory; the deferred task owns
	// its removal
	dir := filepath.Join(h.config.Extraction.UploadDir, uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store files: " + err.Error()})
		return
	}

	files := make([]service.UploadedFile, 0, len(uploads))
	filenames := make([]string, 0, len(uploads))
	for i, fh := range uploads {
		// Index prefix keeps same-named files in one batch apart
		dst := filepath.Join(dir, fmt.Sprintf("%d_%s", i, filepath.Base(fh.Filename)))
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			os.RemoveAll(dir)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store files: " + err.Error()})
			return
		}
		files = append(files, service.UploadedFile{Name: fh.Filename, Path: dst})
		filenames = append(filenames, fh.Filename)
	}

	job, err := h.jobs.Create(c.Request.Context(), tenant, filenames, extractionType)
	if err != nil {
		os.RemoveAll(dir)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job: " + err.Error()})
		return
	}

	// The task outlives this request: keep the identity values for logging
	// but drop the request's cancellation
	taskCtx := logger.WithJob(context.WithoutCancel(c.Request.Context()), job.ID)
	go h.processor.Process(taskCtx, job.ID, dir, files)

	logger.Info(c.Request.Context(), "extraction job accepted",
		"job_id", job.ID,
		"files", len(files),
		"type", extractionType,
	)

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// GetStatus returns the job's lifecycle fields for polling
func (h *ExtractionHandler) GetStatus(c *gin.Context) {
	job, ok := h.jobForTenant(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":          job.ID,
		"status":          job.Status,
		"progress":        job.Progress,
		"processed_files": job.ProcessedFiles,
		"total_files":     job.TotalFiles,
		"error_message":   job.ErrorMessage,
	})
}

// GetResults returns the extraction result of a completed job. For any other
// status the current state is reported instead of a result.
func (h *ExtractionHandler) GetResults(c *gin.Context) {
	job, ok := h.jobForTenant(c)
	if !ok {
		return
	}

	if job.Status != model.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{
			"error":         fmt.Sprintf("job is %s, results are not available", job.Status),
			"status":        job.Status,
			"error_message": job.ErrorMessage,
		})
		return
	}

	c.JSON(http.StatusOK, job.Results)
}

// List returns the tenant's jobs without their result payloads
func (h *ExtractionHandler) List(c *gin.Context) {
	tenant := middleware.GetTenant(c)

	jobs, err := h.jobs.ListByTenant(c.Request.Context(), tenant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs: " + err.Error()})
		return
	}

	result := make([]gin.H, len(jobs))
	for i, job := range jobs {
		result[i] = gin.H{
			"job_id":          job.ID,
			"status":          job.Status,
			"progress":        job.Progress,
			"total_files":     job.TotalFiles,
			"processed_files": job.ProcessedFiles,
			"extraction_type": job.ExtractionType,
			"created_at":      job.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			"updated_at":      job.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	c.JSON(http.StatusOK, gin.H{"jobs": result})
}

// jobForTenant resolves the :id path param to the caller's job, writing the
// 404 itself when the job is missing or owned by another tenant
func (h *ExtractionHandler) jobForTenant(c *gin.Context) (*model.ExtractionJob, bool) {
	tenant := middleware.GetTenant(c)
	id := c.Param("id")

	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job: " + err.Error()})
		}
		return nil, false
	}
	if job.Tenant != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return nil, false
	}
	return job, true
}
