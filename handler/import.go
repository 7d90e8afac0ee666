package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DR-Danke/Kompass-sub003/middleware"
	"github.com/DR-Danke/Kompass-sub003/service"
)

type ImportHandler struct {
	importer *service.Importer
}

func NewImportHandler(importer *service.Importer) *ImportHandler {
	return &ImportHandler{importer: importer}
}

// Confirm imports selected records of a completed job into the catalog. The
// call succeeds even when individual records fail; the mixed outcome is in
// the response body.
func (h *ImportHandler) Confirm(c *gin.Context) {
	tenant := middleware.GetTenant(c)

	var req service.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	result, err := h.importer.Import(c.Request.Context(), tenant, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		case errors.Is(err, service.ErrJobNotCompleted):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Import failed: " + err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}
