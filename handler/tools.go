package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DR-Danke/Kompass-sub003/service"
)

// ToolsHandler serves the standalone helpers that need no job: image
// operations and HS code suggestions
type ToolsHandler struct {
	imageOps *service.ImageOps
	hsCodes  *service.HsCodeService
}

func NewToolsHandler(imageOps *service.ImageOps, hsCodes *service.HsCodeService) *ToolsHandler {
	return &ToolsHandler{
		imageOps: imageOps,
		hsCodes:  hsCodes,
	}
}

type removeBackgroundRequest struct {
	ImageURL string `json:"image_url" binding:"required"`
}

// RemoveBackground strips the background from a product photo through the
// configured external service
func (h *ToolsHandler) RemoveBackground(c *gin.Context) {
	var req removeBackgroundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	result, err := h.imageOps.RemoveBackground(c.Request.Context(), req.ImageURL)
	if err != nil {
		if errors.Is(err, service.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Background removal failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

type resizeRequest struct {
	ImageURL string `json:"image_url" binding:"required"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Resize scales a product photo to the requested dimensions
func (h *ToolsHandler) Resize(c *gin.Context) {
	var req resizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.Width <= 0 && req.Height <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "width or height must be positive"})
		return
	}

	result, err := h.imageOps.Resize(c.Request.Context(), req.ImageURL, req.Width, req.Height)
	if err != nil {
		if errors.Is(err, service.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Resize failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

type hsCodeRequest struct {
	Description string `json:"description" binding:"required"`
}

// SuggestHsCode classifies a product description into a harmonized-system code
func (h *ToolsHandler) SuggestHsCode(c *gin.Context) {
	var req hsCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	suggestion, err := h.hsCodes.Suggest(c.Request.Context(), req.Description)
	if err != nil {
		if errors.Is(err, service.ErrNoProvider) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No AI provider configured"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Suggestion failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, suggestion)
}
