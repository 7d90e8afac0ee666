package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/DR-Danke/Kompass-sub003/config"
	"github.com/DR-Danke/Kompass-sub003/model"
)

// maxImageFetchBytes bounds how much of a source image URL is read
const maxImageFetchBytes = 20 << 20

// ErrNotConfigured is returned when an image operation needs a collaborator
// that has no configuration
var ErrNotConfigured = errors.New("not configured")

// ImageOps implements the standalone image tools: background removal through
// an external service and local resizing. Processed output is written to
// object storage, so storage must be configured for these operations.
type ImageOps struct {
	cfg        *config.ImageToolsConfig
	storage    ImageStorer
	httpClient *http.Client
}

func NewImageOps(cfg *config.ImageToolsConfig, storage ImageStorer) *ImageOps {
	return &ImageOps{
		cfg:     cfg,
		storage: storage,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type removeBgRequest struct {
	ImageURL string `json:"image_url"`
	Size     string `json:"size"`
}

// RemoveBackground sends the image to the background-removal service and
// stores the returned cutout
func (o *ImageOps) RemoveBackground(ctx context.Context, imageURL string) (*model.ImageProcessingResult, error) {
	if o.cfg.RemoveBgURL == "" {
		return nil, fmt.Errorf("background removal service is %w", ErrNotConfigured)
	}
	if o.storage == nil {
		return nil, fmt.Errorf("object storage is %w", ErrNotConfigured)
	}

	jsonData, err := json.Marshal(removeBgRequest{ImageURL: imageURL, Size: "auto"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.RemoveBgURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", o.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("background removal error: status %d: %s", resp.StatusCode, string(body))
	}

	objectName := fmt.Sprintf("processed/%s.png", uuid.NewString())
	processedURL, err := o.storage.StoreImage(ctx, objectName, body, "image/png")
	if err != nil {
		return nil, fmt.Errorf("failed to store processed image: %w", err)
	}

	return &model.ImageProcessingResult{
		OriginalURL:  imageURL,
		ProcessedURL: processedURL,
		Operation:    model.OperationRemoveBg,
	}, nil
}

// Resize fetches the image, scales it and stores the result as JPEG. A zero
// width or height preserves the aspect ratio.
func (o *ImageOps) Resize(ctx context.Context, imageURL string, width, height int) (*model.ImageProcessingResult, error) {
	if width <= 0 && height <= 0 {
		return nil, fmt.Errorf("width or height must be positive")
	}
	if o.storage == nil {
		return nil, fmt.Errorf("object storage is %w", ErrNotConfigured)
	}

	data, err := o.fetchImage(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	resized := imaging.Resize(img, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(o.cfg.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	objectName := fmt.Sprintf("processed/%s.jpg", uuid.NewString())
	processedURL, err := o.storage.StoreImage(ctx, objectName, buf.Bytes(), "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("failed to store processed image: %w", err)
	}

	return &model.ImageProcessingResult{
		OriginalURL:  imageURL,
		ProcessedURL: processedURL,
		Operation:    model.OperationResize,
	}, nil
}

func (o *ImageOps) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}
