package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DR-Danke/Kompass-sub003/model"
	"github.com/DR-Danke/Kompass-sub003/pkg/logger"
)

// ErrJobNotCompleted is returned when import is requested on a job whose
// results do not exist yet
var ErrJobNotCompleted = errors.New("job is not completed")

// ProductCreator is the catalog surface the importer writes through
type ProductCreator interface {
	CreateProduct(ctx context.Context, req *ProductCreateRequest) (*ProductCreateResponse, error)
}

// ImportRequest selects records of a completed job for catalog creation.
// An empty ProductIndices means every record; CategoryID, when set, applies
// to every imported record.
type ImportRequest struct {
	JobID          string `json:"job_id" binding:"required"`
	SupplierID     string `json:"supplier_id" binding:"required"`
	ProductIndices []int  `json:"product_indices"`
	CategoryID     string `json:"category_id"`
}

// ImportError identifies one record that could not be imported
type ImportError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ImportResult is the outcome of a confirm-import call
type ImportResult struct {
	ImportedCount int           `json:"imported_count"`
	FailedCount   int           `json:"failed_count"`
	Errors        []ImportError `json:"errors"`
}

// Importer turns selected records of a completed extraction job into
// product-creation calls. Records are independent: one failing record is
// reported and the rest still import.
type Importer struct {
	jobs    *JobManager
	catalog ProductCreator
}

func NewImporter(jobs *JobManager, catalog ProductCreator) *Importer {
	return &Importer{jobs: jobs, catalog: catalog}
}

// Import creates catalog products for the selected records of a completed
// job. Jobs of other tenants are indistinguishable from missing ones.
func (im *Importer) Import(ctx context.Context, tenant string, req *ImportRequest) (*ImportResult, error) {
	job, err := im.jobs.Get(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.Tenant != tenant {
		return nil, ErrJobNotFound
	}
	if job.Status != model.StatusCompleted || job.Results == nil {
		return nil, fmt.Errorf("%w: status is %s", ErrJobNotCompleted, job.Status)
	}

	products := job.Results.Products
	indices := req.ProductIndices
	if len(indices) == 0 {
		indices = make([]int, len(products))
		for i := range products {
			indices[i] = i
		}
	}

	result := &ImportResult{Errors: []ImportError{}}
	for _, idx := range indices {
		if idx < 0 || idx >= len(products) {
			result.FailedCount++
			result.Errors = append(result.Errors, ImportError{
				Index:  idx,
				Reason: fmt.Sprintf("index out of range, job has %d products", len(products)),
			})
			continue
		}

		createReq := buildCreateRequest(req.SupplierID, req.CategoryID, products[idx])
		if _, err := im.catalog.CreateProduct(ctx, createReq); err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, ImportError{Index: idx, Reason: err.Error()})
			continue
		}
		result.ImportedCount++
	}

	logger.Info(ctx, "import finished",
		"supplier", req.SupplierID,
		"imported", result.ImportedCount,
		"failed", result.FailedCount,
	)
	return result, nil
}

// buildCreateRequest maps one extracted record onto a catalog create call.
// Material has no catalog field, so it is folded into the description. The
// unit of measure passes through untranslated.
func buildCreateRequest(supplierID, categoryID string, p *model.ExtractedProduct) *ProductCreateRequest {
	name := p.Name
	if name == "" {
		name = p.SKU
	}

	description := strings.TrimSpace(p.Description)
	if p.Material != "" {
		if description != "" {
			description += "\n"
		}
		description += "Material: " + p.Material
	}

	return &ProductCreateRequest{
		SupplierID:    supplierID,
		SKU:           p.SKU,
		Name:          name,
		Description:   description,
		PriceFobUSD:   p.PriceFobUSD,
		MOQ:           p.MOQ,
		Dimensions:    p.Dimensions,
		UnitOfMeasure: p.UnitOfMeasure,
		CategoryID:    categoryID,
		ImageURLs:     p.ImageURLs,
	}
}
