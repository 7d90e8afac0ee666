package model

// ExtractedProduct is one candidate product record produced by an extractor.
// Every business field is optional; only ConfidenceScore is always present.
// PriceFobUSD and MOQ are pointers so an absent value is distinguishable
// from zero.
type ExtractedProduct struct {
	SKU               string   `json:"sku,omitempty"`
	Name              string   `json:"name,omitempty"`
	Description       string   `json:"description,omitempty"`
	PriceFobUSD       *float64 `json:"price_fob_usd,omitempty"`
	MOQ               *int     `json:"moq,omitempty"`
	Dimensions        string   `json:"dimensions,omitempty"`
	Material          string   `json:"material,omitempty"`
	SuggestedCategory string   `json:"suggested_category,omitempty"`
	UnitOfMeasure     string   `json:"unit_of_measure,omitempty"`
	ImageURLs         []string `json:"image_urls,omitempty"`
	RawText           string   `json:"raw_text,omitempty"`
	SourcePage        int      `json:"source_page,omitempty"` // 1-based
	ConfidenceScore   float64  `json:"confidence_score"`
}

// ExtractionResult aggregates one job's extraction outcome. Products keep
// discovery order: files in upload order, rows/pages in document order.
type ExtractionResult struct {
	Products              []*ExtractedProduct `json:"products"`
	Errors                []string            `json:"errors"`
	Warnings              []string            `json:"warnings"`
	TotalExtracted        int                 `json:"total_extracted"`
	ProcessingTimeSeconds float64             `json:"processing_time_seconds"`
}

// HsCodeSuggestion is a standalone harmonized-system code suggestion,
// not attached to any job.
type HsCodeSuggestion struct {
	Code            string  `json:"code"` // format XXXX.XX.XX
	Description     string  `json:"description"`
	ConfidenceScore float64 `json:"confidence_score"`
	Reasoning       string  `json:"reasoning,omitempty"`
}

// ImageProcessingResult describes one standalone image operation.
type ImageProcessingResult struct {
	OriginalURL  string `json:"original_url"`
	ProcessedURL string `json:"processed_url"`
	Operation    string `json:"operation"` // remove_bg, resize
}

// Image operation constants
const (
	OperationRemoveBg = "remove_bg"
	OperationResize   = "resize"
)
