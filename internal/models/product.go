package models

// Product is one catalog entry extracted from a listing page's embedded
// structured data. Name is the natural key; two blocks with the same name
// overwrite each other on persistence.
type Product struct {
	Name      string  `json:"name"`
	BrandName string  `json:"brand_name"`
	Price     float64 `json:"price"`
	// ReviewCount is nil when the listing carried no aggregate rating.
	// A nil count (or an empty SKU) disables review analysis for the product.
	ReviewCount *int   `json:"review_count,omitempty"`
	SKU         string `json:"sku"`
	URL         string `json:"url"`
}

// HasReviews reports whether the product carries enough metadata to fetch
// its review thread.
func (p Product) HasReviews() bool {
	return p.SKU != "" && p.ReviewCount != nil
}

// Analysis is the per-product review sentiment summary. It is keyed by the
// product name and replaced wholesale on every run, never incremented.
type Analysis struct {
	Name            string `json:"name"`
	Brand           string `json:"brand"`
	PositiveReviews int    `json:"positive_reviews"`
}

// Review is a single customer review lifted from a review page. Reviews are
// transient: they live for one fetch-classify cycle and are never persisted.
type Review struct {
	Text     string
	Verified bool
}
