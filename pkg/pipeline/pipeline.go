// Package pipeline orchestrates the full catalog run: listing pagination,
// product extraction, review sentiment analysis, persistence and export.
// Stages run strictly in order; per-record failures inside a stage are
// logged and skipped, anything else aborts the run.
package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/amosWeiskopf/sneakscout/internal/config"
	"github.com/amosWeiskopf/sneakscout/internal/models"
	"github.com/amosWeiskopf/sneakscout/pkg/classifier"
	"github.com/amosWeiskopf/sneakscout/pkg/crawler"
	"github.com/amosWeiskopf/sneakscout/pkg/exporter"
	"github.com/amosWeiskopf/sneakscout/pkg/extractor"
	"github.com/amosWeiskopf/sneakscout/pkg/fetcher"
	"github.com/amosWeiskopf/sneakscout/pkg/store"
	"github.com/amosWeiskopf/sneakscout/pkg/utils"
)

// Pipeline wires the fetch-extract-classify-persist run.
type Pipeline struct {
	cfg        *config.Config
	fetcher    *fetcher.Fetcher
	extractor  *extractor.Extractor
	classifier *classifier.Classifier
	crawler    *crawler.Crawler
	store      *store.Store
	exporter   *exporter.Exporter
	log        *logrus.Logger
}

// New creates a new Pipeline instance
func New(cfg *config.Config, st *store.Store, log *logrus.Logger) *Pipeline {
	f := fetcher.New(fetcher.Options{
		Timeout:           cfg.Crawler.Timeout,
		RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
		UserAgent:         cfg.Crawler.UserAgent,
		FollowRobotsTxt:   cfg.Crawler.FollowRobotsTxt,
	}, log)

	return &Pipeline{
		cfg:        cfg,
		fetcher:    f,
		extractor:  extractor.New(log),
		classifier: classifier.New(),
		crawler:    crawler.New(f, cfg.Crawler.Concurrency, log),
		store:      st,
		exporter:   exporter.New(cfg.Export.TopN, log),
		log:        log,
	}
}

// Run executes the full pipeline: resolve listing pagination, scrape all
// listing pages, persist products, analyze each product's reviews, persist
// analyses, export the report.
func (p *Pipeline) Run(ctx context.Context) error {
	totalPages, err := p.resolveListingPages(ctx)
	if err != nil {
		return fmt.Errorf("resolve listing pagination: %w", err)
	}
	p.log.WithField("stage", "listing").Infof("total pages: %d", totalPages)

	products, err := p.scrapeListings(ctx, totalPages)
	if err != nil {
		return fmt.Errorf("scrape listings: %w", err)
	}
	p.log.WithField("stage", "listing").Infof("total products scraped: %d", len(products))

	p.persistProducts(ctx, products)

	analyses := p.analyzeAll(ctx, products)

	p.persistAnalyses(ctx, analyses)

	if err := p.exporter.Export(ctx, p.store, p.cfg.Export.Path); err != nil {
		return fmt.Errorf("export report: %w", err)
	}

	p.log.Info("done")
	return nil
}

// resolveListingPages fetches the catalog's first listing page and reads the
// total page count from its pagination marker.
func (p *Pipeline) resolveListingPages(ctx context.Context) (int, error) {
	body, err := p.fetcher.Fetch(ctx, p.cfg.Catalog.BaseURL)
	if err != nil {
		return 0, err
	}
	doc, err := extractor.Parse(body)
	if err != nil {
		return 0, err
	}
	return p.extractor.PageCount(doc), nil
}

// scrapeListings sequentially fetches listing pages for offsets
// 0..totalPages-2 and accumulates every extracted product. The last reported
// page is intentionally never fetched.
func (p *Pipeline) scrapeListings(ctx context.Context, totalPages int) ([]models.Product, error) {
	var products []models.Product

	for page := 1; page < totalPages; page++ {
		pageURL := p.cfg.ListingURL(page - 1)
		body, err := p.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		doc, err := extractor.Parse(body)
		if err != nil {
			return nil, err
		}
		products = append(products, p.extractor.Products(doc)...)
	}

	return products, nil
}

// persistProducts upserts every product. A single record's failure is
// logged and skipped; the loop continues.
func (p *Pipeline) persistProducts(ctx context.Context, products []models.Product) {
	log := p.log.WithField("stage", "persist-products")
	failed := 0
	for _, product := range products {
		if err := p.store.UpsertProduct(ctx, product); err != nil {
			log.Errorf("error saving product %s: %v", product.Name, err)
			failed++
		}
	}
	log.Infof("persisted %d products (%d failed)", len(products)-failed, failed)
}

// analyzeAll computes an Analysis per product. A product whose review
// analysis fails is logged and yields no record; the loop continues.
func (p *Pipeline) analyzeAll(ctx context.Context, products []models.Product) []models.Analysis {
	log := p.log.WithField("stage", "analyze")
	log.Info("analyzing reviews...")

	var analyses []models.Analysis
	for _, product := range products {
		positive, err := p.analyzeProduct(ctx, product)
		if err != nil {
			log.Errorf("error analyzing reviews for %s: %v", product.Name, err)
			continue
		}
		log.Infof("%s: %d positive reviews", utils.TruncateText(product.Name, 60), positive)
		analyses = append(analyses, models.Analysis{
			Name:            product.Name,
			Brand:           product.BrandName,
			PositiveReviews: positive,
		})
	}
	return analyses
}

// analyzeProduct counts the product's positive verified reviews. Products
// without a SKU or a known review count short-circuit to zero without
// issuing any fetch.
func (p *Pipeline) analyzeProduct(ctx context.Context, product models.Product) (int, error) {
	if !product.HasReviews() {
		return 0, nil
	}

	firstPage, err := p.fetcher.Fetch(ctx, p.cfg.ReviewURL(product.SKU, 1))
	if err != nil {
		return 0, err
	}
	doc, err := extractor.Parse(firstPage)
	if err != nil {
		return 0, err
	}
	reviewPages := p.extractor.PageCount(doc)

	counts, err := p.crawler.FetchAll(ctx,
		func(page int) string { return p.cfg.ReviewURL(product.SKU, page) },
		1, reviewPages, p.countPositives)
	if err != nil {
		return 0, err
	}

	positive := 0
	for _, n := range counts {
		positive += n
	}
	return positive, nil
}

// countPositives is the per-page handler: extract the page's verified
// reviews and count the ones that classify positive.
func (p *Pipeline) countPositives(_ context.Context, _ int, body string) (int, error) {
	doc, err := extractor.Parse(body)
	if err != nil {
		return 0, err
	}

	positive := 0
	for _, review := range p.extractor.Reviews(doc) {
		if p.classifier.Classify(review.Text) {
			positive++
		}
	}
	return positive, nil
}

// persistAnalyses upserts every analysis with the same per-record isolation
// as persistProducts.
func (p *Pipeline) persistAnalyses(ctx context.Context, analyses []models.Analysis) {
	log := p.log.WithField("stage", "persist-analysis")
	failed := 0
	for _, a := range analyses {
		if err := p.store.UpsertAnalysis(ctx, a); err != nil {
			log.Errorf("error saving analysis %s: %v", a.Name, err)
			failed++
		}
	}
	log.Infof("persisted %d analyses (%d failed)", len(analyses)-failed, failed)
}
