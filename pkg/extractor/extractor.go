package extractor

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/amosWeiskopf/sneakscout/internal/models"
	"github.com/amosWeiskopf/sneakscout/pkg/utils"
)

// Catalog page selectors. The site renders product records as ld+json blocks
// and review threads as obfuscated-class containers.
const (
	paginationSelector    = ".eo-z"
	productScriptSelector = `script[type="application/ld+json"]`
	reviewSelector        = "div.Ba-z"
	verifiedBadgeSelector = "._p-z"
	reviewBodySelector    = `div.Sp-z[itemprop="reviewBody"] .mq-z.nq-z`
)

var paginationPattern = regexp.MustCompile(`1 of (\d+)`)

// Extractor pulls structured product and review data out of parsed catalog
// pages.
type Extractor struct {
	log *logrus.Logger
}

// New creates a new Extractor instance
func New(log *logrus.Logger) *Extractor {
	return &Extractor{log: log}
}

// Parse builds a queryable document from raw page text.
func Parse(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// PageCount resolves the total page count from a page's pagination marker.
// A missing or malformed marker means a single page; callers must not treat
// the count as authoritative.
func (e *Extractor) PageCount(doc *goquery.Document) int {
	pagination := doc.Find(paginationSelector).First()
	if pagination.Length() == 0 {
		return 1
	}

	match := paginationPattern.FindStringSubmatch(pagination.Text())
	if match == nil {
		return 1
	}

	n, err := strconv.Atoi(match[1])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// productRecord is the self-describing ld+json shape embedded in listing
// pages. Only "@type": "Product" blocks are of interest; price and review
// count tolerate both numeric and quoted-numeric JSON.
type productRecord struct {
	Type  string `json:"@type"`
	Name  string `json:"name"`
	Brand struct {
		Name string `json:"name"`
	} `json:"brand"`
	Offers struct {
		Price flexFloat `json:"price"`
	} `json:"offers"`
	AggregateRating struct {
		ReviewCount *flexInt `json:"reviewCount"`
	} `json:"aggregateRating"`
	SKU string `json:"sku"`
	URL string `json:"url"`
}

// Products extracts one Product per valid "Product"-typed structured-data
// block. A malformed block is logged and skipped without aborting the rest.
func (e *Extractor) Products(doc *goquery.Document) []models.Product {
	var products []models.Product

	doc.Find(productScriptSelector).Each(func(i int, s *goquery.Selection) {
		var record productRecord
		if err := json.Unmarshal([]byte(s.Text()), &record); err != nil {
			e.log.WithField("block", i).Errorf("error extracting product: %v", err)
			return
		}
		if record.Type != "Product" {
			return
		}

		products = append(products, models.Product{
			Name:        record.Name,
			BrandName:   record.Brand.Name,
			Price:       float64(record.Offers.Price),
			ReviewCount: record.AggregateRating.ReviewCount.value(),
			SKU:         record.SKU,
			URL:         record.URL,
		})
	})

	return products
}

// Reviews extracts the page's customer reviews. Reviews without a
// verified-purchase badge are excluded entirely; reviews without a body are
// excluded from scoring but do not fail the page.
func (e *Extractor) Reviews(doc *goquery.Document) []models.Review {
	var reviews []models.Review

	doc.Find(reviewSelector).Each(func(_ int, s *goquery.Selection) {
		if s.Find(verifiedBadgeSelector).Length() == 0 {
			return
		}

		body := s.Find(reviewBodySelector).First()
		if body.Length() == 0 {
			return
		}

		reviews = append(reviews, models.Review{
			Text:     utils.CleanText(body.Text()),
			Verified: true,
		})
	})

	return reviews
}

// flexFloat decodes a JSON number or a quoted number, defaulting to 0 when
// the value is absent or unparsable.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// flexInt decodes a JSON integer or quoted integer. Unlike flexFloat,
// unparsable input is an error: a zeroed review count would wrongly enable
// a review crawl for a product whose metadata is broken, so the whole block
// is treated as malformed instead.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*n = flexInt(v)
	return nil
}

func (n *flexInt) value() *int {
	if n == nil {
		return nil
	}
	v := int(*n)
	return &v
}
