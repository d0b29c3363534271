package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/amosWeiskopf/sneakscout/internal/config"
	"github.com/amosWeiskopf/sneakscout/pkg/store"
)

const listingPage = `<html><body>
	<span class="eo-z">1 of 2</span>
	<script type="application/ld+json">
		{"@type":"Product","name":"AirZoom","brand":{"name":"Nike"},
		 "offers":{"price":"99.99"},"aggregateRating":{"reviewCount":3},
		 "sku":"SKU1","url":"https://shop.example.com/p/airzoom"}
	</script>
	<script type="application/ld+json">
		{"@type":"Product","name":"Slider","brand":{"name":"Adidas"},
		 "offers":{"price":"49.99"},"aggregateRating":{"reviewCount":9}}
	</script>
	<script type="application/ld+json">
		{"@type":"Product","name":"Runner","brand":{"name":"Asics"},
		 "offers":{"price":"119.99"},"sku":"SKU3"}
	</script>
</body></html>`

const reviewPage1 = `<html><body>
	<span class="eo-z">1 of 2</span>
	<div class="Ba-z">
		<span class="_p-z">Verified</span>
		<div class="Sp-z" itemprop="reviewBody"><div class="mq-z nq-z">Great shoes, fast shipping</div></div>
	</div>
	<div class="Ba-z">
		<span class="_p-z">Verified</span>
		<div class="Sp-z" itemprop="reviewBody"><div class="mq-z nq-z">Had to return them, too small</div></div>
	</div>
	<div class="Ba-z">
		<div class="Sp-z" itemprop="reviewBody"><div class="mq-z nq-z">Amazing, would buy again</div></div>
	</div>
</body></html>`

const reviewPage2 = `<html><body>
	<div class="Ba-z">
		<span class="_p-z">Verified</span>
		<div class="Sp-z" itemprop="reviewBody"><div class="mq-z nq-z">Love them, super comfortable</div></div>
	</div>
</body></html>`

// catalogServer fakes the catalog site and records every request path.
type catalogServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []string
}

func newCatalogServer(t *testing.T) *catalogServer {
	t.Helper()
	cs := &catalogServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.requests = append(cs.requests, r.URL.RequestURI())
		cs.mu.Unlock()

		switch {
		case r.URL.Path == "/catalog" && r.URL.RawQuery == "":
			w.Write([]byte(`<html><body><span class="eo-z">1 of 2</span></body></html>`))
		case r.URL.Path == "/catalog" && r.URL.Query().Get("p") == "0":
			w.Write([]byte(listingPage))
		case r.URL.Path == "/review/SKU1/page/1":
			w.Write([]byte(reviewPage1))
		case r.URL.Path == "/review/SKU1/page/2":
			w.Write([]byte(reviewPage2))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *catalogServer) requested(uri string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	n := 0
	for _, r := range cs.requests {
		if r == uri {
			n++
		}
	}
	return n
}

func (cs *catalogServer) requestedPrefix(prefix string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	n := 0
	for _, r := range cs.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func testConfig(serverURL, dir string) *config.Config {
	return &config.Config{
		Catalog: config.CatalogConfig{
			BaseURL:          serverURL + "/catalog",
			ListingURLFormat: "%s?p=%d",
			ReviewURLFormat:  serverURL + "/review/%s/page/%d",
		},
		Crawler: config.CrawlerConfig{
			Concurrency:       2,
			RequestsPerSecond: 100,
			Timeout:           5 * time.Second,
		},
		Storage: config.StorageConfig{Path: filepath.Join(dir, "test.db")},
		Export:  config.ExportConfig{Path: filepath.Join(dir, "report.xlsx"), TopN: 20},
		Logging: config.LoggingConfig{Level: "error"},
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestRunEndToEnd(t *testing.T) {
	cs := newCatalogServer(t)
	dir := t.TempDir()
	cfg := testConfig(cs.URL, dir)

	st, err := store.Open(cfg.Storage.Path)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, New(cfg, st, testLogger()).Run(context.Background()))

	ctx := context.Background()

	products, err := st.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "AirZoom", products[0].Name)
	assert.Equal(t, 99.99, products[0].Price)

	// AirZoom: page 1 has one verified positive (the "return" review and the
	// unverified review do not count), page 2 adds another.
	analyses, err := st.Analyses(ctx)
	require.NoError(t, err)
	require.Len(t, analyses, 3)

	byName := map[string]int{}
	for _, a := range analyses {
		byName[a.Name] = a.PositiveReviews
	}
	assert.Equal(t, 2, byName["AirZoom"])
	assert.Equal(t, 0, byName["Slider"])
	assert.Equal(t, 0, byName["Runner"])

	// The last reported listing page is never fetched.
	assert.Equal(t, 1, cs.requested("/catalog?p=0"))
	assert.Zero(t, cs.requested("/catalog?p=1"))

	// Products without a SKU or review count must not trigger review fetches.
	assert.Zero(t, cs.requestedPrefix("/review/SKU3/"))
	assert.Equal(t, 2, cs.requested("/review/SKU1/page/1")) // pagination resolve + crawl
	assert.Equal(t, 1, cs.requested("/review/SKU1/page/2"))

	// Exported workbook reflects store contents.
	f, err := excelize.OpenFile(cfg.Export.Path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Sneakers")
	require.NoError(t, err)
	assert.Len(t, rows, 4) // header + 3 products

	rows, err = f.GetRows("Most Sold")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 2)
	assert.Equal(t, "AirZoom", rows[1][0])
}

func TestRunSingleProductScenario(t *testing.T) {
	// A 2-page listing where page 0 holds one product: exactly one product is
	// persisted and the catalog sheet has exactly one data row.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/catalog" && r.URL.RawQuery == "":
			w.Write([]byte(`<html><body><span class="eo-z">1 of 2</span></body></html>`))
		case r.URL.Path == "/catalog" && r.URL.Query().Get("p") == "0":
			w.Write([]byte(`<html><body><script type="application/ld+json">
				{"@type":"Product","name":"AirZoom","offers":{"price":99.99},
				 "aggregateRating":{"reviewCount":3},"sku":"SKU1"}
			</script></body></html>`))
		case r.URL.Path == "/review/SKU1/page/1":
			w.Write([]byte(`<html><body></body></html>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	cfg := testConfig(server.URL, dir)

	st, err := store.Open(cfg.Storage.Path)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, New(cfg, st, testLogger()).Run(context.Background()))

	products, err := st.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "AirZoom", products[0].Name)

	f, err := excelize.OpenFile(cfg.Export.Path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Sneakers")
	require.NoError(t, err)
	assert.Len(t, rows, 2) // header + 1 data row
}

func TestRunAbortsOnListingFetchFailure(t *testing.T) {
	// A listing-page failure is a full-run loss: nothing was persisted yet.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/catalog" && r.URL.RawQuery == "":
			w.Write([]byte(`<html><body><span class="eo-z">1 of 3</span></body></html>`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	cfg := testConfig(server.URL, dir)

	st, err := store.Open(cfg.Storage.Path)
	require.NoError(t, err)
	defer st.Close()

	err = New(cfg, st, testLogger()).Run(context.Background())
	require.Error(t, err)

	products, perr := st.Products(context.Background())
	require.NoError(t, perr)
	assert.Empty(t, products)
}

func TestAnalysisFailureIsolatedPerProduct(t *testing.T) {
	// SKU1's review thread 500s; AirZoom gets no analysis row but the other
	// products still do.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/catalog" && r.URL.RawQuery == "":
			w.Write([]byte(`<html><body><span class="eo-z">1 of 2</span></body></html>`))
		case r.URL.Path == "/catalog" && r.URL.Query().Get("p") == "0":
			w.Write([]byte(listingPage))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	cfg := testConfig(server.URL, dir)

	st, err := store.Open(cfg.Storage.Path)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, New(cfg, st, testLogger()).Run(context.Background()))

	analyses, err := st.Analyses(context.Background())
	require.NoError(t, err)
	require.Len(t, analyses, 2)
	for _, a := range analyses {
		assert.NotEqual(t, "AirZoom", a.Name)
	}
}
