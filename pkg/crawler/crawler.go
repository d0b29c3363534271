package crawler

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/amosWeiskopf/sneakscout/pkg/fetcher"
)

// DefaultConcurrency caps in-flight page fetches when no limit is configured.
const DefaultConcurrency = 10

// PageHandler processes one fetched page and returns its contribution to the
// aggregate. Pages complete in arbitrary order; results must be reduced, not
// positionally matched.
type PageHandler func(ctx context.Context, page int, body string) (int, error)

// Crawler fetches a range of pages concurrently under a fixed in-flight
// limit. Each page is independent: one page's failure never cancels the
// others.
type Crawler struct {
	fetcher *fetcher.Fetcher
	limit   int64
	log     *logrus.Logger
}

// New creates a new Crawler instance
func New(f *fetcher.Fetcher, concurrency int, log *logrus.Logger) *Crawler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Crawler{fetcher: f, limit: int64(concurrency), log: log}
}

type pageError struct {
	page int
	err  error
}

// FetchAll fetches pages firstPage..firstPage+pageCount-1, at most the
// configured limit in flight at once, and runs handler on each body. All
// pages run to completion; if any page failed, the lowest-numbered page's
// error is returned after the rest have finished.
func (c *Crawler) FetchAll(ctx context.Context, urlFor func(page int) string, firstPage, pageCount int, handler PageHandler) ([]int, error) {
	sem := semaphore.NewWeighted(c.limit)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []int
		errs    []pageError
	)

	for page := firstPage; page < firstPage+pageCount; page++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}

		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			defer sem.Release(1)

			result, err := c.fetchPage(ctx, urlFor(page), page, handler)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, pageError{page: page, err: err})
				return
			}
			results = append(results, result)
		}(page)
	}

	wg.Wait()

	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].page < errs[j].page })
		return nil, errs[0].err
	}
	return results, nil
}

func (c *Crawler) fetchPage(ctx context.Context, pageURL string, page int, handler PageHandler) (int, error) {
	body, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		c.log.WithField("page", page).Warnf("page fetch failed: %v", err)
		return 0, err
	}
	return handler(ctx, page, body)
}
