package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/sneakscout/pkg/fetcher"
)

func testCrawler(concurrency int) *Crawler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	f := fetcher.New(fetcher.Options{
		RequestsPerSecond: 1000,
		FollowRobotsTxt:   false,
	}, log)
	return New(f, concurrency, log)
}

func TestFetchAllAggregates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "page %s", strings.TrimPrefix(r.URL.Path, "/"))
	}))
	defer server.Close()

	c := testCrawler(3)

	results, err := c.FetchAll(context.Background(),
		func(page int) string { return fmt.Sprintf("%s/%d", server.URL, page) },
		1, 5,
		func(_ context.Context, page int, body string) (int, error) {
			assert.Equal(t, fmt.Sprintf("page %d", page), body)
			return page, nil
		})
	require.NoError(t, err)
	require.Len(t, results, 5)

	// Results arrive in completion order and are reduced, not matched
	// positionally.
	sum := 0
	for _, n := range results {
		sum += n
	}
	assert.Equal(t, 1+2+3+4+5, sum)
}

func TestFetchAllRespectsConcurrencyLimit(t *testing.T) {
	const limit = 5

	var inFlight, highWater int64
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&inFlight, 1)
		mu.Lock()
		if n > highWater {
			highWater = n
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := testCrawler(limit)

	results, err := c.FetchAll(context.Background(),
		func(page int) string { return fmt.Sprintf("%s/%d", server.URL, page) },
		1, 30,
		func(_ context.Context, _ int, _ string) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Len(t, results, 30)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, highWater, int64(limit))
	assert.Greater(t, highWater, int64(1))
}

func TestFetchAllOnePageFailureDoesNotBlockOthers(t *testing.T) {
	var served int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&served, 1)
		if r.URL.Path == "/3" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := testCrawler(2)

	_, err := c.FetchAll(context.Background(),
		func(page int) string { return fmt.Sprintf("%s/%d", server.URL, page) },
		1, 6,
		func(_ context.Context, _ int, _ string) (int, error) { return 1, nil })

	// The failing page's error propagates, but only after every page ran.
	require.Error(t, err)
	var netErr *fetcher.NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.Equal(t, int64(6), atomic.LoadInt64(&served))
}

func TestFetchAllHandlerErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := testCrawler(2)

	_, err := c.FetchAll(context.Background(),
		func(page int) string { return fmt.Sprintf("%s/%d", server.URL, page) },
		1, 4,
		func(_ context.Context, page int, _ string) (int, error) {
			if page == 2 {
				return 0, fmt.Errorf("bad page")
			}
			return 1, nil
		})
	require.EqualError(t, err, "bad page")
}
