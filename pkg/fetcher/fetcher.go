package fetcher

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0",
}

// NetworkError wraps any failure to retrieve a page: transport errors,
// non-200 responses, robots.txt denial, and body read failures. It is never
// retried; the stage that issued the fetch decides whether it aborts.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Options configures a Fetcher.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond int
	UserAgent         string // empty means rotate through browser agents
	FollowRobotsTxt   bool
}

// Fetcher retrieves raw page text over HTTP. All fetches share one client,
// one rate limiter and a per-domain robots.txt cache.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	robots    bool
	log       *logrus.Logger

	mu         sync.Mutex
	robotsData map[string]*robotstxt.RobotsData
}

// New creates a Fetcher with the given options.
func New(opts Options, log *logrus.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}

	jar, _ := cookiejar.New(nil)
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     30 * time.Second,
	}

	return &Fetcher{
		client:     &http.Client{Transport: transport, Timeout: opts.Timeout, Jar: jar},
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.RequestsPerSecond),
		userAgent:  opts.UserAgent,
		robots:     opts.FollowRobotsTxt,
		log:        log,
		robotsData: make(map[string]*robotstxt.RobotsData),
	}
}

// Fetch retrieves pageURL and returns the response body as text. Any failure
// is reported as a *NetworkError.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if f.robots && !f.allowedByRobots(pageURL) {
		return "", &NetworkError{URL: pageURL, Err: fmt.Errorf("disallowed by robots.txt")}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return "", &NetworkError{URL: pageURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &NetworkError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", f.agent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &NetworkError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &NetworkError{URL: pageURL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{URL: pageURL, Err: err}
	}

	return string(body), nil
}

func (f *Fetcher) agent() string {
	if f.userAgent != "" {
		return f.userAgent
	}
	return userAgents[rand.Intn(len(userAgents))]
}

// allowedByRobots checks pageURL against the site's robots.txt. Rules are
// cached per root domain (eTLD+1); an unreachable or unparsable robots.txt
// allows everything.
func (f *Fetcher) allowedByRobots(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return true
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
	if err != nil {
		domain = u.Host
	}

	f.mu.Lock()
	robots, ok := f.robotsData[domain]
	f.mu.Unlock()

	if !ok {
		robots = f.loadRobots(u)
		f.mu.Lock()
		f.robotsData[domain] = robots
		f.mu.Unlock()
	}

	if robots == nil {
		return true
	}
	return robots.TestAgent(u.Path, "sneakscout")
}

func (f *Fetcher) loadRobots(u *url.URL) *robotstxt.RobotsData {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	resp, err := f.client.Get(robotsURL)
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			resp.Body.Close()
		}
		return nil
	}
	defer resp.Body.Close()

	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		f.log.WithField("url", robotsURL).Warnf("unparsable robots.txt: %v", err)
		return nil
	}
	return robots
}
