package crawl

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/listing-classifier/internal/resilience"
)

// ErrDisallowed is returned when robots.txt forbids fetching a URL.
var ErrDisallowed = eris.New("fetch: disallowed by robots.txt")

// Page is a fetched listing page.
type Page struct {
	// URL is the resolved URL after redirects.
	URL        string
	StatusCode int
	Body       []byte
}

// Fetcher retrieves one page. Implementations own retry and rate limiting.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent         string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int
	ObeyRobots        bool
	MaxBodyBytes      int64
}

// AdaptiveLimiter wraps a rate.Limiter shared by every lineage. A 429
// halves the rate (down to a quarter of the configured rate); each success
// recovers 20% of it, never above the configured rate.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter starting at initialRate.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess moves the rate back toward the configured rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentRate >= a.initialRate {
		return
	}
	newRate := a.currentRate * 1.2
	if newRate > a.initialRate {
		newRate = a.initialRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate after a 429 response.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("fetch: reducing request rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with retry, a shared rate
// limit, block detection and robots.txt checks.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *AdaptiveLimiter
	retry   resilience.RetryConfig

	robotsMu sync.Mutex
	robots   map[string]*robotstxt.RobotsData
}

// NewHTTPFetcher creates an HTTPFetcher, filling zero options with defaults.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "listing-classifier/1.0"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 << 20
	}

	retry := resilience.WithAttempts(opts.MaxRetries)
	retry.OnRetry = resilience.RetryLogger("coconala", "fetch")

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		retry:   retry,
		robots:  make(map[string]*robotstxt.RobotsData),
	}
}

// Fetch downloads targetURL. Transient failures (timeouts, 408, 429, 5xx)
// are retried with backoff; every attempt waits on the shared limiter.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %q", targetURL)
	}

	if f.opts.ObeyRobots {
		allowed, err := f.allowedByRobots(ctx, u)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, eris.Wrapf(ErrDisallowed, "fetch: %s", targetURL)
		}
	}

	page, err := resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*Page, error) {
		return f.fetchOnce(ctx, targetURL)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: %s", targetURL)
	}
	return page, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, targetURL string) (*Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "ja")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("blocked (%s)", kind)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		f.limiter.OnRateLimit()
	}
	if err := resilience.CheckStatus(targetURL, resp.StatusCode); err != nil {
		return nil, err
	}
	f.limiter.OnSuccess()

	return &Page{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// allowedByRobots checks u against the host's robots.txt, loading it once
// per host. An unreachable robots.txt allows everything.
func (f *HTTPFetcher) allowedByRobots(ctx context.Context, u *url.URL) (bool, error) {
	f.robotsMu.Lock()
	defer f.robotsMu.Unlock()

	data, ok := f.robots[u.Host]
	if !ok {
		var err error
		data, err = f.loadRobots(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return false, eris.Wrap(ctx.Err(), "fetch: robots.txt")
			}
			zap.L().Warn("fetch: robots.txt unavailable, allowing all",
				zap.String("host", u.Host),
				zap.Error(err),
			)
			data = nil
		}
		f.robots[u.Host] = data
	}
	if data == nil {
		return true, nil
	}
	return data.TestAgent(u.RequestURI(), f.opts.UserAgent), nil
}

func (f *HTTPFetcher) loadRobots(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	robotsURL := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "create robots request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetch robots.txt")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, eris.Wrap(err, "parse robots.txt")
	}
	return data, nil
}
