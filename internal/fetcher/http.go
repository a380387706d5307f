package fetcher

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lending-harvest/internal/resilience"
)

// maxBodyBytes caps a single response body (annual report PDFs run large).
const maxBodyBytes = 64 << 20

// DefaultUserAgents is the desktop browser pool headers are drawn from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	Timeout    time.Duration
	MaxRetries int
	UserAgents []string

	// PaceMin and PaceMax bound the random pause before every attempt.
	PaceMin, PaceMax time.Duration
	// BackoffMin and BackoffMax bound the random pause after a soft failure.
	BackoffMin, BackoffMax time.Duration

	// RateLimiters overrides the per-host limiter; other hosts get
	// HostRate with burst 1.
	RateLimiters map[string]*rate.Limiter
	HostRate     rate.Limit

	// BlockThreshold consecutive blocks from one host open its breaker for
	// BlockCooldown.
	BlockThreshold int
	BlockCooldown  time.Duration

	// Sleep replaces the real timer for pacing and backoff.
	Sleep resilience.SleepFunc
}

// HTTPFetcher implements Fetcher using net/http.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	breakers *resilience.HostBreakers

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = DefaultUserAgents
	}
	if opts.PaceMin == 0 && opts.PaceMax == 0 {
		opts.PaceMin, opts.PaceMax = time.Second, 3*time.Second
	}
	if opts.BackoffMin == 0 && opts.BackoffMax == 0 {
		opts.BackoffMin, opts.BackoffMax = 5*time.Second, 10*time.Second
	}
	if opts.HostRate == 0 {
		opts.HostRate = rate.Limit(1)
	}
	if opts.Sleep == nil {
		opts.Sleep = resilience.Sleep
	}

	limiters := make(map[string]*rate.Limiter, len(opts.RateLimiters))
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 4,
		MaxConnsPerHost:     8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts: opts,
		breakers: resilience.NewHostBreakers(resilience.CircuitBreakerConfig{
			FailureThreshold: opts.BlockThreshold,
			Cooldown:         opts.BlockCooldown,
			ShouldTrip:       func(err error) bool { return errors.Is(err, ErrBlocked) },
		}),
		limiters: limiters,
	}
}

// Breakers exposes per-host block state.
func (f *HTTPFetcher) Breakers() *resilience.HostBreakers {
	return f.breakers
}

func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.opts.HostRate, 1)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch performs req with pacing, block detection and retries. Soft
// failures (transport errors, timeouts, non-2xx other than 403) are retried
// up to MaxRetries attempts; blocks stop immediately with ErrBlocked.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	method, target, form, err := req.target()
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(target)
	host := u.Host

	cb := f.breakers.Get(host)
	if err := cb.Allow(); err != nil {
		return nil, eris.Wrapf(ErrBlocked, "host %s circuit open", host)
	}

	attempts := req.MaxRetries
	if attempts <= 0 {
		attempts = f.opts.MaxRetries
	}

	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", target))

	n := 0
	body, err := resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts: attempts,
		Backoff: func(int) time.Duration {
			return resilience.Uniform(f.opts.BackoffMin, f.opts.BackoffMax)
		},
		ShouldRetry: resilience.IsTransient,
		OnRetry:     resilience.RetryLogger("fetcher", method+" "+target),
		Sleep:       f.opts.Sleep,
	}, func(ctx context.Context) ([]byte, error) {
		n++
		return f.attempt(ctx, method, target, host, form, req.Referer, n)
	})

	switch {
	case err == nil:
		cb.Record(nil)
		return body, nil
	case errors.Is(err, ErrBlocked):
		cb.Record(err)
		log.Warn("fetch blocked", zap.Int("attempt", n), zap.Error(err))
		return nil, err
	case ctx.Err() != nil:
		return nil, eris.Wrap(ctx.Err(), "fetcher: cancelled")
	case !resilience.IsTransient(err):
		return nil, err
	default:
		log.Warn("fetch gave up", zap.Int("attempts", n), zap.Error(err))
		return nil, eris.Wrapf(ErrExhausted, "%s after %d attempts: %v", target, n, err)
	}
}

func (f *HTTPFetcher) attempt(ctx context.Context, method, target, host, form, referer string, n int) ([]byte, error) {
	if err := f.opts.Sleep(ctx, resilience.Uniform(f.opts.PaceMin, f.opts.PaceMax)); err != nil {
		return nil, eris.Wrap(err, "fetcher: pacing")
	}
	if err := f.limiterFor(host).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	var rdr io.Reader
	if form != "" {
		rdr = strings.NewReader(form)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	f.setHeaders(httpReq, referer)
	if form != "" {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	zap.L().Debug("fetch attempt", zap.String("url", target), zap.Int("attempt", n))

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetcher: %s %s", method, target), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetcher: read body %s", target), resp.StatusCode)
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, eris.Wrapf(ErrBlocked, "%s (%s, status %d)", target, kind, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.NewTransientError(
			eris.Errorf("fetcher: http %d from %s", resp.StatusCode, target), resp.StatusCode)
	}

	return decodeBody(resp.Header.Get("Content-Type"), body), nil
}

func (f *HTTPFetcher) setHeaders(req *http.Request, referer string) {
	req.Header.Set("User-Agent", f.opts.UserAgents[rand.IntN(len(f.opts.UserAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Connection", "keep-alive")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

// FetchToFile fetches req and writes the body to path.
func (f *HTTPFetcher) FetchToFile(ctx context.Context, req Request, path string) (int64, error) {
	body, err := f.Fetch(ctx, req)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return 0, eris.Wrapf(err, "fetcher: write %s", path)
	}
	return int64(len(body)), nil
}
