// Package fetcher retrieves and sanitizes web content under politeness
// constraints: domain gating, robots.txt, rate limiting, and content checks.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/delverbot/delver/internal/metrics"
	"github.com/delverbot/delver/internal/research"
)

// DefaultUserAgent identifies the crawler when rotation is off.
const DefaultUserAgent = "delver-research/1.0"

// userAgents is the rotation pool of common browser identities.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// Config controls fetch behavior.
type Config struct {
	UserAgent        string
	RotateUserAgents bool
	Timeout          time.Duration
	MinContentChars  int
	MaxPerMinute     int
	MinDelay         time.Duration
	AllowDomains     []string
	BlockDomains     []string
	RespectRobots    bool

	// AllowStateChanging permits non-GET requests through Do. Off by
	// default: research is read-only.
	AllowStateChanging bool

	// Transport overrides the HTTP transport. Intended for tests.
	Transport http.RoundTripper
}

// Fetcher retrieves pages over HTTP via a Colly collector, one collector
// clone per fetch so concurrent fetches never share callback state.
type Fetcher struct {
	cfg           Config
	gate          *DomainGate
	robots        *RobotsGate
	limiter       *Limiter
	transport     http.RoundTripper
	baseCollector *colly.Collector

	mu     sync.Mutex
	uaRand *rand.Rand
}

var _ research.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher from cfg, applying defaults for unset fields.
func New(cfg Config) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MinContentChars == 0 {
		cfg.MinContentChars = 200
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}

	// Revisits are allowed: later phases may legitimately return to a URL
	// an earlier phase fetched, and dedup happens at the store layer.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true // robots handled by RobotsGate before any request
	c.WithTransport(transport)

	f := &Fetcher{
		cfg:           cfg,
		gate:          NewDomainGate(cfg.AllowDomains, cfg.BlockDomains),
		limiter:       NewLimiter(LimiterConfig{MaxPerWindow: cfg.MaxPerMinute, MinDelay: cfg.MinDelay}),
		transport:     transport,
		baseCollector: c,
		uaRand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.RespectRobots {
		f.robots = NewRobotsGate(&http.Client{Transport: transport, Timeout: cfg.Timeout}, cfg.UserAgent)
	}
	return f
}

// FetchText retrieves target and returns its plain-text content. Blocked
// domains are rejected before any network activity. Non-HTML payloads,
// non-200 statuses, and pages whose extracted text is shorter than
// MinContentChars all fail with typed errors.
func (f *Fetcher) FetchText(ctx context.Context, target string) (string, error) {
	site := metrics.SanitizeSite(target)

	if ok, err := f.admit(ctx, target); !ok {
		return "", err
	}

	start := time.Now()
	body, headers, status, err := f.get(ctx, target)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveFetch(site, "error", duration)
		return "", err
	}
	if status != http.StatusOK {
		metrics.ObserveFetch(site, "http_error", duration)
		return "", fmt.Errorf("fetch %q: unexpected status %d", target, status)
	}
	if ct := headers.Get("Content-Type"); !textualContentType(ct) {
		metrics.ObserveFetch(site, "unsupported", duration)
		return "", fmt.Errorf("content type %q: %w", ct, research.ErrUnsupportedContent)
	}

	text, _ := HTMLToText(string(body))
	if len([]rune(text)) < f.cfg.MinContentChars {
		metrics.ObserveFetch(site, "thin", duration)
		return "", fmt.Errorf("page %q has %d chars: %w", target, len([]rune(text)), research.ErrThinContent)
	}

	metrics.ObserveFetch(site, "ok", duration)
	return text, nil
}

// Do issues an arbitrary HTTP request. Non-GET methods are refused unless
// AllowStateChanging is set; research runs must not mutate remote state.
func (f *Fetcher) Do(ctx context.Context, method, target string, payload []byte) (*http.Response, error) {
	if method != http.MethodGet && method != http.MethodHead && !f.cfg.AllowStateChanging {
		return nil, fmt.Errorf("method %s on %q: %w", method, target, research.ErrPermissionDenied)
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}
	if !f.gate.Allowed(u.Hostname()) {
		return nil, fmt.Errorf("%q: %w", u.Hostname(), research.ErrBlockedDomain)
	}
	if err := f.limiter.Wait(ctx, target); err != nil {
		return nil, err
	}

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent())
	client := &http.Client{Transport: f.transport, Timeout: f.cfg.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %q: %w", method, target, err)
	}
	return resp, nil
}

// admit runs the pre-network checks for target: domain gate, robots gate,
// then the rate limiter. Returns false with a typed error when the fetch
// must not proceed.
func (f *Fetcher) admit(ctx context.Context, target string) (bool, error) {
	site := metrics.SanitizeSite(target)
	u, err := url.Parse(target)
	if err != nil {
		return false, fmt.Errorf("parse fetch url: %w", err)
	}
	if !f.gate.Allowed(u.Hostname()) {
		metrics.ObserveFetch(site, "blocked", 0)
		return false, fmt.Errorf("%q: %w", u.Hostname(), research.ErrBlockedDomain)
	}
	if f.robots != nil && !f.robots.Allowed(ctx, target) {
		metrics.ObserveFetch(site, "robots", 0)
		return false, fmt.Errorf("robots.txt disallows %q: %w", target, research.ErrPermissionDenied)
	}
	if err := f.limiter.Wait(ctx, target); err != nil {
		return false, err
	}
	return true, nil
}

// get runs a single GET through a fresh collector clone.
func (f *Fetcher) get(ctx context.Context, target string) (body []byte, headers http.Header, status int, err error) {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.userAgent()
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.transport)

	var fetchErr error
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		headers = r.Headers.Clone()
		status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			status = r.StatusCode
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, nil, 0, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case visitErr := <-done:
		if fetchErr != nil {
			// A non-2xx status reaches OnError; surface the status instead
			// of colly's generic error so callers can tell them apart.
			if status != 0 && status != http.StatusOK {
				return nil, headers, status, nil
			}
			return nil, nil, status, fmt.Errorf("fetch %q: %w", target, fetchErr)
		}
		if visitErr != nil {
			return nil, nil, 0, fmt.Errorf("fetch %q: %w", target, visitErr)
		}
		return body, headers, status, nil
	}
}

func (f *Fetcher) userAgent() string {
	if !f.cfg.RotateUserAgents {
		return f.cfg.UserAgent
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return userAgents[f.uaRand.Intn(len(userAgents))]
}

// textualContentType reports whether a Content-Type names a payload the text
// extractor can handle. An absent header is treated as HTML.
func textualContentType(ct string) bool {
	if ct == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/xhtml+xml", mediaType == "application/xml":
		return true
	default:
		return false
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
