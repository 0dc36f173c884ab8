// Package searcher turns queries into candidate URLs using the DuckDuckGo
// HTML endpoint, which needs no API key and no JavaScript.
package searcher

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/delverbot/delver/internal/metrics"
	"github.com/delverbot/delver/internal/research"
)

const defaultEndpoint = "https://html.duckduckgo.com/html/"

// Config controls the search adapter.
type Config struct {
	// Endpoint overrides the search URL. Intended for tests.
	Endpoint   string
	UserAgent  string
	Timeout    time.Duration
	MaxResults int
}

// DuckDuckGo implements research.Searcher against the HTML search frontend.
// Search failures are swallowed: a query that cannot be answered yields an
// empty result set, never an error, so a flaky search engine cannot abort
// a research run.
type DuckDuckGo struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ research.Searcher = (*DuckDuckGo)(nil)

// New builds a DuckDuckGo searcher. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *DuckDuckGo {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuckDuckGo{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Search returns up to MaxResults result links for query.
func (d *DuckDuckGo) Search(ctx context.Context, query string) []research.SearchResult {
	results, err := d.search(ctx, query)
	if err != nil {
		d.logger.Warn("search failed", zap.String("query", query), zap.Error(err))
		metrics.ObserveSearch("error")
		return nil
	}
	if len(results) == 0 {
		metrics.ObserveSearch("empty")
		return nil
	}
	metrics.ObserveSearch("ok")
	return results
}

func (d *DuckDuckGo) search(ctx context.Context, query string) ([]research.SearchResult, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var results []research.SearchResult
	doc.Find("a.result__a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		link := resolveResultURL(href)
		if link == "" {
			return true
		}
		results = append(results, research.SearchResult{
			URL:   link,
			Title: strings.TrimSpace(s.Text()),
		})
		return len(results) < d.cfg.MaxResults
	})
	return results, nil
}

// resolveResultURL unwraps DuckDuckGo's redirect links (/l/?uddg=<target>)
// and drops anything that is not http(s).
func resolveResultURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Path, "/l/") || u.Path == "/l/" {
		if target := u.Query().Get("uddg"); target != "" {
			href = target
			u, err = url.Parse(target)
			if err != nil {
				return ""
			}
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return href
}
