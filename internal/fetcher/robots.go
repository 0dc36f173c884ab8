package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsCacheTTL bounds how long a parsed robots.txt is reused before being
// refetched.
const robotsCacheTTL = 30 * time.Minute

type robotsEntry struct {
	group   *robotstxt.Group
	fetched time.Time
}

// RobotsGate answers whether a URL may be crawled according to the host's
// robots.txt. Lookups are cached per host. The gate is best-effort: any
// failure to fetch or parse robots.txt is treated as an allowance, so a
// broken or missing robots.txt never blocks research.
type RobotsGate struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	cache map[string]robotsEntry
}

// NewRobotsGate builds a gate using the given client for robots.txt
// retrieval. A nil client falls back to a short-timeout default.
func NewRobotsGate(client *http.Client, userAgent string) *RobotsGate {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsGate{
		client:    client,
		userAgent: userAgent,
		cache:     make(map[string]robotsEntry),
	}
}

// Allowed reports whether the target URL may be fetched.
func (g *RobotsGate) Allowed(ctx context.Context, target string) bool {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return true
	}

	group := g.group(ctx, u.Scheme, u.Host)
	if group == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (g *RobotsGate) group(ctx context.Context, scheme, host string) *robotstxt.Group {
	g.mu.Lock()
	if entry, ok := g.cache[host]; ok && time.Since(entry.fetched) < robotsCacheTTL {
		g.mu.Unlock()
		return entry.group
	}
	g.mu.Unlock()

	group := g.fetchGroup(ctx, scheme, host)

	g.mu.Lock()
	g.cache[host] = robotsEntry{group: group, fetched: time.Now()}
	g.mu.Unlock()
	return group
}

// fetchGroup retrieves and parses robots.txt for a host. Returns nil on any
// failure, which callers treat as allow-all.
func (g *RobotsGate) fetchGroup(ctx context.Context, scheme, host string) *robotstxt.Group {
	if scheme == "" {
		scheme = "https"
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	agent := g.userAgent
	if agent == "" {
		agent = "*"
	}
	return robots.FindGroup(agent)
}
