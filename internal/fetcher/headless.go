package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/delverbot/delver/internal/metrics"
	"github.com/delverbot/delver/internal/research"
)

// RendererConfig controls the headless browser renderer.
type RendererConfig struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Renderer fetches pages that need JavaScript execution to produce their
// content, using headless Chrome via chromedp. It shares the plain fetcher's
// politeness machinery: domain gate, robots gate, and rate limiter.
type Renderer struct {
	cfg         RendererConfig
	fetcher     *Fetcher
	slots       chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewRenderer builds a Renderer on top of f. The fetcher's gates and limiter
// apply to rendered fetches as well.
func NewRenderer(f *Fetcher, cfg RendererConfig) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = f.cfg.UserAgent
	}
	var slots chan struct{}
	if cfg.MaxParallel > 0 {
		slots = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:         cfg,
		fetcher:     f,
		slots:       slots,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts down the browser allocator.
func (r *Renderer) Close() {
	r.allocCancel()
}

// FetchRendered navigates to target in a headless browser, optionally waits
// for waitSelector to appear, and returns the rendered DOM as plain text. A
// selector that never appears is not fatal; whatever rendered by the timeout
// is extracted anyway.
func (r *Renderer) FetchRendered(ctx context.Context, target, waitSelector string) (string, error) {
	// Running scripts in a browser can mutate remote state, so rendering sits
	// behind the same capability flag as non-GET requests. Without it, degrade
	// to a plain text fetch.
	if !r.fetcher.cfg.AllowStateChanging {
		return r.fetcher.FetchText(ctx, target)
	}

	site := metrics.SanitizeSite(target)

	if ok, err := r.fetcher.admit(ctx, target); !ok {
		return "", err
	}
	if err := r.acquire(ctx); err != nil {
		return "", err
	}
	defer r.release()

	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, r.cfg.NavigationTimeout)
	defer cancel()

	start := time.Now()
	rawHTML, err := r.render(taskCtx, target, waitSelector)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveFetch(site, "error", duration)
		return "", err
	}

	text, _ := HTMLToText(rawHTML)
	if len([]rune(text)) < r.fetcher.cfg.MinContentChars {
		metrics.ObserveFetch(site, "thin", duration)
		return "", fmt.Errorf("rendered page %q has %d chars: %w", target, len([]rune(text)), research.ErrThinContent)
	}
	metrics.ObserveFetch(site, "ok", duration)
	return text, nil
}

// FetchText makes the renderer a drop-in replacement for the plain fetcher:
// every document fetch goes through the browser, with no wait selector.
func (r *Renderer) FetchText(ctx context.Context, target string) (string, error) {
	return r.FetchRendered(ctx, target, "")
}

func (r *Renderer) render(ctx context.Context, target, waitSelector string) (string, error) {
	var html string
	actions := []chromedp.Action{
		r.networkSetup(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if waitSelector != "" {
		// Give the selector a short window, then settle for what rendered.
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			_ = chromedp.WaitVisible(waitSelector, chromedp.ByQuery).Do(waitCtx)
			return nil
		}))
	}
	actions = append(actions,
		chromedp.Sleep(500*time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("headless render %q: %w", target, err)
	}
	return html, nil
}

func (r *Renderer) networkSetup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.slots == nil {
		return nil
	}
	select {
	case r.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.slots == nil {
		return
	}
	select {
	case <-r.slots:
	default:
	}
}
