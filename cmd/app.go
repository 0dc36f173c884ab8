package cmd

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/delverbot/delver/internal/config"
	"github.com/delverbot/delver/internal/fetcher"
	"github.com/delverbot/delver/internal/logging"
	"github.com/delverbot/delver/internal/question"
	"github.com/delverbot/delver/internal/research"
	"github.com/delverbot/delver/internal/searcher"
	"github.com/delverbot/delver/internal/store"
)

// application bundles every long-lived service a command may need,
// constructed once per invocation and closed on exit.
type application struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *store.Store
	renderer *fetcher.Renderer
	orch     *research.Orchestrator
}

func newApplication(cfgPath string) (*application, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.DB.Path, err)
	}

	f := fetcher.New(fetcher.Config{
		UserAgent:          cfg.Fetcher.UserAgent,
		RotateUserAgents:   cfg.Fetcher.RotateUserAgents,
		Timeout:            cfg.FetchTimeout(),
		MinContentChars:    cfg.Fetcher.MinContentChars,
		MaxPerMinute:       cfg.Fetcher.MaxPerMinute,
		MinDelay:           time.Duration(cfg.Fetcher.MinDelayMs) * time.Millisecond,
		AllowDomains:       cfg.Fetcher.AllowDomains,
		BlockDomains:       cfg.Fetcher.BlockDomains,
		RespectRobots:      cfg.Fetcher.RespectRobots,
		AllowStateChanging: cfg.Fetcher.AllowStateChanging,
	})

	var researchFetcher research.Fetcher = f
	var renderer *fetcher.Renderer
	if cfg.Headless.Enabled {
		renderer, err = fetcher.NewRenderer(f, fetcher.RendererConfig{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetcher.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init headless renderer: %w", err)
		}
		researchFetcher = renderer
	}

	search := searcher.New(searcher.Config{
		Endpoint:   cfg.Search.Endpoint,
		UserAgent:  cfg.Fetcher.UserAgent,
		MaxResults: cfg.Search.MaxResults,
	}, logger)

	deps := research.Deps{
		Store:    st,
		Fetcher:  researchFetcher,
		Searcher: search,
	}
	if cfg.Anthropic.APIKey != "" {
		llm, err := question.NewClient(question.Config{
			APIKey:    cfg.Anthropic.APIKey,
			Model:     cfg.Anthropic.Model,
			MaxTokens: int64(cfg.Anthropic.MaxTokens),
		}, logger)
		if err != nil {
			if renderer != nil {
				renderer.Close()
			}
			_ = st.Close()
			return nil, fmt.Errorf("init question generator: %w", err)
		}
		deps.Questions = llm
		deps.Summary = llm
	}

	orch, err := research.NewOrchestrator(deps, research.Config{
		FetchConcurrency: cfg.Research.FetchConcurrency,
		CourtesyDelay:    time.Duration(cfg.Research.CourtesyDelayMs) * time.Millisecond,
		FetchTimeout:     cfg.FetchTimeout(),
		SnippetMinLen:    cfg.Research.SnippetMinLen,
		QuestionFloor:    cfg.Research.QuestionFloor,
		QuestionTarget:   cfg.Research.QuestionTarget,
		ContextDocs:      cfg.Research.ContextDocs,
	}, logger)
	if err != nil {
		if renderer != nil {
			renderer.Close()
		}
		_ = st.Close()
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}

	return &application{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		renderer: renderer,
		orch:     orch,
	}, nil
}

func (a *application) Close() {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
