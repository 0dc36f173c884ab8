package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/delverbot/delver/internal/metrics"
	"github.com/delverbot/delver/internal/question"
)

// Config tunes an Orchestrator. Zero values get sensible defaults from
// withDefaults.
type Config struct {
	// FetchConcurrency bounds the fan-out when fetching one result set.
	FetchConcurrency int
	// CourtesyDelay spaces out fetch starts within a batch, independent of
	// the fetcher's own limiter.
	CourtesyDelay time.Duration
	// FetchTimeout bounds one fetch and therefore the budget overrun: a
	// phase never runs longer than budget + FetchTimeout.
	FetchTimeout  time.Duration
	SnippetMinLen int
	// QuestionFloor is the minimum pending-queue depth EnsureQuestions
	// maintains; QuestionTarget is how many questions a single generation
	// asks for.
	QuestionFloor  int
	QuestionTarget int
	// ContextDocs is how many recent documents feed the generation context.
	ContextDocs int
}

func (c Config) withDefaults() Config {
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 4
	}
	if c.CourtesyDelay < 0 {
		c.CourtesyDelay = 0
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 20 * time.Second
	}
	if c.SnippetMinLen <= 0 {
		c.SnippetMinLen = 200
	}
	if c.QuestionFloor <= 0 {
		c.QuestionFloor = 10
	}
	if c.QuestionTarget <= 0 {
		c.QuestionTarget = 40
	}
	if c.ContextDocs <= 0 {
		c.ContextDocs = 8
	}
	return c
}

// Deps are the collaborators an Orchestrator composes. Store, Fetcher, and
// Searcher are required. Questions, Summary, and Hook are optional; absent
// generators fall back to deterministic heuristics, and an absent hook is
// simply never called.
type Deps struct {
	Store     ContentStore
	Fetcher   Fetcher
	Searcher  Searcher
	Questions QuestionSource
	Summary   Summarizer
	Hook      PhaseHook
}

// Orchestrator drives the two time-boxed research phases for a topic and
// owns the question-queue lifecycle.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// NewOrchestrator wires an Orchestrator. Returns an error if a required
// collaborator is missing.
func NewOrchestrator(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("orchestrator requires a content store")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("orchestrator requires a fetcher")
	}
	if deps.Searcher == nil {
		return nil, errors.New("orchestrator requires a searcher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}, nil
}

// seedQueries are the fixed search queries that bootstrap a topic.
func seedQueries(topic string) []string {
	return []string{
		"what is " + topic,
		"all about " + topic,
		"introduction to " + topic,
		"beginner guide " + topic,
	}
}

// Run performs a full research run: the initial phase under initialBudget,
// then the deep-research phase under deepBudget. It returns once both
// phases complete or ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context, topicName string, initialBudget, deepBudget time.Duration) (RunReport, error) {
	report := RunReport{RunID: uuid.NewString(), Topic: topicName}

	topicID, err := o.deps.Store.GetOrCreateTopic(ctx, topicName)
	if err != nil {
		return report, fmt.Errorf("resolve topic %q: %w", topicName, err)
	}

	o.logger.Info("research run starting",
		zap.String("run_id", report.RunID),
		zap.String("topic", topicName),
		zap.Duration("initial_budget", initialBudget),
		zap.Duration("deep_budget", deepBudget),
	)

	if err := o.RunInitial(ctx, topicID, topicName, NewBudget(initialBudget), &report); err != nil {
		return report, err
	}
	o.phaseComplete(ctx, "initial", fmt.Sprintf("initial research on %q: %d documents", topicName, report.Documents))

	if err := o.RunDeep(ctx, topicID, topicName, NewBudget(deepBudget), &report); err != nil {
		return report, err
	}
	o.phaseComplete(ctx, "deep", fmt.Sprintf("deep research on %q: %d questions asked", topicName, report.QuestionsAsked))

	o.logger.Info("research run finished",
		zap.String("run_id", report.RunID),
		zap.Int("documents", report.Documents),
		zap.Int("snippets", report.Snippets),
		zap.Int("questions_asked", report.QuestionsAsked),
	)
	return report, nil
}

// Resume re-enters the deep phase for an existing topic without rerunning
// the initial phase or resetting any stored state.
func (o *Orchestrator) Resume(ctx context.Context, topicName string, deepBudget time.Duration) (RunReport, error) {
	report := RunReport{RunID: uuid.NewString(), Topic: topicName}

	topicID, err := o.deps.Store.GetOrCreateTopic(ctx, topicName)
	if err != nil {
		return report, fmt.Errorf("resolve topic %q: %w", topicName, err)
	}
	o.logger.Info("resuming research",
		zap.String("run_id", report.RunID),
		zap.String("topic", topicName),
		zap.Duration("deep_budget", deepBudget),
	)
	if err := o.RunDeep(ctx, topicID, topicName, NewBudget(deepBudget), &report); err != nil {
		return report, err
	}
	o.phaseComplete(ctx, "deep", fmt.Sprintf("resumed research on %q: %d questions asked", topicName, report.QuestionsAsked))
	return report, nil
}

// RunInitial bootstraps a topic: seed queries are searched and fetched
// until the budget expires, then the question queue is seeded.
func (o *Orchestrator) RunInitial(ctx context.Context, topicID int64, topicName string, budget Budget, report *RunReport) error {
	metrics.ObservePhase("initial")

	// URL dedup within this phase only; cross-phase refetches are resolved
	// by the store's content-hash dedup.
	seen := make(map[string]struct{})
	for _, query := range seedQueries(topicName) {
		if budget.Expired() || ctx.Err() != nil {
			break
		}
		if err := o.collect(ctx, topicID, query, budget, seen, report); err != nil {
			return err
		}
	}

	if _, err := o.EnsureQuestions(ctx, topicID, topicName, false); err != nil {
		return err
	}
	return nil
}

// RunDeep drains the question queue, refilling it when it runs dry, until
// the budget expires. Every popped question is marked done regardless of
// how many documents it yielded: a question is asked, not answered.
func (o *Orchestrator) RunDeep(ctx context.Context, topicID int64, topicName string, budget Budget, report *RunReport) error {
	metrics.ObservePhase("deep")

	// Questions claimed by a previous crashed or canceled run go back to
	// pending before this run starts popping.
	if n, err := o.deps.Store.ReclaimDispatched(ctx, topicID); err != nil {
		return fmt.Errorf("reclaim dispatched questions: %w", err)
	} else if n > 0 {
		o.logger.Info("reclaimed dispatched questions", zap.Int("count", n))
	}

	if _, err := o.EnsureQuestions(ctx, topicID, topicName, false); err != nil {
		return err
	}

	for !budget.Expired() && ctx.Err() == nil {
		q, ok, err := o.deps.Store.PopNextPendingQuestion(ctx, topicID)
		if err != nil {
			return fmt.Errorf("pop question: %w", err)
		}
		if !ok {
			if _, err := o.EnsureQuestions(ctx, topicID, topicName, true); err != nil {
				return err
			}
			q, ok, err = o.deps.Store.PopNextPendingQuestion(ctx, topicID)
			if err != nil {
				return fmt.Errorf("pop question after refill: %w", err)
			}
			if !ok {
				o.logger.Warn("question queue empty after refill, stopping deep phase")
				break
			}
		}

		o.logger.Info("researching question", zap.String("question", q.Text))
		seen := make(map[string]struct{})
		if err := o.collect(ctx, topicID, q.Text+" "+topicName, budget, seen, report); err != nil {
			return err
		}

		if err := o.deps.Store.MarkQuestionDone(ctx, q.ID); err != nil {
			return fmt.Errorf("mark question done: %w", err)
		}
		metrics.ObserveQuestionDone()
		report.QuestionsAsked++
	}
	return nil
}

// collect runs one search→fetch→store pass for query. Fetch and search
// failures are absorbed; only storage errors propagate.
func (o *Orchestrator) collect(ctx context.Context, topicID int64, query string, budget Budget, seen map[string]struct{}, report *RunReport) error {
	results := o.deps.Searcher.Search(ctx, query)

	candidates := results[:0:0]
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return nil
	}

	batchCtx, cancel := budget.BatchContext(ctx, o.cfg.FetchTimeout)
	defer cancel()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(batchCtx)
	g.SetLimit(o.cfg.FetchConcurrency)

	for i, candidate := range candidates {
		if budget.Expired() || gctx.Err() != nil {
			break
		}
		if i > 0 && o.cfg.CourtesyDelay > 0 {
			if err := sleepCtx(gctx, o.cfg.CourtesyDelay); err != nil {
				break
			}
		}

		g.Go(func() error {
			text, err := o.deps.Fetcher.FetchText(gctx, candidate.URL)
			if err != nil {
				o.logger.Debug("fetch skipped", zap.String("url", candidate.URL), zap.Error(err))
				return nil
			}

			// Storage goes through the run context, not the batch context:
			// content already fetched is always worth persisting.
			now := time.Now().UTC()
			added, docID, err := o.deps.Store.AddDocument(ctx, topicID, candidate.URL, candidate.Title, text, now)
			if err != nil {
				return fmt.Errorf("store document from %q: %w", candidate.URL, err)
			}
			if !added {
				return nil
			}
			metrics.ObserveDocumentStored()

			snips, err := o.deps.Store.AddSnippetsFromText(ctx, topicID, docID, text, now, o.cfg.SnippetMinLen)
			if err != nil {
				return fmt.Errorf("store snippets for %q: %w", candidate.URL, err)
			}
			metrics.ObserveSnippetsStored(snips)

			mu.Lock()
			report.Documents++
			report.Snippets += snips
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// EnsureQuestions tops up the pending-question queue. Unless force is set,
// it is a no-op while the queue holds at least QuestionFloor pending
// questions. Generation failures fall back to the heuristic templates, so
// the queue can always be refilled.
func (o *Orchestrator) EnsureQuestions(ctx context.Context, topicID int64, topicName string, force bool) (int, error) {
	pending, err := o.deps.Store.CountPendingQuestions(ctx, topicID)
	if err != nil {
		return 0, fmt.Errorf("count pending questions: %w", err)
	}
	if !force && pending >= o.cfg.QuestionFloor {
		return 0, nil
	}

	docContext, err := o.buildContext(ctx, topicID, o.cfg.ContextDocs)
	if err != nil {
		return 0, err
	}

	texts := o.generateQuestions(ctx, topicName, docContext)
	added, err := o.deps.Store.AddQuestions(ctx, topicID, texts, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("add questions: %w", err)
	}
	o.logger.Info("question queue refilled",
		zap.Int("pending_before", pending),
		zap.Int("added", added),
	)
	return added, nil
}

func (o *Orchestrator) generateQuestions(ctx context.Context, topicName, docContext string) []string {
	if o.deps.Questions != nil {
		texts, err := o.deps.Questions.Generate(ctx, topicName, docContext, o.cfg.QuestionTarget)
		if err == nil && len(texts) > 0 {
			return texts
		}
		if err != nil {
			o.logger.Warn("question generation failed, using heuristics", zap.Error(err))
		}
	}
	return question.Heuristic(topicName, o.cfg.QuestionTarget)
}

// Summarize produces a topic summary from recently stored documents, falling
// back to a heuristic digest when no Summarizer is wired or it fails.
func (o *Orchestrator) Summarize(ctx context.Context, topicName string) (string, error) {
	topicID, err := o.deps.Store.GetOrCreateTopic(ctx, topicName)
	if err != nil {
		return "", fmt.Errorf("resolve topic %q: %w", topicName, err)
	}
	docContext, err := o.buildContext(ctx, topicID, 20)
	if err != nil {
		return "", err
	}
	if docContext == "" {
		return "", fmt.Errorf("no documents stored for topic %q", topicName)
	}

	if o.deps.Summary != nil {
		summary, err := o.deps.Summary.Summarize(ctx, topicName, docContext)
		if err == nil && summary != "" {
			return summary, nil
		}
		if err != nil {
			o.logger.Warn("summarization failed, using heuristic digest", zap.Error(err))
		}
	}
	return question.HeuristicSummary(topicName, docContext), nil
}

// buildContext renders the most recent documents as a compact prompt
// context of titles and excerpts.
func (o *Orchestrator) buildContext(ctx context.Context, topicID int64, limit int) (string, error) {
	docs, err := o.deps.Store.GetRecentDocs(ctx, topicID, limit)
	if err != nil {
		return "", fmt.Errorf("load recent documents: %w", err)
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, fmt.Sprintf("Title: %s\nExcerpt: %s", d.Title, o.deps.Store.MakeExcerpt(d.Content)))
	}
	return strings.Join(parts, "\n\n"), nil
}

// phaseComplete notifies the hook, if any. Hook failures are logged and
// swallowed.
func (o *Orchestrator) phaseComplete(ctx context.Context, phase, message string) {
	if o.deps.Hook == nil {
		return
	}
	if err := o.deps.Hook.OnPhaseComplete(ctx, message); err != nil {
		o.logger.Warn("phase hook failed", zap.String("phase", phase), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
