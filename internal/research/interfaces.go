package research

import (
	"context"
	"time"
)

// ContentStore is the durable, deduplicating source of truth for topics,
// documents, snippets, and questions. Implementations must enforce the
// dedup invariants at the database level so concurrent writers cannot race
// a check-then-insert.
type ContentStore interface {
	GetOrCreateTopic(ctx context.Context, name string) (int64, error)
	AddDocument(ctx context.Context, topicID int64, url, title, content string, createdAt time.Time) (added bool, docID int64, err error)
	AddSnippetsFromText(ctx context.Context, topicID, docID int64, text string, createdAt time.Time, minLen int) (int, error)
	AddQuestions(ctx context.Context, topicID int64, texts []string, askedAt time.Time) (int, error)
	PopNextPendingQuestion(ctx context.Context, topicID int64) (Question, bool, error)
	MarkQuestionDone(ctx context.Context, id int64) error
	ReclaimDispatched(ctx context.Context, topicID int64) (int, error)
	CountPendingQuestions(ctx context.Context, topicID int64) (int, error)
	CountDocuments(ctx context.Context, topicID int64) (int, error)
	GetRecentDocs(ctx context.Context, topicID int64, limit int) ([]Document, error)
	MakeExcerpt(content string) string
}

// Fetcher retrieves readable text for a URL, or an error when the page is
// refused, unreachable, or too thin to keep.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Searcher looks up candidate URLs for a query. Implementations never
// return an error: transient provider failures yield an empty slice so the
// orchestrator loop stays uniform.
type Searcher interface {
	Search(ctx context.Context, query string) []SearchResult
}

// QuestionSource generates research questions from a topic and a short
// context built from recent documents.
type QuestionSource interface {
	Generate(ctx context.Context, topic, docContext string, target int) ([]string, error)
}

// Summarizer produces a topic summary from context excerpts.
type Summarizer interface {
	Summarize(ctx context.Context, topic, docContext string) (string, error)
}

// PhaseHook is notified after each phase completes, e.g. to snapshot state.
// Hook failures are logged and swallowed; they never abort a run.
type PhaseHook interface {
	OnPhaseComplete(ctx context.Context, message string) error
}
