// Package research defines the core types and the orchestrator for the
// time-boxed research crawl engine.
package research

import "time"

// Topic is a named research subject, the unit of partitioning for documents
// and questions.
type Topic struct {
	ID   int64
	Name string
}

// Document is one stored page of fetched content. Content is deduplicated per
// topic by ContentHash; a document is never mutated after insert.
type Document struct {
	ID          int64
	TopicID     int64
	URL         string
	Title       string
	Content     string
	ContentHash string
	CreatedAt   time.Time
}

// Snippet is a chunk of a document's text kept for lexical lookup later.
type Snippet struct {
	ID        int64
	DocID     int64
	TopicID   int64
	Text      string
	CreatedAt time.Time
}

// QuestionStatus is the lifecycle state of a research question.
type QuestionStatus string

// Question status values persisted in the store. A question moves
// pending -> dispatched -> done; done is terminal.
const (
	QuestionPending    QuestionStatus = "pending"
	QuestionDispatched QuestionStatus = "dispatched"
	QuestionDone       QuestionStatus = "done"
)

// Question drives one iteration of the deep-research phase.
type Question struct {
	ID      int64
	TopicID int64
	Text    string
	Status  QuestionStatus
	AskedAt time.Time
}

// SearchResult is a single hit returned by a Searcher.
type SearchResult struct {
	URL   string
	Title string
}

// RunReport summarizes what a research run processed.
type RunReport struct {
	RunID          string
	Topic          string
	Documents      int
	Snippets       int
	QuestionsAsked int
}
