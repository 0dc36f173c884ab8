// Package store implements the deduplicating content store on an embedded
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/delverbot/delver/internal/hash"
	"github.com/delverbot/delver/internal/research"
)

// excerptRunes bounds MakeExcerpt output.
const excerptRunes = 500

// Store is the single source of truth for topics, documents, snippets, and
// questions. All dedup invariants are enforced by unique constraints, so
// concurrent writers cannot race a check-then-insert.
type Store struct {
	db *sql.DB
}

var _ research.ContentStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS topics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	topic_id INTEGER NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE(topic_id, content_hash),
	FOREIGN KEY(topic_id) REFERENCES topics(id)
);
CREATE INDEX IF NOT EXISTS idx_documents_topic_created ON documents(topic_id, created_at);

CREATE TABLE IF NOT EXISTS snippets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	topic_id INTEGER NOT NULL,
	doc_id INTEGER NOT NULL,
	snippet_hash TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE(topic_id, snippet_hash),
	FOREIGN KEY(topic_id) REFERENCES topics(id),
	FOREIGN KEY(doc_id) REFERENCES documents(id)
);

CREATE TABLE IF NOT EXISTS questions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	topic_id INTEGER NOT NULL,
	question TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	asked_at TEXT NOT NULL,
	FOREIGN KEY(topic_id) REFERENCES topics(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_questions_topic_text ON questions(topic_id, lower(question));
`

// Open opens or creates the research database at path. Parent directories
// are created as needed; pass ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports a single writer; serializing through one connection
	// avoids SQLITE_BUSY under concurrent phase workers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetOrCreateTopic returns the id for name, inserting the topic if absent.
// The unique constraint on name makes concurrent creation safe.
func (s *Store) GetOrCreateTopic(ctx context.Context, name string) (int64, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO topics(name, created_at) VALUES(?, ?) ON CONFLICT(name) DO NOTHING`,
		name, formatTime(time.Now()),
	); err != nil {
		return 0, fmt.Errorf("insert topic: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM topics WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("select topic: %w", err)
	}
	return id, nil
}

// AddDocument stores content for a topic, deduplicated by normalized content
// hash. A duplicate is a successful no-op: added is false and docID is the
// existing row's id, so callers never need to pre-check existence.
func (s *Store) AddDocument(ctx context.Context, topicID int64, url, title, content string, createdAt time.Time) (bool, int64, error) {
	contentHash := hash.Content(content)

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO documents(topic_id, url, title, content, content_hash, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(topic_id, content_hash) DO NOTHING
		 RETURNING id`,
		topicID, url, title, content, contentHash, formatTime(createdAt),
	).Scan(&id)
	if err == nil {
		return true, id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, 0, fmt.Errorf("insert document: %w", err)
	}

	// Conflict: surface the id of the row that won.
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM documents WHERE topic_id = ? AND content_hash = ?`,
		topicID, contentHash,
	).Scan(&id); err != nil {
		return false, 0, fmt.Errorf("select existing document: %w", err)
	}
	return false, id, nil
}

// AddSnippetsFromText splits text into newline-separated chunks of at least
// minLen runes and stores each as a snippet. Chunks already stored for the
// topic (by normalized hash) are skipped. Returns the number inserted.
func (s *Store) AddSnippetsFromText(ctx context.Context, topicID, docID int64, text string, createdAt time.Time, minLen int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin snippets tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	inserted := 0
	ts := formatTime(createdAt)
	for _, part := range strings.Split(text, "\n") {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) < minLen {
			continue
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO snippets(topic_id, doc_id, snippet_hash, text, created_at) VALUES(?, ?, ?, ?, ?)`,
			topicID, docID, hash.Content(part), part, ts,
		)
		if err != nil {
			return 0, fmt.Errorf("insert snippet: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit snippets: %w", err)
	}
	return inserted, nil
}

// AddQuestions inserts questions for a topic, skipping blanks and any whose
// text already exists for the topic case-insensitively. Returns the number
// actually inserted.
func (s *Store) AddQuestions(ctx context.Context, topicID int64, texts []string, askedAt time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin questions tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	inserted := 0
	ts := formatTime(askedAt)
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO questions(topic_id, question, status, asked_at) VALUES(?, ?, 'pending', ?)`,
			topicID, text, ts,
		)
		if err != nil {
			return 0, fmt.Errorf("insert question: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit questions: %w", err)
	}
	return inserted, nil
}

// PopNextPendingQuestion atomically claims the oldest pending question for
// the topic, moving it to dispatched so no concurrent caller can pop it
// twice. Returns ok=false when the queue is empty.
func (s *Store) PopNextPendingQuestion(ctx context.Context, topicID int64) (research.Question, bool, error) {
	var (
		q       research.Question
		askedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`UPDATE questions SET status = 'dispatched'
		 WHERE id = (
			SELECT id FROM questions
			WHERE topic_id = ? AND status = 'pending'
			ORDER BY id LIMIT 1
		 )
		 RETURNING id, question, asked_at`,
		topicID,
	).Scan(&q.ID, &q.Text, &askedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return research.Question{}, false, nil
	}
	if err != nil {
		return research.Question{}, false, fmt.Errorf("pop pending question: %w", err)
	}
	q.TopicID = topicID
	q.Status = research.QuestionDispatched
	q.AskedAt = parseTime(askedAt)
	return q, true, nil
}

// MarkQuestionDone transitions a question to done. Done is terminal and the
// call is idempotent: marking an already-done question is a no-op.
func (s *Store) MarkQuestionDone(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE questions SET status = 'done' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark question done: %w", err)
	}
	return nil
}

// ReclaimDispatched returns questions stranded in dispatched (e.g. by a
// crashed run) to pending. Done questions are never reopened.
func (s *Store) ReclaimDispatched(ctx context.Context, topicID int64) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET status = 'pending' WHERE topic_id = ? AND status = 'dispatched'`,
		topicID,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim dispatched questions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountPendingQuestions returns how many questions await dispatch.
func (s *Store) CountPendingQuestions(ctx context.Context, topicID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions WHERE topic_id = ? AND status = 'pending'`, topicID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending questions: %w", err)
	}
	return n, nil
}

// CountDocuments returns the number of stored documents for a topic.
func (s *Store) CountDocuments(ctx context.Context, topicID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE topic_id = ?`, topicID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// GetRecentDocs returns up to limit documents for the topic, newest first.
func (s *Store) GetRecentDocs(ctx context.Context, topicID int64, limit int) ([]research.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, content, content_hash, created_at
		 FROM documents WHERE topic_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		topicID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select recent documents: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	var docs []research.Document
	for rows.Next() {
		var (
			d         research.Document
			createdAt string
		)
		if err := rows.Scan(&d.ID, &d.URL, &d.Title, &d.Content, &d.ContentHash, &createdAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.TopicID = topicID
		d.CreatedAt = parseTime(createdAt)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// FindTopic looks up a topic by exact name without creating it.
func (s *Store) FindTopic(ctx context.Context, name string) (research.Topic, bool, error) {
	var t research.Topic
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM topics WHERE name = ?`, name,
	).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return research.Topic{}, false, nil
	}
	if err != nil {
		return research.Topic{}, false, fmt.Errorf("find topic: %w", err)
	}
	return t, true, nil
}

// ListTopics returns all topics in name order.
func (s *Store) ListTopics(ctx context.Context) ([]research.Topic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM topics ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select topics: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	var topics []research.Topic
	for rows.Next() {
		var t research.Topic
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

// CountQuestionsByStatus returns the per-status question counts for a topic.
func (s *Store) CountQuestionsByStatus(ctx context.Context, topicID int64) (map[research.QuestionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM questions WHERE topic_id = ? GROUP BY status`, topicID,
	)
	if err != nil {
		return nil, fmt.Errorf("count questions by status: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	counts := make(map[research.QuestionStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan question count: %w", err)
		}
		counts[research.QuestionStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question counts: %w", err)
	}
	return counts, nil
}

// MakeExcerpt returns a bounded, whitespace-collapsed preview of content for
// prompt-context building. It is never persisted.
func (s *Store) MakeExcerpt(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(collapsed) <= excerptRunes {
		return collapsed
	}
	runes := []rune(collapsed)
	cut := string(runes[:excerptRunes])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut
}

// timeLayout keeps a fixed-width fraction so TEXT comparison orders
// timestamps correctly (RFC3339Nano trims trailing zeros and does not).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
