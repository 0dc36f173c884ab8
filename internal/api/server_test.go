package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delverbot/delver/internal/research"
)

type fakeRunner struct {
	report     research.RunReport
	runErr     error
	summary    string
	summaryErr error
}

func (f *fakeRunner) Run(_ context.Context, topic string, _, _ time.Duration) (research.RunReport, error) {
	r := f.report
	r.Topic = topic
	return r, f.runErr
}

func (f *fakeRunner) Resume(_ context.Context, topic string, _ time.Duration) (research.RunReport, error) {
	r := f.report
	r.Topic = topic
	return r, f.runErr
}

func (f *fakeRunner) Summarize(context.Context, string) (string, error) {
	return f.summary, f.summaryErr
}

type fakeStore struct {
	topics    map[string]research.Topic
	docs      int
	questions map[research.QuestionStatus]int
}

func (f *fakeStore) FindTopic(_ context.Context, name string) (research.Topic, bool, error) {
	t, ok := f.topics[name]
	return t, ok, nil
}

func (f *fakeStore) ListTopics(context.Context) ([]research.Topic, error) {
	var out []research.Topic
	for _, t := range f.topics {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) CountDocuments(context.Context, int64) (int, error) {
	return f.docs, nil
}

func (f *fakeStore) CountQuestionsByStatus(context.Context, int64) (map[research.QuestionStatus]int, error) {
	return f.questions, nil
}

func newTestServer(runner Runner, store StatusStore) *Server {
	return NewServer(runner, store, Config{}, nil)
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestServer(&fakeRunner{}, &fakeStore{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestStartResearchReturnsRunID(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{report: research.RunReport{Documents: 3, QuestionsAsked: 2}}
	srv := httptest.NewServer(newTestServer(runner, &fakeStore{}).Handler())
	defer srv.Close()

	payload := []byte(`{"topic":"rust ownership","initial_budget_seconds":1,"deep_budget_seconds":1}`)
	resp, err := http.Post(srv.URL+"/v1/research", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	var accepted map[string]string
	decodeBody(t, resp, &accepted)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	runID := accepted["run_id"]
	require.NotEmpty(t, runID)

	// The run completes asynchronously; poll until it settles.
	var state RunState
	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/v1/runs/" + runID)
		if err != nil {
			return false
		}
		decodeBody(t, r, &state)
		return state.Status == "done"
	}, 2*time.Second, 10*time.Millisecond)

	require.NotNil(t, state.Report)
	assert.Equal(t, 3, state.Report.Documents)
	assert.Equal(t, "rust ownership", state.Topic)
}

func TestStartResearchFailureIsReported(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{runErr: errors.New("store corrupt")}
	srv := httptest.NewServer(newTestServer(runner, &fakeStore{}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/research", "application/json",
		bytes.NewReader([]byte(`{"topic":"x"}`)))
	require.NoError(t, err)
	var accepted map[string]string
	decodeBody(t, resp, &accepted)

	var state RunState
	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/v1/runs/" + accepted["run_id"])
		if err != nil {
			return false
		}
		decodeBody(t, r, &state)
		return state.Status == "failed"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, state.Error, "store corrupt")
}

func TestStartResearchRequiresTopic(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestServer(&fakeRunner{}, &fakeStore{}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/research", "application/json",
		bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTopicReportsCounts(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		topics: map[string]research.Topic{"go generics": {ID: 7, Name: "go generics"}},
		docs:   12,
		questions: map[research.QuestionStatus]int{
			research.QuestionPending: 4,
			research.QuestionDone:    9,
		},
	}
	srv := httptest.NewServer(newTestServer(&fakeRunner{}, store).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/topics/go%20generics")
	require.NoError(t, err)
	var body struct {
		Topic     string         `json:"topic"`
		Documents int            `json:"documents"`
		Questions map[string]int `json:"questions"`
	}
	decodeBody(t, resp, &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 12, body.Documents)
	assert.Equal(t, 4, body.Questions["pending"])
	assert.Equal(t, 9, body.Questions["done"])
	assert.Equal(t, 0, body.Questions["dispatched"])
}

func TestGetTopicNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestServer(&fakeRunner{}, &fakeStore{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/topics/unknown")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetSummary(t *testing.T) {
	t.Parallel()

	store := &fakeStore{topics: map[string]research.Topic{"sqlite": {ID: 1, Name: "sqlite"}}}
	runner := &fakeRunner{summary: "SQLite is an embedded database."}
	srv := httptest.NewServer(newTestServer(runner, store).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/topics/sqlite/summary")
	require.NoError(t, err)
	var body map[string]string
	decodeBody(t, resp, &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "SQLite is an embedded database.", body["summary"])
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRunner{}, &fakeStore{}, Config{APIKey: "sekrit"}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "sekrit")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
