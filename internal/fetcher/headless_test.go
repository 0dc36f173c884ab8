package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delverbot/delver/internal/research"
)

// Rendered fetches require the state-changing capability. Without it the
// renderer must hand the URL to the plain fetcher instead of driving a
// browser, so these tests pass on machines with no Chrome installed.
func TestFetchRenderedFallsBackWithoutCapability(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("plainly fetched content ", 20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(richPage(content)))
	}))
	defer srv.Close()

	f := New(Config{AllowStateChanging: false})
	r, err := NewRenderer(f, RendererConfig{MaxParallel: 1})
	require.NoError(t, err)
	defer r.Close()

	text, err := r.FetchRendered(context.Background(), srv.URL, "#app")
	require.NoError(t, err)
	assert.Contains(t, text, "plainly fetched content")
}

func TestRendererFetchTextDelegates(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("delegated fetch content ", 20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(richPage(content)))
	}))
	defer srv.Close()

	f := New(Config{})
	r, err := NewRenderer(f, RendererConfig{})
	require.NoError(t, err)
	defer r.Close()

	text, err := r.FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "delegated fetch content")
}

func TestFetchRenderedHonorsDomainGate(t *testing.T) {
	t.Parallel()

	spy := &countingTransport{}
	f := New(Config{
		AllowStateChanging: true,
		BlockDomains:       []string{"blocked.example.com"},
		Transport:          spy,
	})
	r, err := NewRenderer(f, RendererConfig{MaxParallel: 1})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.FetchRendered(context.Background(), "https://blocked.example.com/page", "")
	assert.ErrorIs(t, err, research.ErrBlockedDomain)
	assert.Zero(t, spy.calls.Load(), "blocked rendered fetch must not touch the network")
}

func TestNewRendererRejectsNegativeParallel(t *testing.T) {
	t.Parallel()

	_, err := NewRenderer(New(Config{}), RendererConfig{MaxParallel: -1})
	assert.Error(t, err)
}
