package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRobotsGateBlocksDisallowedPath(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	gate := NewRobotsGate(srv.Client(), "delver")
	ctx := context.Background()

	assert.True(t, gate.Allowed(ctx, srv.URL+"/public/page"))
	assert.False(t, gate.Allowed(ctx, srv.URL+"/private/page"))
}

func TestRobotsGateCachesPerHost(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			_, _ = w.Write([]byte("User-agent: *\nAllow: /\n"))
		}
	}))
	defer srv.Close()

	gate := NewRobotsGate(srv.Client(), "delver")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		assert.True(t, gate.Allowed(ctx, srv.URL+"/page"))
	}
	assert.Equal(t, int64(1), hits.Load())
}

func TestRobotsGateAllowsOnFetchFailure(t *testing.T) {
	t.Parallel()

	gate := NewRobotsGate(nil, "delver")
	// No server listening here; the fetch fails and the gate stays open.
	assert.True(t, gate.Allowed(context.Background(), "http://127.0.0.1:1/anything"))
}

func TestRobotsGateAllowsUnparsableURL(t *testing.T) {
	t.Parallel()

	gate := NewRobotsGate(nil, "delver")
	assert.True(t, gate.Allowed(context.Background(), "::not a url::"))
}
