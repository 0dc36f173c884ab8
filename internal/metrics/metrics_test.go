package metrics

import (
	"testing"
	"time"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"https://Example.COM/path?q=1", "example.com"},
		{"example.org/page", "example.org"},
		{"://bad", "unknown"},
		{"", "unknown"},
	}
	for _, tc := range cases {
		if got := SanitizeSite(tc.in); got != tc.want {
			t.Errorf("SanitizeSite(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestObserveHelpersDoNotPanic(t *testing.T) {
	// Observe helpers self-initialize; calling them without Init must work.
	ObserveFetch("https://example.com/a", "stored", 120*time.Millisecond)
	ObserveDocumentStored()
	ObserveSnippetsStored(3)
	ObserveQuestionDone()
	ObserveSearch("ok")
	ObserveRateLimitDelay("https://example.com", time.Second)
	ObservePhase("initial")
	if Handler() == nil {
		t.Fatal("expected metrics handler")
	}
}
