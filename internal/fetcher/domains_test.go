package fetcher

import "testing"

func TestPatternSet(t *testing.T) {
	t.Parallel()

	t.Run("exact match", func(t *testing.T) {
		s := newPatternSet([]string{"example.org"})
		if s == nil {
			t.Fatal("expected pattern set to be created")
		}
		if !s.Matches("example.org") {
			t.Fatal("expected example.org to match")
		}
		if s.Matches("sub.example.org") {
			t.Fatal("did not expect subdomains to match exact entry")
		}
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		s := newPatternSet([]string{"*.ru"})
		cases := []struct {
			host string
			want bool
		}{
			{"example.ru", true},
			{"sub.domain.ru", true},
			{"ru", true},
			{"example.com", false},
		}
		for _, tc := range cases {
			if got := s.Matches(tc.host); got != tc.want {
				t.Errorf("host %q matches=%v, want %v", tc.host, got, tc.want)
			}
		}
	})

	t.Run("empty patterns yield nil set", func(t *testing.T) {
		if s := newPatternSet([]string{"", "  "}); s != nil {
			t.Fatal("expected nil set for blank patterns")
		}
		var s *patternSet
		if s.Matches("anything") {
			t.Fatal("nil set should never match")
		}
	})
}

func TestDomainGate(t *testing.T) {
	t.Parallel()

	t.Run("block list refuses", func(t *testing.T) {
		g := NewDomainGate(nil, []string{"evil.example"})
		if g.Allowed("evil.example") {
			t.Fatal("blocked host must be refused")
		}
		if !g.Allowed("good.example") {
			t.Fatal("unlisted host must pass without an allow list")
		}
	})

	t.Run("allow list restricts", func(t *testing.T) {
		g := NewDomainGate([]string{"*.edu"}, nil)
		if !g.Allowed("cs.mit.edu") {
			t.Fatal("allow-listed host must pass")
		}
		if g.Allowed("example.com") {
			t.Fatal("host outside the allow list must be refused")
		}
	})

	t.Run("block wins over allow", func(t *testing.T) {
		g := NewDomainGate([]string{"*.example"}, []string{"bad.example"})
		if g.Allowed("bad.example") {
			t.Fatal("block entry must win over allow match")
		}
		if !g.Allowed("ok.example") {
			t.Fatal("non-blocked allow match must pass")
		}
	})

	t.Run("nil gate allows all", func(t *testing.T) {
		var g *DomainGate
		if !g.Allowed("anything.example") {
			t.Fatal("nil gate must not block")
		}
	})
}
