package fetcher

import "strings"

// patternSet stores exact hosts and suffix wildcards derived from
// configuration ("example.org", "*.ru", ".internal").
type patternSet struct {
	exact    map[string]struct{}
	suffixes []string
}

func newPatternSet(patterns []string) *patternSet {
	set := &patternSet{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			set.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			set.addSuffix(strings.TrimPrefix(value, "."))
		default:
			set.exact[value] = struct{}{}
		}
	}
	if len(set.exact) == 0 && len(set.suffixes) == 0 {
		return nil
	}
	return set
}

func (s *patternSet) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range s.suffixes {
		if existing == suffix {
			return
		}
	}
	s.suffixes = append(s.suffixes, suffix)
}

func (s *patternSet) Matches(host string) bool {
	if s == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, ok := s.exact[host]; ok {
		return true
	}
	for _, suffix := range s.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// DomainGate is the safety gate applied before any network call. A host is
// refused when it matches the block set, or when an allow set is configured
// and the host matches nothing in it. The block set wins over the allow set.
type DomainGate struct {
	allow *patternSet
	block *patternSet
}

// NewDomainGate builds a gate from allow and block pattern lists. Either
// list may be empty; an empty allow list permits all non-blocked hosts.
func NewDomainGate(allow, block []string) *DomainGate {
	return &DomainGate{
		allow: newPatternSet(allow),
		block: newPatternSet(block),
	}
}

// Allowed reports whether host passes the gate.
func (g *DomainGate) Allowed(host string) bool {
	if g == nil {
		return true
	}
	if g.block.Matches(host) {
		return false
	}
	if g.allow != nil && !g.allow.Matches(host) {
		return false
	}
	return true
}
