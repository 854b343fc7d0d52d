package check

import (
	"fmt"
	"net/netip"
	"strings"

	"geo_gate/internal/dataType"
)

// IPPatternSet is a compiled list of literal addresses and CIDR ranges.
type IPPatternSet struct {
	literals map[string]struct{}
	trie     dataType.PrefixTrie
}

// CompileIPPatterns builds a set from rule patterns. Entries that are neither a
// valid address nor a valid prefix are skipped and returned as errors.
func CompileIPPatterns(patterns []string) (*IPPatternSet, []error) {
	set := &IPPatternSet{literals: make(map[string]struct{}, len(patterns))}
	var skipped []error
	for _, raw := range patterns {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				skipped = append(skipped, fmt.Errorf("invalid CIDR %q: %w", p, err))
				continue
			}
			set.trie.Insert(prefix)
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("invalid IP %q: %w", p, err))
			continue
		}
		set.literals[addr.Unmap().String()] = struct{}{}
	}
	return set, skipped
}

func (s *IPPatternSet) Empty() bool {
	return len(s.literals) == 0 && s.trie.Len() == 0
}

// Match reports whether ip equals a literal or falls in a range. Literals are
// compared in canonical form, so 2001:DB8::1 and 2001:db8::1 are the same.
func (s *IPPatternSet) Match(ip string) bool {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	if _, ok := s.literals[addr.Unmap().String()]; ok {
		return true
	}
	if s.trie.Len() == 0 {
		return false
	}
	return s.trie.Search(addr)
}

// MatchIP reports whether ip matches any of the patterns.
func MatchIP(ip string, patterns []string) bool {
	set, _ := CompileIPPatterns(patterns)
	return set.Match(ip)
}
