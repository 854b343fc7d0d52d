package dataType

import (
	"net/netip"
	"testing"
)

func TestPrefixTrie(t *testing.T) {
	var trie PrefixTrie
	for _, p := range []string{"10.0.0.0/8", "192.168.1.0/24", "203.0.113.7/32", "2001:db8::/32", "::ffff:172.16.0.0/108"} {
		trie.Insert(netip.MustParsePrefix(p))
	}
	if trie.Len() != 5 {
		t.Errorf("expected 5 prefixes, got %d", trie.Len())
	}

	tests := []struct {
		ip   string
		want bool
	}{
		{"10.255.0.1", true},
		{"11.0.0.1", false},
		{"192.168.1.77", true},
		{"192.168.2.1", false},
		{"203.0.113.7", true},
		{"203.0.113.8", false},
		{"2001:db8:1::5", true},
		{"2001:db9::5", false},
		{"172.16.4.4", true},
		{"::ffff:10.0.0.1", true},
	}
	for _, tt := range tests {
		if got := trie.Search(netip.MustParseAddr(tt.ip)); got != tt.want {
			t.Errorf("Search(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestPrefixTrie_CatchAll(t *testing.T) {
	var trie PrefixTrie
	trie.Insert(netip.MustParsePrefix("0.0.0.0/0"))
	if !trie.Search(netip.MustParseAddr("8.8.8.8")) {
		t.Errorf("0.0.0.0/0 must match every IPv4 address")
	}
	if trie.Search(netip.MustParseAddr("2001:db8::1")) {
		t.Errorf("0.0.0.0/0 must not match IPv6 addresses")
	}
}
