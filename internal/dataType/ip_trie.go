package dataType

import "net/netip"

type TrieNode struct {
	children [2]*TrieNode
	isEnd    bool
}

// PrefixTrie holds CIDR ranges of both address families.
type PrefixTrie struct {
	v4   TrieNode
	v6   TrieNode
	size int
}

func (t *PrefixTrie) Len() int {
	return t.size
}

// Insert adds a prefix; IPv4-mapped IPv6 prefixes are stored as IPv4.
func (t *PrefixTrie) Insert(p netip.Prefix) {
	p = p.Masked()
	addr := p.Addr()
	bits := p.Bits()
	if addr.Is4In6() && bits >= 96 {
		addr = addr.Unmap()
		bits -= 96
	}
	root := &t.v6
	if addr.Is4() {
		root = &t.v4
	}
	root.insert(addr.AsSlice(), bits)
	t.size++
}

// Search reports whether addr falls inside any inserted prefix.
func (t *PrefixTrie) Search(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.Is4() {
		return t.v4.search(addr.AsSlice())
	}
	return t.v6.search(addr.AsSlice())
}

func (node *TrieNode) insert(ip []byte, ones int) {
	current := node
	for i := 0; i < ones; i++ {
		bit := (ip[i/8] >> (7 - uint(i%8))) & 1
		if current.children[bit] == nil {
			current.children[bit] = &TrieNode{}
		}
		current = current.children[bit]
	}
	current.isEnd = true
}

func (node *TrieNode) search(ip []byte) bool {
	current := node
	for i := 0; i < len(ip)*8; i++ {
		if current.isEnd {
			return true
		}
		bit := (ip[i/8] >> (7 - uint(i%8))) & 1
		if current.children[bit] == nil {
			return false
		}
		current = current.children[bit]
	}
	return current.isEnd
}
