package peers

import (
	"sort"
	"strings"
)

// List is an immutable, ordered, de-duplicated set of peer addresses.
// Refreshes replace a List wholesale; nothing mutates one in place.
type List struct {
	addrs []string
}

// NewList builds a List from raw addresses, trimming blanks and dropping
// duplicates while keeping first-seen order.
func NewList(addrs ...string) List {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return List{addrs: out}
}

// ParseList splits a comma separated peer string ("node2,node3").
func ParseList(s string) List {
	return NewList(strings.Split(s, ",")...)
}

// Len returns the number of peers.
func (l List) Len() int { return len(l.addrs) }

// Addrs returns a copy of the addresses.
func (l List) Addrs() []string {
	out := make([]string, len(l.addrs))
	copy(out, l.addrs)
	return out
}

// SameSet reports whether both lists contain the same addresses, ignoring order.
func (l List) SameSet(other List) bool {
	if len(l.addrs) != len(other.addrs) {
		return false
	}
	a, b := l.Addrs(), other.Addrs()
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Contains reports whether addr is in the list.
func (l List) Contains(addr string) bool {
	for _, a := range l.addrs {
		if a == addr {
			return true
		}
	}
	return false
}
