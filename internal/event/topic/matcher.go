package topic

import "sync"

// Matcher indexes patterns in a trie so that all patterns matching a concrete
// topic can be found without scanning every subscription.
// It is safe for concurrent use.
type Matcher struct {
	mu   sync.RWMutex
	root *trieNode
}

type trieNode struct {
	children map[string]*trieNode
	patterns []Topic
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

// NewMatcher creates an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{root: newTrieNode()}
}

// Add inserts a pattern. Adding the same pattern twice is a no-op.
func (m *Matcher) Add(pattern Topic) {
	if pattern == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node := m.root
	for _, seg := range pattern.Segments() {
		if node.children[seg] == nil {
			node.children[seg] = newTrieNode()
		}
		node = node.children[seg]
	}

	for _, p := range node.patterns {
		if p == pattern {
			return
		}
	}
	node.patterns = append(node.patterns, pattern)
}

// Remove deletes a pattern.
func (m *Matcher) Remove(pattern Topic) {
	if pattern == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node := m.root
	for _, seg := range pattern.Segments() {
		if node.children[seg] == nil {
			return
		}
		node = node.children[seg]
	}

	for i, p := range node.patterns {
		if p == pattern {
			node.patterns = append(node.patterns[:i], node.patterns[i+1:]...)
			return
		}
	}
}

// Match returns every stored pattern matching the concrete topic.
// A pattern is returned at most once.
func (m *Matcher) Match(t Topic) []Topic {
	if t == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Topic
	m.matchRecursive(m.root, t.Segments(), 0, &matches)
	return dedupe(matches)
}

func (m *Matcher) matchRecursive(node *trieNode, segments []string, depth int, matches *[]Topic) {
	if node == nil {
		return
	}

	if depth == len(segments) {
		*matches = append(*matches, node.patterns...)
		// trailing ** matches zero segments
		if child := node.children[WildcardMulti]; child != nil {
			m.matchRecursive(child, segments, depth, matches)
		}
		return
	}

	segment := segments[depth]

	if child := node.children[segment]; child != nil {
		m.matchRecursive(child, segments, depth+1, matches)
	}
	if child := node.children[WildcardSingle]; child != nil {
		m.matchRecursive(child, segments, depth+1, matches)
	}
	if child := node.children[WildcardMulti]; child != nil {
		for i := depth; i <= len(segments); i++ {
			m.matchRecursive(child, segments, i, matches)
		}
	}
}

func dedupe(in []Topic) []Topic {
	if len(in) < 2 {
		return in
	}
	seen := make(map[Topic]struct{}, len(in))
	out := in[:0]
	for _, t := range in {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Count returns the number of stored patterns.
func (m *Matcher) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	var walk func(*trieNode)
	walk = func(n *trieNode) {
		count += len(n.patterns)
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(m.root)
	return count
}
