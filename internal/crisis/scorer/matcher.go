package scorer

import (
	"sort"
	"unicode"
	"unicode/utf8"
)

// matcher is an Aho–Corasick automaton over bytes. It is built once and is
// read-only afterwards, so Find is safe for concurrent use.
type matcher struct {
	next []map[byte]int32
	fail []int32
	out  [][]int32 // pattern ids ending at each node, including via fail links
	lens []int     // byte length of each pattern
}

type occurrence struct {
	pattern    int
	start, end int
}

func newMatcher(patterns []string) *matcher {
	m := &matcher{
		next: []map[byte]int32{{}},
		fail: []int32{0},
		out:  [][]int32{nil},
		lens: make([]int, len(patterns)),
	}

	for id, p := range patterns {
		m.lens[id] = len(p)
		node := int32(0)
		for i := 0; i < len(p); i++ {
			child, ok := m.next[node][p[i]]
			if !ok {
				child = int32(len(m.next))
				m.next = append(m.next, map[byte]int32{})
				m.fail = append(m.fail, 0)
				m.out = append(m.out, nil)
				m.next[node][p[i]] = child
			}
			node = child
		}
		m.out[node] = append(m.out[node], int32(id))
	}

	// breadth-first fail links
	queue := make([]int32, 0, len(m.next))
	for _, child := range m.next[0] {
		queue = append(queue, child)
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for b, child := range m.next[node] {
			f := m.fail[node]
			for f != 0 {
				if _, ok := m.next[f][b]; ok {
					break
				}
				f = m.fail[f]
			}
			if target, ok := m.next[f][b]; ok && target != child {
				m.fail[child] = target
			}
			m.out[child] = append(m.out[child], m.out[m.fail[child]]...)
			queue = append(queue, child)
		}
	}

	return m
}

// find returns every whole-word occurrence in text, ordered by start offset
// and, for equal starts, longest first.
func (m *matcher) find(text string) []occurrence {
	var found []occurrence
	node := int32(0)
	for i := 0; i < len(text); i++ {
		b := text[i]
		for node != 0 {
			if _, ok := m.next[node][b]; ok {
				break
			}
			node = m.fail[node]
		}
		if child, ok := m.next[node][b]; ok {
			node = child
		}
		for _, id := range m.out[node] {
			end := i + 1
			start := end - m.lens[id]
			if wordBoundary(text, start, end) {
				found = append(found, occurrence{pattern: int(id), start: start, end: end})
			}
		}
	}

	sort.Slice(found, func(a, b int) bool {
		if found[a].start != found[b].start {
			return found[a].start < found[b].start
		}
		return found[a].end > found[b].end
	})
	return found
}

func wordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
