package values

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/ajitpratap0/csvmachine/pkg/errors"
)

const root = 0

type trieNode struct {
	parent   int
	char     rune
	children map[rune]int
	// index of the member this node resolves to, or -1
	index int
}

// EnumTrie matches enum member names character by character. Nodes live in
// an arena and refer to their parent by id.
//
// A node resolves to a member when its prefix is shared by that member only,
// or when it spells a member name completely. Matching is case-insensitive
// and only letters and digits take part, both in member names and in input.
type EnumTrie struct {
	nodes []trieNode
	names []string
}

// NewEnumTrie builds a trie over names. Names that normalize to the same
// key, or to nothing, are a configuration error.
func NewEnumTrie(names []string) (*EnumTrie, error) {
	if len(names) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "enum has no members")
	}
	keys := make([][]rune, len(names))
	seen := make(map[string]int, len(names))
	for i, name := range names {
		key := normalizeEnumName(name)
		if len(key) == 0 {
			return nil, errors.New(errors.ErrorTypeConfig, "enum member name has no letters or digits").
				WithDetail("member", name)
		}
		if other, ok := seen[string(key)]; ok {
			return nil, errors.New(errors.ErrorTypeConfig, "enum member names are ambiguous").
				WithDetail("member", name).
				WithDetail("other", names[other])
		}
		seen[string(key)] = i
		keys[i] = key
	}

	t := &EnumTrie{names: names}
	t.nodes = append(t.nodes, trieNode{parent: -1, index: -1})
	members := make([]int, len(names))
	for i := range members {
		members[i] = i
	}
	t.build(root, members, keys, 0)
	return t, nil
}

func (t *EnumTrie) build(id int, members []int, keys [][]rune, depth int) {
	if len(members) == 1 {
		t.nodes[id].index = members[0]
		return
	}

	groups := make(map[rune][]int)
	var order []rune
	for _, m := range members {
		key := keys[m]
		if len(key) == depth {
			t.nodes[id].index = m
			continue
		}
		c := key[depth]
		if _, ok := groups[c]; !ok {
			order = append(order, c)
		}
		groups[c] = append(groups[c], m)
	}

	t.nodes[id].children = make(map[rune]int, len(order))
	for _, c := range order {
		child := len(t.nodes)
		t.nodes = append(t.nodes, trieNode{parent: id, char: c, index: -1})
		t.nodes[id].children[c] = child
		t.build(child, groups[c], keys, depth+1)
	}
}

// Next follows c from node id. It returns the next node and whether the
// character matched. Characters that do not take part in matching leave
// the node unchanged.
func (t *EnumTrie) Next(id int, c rune) (int, bool) {
	if !unicode.IsLetter(c) && !unicode.IsDigit(c) {
		return id, true
	}
	if t.Finished(id) {
		return id, true
	}
	child, ok := t.nodes[id].children[unicode.ToLower(c)]
	if !ok {
		return id, false
	}
	return child, true
}

// Finished reports whether node id resolves to a member that no further
// character can change.
func (t *EnumTrie) Finished(id int) bool {
	n := &t.nodes[id]
	return n.index >= 0 && len(n.children) == 0
}

// Match returns the member index node id resolves to, or -1.
func (t *EnumTrie) Match(id int) int {
	return t.nodes[id].index
}

// Path reconstructs the normalized prefix leading to node id.
func (t *EnumTrie) Path(id int) string {
	var rs []rune
	for cur := id; cur > root; cur = t.nodes[cur].parent {
		rs = append(rs, t.nodes[cur].char)
	}
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
	return string(rs)
}

// Lookup matches a complete string. It is a convenience for callers outside
// the lexer.
func (t *EnumTrie) Lookup(s string) int {
	id := root
	for _, c := range s {
		var ok bool
		if id, ok = t.Next(id, c); !ok {
			return -1
		}
	}
	if id == root && len(normalizeEnumName(s)) == 0 {
		return -1
	}
	return t.Match(id)
}

func normalizeEnumName(name string) []rune {
	key := make([]rune, 0, len(name))
	for _, c := range strings.ToLower(name) {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			key = append(key, c)
		}
	}
	return key
}

// EnumParser maps a field onto one of the members of V.
type EnumParser[V comparable] struct {
	base
	trie    *EnumTrie
	members []V
	node    int
	matched int
	failed  bool
}

// NewEnumParser builds the trie for members. names[i] is the name of
// members[i].
func NewEnumParser[V comparable](names []string, members []V, nullable bool) (*EnumParser[V], error) {
	if len(names) != len(members) {
		return nil, errors.New(errors.ErrorTypeInternal, "enum names and members differ in length")
	}
	trie, err := NewEnumTrie(names)
	if err != nil {
		return nil, err
	}
	var zero V
	return &EnumParser[V]{
		base:    base{kind: KindEnum, typ: reflect.TypeOf(zero), nullable: nullable},
		trie:    trie,
		members: members,
	}, nil
}

func (p *EnumParser[V]) Process(c rune) {
	if p.state == FastForward {
		return
	}
	if !unicode.IsLetter(c) && !unicode.IsDigit(c) {
		return
	}
	p.matched++
	next, ok := p.trie.Next(p.node, c)
	if !ok {
		p.failed = true
		p.state = FastForward
		return
	}
	p.node = next
	if p.trie.Finished(p.node) {
		p.state = FastForward
	}
}

func (p *EnumParser[V]) Finish() (ResultValue, error) {
	node, matched, failed := p.node, p.matched, p.failed
	p.node, p.matched, p.failed = root, 0, false
	p.state = Parsing

	if matched == 0 && !failed {
		return p.null(reasonEmpty)
	}
	index := p.trie.Match(node)
	if failed || index < 0 {
		if p.nullable {
			return ResultValue{Kind: KindEnum}, nil
		}
		return ResultValue{Kind: KindEnum}, errors.New(errors.ErrorTypeMalformed, reasonEnumNoMatch).
			WithDetail("type", p.typ.String()).
			WithDetail("prefix", p.trie.Path(node))
	}
	return ResultValue{Kind: KindEnum, Value: p.members[index]}, nil
}
