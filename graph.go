// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// PathToken is one step of a FixUp path: either a struct/map field name or
// an array index, matching the `result`, `[<int>]`, `[<key>]` grammar of
// §6 "Fixup syntax".
type PathToken struct {
	Field string
	Index int
	// IsIndex distinguishes a numeric array index from a (possibly
	// numeric-looking) string field name.
	IsIndex bool
}

func fieldToken(name string) PathToken { return PathToken{Field: name} }
func indexToken(i int) PathToken       { return PathToken{Index: i, IsIndex: true} }

// Path is a chain of PathTokens from the response/request root, e.g.
// the encoding of `result.next[0]`.
type Path []PathToken

// String renders a Path using the §6 grammar.
func (p Path) String() string {
	var b strings.Builder
	for i, tok := range p {
		if i == 0 {
			b.WriteString(tok.Field)
			continue
		}
		if tok.IsIndex {
			fmt.Fprintf(&b, "[%d]", tok.Index)
		} else {
			fmt.Fprintf(&b, "[%s]", strconv.Quote(tok.Field))
		}
	}
	return b.String()
}

// FixUp is a post-parse assignment instruction: "after parse, assign the
// value at Source into Target" (§3, §4.D).
type FixUp struct {
	Target Path
	Source Path
}

// SerializerState is the per-invocation bookkeeping used while marshaling
// or unmarshaling a single value graph (§3, §4.D). It must never be
// shared across calls.
type SerializerState struct {
	allowCycles bool

	// marshal side: identity of native object -> first-seen path.
	seen map[uintptr]Path
	// ancestor stack of (address, path) currently under construction, used
	// for the cycle check (“walk the current construction stack, not scan
	// the identity map”).
	stack []stackEntry

	// unmarshal side: JSON node identity -> materialized native value, so
	// repeated references to the same input node reuse one native object.
	materialized map[*Value]reflect.Value

	fixups []FixUp
}

type stackEntry struct {
	addr uintptr
	path Path
}

// NewSerializerState creates a fresh per-call state. allowCycles controls
// whether a detected cycle is recorded as a fixup (true) or rejected with
// MARSHAL_ERROR (false), per scenario 3 of §8.
func NewSerializerState(allowCycles bool) *SerializerState {
	return &SerializerState{
		allowCycles:  allowCycles,
		seen:         make(map[uintptr]Path),
		materialized: make(map[*Value]reflect.Value),
	}
}

// Fixups returns the accumulated fixup list in emission order.
func (s *SerializerState) Fixups() []FixUp { return s.fixups }

// identity returns a stable address for any addressable/reference-kind
// native value, or ok=false for values that cannot recur in a graph (e.g.
// plain scalars), in which case no dedup/cycle tracking applies.
func identity(rv reflect.Value) (uintptr, bool) {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	default:
		return 0, false
	}
}

// EnterNode must be called before recursing into a native value's
// children during marshal. It reports:
//   - fresh=true: the caller should proceed to marshal v's contents at path.
//   - fresh=false: v was already visited; a FixUp was recorded (unless
//     disallowed and this was a cycle, in which case err is MARSHAL_ERROR)
//     and the caller should emit a null placeholder instead of recursing.
//
// leave must be called (via the returned leave func) once the caller is
// done recursing into v's children, to pop the ancestor stack entry.
func (s *SerializerState) EnterNode(rv reflect.Value, path Path) (fresh bool, leave func(), err error) {
	addr, ok := identity(rv)
	if !ok {
		return true, func() {}, nil
	}

	if prior, visited := s.seen[addr]; visited {
		isCycle := false
		for _, e := range s.stack {
			if e.addr == addr {
				isCycle = true
				break
			}
		}
		if isCycle && !s.allowCycles {
			return false, func() {}, errMarshal("circular reference detected at %s", path)
		}
		s.fixups = append(s.fixups, FixUp{Target: clonePath(path), Source: clonePath(prior)})
		return false, func() {}, nil
	}

	s.seen[addr] = clonePath(path)
	s.stack = append(s.stack, stackEntry{addr: addr, path: path})
	idx := len(s.stack) - 1
	return true, func() {
		s.stack = s.stack[:idx]
	}, nil
}

func clonePath(p Path) Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// RememberMaterialized associates a JSON node with the native value it
// produced during unmarshal, so a later fixup or duplicate reference to
// the same node can reuse the same native instance instead of
// re-constructing it.
func (s *SerializerState) RememberMaterialized(node *Value, native reflect.Value) {
	s.materialized[node] = native
}

// Materialized looks up a previously materialized native value for a JSON
// node.
func (s *SerializerState) Materialized(node *Value) (reflect.Value, bool) {
	rv, ok := s.materialized[node]
	return rv, ok
}

// ApplyFixups walks fixups in order and performs tree[target] := tree[source]
// against root, per §4.D / §4.K. root is the node the first token of every
// path names (e.g. the params array, or the result value); that first token
// is not looked up. The target path's last element is replaced; earlier
// elements of both paths must resolve to existing nodes, or ApplyFixups
// fails with a FIXUP_ERROR-kind error (a dangling source included).
func ApplyFixups(root *Value, fixups []FixUp) error {
	for _, fx := range fixups {
		src, err := resolvePath(root, fx.Source)
		if err != nil {
			return errFixup("fixup source %s: %v", fx.Source, err)
		}
		if err := assignPath(root, fx.Target, src); err != nil {
			return errFixup("fixup target %s: %v", fx.Target, err)
		}
	}
	return nil
}

func resolvePath(root *Value, path Path) (*Value, error) {
	cur := root
	for i, tok := range path {
		if i == 0 {
			// the first token names the root slot ("result" etc.); the
			// caller always passes a root already positioned at that slot.
			continue
		}
		if tok.IsIndex {
			if cur == nil || cur.Kind != KindArray || tok.Index < 0 || tok.Index >= len(cur.Elems) {
				return nil, errFixup("missing source element at %s", path[:i+1])
			}
			cur = cur.Elems[tok.Index]
			continue
		}
		next, ok := cur.Get(tok.Field)
		if !ok {
			return nil, errFixup("missing source field at %s", path[:i+1])
		}
		cur = next
	}
	return cur, nil
}

func assignPath(root *Value, path Path, value *Value) error {
	if len(path) == 0 {
		return errFixup("empty target path")
	}
	if len(path) == 1 {
		*root = *value
		return nil
	}
	cur := root
	for i := 1; i < len(path)-1; i++ {
		tok := path[i]
		if tok.IsIndex {
			if cur.Kind != KindArray || tok.Index < 0 || tok.Index >= len(cur.Elems) {
				return errFixup("missing intermediate element at %s", path[:i+1])
			}
			cur = cur.Elems[tok.Index]
			continue
		}
		next, ok := cur.Get(tok.Field)
		if !ok {
			return errFixup("missing intermediate field at %s", path[:i+1])
		}
		cur = next
	}
	last := path[len(path)-1]
	if last.IsIndex {
		if cur.Kind != KindArray || last.Index < 0 || last.Index >= len(cur.Elems) {
			return errFixup("missing target element at %s", path)
		}
		cur.Elems[last.Index] = value
		return nil
	}
	cur.Set(last.Field, value)
	return nil
}

// ParseFixupString parses the legacy semicolon-joined `lhs=rhs` wire form
// (§6 "Fixup syntax", §9 "Fixup string vs structured"). Each side is a
// chain of `result`, `[<int>]`, `[<json-escaped-string>]` tokens.
func ParseFixupString(s string) ([]FixUp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []FixUp
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		eq := strings.IndexByte(pair, '=')
		if eq < 0 {
			return nil, errFixup("malformed fixup pair %q", pair)
		}
		lhs, err := parsePathString(pair[:eq])
		if err != nil {
			return nil, err
		}
		rhs, err := parsePathString(pair[eq+1:])
		if err != nil {
			return nil, err
		}
		out = append(out, FixUp{Target: lhs, Source: rhs})
	}
	return out, nil
}

// pathTokenStrings renders p as the pre-tokenized string chunks the
// structured fixup wire form uses: the root slot bare, every later token
// as its own "[...]" chunk (§6 "Fixup syntax", §9 "Fixup string vs
// structured"). Concatenating the chunks yields exactly what
// parsePathString expects.
func pathTokenStrings(p Path) []string {
	out := make([]string, len(p))
	for i, tok := range p {
		if i == 0 {
			out[i] = tok.Field
			continue
		}
		if tok.IsIndex {
			out[i] = fmt.Sprintf("[%d]", tok.Index)
		} else {
			out[i] = fmt.Sprintf("[%s]", strconv.Quote(tok.Field))
		}
	}
	return out
}

// MarshalFixupsValue renders fixups as the structured wire array: a list of
// [target_path, source_path] pairs, each path itself a list of token
// strings. This is always the form emitted on the wire; ParseFixupValue
// accepts it back alongside the legacy semicolon string (§9).
func MarshalFixupsValue(fixups []FixUp) *Value {
	out := Array()
	for _, fx := range fixups {
		target := Array()
		for _, tok := range pathTokenStrings(fx.Target) {
			target.Append(String(tok))
		}
		source := Array()
		for _, tok := range pathTokenStrings(fx.Source) {
			source.Append(String(tok))
		}
		out.Append(Array(target, source))
	}
	return out
}

// ParseFixupValue accepts either wire form: a semicolon-joined string
// (legacy) or the structured array of [target_path, source_path] pairs
// described above.
func ParseFixupValue(node *Value) ([]FixUp, error) {
	if node == nil || node.IsNull() {
		return nil, nil
	}
	if node.Kind == KindString {
		return ParseFixupString(node.Str)
	}
	if node.Kind != KindArray {
		return nil, errFixup("fixups field must be a string or array")
	}
	var out []FixUp
	for _, pair := range node.Elems {
		if pair.Kind != KindArray || len(pair.Elems) != 2 {
			return nil, errFixup("malformed fixup pair")
		}
		target, err := tokensToPath(pair.Elems[0])
		if err != nil {
			return nil, err
		}
		source, err := tokensToPath(pair.Elems[1])
		if err != nil {
			return nil, err
		}
		out = append(out, FixUp{Target: target, Source: source})
	}
	return out, nil
}

func tokensToPath(node *Value) (Path, error) {
	if node.Kind != KindArray {
		return nil, errFixup("malformed fixup path")
	}
	var b strings.Builder
	for _, tok := range node.Elems {
		if tok.Kind != KindString {
			return nil, errFixup("malformed fixup path token")
		}
		b.WriteString(tok.Str)
	}
	return parsePathString(b.String())
}

func parsePathString(s string) (Path, error) {
	var path Path
	i := 0
	// leading bare identifier (e.g. "result")
	start := i
	for i < len(s) && s[i] != '[' {
		i++
	}
	if i > start {
		path = append(path, fieldToken(s[start:i]))
	}
	for i < len(s) {
		if s[i] != '[' {
			return nil, errFixup("malformed path %q", s)
		}
		end := strings.IndexByte(s[i:], ']')
		if end < 0 {
			return nil, errFixup("unterminated token in path %q", s)
		}
		token := s[i+1 : i+end]
		i += end + 1
		if n, err := strconv.Atoi(token); err == nil {
			path = append(path, indexToken(n))
			continue
		}
		unquoted, err := strconv.Unquote(token)
		if err != nil {
			unquoted = token
		}
		path = append(path, fieldToken(unquoted))
	}
	return path, nil
}
