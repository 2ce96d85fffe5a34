package pathexpr

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hiveplane/hive/internal/errors"
)

// qtoken is one step of a $-rooted query expression.
type qtoken struct {
	kind   qkind
	name   string  // member, recursive
	index  int     // index
	filter *filter // filter
}

type qkind int

const (
	qMember    qkind = iota // .name or ['name']
	qWildcard               // .* or [*]
	qIndex                  // [n]
	qRecursive              // ..name
	qFilter                 // [?(...)]
)

// filter is a single "@.path OP literal" predicate. op is empty for a bare
// existence check ("[?(@.path)]").
type filter struct {
	path    []segment
	op      string
	literal any
}

// Query evaluates a $-rooted expression against a document and returns all
// matches in document order. A well-formed expression with no matches returns
// an empty slice; a malformed expression reports ErrInvalidPath.
func Query(doc map[string]any, expr string) ([]any, error) {
	tokens, err := parseQuery(expr)
	if err != nil {
		return nil, err
	}

	nodes := []any{doc}
	for _, tok := range tokens {
		var next []any
		for _, node := range nodes {
			next = append(next, applyToken(node, tok)...)
		}
		nodes = next
	}
	if nodes == nil {
		nodes = []any{}
	}
	return nodes, nil
}

// QueryOne evaluates a $-rooted expression expected to match a single value.
// Zero matches report ErrNotFound; multiple matches return the list.
func QueryOne(doc map[string]any, expr string) (any, error) {
	matches, err := Query(doc, expr)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, errors.Wrap(errors.ErrNotFound, "expression %q matched nothing", expr)
	case 1:
		return matches[0], nil
	default:
		return matches, nil
	}
}

func applyToken(node any, tok qtoken) []any {
	switch tok.kind {
	case qMember:
		if obj, ok := node.(map[string]any); ok {
			if v, ok := obj[tok.name]; ok {
				return []any{v}
			}
		}
	case qWildcard:
		return children(node)
	case qIndex:
		if arr, ok := node.([]any); ok && tok.index < len(arr) {
			return []any{arr[tok.index]}
		}
	case qRecursive:
		var out []any
		collectRecursive(node, tok.name, &out)
		return out
	case qFilter:
		var out []any
		for _, child := range children(node) {
			if tok.filter.matches(child) {
				out = append(out, child)
			}
		}
		return out
	}
	return nil
}

// children returns the immediate child values of an object or array.
// Object children are returned in sorted key order for determinism.
func children(node any) []any {
	switch v := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, v[k])
		}
		return out
	case []any:
		return v
	}
	return nil
}

// collectRecursive gathers every value stored under the given key at any depth.
func collectRecursive(node any, name string, out *[]any) {
	switch v := node.(type) {
	case map[string]any:
		if val, ok := v[name]; ok {
			*out = append(*out, val)
		}
		for _, child := range children(v) {
			collectRecursive(child, name, out)
		}
	case []any:
		for _, child := range v {
			collectRecursive(child, name, out)
		}
	}
}

// matches evaluates the filter predicate against a candidate node.
func (f *filter) matches(node any) bool {
	var cur any = node
	for _, seg := range f.path {
		next, ok := step(cur, seg)
		if !ok {
			return false
		}
		cur = next
	}
	if f.op == "" {
		return true
	}
	return compare(cur, f.op, f.literal)
}

func compare(value any, op string, literal any) bool {
	switch op {
	case "==":
		return looseEqual(value, literal)
	case "!=":
		return !looseEqual(value, literal)
	}

	// Ordered comparisons only apply to numbers.
	left, lok := asFloat(value)
	right, rok := asFloat(literal)
	if !lok || !rok {
		return false
	}
	switch op {
	case "<":
		return left < right
	case "<=":
		return left <= right
	case ">":
		return left > right
	case ">=":
		return left >= right
	}
	return false
}

func looseEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// parseQuery tokenizes a $-rooted expression.
func parseQuery(expr string) ([]qtoken, error) {
	if !strings.HasPrefix(expr, "$") {
		return nil, errors.Wrap(errors.ErrInvalidPath, "%q: query expressions start with $", expr)
	}

	var tokens []qtoken
	rest := expr[1:]
	for rest != "" {
		switch {
		case strings.HasPrefix(rest, ".."):
			name, remainder := readName(rest[2:])
			if !validName(name) {
				return nil, errors.Wrap(errors.ErrInvalidPath, "%q: recursive descent needs a member name", expr)
			}
			tokens = append(tokens, qtoken{kind: qRecursive, name: name})
			rest = remainder

		case strings.HasPrefix(rest, ".*"):
			tokens = append(tokens, qtoken{kind: qWildcard})
			rest = rest[2:]

		case strings.HasPrefix(rest, "."):
			name, remainder := readName(rest[1:])
			if !validName(name) {
				return nil, errors.Wrap(errors.ErrInvalidPath, "%q: bad member name %q", expr, name)
			}
			tokens = append(tokens, qtoken{kind: qMember, name: name})
			rest = remainder

		case strings.HasPrefix(rest, "["):
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, errors.Wrap(errors.ErrInvalidPath, "%q: unterminated bracket", expr)
			}
			// Filters may contain ')]' so find the real terminator.
			inner := rest[1:end]
			if strings.HasPrefix(inner, "?(") {
				closeIdx := strings.Index(rest, ")]")
				if closeIdx < 0 {
					return nil, errors.Wrap(errors.ErrInvalidPath, "%q: unterminated filter", expr)
				}
				inner = rest[1 : closeIdx+1]
				end = closeIdx + 1
			}

			tok, err := parseBracket(inner, expr)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			rest = rest[end+1:]

		default:
			return nil, errors.Wrap(errors.ErrInvalidPath, "%q: unexpected %q", expr, rest[:1])
		}
	}
	return tokens, nil
}

// readName consumes a member name up to the next '.' or '['.
func readName(s string) (name, rest string) {
	end := strings.IndexAny(s, ".[")
	if end < 0 {
		return s, ""
	}
	return s[:end], s[end:]
}

// validName reports whether a bare member name is well-formed. Names with
// other characters must use the ['name'] bracket form.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func parseBracket(inner, expr string) (qtoken, error) {
	switch {
	case inner == "*":
		return qtoken{kind: qWildcard}, nil

	case strings.HasPrefix(inner, "'") && strings.HasSuffix(inner, "'") && len(inner) >= 2:
		return qtoken{kind: qMember, name: inner[1 : len(inner)-1]}, nil

	case strings.HasPrefix(inner, "?(") && strings.HasSuffix(inner, ")"):
		f, err := parseFilter(inner[2:len(inner)-1], expr)
		if err != nil {
			return qtoken{}, err
		}
		return qtoken{kind: qFilter, filter: f}, nil

	default:
		n, err := strconv.Atoi(inner)
		if err != nil || n < 0 {
			return qtoken{}, errors.Wrap(errors.ErrInvalidPath, "%q: bad bracket %q", expr, inner)
		}
		return qtoken{kind: qIndex, index: n}, nil
	}
}

// parseFilter parses "@.path", optionally followed by an operator and literal.
func parseFilter(body, expr string) (*filter, error) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "@.") {
		return nil, errors.Wrap(errors.ErrInvalidPath, "%q: filters address the candidate via @.", expr)
	}

	var opIdx int = -1
	var op string
	for _, candidate := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if i := strings.Index(body, candidate); i >= 0 {
			opIdx, op = i, candidate
			break
		}
	}

	pathPart := body[2:]
	var literal any
	if opIdx >= 0 {
		pathPart = strings.TrimSpace(body[2:opIdx])
		lit, err := parseLiteral(strings.TrimSpace(body[opIdx+len(op):]), expr)
		if err != nil {
			return nil, err
		}
		literal = lit
	}

	segs, err := parseDotted(pathPart)
	if err != nil || len(segs) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidPath, "%q: bad filter path %q", expr, pathPart)
	}
	return &filter{path: segs, op: op, literal: literal}, nil
}

func parseLiteral(s, expr string) (any, error) {
	switch {
	case strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 2:
		return s[1 : len(s)-1], nil
	case s == "true":
		return true, nil
	case s == "false":
		return false, nil
	case s == "null":
		return nil, nil
	default:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidPath, "%q: bad literal %q", expr, s)
		}
		return n, nil
	}
}
