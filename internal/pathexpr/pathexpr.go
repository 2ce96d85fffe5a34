// Package pathexpr parses and evaluates path expressions against in-memory
// JSON document trees (map[string]any / []any as produced by encoding/json).
//
// Two dialects are supported:
//
//   - Dotted member access with optional indices: "a.b.c", "a.items[2].name".
//     Used for all write operations (Set, Merge, Delete) and single-value reads.
//   - A JSONPath-like subset rooted at "$" for multi-match reads: wildcards
//     ("$.sessions[*].id", "$.a.*"), recursive descent ("$..members"), and
//     filters ("$.sessions[?(@.status=='active')].id").
//
// Writes never accept wildcards: intermediate missing maps are created
// explicitly from the dotted form, never inferred from a multi-match
// expression.
package pathexpr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hiveplane/hive/internal/errors"
)

// segment is one step of a dotted path: either a map key or an array index.
type segment struct {
	key     string
	index   int
	isIndex bool
}

func (s segment) String() string {
	if s.isIndex {
		return fmt.Sprintf("[%d]", s.index)
	}
	return s.key
}

// parseDotted splits a dotted path into segments. "a.b[2].c" yields
// key(a), key(b), index(2), key(c). An empty path yields no segments.
func parseDotted(path string) ([]segment, error) {
	if path == "" {
		return nil, nil
	}
	if strings.HasPrefix(path, "$") {
		return nil, errors.Wrap(errors.ErrInvalidPath, "%q: query expressions are read-only, use a dotted path", path)
	}

	var segs []segment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, errors.Wrap(errors.ErrInvalidPath, "%q: empty segment", path)
		}

		// Split off any [n] suffixes: "items[2][0]" -> key(items), index(2), index(0).
		key := part
		var indices []int
		for {
			open := strings.IndexByte(key, '[')
			if open < 0 {
				break
			}
			if !strings.HasSuffix(key, "]") {
				return nil, errors.Wrap(errors.ErrInvalidPath, "%q: unterminated index", path)
			}
			rest := key[open+1 : len(key)-1]
			key = key[:open]
			for _, idx := range strings.Split(rest, "][") {
				n, err := strconv.Atoi(idx)
				if err != nil || n < 0 {
					return nil, errors.Wrap(errors.ErrInvalidPath, "%q: bad index %q", path, idx)
				}
				indices = append(indices, n)
			}
			break
		}

		if key != "" {
			segs = append(segs, segment{key: key})
		} else if len(indices) == 0 {
			return nil, errors.Wrap(errors.ErrInvalidPath, "%q: empty segment", path)
		}
		for _, n := range indices {
			segs = append(segs, segment{index: n, isIndex: true})
		}
	}
	return segs, nil
}

// Get returns the value at a dotted path. Missing keys or out-of-range
// indices report ErrNotFound.
func Get(doc map[string]any, path string) (any, error) {
	segs, err := parseDotted(path)
	if err != nil {
		return nil, err
	}

	var cur any = doc
	for _, seg := range segs {
		next, ok := step(cur, seg)
		if !ok {
			return nil, errors.Wrap(errors.ErrNotFound, "path %q has no value at %q", path, seg)
		}
		cur = next
	}
	return cur, nil
}

// step descends one segment into a value.
func step(v any, seg segment) (any, bool) {
	if seg.isIndex {
		arr, ok := v.([]any)
		if !ok || seg.index >= len(arr) {
			return nil, false
		}
		return arr[seg.index], true
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	child, ok := obj[seg.key]
	return child, ok
}

// Set writes a value at a dotted path, creating intermediate maps as needed.
// Index segments must address existing array slots; traversing through a
// non-container value reports ErrTypeMismatch.
func Set(doc map[string]any, path string, value any) error {
	segs, err := parseDotted(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return errors.Wrap(errors.ErrInvalidPath, "set requires a non-empty path")
	}

	parent, last, err := descendForWrite(doc, segs, path)
	if err != nil {
		return err
	}

	if last.isIndex {
		arr, ok := parent.([]any)
		if !ok {
			return errors.Wrap(errors.ErrTypeMismatch, "path %q: cannot index into %T", path, parent)
		}
		if last.index >= len(arr) {
			return errors.Wrap(errors.ErrNotFound, "path %q: index %d out of range", path, last.index)
		}
		arr[last.index] = value
		return nil
	}

	obj, ok := parent.(map[string]any)
	if !ok {
		return errors.Wrap(errors.ErrTypeMismatch, "path %q: cannot set member of %T", path, parent)
	}
	obj[last.key] = value
	return nil
}

// Delete removes the value at a dotted path. Deleting a missing path reports
// ErrNotFound. Array elements are removed, shifting later elements down.
func Delete(doc map[string]any, path string) error {
	segs, err := parseDotted(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return errors.Wrap(errors.ErrInvalidPath, "delete requires a non-empty path")
	}

	// Walk to the parent without creating anything.
	var cur any = doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := step(cur, seg)
		if !ok {
			return errors.Wrap(errors.ErrNotFound, "path %q has no value at %q", path, seg)
		}
		cur = next
	}

	last := segs[len(segs)-1]
	if last.isIndex {
		// The parent array must be re-assigned in its own container, so
		// deletion by index requires a map key one level up.
		if len(segs) < 2 || segs[len(segs)-2].isIndex {
			return errors.Wrap(errors.ErrInvalidPath, "path %q: cannot delete array element without a named parent", path)
		}
		arr, ok := cur.([]any)
		if !ok || last.index >= len(arr) {
			return errors.Wrap(errors.ErrNotFound, "path %q: index %d out of range", path, last.index)
		}

		holder := doc
		for _, seg := range segs[:len(segs)-2] {
			next, _ := step(holder, seg)
			m, ok := next.(map[string]any)
			if !ok {
				return errors.Wrap(errors.ErrTypeMismatch, "path %q: unexpected container shape", path)
			}
			holder = m
		}
		holder[segs[len(segs)-2].key] = append(arr[:last.index], arr[last.index+1:]...)
		return nil
	}

	obj, ok := cur.(map[string]any)
	if !ok {
		return errors.Wrap(errors.ErrTypeMismatch, "path %q: cannot delete member of %T", path, cur)
	}
	if _, exists := obj[last.key]; !exists {
		return errors.Wrap(errors.ErrNotFound, "path %q has no value at %q", path, last.key)
	}
	delete(obj, last.key)
	return nil
}

// Merge deep-merges an object into the object at a dotted path, creating it
// (and intermediates) if missing. Sibling keys at the target are untouched.
// Merging into a non-object value reports ErrTypeMismatch. An empty path
// merges at the document root.
func Merge(doc map[string]any, path string, value map[string]any) error {
	segs, err := parseDotted(path)
	if err != nil {
		return err
	}

	if len(segs) == 0 {
		deepMerge(doc, value)
		return nil
	}

	parent, last, err := descendForWrite(doc, segs, path)
	if err != nil {
		return err
	}

	var target any
	if last.isIndex {
		arr, ok := parent.([]any)
		if !ok || last.index >= len(arr) {
			return errors.Wrap(errors.ErrNotFound, "path %q: index %d out of range", path, last.index)
		}
		target = arr[last.index]
	} else {
		obj, ok := parent.(map[string]any)
		if !ok {
			return errors.Wrap(errors.ErrTypeMismatch, "path %q: cannot merge into member of %T", path, parent)
		}
		existing, exists := obj[last.key]
		if !exists {
			existing = map[string]any{}
			obj[last.key] = existing
		}
		target = existing
	}

	obj, ok := target.(map[string]any)
	if !ok {
		return errors.Wrap(errors.ErrTypeMismatch, "path %q: merge target is %T, not an object", path, target)
	}
	deepMerge(obj, value)
	return nil
}

// deepMerge merges src into dst recursively. Object values merge; everything
// else overwrites.
func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if srcObj, ok := v.(map[string]any); ok {
			if dstObj, ok := dst[k].(map[string]any); ok {
				deepMerge(dstObj, srcObj)
				continue
			}
		}
		dst[k] = v
	}
}

// descendForWrite walks to the parent of the final segment, creating missing
// intermediate maps. It returns the parent container and the final segment.
func descendForWrite(doc map[string]any, segs []segment, path string) (any, segment, error) {
	var cur any = doc
	for i, seg := range segs[:len(segs)-1] {
		if seg.isIndex {
			arr, ok := cur.([]any)
			if !ok {
				return nil, segment{}, errors.Wrap(errors.ErrTypeMismatch, "path %q: cannot index into %T at %q", path, cur, seg)
			}
			if seg.index >= len(arr) {
				return nil, segment{}, errors.Wrap(errors.ErrNotFound, "path %q: index %d out of range", path, seg.index)
			}
			cur = arr[seg.index]
			continue
		}

		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, segment{}, errors.Wrap(errors.ErrTypeMismatch, "path %q: %q is inside a %T, not an object", path, seg.key, cur)
		}
		child, exists := obj[seg.key]
		if !exists {
			// Auto-create intermediate objects on write, but never arrays:
			// the next segment being an index means the caller addressed a
			// structure that does not exist.
			if segs[i+1].isIndex {
				return nil, segment{}, errors.Wrap(errors.ErrNotFound, "path %q: %q does not exist", path, seg.key)
			}
			child = map[string]any{}
			obj[seg.key] = child
		}
		cur = child
	}
	return cur, segs[len(segs)-1], nil
}
