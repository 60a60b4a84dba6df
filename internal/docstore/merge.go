package docstore

import (
	"fmt"
	"strings"
)

type sentinel struct{ name string }

func (s *sentinel) String() string { return s.name }

// Delete, used as a value inside a merge Set, removes the field.
var Delete any = &sentinel{name: "docstore.Delete"}

// IsDelete reports whether v is the Delete sentinel.
func IsDelete(v any) bool {
	s, ok := v.(*sentinel)
	return ok && s == Delete
}

// Merge applies patch onto dst in place and returns dst. Nested maps merge
// recursively; arrays and scalars replace; Delete removes the key.
func Merge(dst, patch Document) Document {
	if dst == nil {
		dst = Document{}
	}
	for k, v := range patch {
		if IsDelete(v) {
			delete(dst, k)
			continue
		}
		pm, pIsMap := asMap(v)
		if pIsMap {
			if dm, ok := asMap(dst[k]); ok {
				dst[k] = Merge(dm, pm)
				continue
			}
		}
		dst[k] = Clone(v)
	}
	return dst
}

// Replace returns a copy of data with every Delete sentinel stripped, as a
// non-merge Set stores it.
func Replace(data Document) Document {
	out, _ := Clone(data).(Document)
	if out == nil {
		out = Document{}
	}
	return out
}

// DeletePath removes the field at path from doc. Missing intermediate maps
// make it a no-op.
func DeletePath(doc Document, path []string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	cur := doc
	for _, p := range path[:len(path)-1] {
		next, ok := asMap(cur[p])
		if !ok {
			return nil
		}
		cur = next
	}
	delete(cur, path[len(path)-1])
	return nil
}

// ValidatePath rejects empty paths and segments, and segments that dotted
// path encodings cannot carry.
func ValidatePath(path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, p := range path {
		if p == "" || strings.ContainsAny(p, ".$") {
			return fmt.Errorf("%w: segment %q", ErrInvalidPath, p)
		}
	}
	return nil
}

// DeletePatch builds a merge patch that deletes the field at path.
func DeletePatch(path []string) Document {
	patch := Document{path[len(path)-1]: Delete}
	for i := len(path) - 2; i >= 0; i-- {
		patch = Document{path[i]: patch}
	}
	return patch
}

// Clone deep-copies a JSON-shaped value, dropping Delete sentinels.
func Clone(v any) any {
	if m, ok := asMap(v); ok {
		out := make(Document, len(m))
		for k, e := range m {
			if IsDelete(e) {
				continue
			}
			out[k] = Clone(e)
		}
		return out
	}
	if a, ok := v.([]any); ok {
		out := make([]any, len(a))
		for i, e := range a {
			out[i] = Clone(e)
		}
		return out
	}
	return v
}

// CloneDocument deep-copies a document.
func CloneDocument(d Document) Document {
	if d == nil {
		return nil
	}
	out, _ := Clone(d).(Document)
	return out
}

func asMap(v any) (Document, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}
