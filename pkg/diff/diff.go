// Package diff compares two revisions of an entry file field by field and
// renders the result as a summary or a line diff.
package diff

import (
	"encoding/json"
	"sort"

	"github.com/odvcencio/folio/pkg/entry"
)

// ChangeType classifies what happened to a field between two revisions.
type ChangeType int

const (
	Added    ChangeType = iota // Field exists only in the after revision.
	Removed                    // Field exists only in the before revision.
	Modified                   // Field exists in both revisions with different values.
)

// FieldChange records a single field-level change. Data fields are keyed
// by their name, the fixed record fields by their JSON name and metadata
// as "alinea.index", "alinea.parent" and "alinea.locale".
type FieldChange struct {
	Type   ChangeType
	Key    string
	Before any // nil for Added.
	After  any // nil for Removed.
}

// FileDiff holds the field-level diff for a single entry file.
type FileDiff struct {
	Path    string
	Changes []FieldChange
}

// DiffFiles computes a field-level diff between before and after revisions
// of the entry file at path. A nil side is a file that does not exist, so
// every field of the other side is added or removed.
func DiffFiles(path string, before, after []byte) (*FileDiff, error) {
	beforeFields, err := fields(before)
	if err != nil {
		return nil, err
	}
	afterFields, err := fields(after)
	if err != nil {
		return nil, err
	}

	fd := &FileDiff{Path: path}
	for _, key := range keys(beforeFields, afterFields) {
		b, inBefore := beforeFields[key]
		a, inAfter := afterFields[key]
		switch {
		case !inBefore:
			fd.Changes = append(fd.Changes, FieldChange{Type: Added, Key: key, After: a})
		case !inAfter:
			fd.Changes = append(fd.Changes, FieldChange{Type: Removed, Key: key, Before: b})
		case !equal(b, a):
			fd.Changes = append(fd.Changes, FieldChange{Type: Modified, Key: key, Before: b, After: a})
		}
	}
	return fd, nil
}

// fields flattens a record into one map. Empty optional fields are left
// out so a field that was cleared shows up as removed.
func fields(data []byte) (map[string]any, error) {
	if data == nil {
		return nil, nil
	}
	rec, err := entry.Decode(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(rec.Data)+7)
	for k, v := range rec.Data {
		out[k] = v
	}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("id", rec.ID)
	set("type", rec.Type)
	set("title", rec.Title)
	set("path", rec.Path)
	set(metaKey("index"), rec.Meta.Index)
	set(metaKey("parent"), rec.Meta.Parent)
	set(metaKey("locale"), rec.Meta.Locale)
	return out, nil
}

// fixedOrder puts the record fields first in a diff; data fields follow
// sorted by name.
var fixedOrder = map[string]int{
	"id": 1, "type": 2, "title": 3, "path": 4,
	metaKey("index"): 5, metaKey("parent"): 6, metaKey("locale"): 7,
}

func metaKey(name string) string { return entry.MetaKey + "." + name }

func keys(a, b map[string]any) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, m := range []map[string]any{a, b} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := fixedOrder[out[i]], fixedOrder[out[j]]
		switch {
		case oi != 0 && oj != 0:
			return oi < oj
		case oi != 0 || oj != 0:
			return oi != 0
		}
		return out[i] < out[j]
	})
	return out
}

// equal compares decoded JSON values by their canonical encoding;
// encoding/json sorts map keys.
func equal(a, b any) bool {
	ea, errA := json.Marshal(a)
	eb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ea) == string(eb)
}
