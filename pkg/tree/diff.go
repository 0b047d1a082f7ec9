package tree

import (
	"github.com/odvcencio/folio/pkg/object"
)

// Op is the kind of a file-level change.
type Op string

const (
	OpAdd    Op = "add"
	OpDelete Op = "delete"
)

// Change is one file-level edit. Add changes may carry the blob contents so
// the receiver does not need to fetch them separately. Delete changes carry
// the sha of the removed blob.
type Change struct {
	Op       Op          `json:"op"`
	Path     string      `json:"path"`
	Sha      object.Hash `json:"sha"`
	Contents []byte      `json:"contents,omitempty"`
}

// Diff returns the changes that turn a into b: every delete first, then every
// add, each group in git walk order. A file whose content changed yields a
// single add. Subtrees with equal shas are skipped without descending.
func Diff(a, b *Tree) []Change {
	if a == nil {
		a = Empty()
	}
	if b == nil {
		b = Empty()
	}
	if a.sha == b.sha {
		return nil
	}
	var deletes, adds []Change
	diffDir("", a, b, &deletes, &adds)
	return append(deletes, adds...)
}

func diffDir(prefix string, a, b *Tree, deletes, adds *[]Change) {
	i, j := 0, 0
	for i < len(a.entries) || j < len(b.entries) {
		switch {
		case j >= len(b.entries):
			collect(prefix, a.entries[i], OpDelete, deletes)
			i++
		case i >= len(a.entries):
			collect(prefix, b.entries[j], OpAdd, adds)
			j++
		default:
			ea, eb := a.entries[i], b.entries[j]
			cmp := object.CompareTreeEntries(ea.TreeEntry, eb.TreeEntry)
			switch {
			case cmp < 0:
				collect(prefix, ea, OpDelete, deletes)
				i++
			case cmp > 0:
				collect(prefix, eb, OpAdd, adds)
				j++
			default:
				if ea.Hash != eb.Hash {
					if ea.IsDir() {
						diffDir(joinPath(prefix, ea.Name), ea.tree, eb.tree, deletes, adds)
					} else {
						*adds = append(*adds, Change{Op: OpAdd, Path: joinPath(prefix, eb.Name), Sha: eb.Hash})
					}
				}
				i++
				j++
			}
		}
	}
}

func collect(prefix string, e Entry, op Op, out *[]Change) {
	full := joinPath(prefix, e.Name)
	if !e.IsDir() {
		*out = append(*out, Change{Op: op, Path: full, Sha: e.Hash})
		return
	}
	_ = e.tree.walk(full, func(p string, sha object.Hash) error {
		*out = append(*out, Change{Op: op, Path: p, Sha: sha})
		return nil
	})
}
