// Package tree holds immutable, content-addressed snapshots of a directory of
// content files. A Tree hashes exactly like the git tree git would write for
// the same files, so two snapshots are equal iff their shas are equal.
package tree

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/odvcencio/folio/pkg/object"
)

var (
	// ErrInvalidPath is returned for empty, absolute or non-canonical paths.
	ErrInvalidPath = errors.New("invalid path")
	// ErrPathConflict is returned when a file would shadow a directory or the
	// other way around.
	ErrPathConflict = errors.New("path conflict")
	// ErrNotFound is returned when removing or renaming a path that is absent.
	ErrNotFound = errors.New("path not found")
)

// Entry is one child of a Tree. Dir entries carry their subtree.
type Entry struct {
	object.TreeEntry
	tree *Tree
}

// Tree is an immutable snapshot. The zero value is not usable; start from
// Empty, New or a Builder.
type Tree struct {
	sha     object.Hash
	entries []Entry // git order

	indexOnce sync.Once
	index     map[string]object.Hash
	size      int
}

var empty = &Tree{sha: object.EmptyTreeHash}

// Empty returns the tree with no files.
func Empty() *Tree { return empty }

// New builds a tree from a flat path -> blob sha mapping.
func New(files map[string]object.Hash) (*Tree, error) {
	b := Empty().Clone()
	for p, sha := range files {
		if err := b.Add(p, sha); err != nil {
			return nil, err
		}
	}
	return b.Compile()
}

// Sha returns the git tree id of the snapshot.
func (t *Tree) Sha() object.Hash { return t.sha }

// Entries returns the direct children in git order.
func (t *Tree) Entries() []object.TreeEntry {
	out := make([]object.TreeEntry, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.TreeEntry
	}
	return out
}

// Len returns the number of files reachable from t.
func (t *Tree) Len() int {
	t.buildIndex()
	return t.size
}

// Get returns the blob sha stored at p.
func (t *Tree) Get(p string) (object.Hash, bool) {
	dir, name := splitPath(p)
	sub := t.Subtree(dir)
	if sub == nil {
		return "", false
	}
	e, ok := sub.child(name)
	if !ok || e.IsDir() {
		return "", false
	}
	return e.Hash, true
}

// Has reports whether a file exists at p.
func (t *Tree) Has(p string) bool {
	_, ok := t.Get(p)
	return ok
}

// Subtree returns the directory at p, the tree itself for "", or nil.
func (t *Tree) Subtree(p string) *Tree {
	cur := t
	if p == "" {
		return cur
	}
	for _, seg := range strings.Split(p, "/") {
		e, ok := cur.child(seg)
		if !ok || !e.IsDir() {
			return nil
		}
		cur = e.tree
	}
	return cur
}

// HasDir reports whether p names a non-empty directory.
func (t *Tree) HasDir(p string) bool {
	return p != "" && t.Subtree(p) != nil
}

// Index returns the flat path -> blob sha mapping. The map is computed once
// and shared; callers must not modify it.
func (t *Tree) Index() map[string]object.Hash {
	t.buildIndex()
	return t.index
}

// Paths returns every file path in walk order.
func (t *Tree) Paths() []string {
	paths := make([]string, 0, t.Len())
	_ = t.Walk(func(p string, _ object.Hash) error {
		paths = append(paths, p)
		return nil
	})
	return paths
}

// Walk calls fn for every file in git order. A non-nil error from fn stops
// the walk and is returned.
func (t *Tree) Walk(fn func(path string, sha object.Hash) error) error {
	return t.walk("", fn)
}

func (t *Tree) walk(prefix string, fn func(string, object.Hash) error) error {
	for _, e := range t.entries {
		full := joinPath(prefix, e.Name)
		if e.IsDir() {
			if err := e.tree.walk(full, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(full, e.Hash); err != nil {
			return err
		}
	}
	return nil
}

// Clone starts a Builder seeded with t. Directories the builder never touches
// are reused as-is on Compile.
func (t *Tree) Clone() *Builder {
	return &Builder{root: &dirBuilder{base: t}}
}

func (t *Tree) buildIndex() {
	t.indexOnce.Do(func() {
		idx := make(map[string]object.Hash)
		_ = t.walk("", func(p string, sha object.Hash) error {
			idx[p] = sha
			return nil
		})
		t.index = idx
		t.size = len(idx)
	})
}

func (t *Tree) child(name string) (Entry, bool) {
	for _, e := range t.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// ValidatePath checks that p is a clean, relative, slash separated path.
func ValidatePath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	if path.Clean(p) != p || strings.ContainsRune(p, 0) || strings.ContainsRune(p, '\\') {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return nil
}

func splitPath(p string) (dir, name string) {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i], p[i+1:]
	}
	return "", p
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
