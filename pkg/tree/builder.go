package tree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/folio/pkg/object"
)

// Builder is a mutable working copy of a Tree. It is not safe for concurrent
// use.
type Builder struct {
	root *dirBuilder
}

// dirBuilder expands its base snapshot lazily, so untouched directories are
// carried into the compiled tree without rehashing.
type dirBuilder struct {
	base  *Tree
	dirty bool
	files map[string]object.Hash
	dirs  map[string]*dirBuilder
}

func (d *dirBuilder) expand() {
	if d.files != nil {
		return
	}
	d.files = make(map[string]object.Hash)
	d.dirs = make(map[string]*dirBuilder)
	if d.base == nil {
		return
	}
	for _, e := range d.base.entries {
		if e.IsDir() {
			d.dirs[e.Name] = &dirBuilder{base: e.tree}
		} else {
			d.files[e.Name] = e.Hash
		}
	}
}

// Get returns the blob sha currently staged at p.
func (b *Builder) Get(p string) (object.Hash, bool) {
	dir, name := splitPath(p)
	d := b.lookupDir(dir)
	if d == nil {
		return "", false
	}
	if d.files == nil {
		if d.base == nil {
			return "", false
		}
		e, ok := d.base.child(name)
		if !ok || e.IsDir() {
			return "", false
		}
		return e.Hash, true
	}
	sha, ok := d.files[name]
	return sha, ok
}

// Has reports whether a file is staged at p.
func (b *Builder) Has(p string) bool {
	_, ok := b.Get(p)
	return ok
}

// Add stages sha at p, replacing any file already there. Missing parent
// directories are created.
func (b *Builder) Add(p string, sha object.Hash) error {
	if err := ValidatePath(p); err != nil {
		return err
	}
	if err := object.ValidateHash(sha); err != nil {
		return fmt.Errorf("add %q: %w", p, err)
	}
	segs := strings.Split(p, "/")
	name := segs[len(segs)-1]

	// Check every conflict before mutating anything.
	cur := b.root
	for i, seg := range segs[:len(segs)-1] {
		cur.expand()
		if _, isFile := cur.files[seg]; isFile {
			return fmt.Errorf("add %q: %w: %q is a file", p, ErrPathConflict, strings.Join(segs[:i+1], "/"))
		}
		next, ok := cur.dirs[seg]
		if !ok {
			cur = nil
			break
		}
		cur = next
	}
	if cur != nil {
		cur.expand()
		if sub, isDir := cur.dirs[name]; isDir && !sub.isEmpty() {
			return fmt.Errorf("add %q: %w: path is a directory", p, ErrPathConflict)
		}
	}

	cur = b.root
	cur.dirty = true
	for _, seg := range segs[:len(segs)-1] {
		cur.expand()
		next, ok := cur.dirs[seg]
		if !ok {
			next = &dirBuilder{}
			next.expand()
			cur.dirs[seg] = next
		}
		next.dirty = true
		cur = next
	}
	cur.expand()
	delete(cur.dirs, name)
	cur.files[name] = sha
	return nil
}

// Remove deletes the file at p. Directories left empty disappear from the
// compiled tree.
func (b *Builder) Remove(p string) (object.Hash, error) {
	if err := ValidatePath(p); err != nil {
		return "", err
	}
	sha, ok := b.Get(p)
	if !ok {
		return "", fmt.Errorf("remove %q: %w", p, ErrNotFound)
	}
	segs := strings.Split(p, "/")
	cur := b.root
	cur.dirty = true
	for _, seg := range segs[:len(segs)-1] {
		cur.expand()
		cur = cur.dirs[seg]
		cur.dirty = true
	}
	cur.expand()
	delete(cur.files, segs[len(segs)-1])
	return sha, nil
}

// Rename moves the file at from to to.
func (b *Builder) Rename(from, to string) error {
	sha, ok := b.Get(from)
	if !ok {
		return fmt.Errorf("rename %q: %w", from, ErrNotFound)
	}
	if from == to {
		return nil
	}
	if _, err := b.Remove(from); err != nil {
		return err
	}
	if err := b.Add(to, sha); err != nil {
		// Put the source back so a failed rename leaves nothing half done.
		_ = b.Add(from, sha)
		return fmt.Errorf("rename %q: %w", from, err)
	}
	return nil
}

// Files returns every file staged under dir, sorted. An empty dir lists the
// whole tree.
func (b *Builder) Files(dir string) []string {
	d := b.lookupDir(dir)
	if d == nil {
		return nil
	}
	var out []string
	d.collect(dir, &out)
	sort.Strings(out)
	return out
}

// RenameDir moves every file under from to the same relative path under to.
// Nothing changes when any move conflicts.
func (b *Builder) RenameDir(from, to string) error {
	if from == to {
		return nil
	}
	if strings.HasPrefix(to+"/", from+"/") {
		return fmt.Errorf("rename %q into itself: %w", from, ErrPathConflict)
	}
	files := b.Files(from)
	done := make([][2]string, 0, len(files))
	for _, src := range files {
		dst := to + strings.TrimPrefix(src, from)
		if err := b.Rename(src, dst); err != nil {
			for i := len(done) - 1; i >= 0; i-- {
				_ = b.Rename(done[i][1], done[i][0])
			}
			return err
		}
		done = append(done, [2]string{src, dst})
	}
	return nil
}

// ApplyChanges applies changes in order. On error the builder may hold a
// prefix of the changes; callers that need atomicity work on a Clone.
func (b *Builder) ApplyChanges(changes []Change) error {
	for _, c := range changes {
		switch c.Op {
		case OpAdd:
			if err := b.Add(c.Path, c.Sha); err != nil {
				return err
			}
		case OpDelete:
			if _, err := b.Remove(c.Path); err != nil {
				return err
			}
		default:
			return fmt.Errorf("apply change %q: unknown op %q", c.Path, c.Op)
		}
	}
	return nil
}

// Compile produces the snapshot for the staged state. The builder remains
// usable afterwards.
func (b *Builder) Compile() (*Tree, error) {
	t, err := b.root.compile()
	if err != nil {
		return nil, err
	}
	if t == nil {
		return Empty(), nil
	}
	return t, nil
}

func (b *Builder) lookupDir(dir string) *dirBuilder {
	cur := b.root
	if dir == "" {
		return cur
	}
	for _, seg := range strings.Split(dir, "/") {
		if cur.files == nil {
			if cur.base == nil {
				return nil
			}
			sub := cur.base.Subtree(seg)
			if sub == nil {
				return nil
			}
			// Read-only lookups on untouched directories stay unexpanded.
			cur = &dirBuilder{base: sub}
			continue
		}
		next, ok := cur.dirs[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func (d *dirBuilder) isEmpty() bool {
	if d.files == nil {
		return d.base == nil || len(d.base.entries) == 0
	}
	if len(d.files) > 0 {
		return false
	}
	for _, sub := range d.dirs {
		if !sub.isEmpty() {
			return false
		}
	}
	return true
}

func (d *dirBuilder) collect(prefix string, out *[]string) {
	if d.files == nil {
		if d.base != nil {
			_ = d.base.walk(prefix, func(p string, _ object.Hash) error {
				*out = append(*out, p)
				return nil
			})
		}
		return
	}
	for name := range d.files {
		*out = append(*out, joinPath(prefix, name))
	}
	for name, sub := range d.dirs {
		sub.collect(joinPath(prefix, name), out)
	}
}

// compile returns nil for a directory without files.
func (d *dirBuilder) compile() (*Tree, error) {
	if !d.dirty && d.base != nil {
		if len(d.base.entries) == 0 {
			return nil, nil
		}
		return d.base, nil
	}
	d.expand()

	entries := make([]Entry, 0, len(d.files)+len(d.dirs))
	for name, sha := range d.files {
		entries = append(entries, Entry{TreeEntry: object.TreeEntry{Name: name, Mode: object.TreeModeFile, Hash: sha}})
	}
	for name, sub := range d.dirs {
		st, err := sub.compile()
		if err != nil {
			return nil, err
		}
		if st == nil {
			continue
		}
		entries = append(entries, Entry{TreeEntry: object.TreeEntry{Name: name, Mode: object.TreeModeDir, Hash: st.sha}, tree: st})
	}
	if len(entries) == 0 {
		return nil, nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return object.CompareTreeEntries(entries[i].TreeEntry, entries[j].TreeEntry) < 0
	})

	raw := make([]object.TreeEntry, len(entries))
	for i, e := range entries {
		raw[i] = e.TreeEntry
	}
	data, err := object.SerializeTreeEntries(raw)
	if err != nil {
		return nil, fmt.Errorf("compile tree: %w", err)
	}
	t := &Tree{sha: object.HashTree(data), entries: entries}

	// Later compiles can reuse this snapshot until the directory changes again.
	d.base = t
	d.dirty = false
	d.files, d.dirs = nil, nil
	return t, nil
}
