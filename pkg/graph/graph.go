// Package graph turns a content tree into an in-memory entry graph: every
// decoded file becomes a Row, rows sharing an entry id form a Node, and
// secondary indices answer lookups by type, parent and full text.
package graph

import (
	"fmt"
	"sort"

	"github.com/odvcencio/folio/pkg/entry"
	"github.com/odvcencio/folio/pkg/object"
)

// Row is one entry revision: one file in the tree.
type Row struct {
	ID    string
	Type  string
	Title string
	// Path is the url segment the revision asks for; see entry.Record.Path.
	Path   string
	Index  string
	Parent string
	Data   map[string]any

	Workspace string
	Root      string
	Locale    string
	// Status is the phase encoded in the file name.
	Status   entry.Status
	Location entry.Location

	FilePath    string
	ParentDir   string
	ChildrenDir string
	URL         string
	Level       int

	FileHash       object.Hash
	RowHash        string
	SearchableText string

	Active bool
	Main   bool
	// EffectiveStatus is the most restrictive of this revision's phase and
	// the main phase of every ancestor in the same locale.
	EffectiveStatus entry.Status

	lang *Language
}

// Language returns the locale group the row belongs to.
func (r *Row) Language() *Language { return r.lang }

// Node returns the entry the row belongs to.
func (r *Row) Node() *Node { return r.lang.node }

// Record rebuilds the record the row was decoded from.
func (r *Row) Record() *entry.Record {
	rec := &entry.Record{
		ID:    r.ID,
		Type:  r.Type,
		Title: r.Title,
		Data:  r.Data,
		Meta:  entry.Meta{Index: r.Index, Parent: r.Parent, Locale: r.Locale},
	}
	if r.Path != r.Location.Path {
		rec.Path = r.Path
	}
	return rec.Clone()
}

// Language groups the phases of one entry in one locale.
type Language struct {
	Locale   string
	versions [3]*Row // indexed by phaseSlot
	node     *Node
}

func phaseSlot(s entry.Status) int {
	switch s {
	case entry.Draft:
		return 0
	case entry.Published:
		return 1
	}
	return 2
}

// Version returns the revision in status s, or nil.
func (l *Language) Version(s entry.Status) *Row { return l.versions[phaseSlot(s)] }

// Versions returns the existing revisions ordered draft, published,
// archived.
func (l *Language) Versions() []*Row {
	out := make([]*Row, 0, 3)
	for _, r := range l.versions {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Active is the editable head: draft, else published, else archived.
func (l *Language) Active() *Row {
	return l.first(entry.Draft, entry.Published, entry.Archived)
}

// Main is the canonical revision: published, else archived, else draft.
func (l *Language) Main() *Row {
	return l.first(entry.Published, entry.Archived, entry.Draft)
}

// Node returns the entry the language belongs to.
func (l *Language) Node() *Node { return l.node }

func (l *Language) first(order ...entry.Status) *Row {
	for _, s := range order {
		if r := l.Version(s); r != nil {
			return r
		}
	}
	return nil
}

// Node groups every revision sharing one entry id.
type Node struct {
	ID        string
	Type      string
	Index     string
	Parent    string
	Workspace string
	Root      string

	languages map[string]*Language
	locales   []string
}

// Language returns the group for locale ("" for unlocalized roots).
func (n *Node) Language(locale string) *Language { return n.languages[locale] }

// Languages returns every locale group sorted by locale.
func (n *Node) Languages() []*Language {
	out := make([]*Language, 0, len(n.locales))
	for _, l := range n.locales {
		out = append(out, n.languages[l])
	}
	return out
}

// Rows returns every revision of the entry.
func (n *Node) Rows() []*Row {
	var out []*Row
	for _, l := range n.Languages() {
		out = append(out, l.Versions()...)
	}
	return out
}

// ConflictError reports two files that disagree about an entry attribute
// that must be shared by all of its revisions.
type ConflictError struct {
	EntryID string
	Field   string
	A, B    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("entry %q: conflicting %s %q and %q", e.EntryID, e.Field, e.A, e.B)
}

// Graph is an immutable snapshot of every entry in one tree.
type Graph struct {
	sha      object.Hash
	nodes    map[string]*Node
	rows     []*Row
	byFile   map[string]*Row
	byType   map[string][]*Node
	children map[string][]*Node
	search   *searchIndex
}

// Empty returns a graph with no entries.
func Empty() *Graph {
	return &Graph{
		sha:      object.EmptyTreeHash,
		nodes:    map[string]*Node{},
		byFile:   map[string]*Row{},
		byType:   map[string][]*Node{},
		children: map[string][]*Node{},
		search:   newSearchIndex(nil),
	}
}

// Sha is the tree the graph was built from.
func (g *Graph) Sha() object.Hash { return g.sha }

// ByID looks up an entry.
func (g *Graph) ByID(id string) *Node { return g.nodes[id] }

// ByFile looks up the revision stored at a file path.
func (g *Graph) ByFile(path string) *Row { return g.byFile[path] }

// Rows returns every revision ordered by file path.
func (g *Graph) Rows() []*Row { return g.rows }

// Len returns the number of entries.
func (g *Graph) Len() int { return len(g.nodes) }

// ByType returns the entries of a type ordered by id.
func (g *Graph) ByType(typeName string) []*Node { return g.byType[typeName] }

// Children returns the direct children of n ordered by index.
func (g *Graph) Children(n *Node) []*Node { return g.children[n.ID] }

// TopLevel returns the entries without a parent in a root, ordered by index.
func (g *Graph) TopLevel(workspace, root string) []*Node {
	return g.children[topLevelKey(workspace, root)]
}

// Parent returns n's parent entry or nil.
func (g *Graph) Parent(n *Node) *Node {
	if n.Parent == "" {
		return nil
	}
	return g.nodes[n.Parent]
}

// Ancestors returns n's parents, nearest first.
func (g *Graph) Ancestors(n *Node) []*Node {
	var out []*Node
	seen := map[string]bool{n.ID: true}
	for p := g.Parent(n); p != nil && !seen[p.ID]; p = g.Parent(p) {
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

// Descendants returns every entry below n, parents before children.
func (g *Graph) Descendants(n *Node) []*Node {
	var out []*Node
	var walk func(*Node, int)
	walk = func(cur *Node, depth int) {
		if depth > len(g.nodes) {
			return
		}
		for _, c := range g.children[cur.ID] {
			out = append(out, c)
			walk(c, depth+1)
		}
	}
	walk(n, 0)
	return out
}

// Siblings returns the entries sharing n's parent, n included, ordered by
// index.
func (g *Graph) Siblings(n *Node) []*Node {
	if n.Parent == "" {
		return g.children[topLevelKey(n.Workspace, n.Root)]
	}
	return g.children[n.Parent]
}

// Next returns the sibling directly after n, or nil at the end.
func (g *Graph) Next(n *Node) *Node { return g.adjacent(n, 1) }

// Previous returns the sibling directly before n, or nil at the start.
func (g *Graph) Previous(n *Node) *Node { return g.adjacent(n, -1) }

func (g *Graph) adjacent(n *Node, step int) *Node {
	sibs := g.Siblings(n)
	for i, s := range sibs {
		if s.ID != n.ID {
			continue
		}
		j := i + step
		if j < 0 || j >= len(sibs) {
			return nil
		}
		return sibs[j]
	}
	return nil
}

// Search returns revisions containing every term, best match first.
func (g *Graph) Search(terms ...string) []Hit { return g.search.find(terms) }

// Condition narrows Filter. Nil predicates accept everything.
type Condition struct {
	Node     func(*Node) bool
	Language func(*Language) bool
	Status   StatusFilter
	Search   []string
}

// Filter scans the graph for revisions passing every part of c, ordered by
// file path, or by relevance when c.Search is set.
func (g *Graph) Filter(c Condition) []*Row {
	status := c.Status
	if status == "" {
		status = StatusPreferPublished
	}
	keep := func(r *Row) bool {
		n := r.Node()
		if c.Node != nil && !c.Node(n) {
			return false
		}
		if c.Language != nil && !c.Language(r.lang) {
			return false
		}
		return status.Picks(r)
	}
	var out []*Row
	if len(c.Search) > 0 {
		for _, h := range g.search.find(c.Search) {
			if keep(h.Row) {
				out = append(out, h.Row)
			}
		}
		return out
	}
	for _, r := range g.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func topLevelKey(workspace, root string) string {
	return "\x00" + workspace + "/" + root
}

func sortNodesByIndex(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Index != nodes[j].Index {
			return nodes[i].Index < nodes[j].Index
		}
		return nodes[i].ID < nodes[j].ID
	})
}
