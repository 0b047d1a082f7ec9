package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/odvcencio/folio/pkg/entry"
	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/schema"
	"github.com/odvcencio/folio/pkg/source"
	"github.com/odvcencio/folio/pkg/tree"
)

// FetchFunc loads blobs by sha, in request order.
type FetchFunc func(ctx context.Context, shas []object.Hash) ([]source.Blob, error)

// Options configure an Index.
type Options struct {
	Logger *slog.Logger
}

// version is a decoded blob. Identical content decodes once no matter how
// many files or trees reference it.
type version struct {
	rec  *entry.Record
	text string
	err  error
}

// Index keeps a Graph in step with a Source. Builds are serialized; readers
// always see a complete graph.
type Index struct {
	schema *schema.Schema
	logger *slog.Logger

	mu       sync.Mutex
	versions map[object.Hash]*version
	graph    atomic.Pointer[Graph]
}

// NewIndex returns an index holding the empty graph.
func NewIndex(s *schema.Schema, opts Options) *Index {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	idx := &Index{schema: s, logger: logger, versions: map[object.Hash]*version{}}
	idx.graph.Store(Empty())
	return idx
}

// Schema returns the schema entries are validated against.
func (idx *Index) Schema() *schema.Schema { return idx.schema }

// Graph returns the latest complete snapshot.
func (idx *Index) Graph() *Graph { return idx.graph.Load() }

// Sync rebuilds the graph when src's tree differs from the current one and
// returns the graph now current.
func (idx *Index) Sync(ctx context.Context, src source.Source) (*Graph, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.graph.Load()
	t, err := src.GetTreeIfDifferent(ctx, cur.Sha())
	if err != nil {
		return nil, fmt.Errorf("sync index: %w", err)
	}
	if t == nil {
		return cur, nil
	}
	g, err := idx.build(ctx, t, src.GetBlobs)
	if err != nil {
		return nil, err
	}
	idx.prune(t)
	idx.graph.Store(g)
	return g, nil
}

// Build decodes t into a graph without replacing the current one. Decoded
// versions are cached for later builds.
func (idx *Index) Build(ctx context.Context, t *tree.Tree, fetch FetchFunc) (*Graph, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.build(ctx, t, fetch)
}

// prune drops cached versions no longer referenced by t.
func (idx *Index) prune(t *tree.Tree) {
	live := make(map[object.Hash]struct{}, t.Len())
	for _, sha := range t.Index() {
		live[sha] = struct{}{}
	}
	for sha := range idx.versions {
		if _, ok := live[sha]; !ok {
			delete(idx.versions, sha)
		}
	}
}

func (idx *Index) build(ctx context.Context, t *tree.Tree, fetch FetchFunc) (*Graph, error) {
	files := t.Index()
	paths := make([]string, 0, len(files))
	var missing []object.Hash
	queued := map[object.Hash]bool{}
	for p, sha := range files {
		if !strings.HasSuffix(p, ".json") {
			continue
		}
		paths = append(paths, p)
		if _, ok := idx.versions[sha]; !ok && !queued[sha] {
			queued[sha] = true
			missing = append(missing, sha)
		}
	}
	sort.Strings(paths)

	if len(missing) > 0 {
		blobs, err := fetch(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("load entries: %w", err)
		}
		for _, b := range blobs {
			idx.versions[b.Sha] = idx.decode(b.Data)
		}
	}

	g := &Graph{
		sha:      t.Sha(),
		nodes:    map[string]*Node{},
		byFile:   map[string]*Row{},
		byType:   map[string][]*Node{},
		children: map[string][]*Node{},
	}
	for _, p := range paths {
		loc, err := entry.ParseFilePath(idx.schema, p)
		if err != nil {
			if errors.Is(err, entry.ErrInvalidPath) {
				idx.logger.Warn("skipping file", "path", p, "error", err)
				continue
			}
			return nil, err
		}
		sha := files[p]
		v := idx.versions[sha]
		if v == nil {
			return nil, &source.MissingBlobError{Sha: sha}
		}
		if v.err != nil {
			idx.logger.Warn("skipping entry", "path", p, "sha", sha, "error", v.err)
			continue
		}
		if err := g.add(newRow(v, loc, p, sha)); err != nil {
			return nil, err
		}
	}
	g.link()
	return g, nil
}

func (idx *Index) decode(data []byte) *version {
	rec, err := entry.Decode(data)
	if err != nil {
		return &version{err: err}
	}
	if _, ok := idx.schema.TypeOf(rec.Type); !ok {
		return &version{err: &schema.Error{Type: rec.Type}}
	}
	return &version{rec: rec, text: idx.schema.SearchableText(rec.Type, rec.Title, rec.Data)}
}

func newRow(v *version, loc entry.Location, filePath string, sha object.Hash) *Row {
	rec := v.rec
	path := rec.Path
	if path == "" {
		path = loc.Path
	}
	return &Row{
		ID:     rec.ID,
		Type:   rec.Type,
		Title:  rec.Title,
		Path:   path,
		Index:  rec.Meta.Index,
		Parent: rec.Meta.Parent,
		Data:   rec.Data,

		Workspace: loc.Workspace,
		Root:      loc.Root,
		Locale:    loc.Locale,
		Status:    loc.Status,
		Location:  loc,

		FilePath:    filePath,
		ParentDir:   loc.ParentDir(),
		ChildrenDir: loc.ChildrenDir(),
		URL:         loc.URL(),
		Level:       len(loc.ParentPaths),

		FileHash:       sha,
		RowHash:        entry.RowHash(sha, filePath),
		SearchableText: v.text,
	}
}

// add places r into its node, failing when r disagrees with revisions
// already seen about a shared attribute.
func (g *Graph) add(r *Row) error {
	n := g.nodes[r.ID]
	if n == nil {
		n = &Node{
			ID:        r.ID,
			Type:      r.Type,
			Index:     r.Index,
			Parent:    r.Parent,
			Workspace: r.Workspace,
			Root:      r.Root,
			languages: map[string]*Language{},
		}
		g.nodes[r.ID] = n
	}
	for _, c := range []struct{ field, a, b string }{
		{"type", n.Type, r.Type},
		{"index", n.Index, r.Index},
		{"parent", n.Parent, r.Parent},
		{"workspace", n.Workspace, r.Workspace},
		{"root", n.Root, r.Root},
	} {
		if c.a != c.b {
			return &ConflictError{EntryID: r.ID, Field: c.field, A: c.a, B: c.b}
		}
	}
	l := n.languages[r.Locale]
	if l == nil {
		l = &Language{Locale: r.Locale, node: n}
		n.languages[r.Locale] = l
		n.locales = append(n.locales, r.Locale)
	}
	slot := phaseSlot(r.Status)
	if prev := l.versions[slot]; prev != nil {
		return &ConflictError{EntryID: r.ID, Field: string(r.Status) + " file", A: prev.FilePath, B: r.FilePath}
	}
	l.versions[slot] = r
	r.lang = l
	g.rows = append(g.rows, r)
	g.byFile[r.FilePath] = r
	return nil
}

// link derives everything that depends on the whole graph: flags, effective
// status, sibling order and the search index.
func (g *Graph) link() {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	eff := map[*Language]entry.Status{}
	visiting := map[*Language]bool{}
	var mainStatus func(*Language) entry.Status
	mainStatus = func(l *Language) entry.Status {
		if s, ok := eff[l]; ok {
			return s
		}
		s := l.Main().Status
		if visiting[l] {
			return s
		}
		visiting[l] = true
		if pl := g.parentLanguage(l); pl != nil {
			s = entry.MostRestrictive(s, mainStatus(pl))
		}
		delete(visiting, l)
		eff[l] = s
		return s
	}

	for _, id := range ids {
		n := g.nodes[id]
		sort.Strings(n.locales)
		for _, l := range n.languages {
			active, main := l.Active(), l.Main()
			for _, r := range l.Versions() {
				r.Active = r == active
				r.Main = r == main
				r.EffectiveStatus = r.Status
				if pl := g.parentLanguage(l); pl != nil {
					r.EffectiveStatus = entry.MostRestrictive(r.Status, mainStatus(pl))
				}
			}
		}
		g.byType[n.Type] = append(g.byType[n.Type], n)
		key := n.Parent
		if key == "" {
			key = topLevelKey(n.Workspace, n.Root)
		}
		g.children[key] = append(g.children[key], n)
	}
	for _, sibs := range g.children {
		sortNodesByIndex(sibs)
	}
	g.search = newSearchIndex(g.rows)
}

// parentLanguage is the parent entry's group in l's locale.
func (g *Graph) parentLanguage(l *Language) *Language {
	n := l.node
	if n.Parent == "" {
		return nil
	}
	p := g.nodes[n.Parent]
	if p == nil {
		return nil
	}
	return p.languages[l.Locale]
}
