package txn

import (
	"fmt"
	"strconv"

	"github.com/odvcencio/folio/pkg/entry"
	"github.com/odvcencio/folio/pkg/graph"
	"github.com/odvcencio/folio/pkg/schema"
)

// Operation is one entry change. Mutations reads the graph the transaction
// starts from; operations in one transaction do not see each other.
type Operation interface {
	Mutations(g *graph.Graph, s *schema.Schema) ([]Mutation, error)
	Describe() string
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

// CreateOp adds a revision. A new id (or an existing id in a new locale or
// phase) is required; an empty ID generates one.
type CreateOp struct {
	ID    string
	Type  string
	Title string
	// Path is the url segment; empty derives it from Title.
	Path      string
	Workspace string
	Root      string
	Locale    string
	// Parent is the parent entry id; empty creates a top-level entry.
	Parent string
	// Status defaults to the effective phase of the parent, else published.
	Status entry.Status
	Data   map[string]any
}

func (op *CreateOp) Describe() string { return fmt.Sprintf("create %s %q", op.Type, op.Title) }

func (op *CreateOp) Mutations(g *graph.Graph, s *schema.Schema) ([]Mutation, error) {
	if _, ok := s.TypeOf(op.Type); !ok {
		return nil, &schema.Error{Type: op.Type}
	}
	if err := s.CheckData(op.Type, op.Data); err != nil {
		return nil, err
	}
	if op.ID == "" {
		op.ID = entry.NewID()
	}
	locale := entry.NormalizeLocale(op.Locale)
	ws, root := op.Workspace, op.Root

	var parentRow *graph.Row
	if op.Parent != "" {
		parent := g.ByID(op.Parent)
		if parent == nil {
			return nil, fmt.Errorf("create: parent %s: %w", op.Parent, ErrNotFound)
		}
		if (ws != "" && ws != parent.Workspace) || (root != "" && root != parent.Root) {
			return nil, fmt.Errorf("create: parent %s lives in %s/%s: %w", op.Parent, parent.Workspace, parent.Root, ErrInvalidMove)
		}
		ws, root = parent.Workspace, parent.Root
		pl := parent.Language(locale)
		if pl == nil {
			return nil, fmt.Errorf("create: parent %s has no %q version: %w", op.Parent, locale, ErrNotFound)
		}
		parentRow = pl.Main()
	}

	status := op.Status
	if status == "" {
		status = entry.Published
		if parentRow != nil && parentRow.EffectiveStatus != entry.Published {
			status = parentRow.EffectiveStatus
		}
	}
	if _, err := entry.ParseStatus(string(status)); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	index := ""
	path := op.Path
	if n := g.ByID(op.ID); n != nil {
		if n.Type != op.Type {
			return nil, fmt.Errorf("create %s: %w: type %s, existing %s", op.ID, ErrDuplicateEntry, op.Type, n.Type)
		}
		if n.Parent != op.Parent || (ws != "" && ws != n.Workspace) || (root != "" && root != n.Root) {
			return nil, fmt.Errorf("create %s: %w: a translation must share parent and root", op.ID, ErrInvalidMove)
		}
		ws, root = n.Workspace, n.Root
		// Locale variants share their position among siblings.
		index = n.Index
		if l := n.Language(locale); l != nil {
			if l.Version(status) != nil {
				return nil, fmt.Errorf("create %s (%s, %s): %w", op.ID, locale, status, ErrDuplicateEntry)
			}
			path = l.Main().Location.Path
		}
	}
	if ws == "" || root == "" {
		return nil, fmt.Errorf("create: workspace and root are required: %w", entry.ErrInvalidRoot)
	}

	if path == "" {
		path = entry.Slugify(op.Title)
	}
	if index == "" {
		sibs := siblings(g, ws, root, op.Parent, op.ID)
		last := ""
		if len(sibs) > 0 {
			last = sibs[len(sibs)-1].Index
		}
		var err error
		if index, err = entry.KeyBetween(last, ""); err != nil {
			return nil, fmt.Errorf("create: %w", err)
		}
	}
	if g.ByID(op.ID) == nil || g.ByID(op.ID).Language(locale) == nil {
		path = uniquePath(g, ws, root, op.Parent, locale, path, op.ID)
	}

	loc := entry.Location{Workspace: ws, Root: root, Locale: locale, Path: path, Status: status}
	if parentRow != nil {
		loc.ParentPaths = parentRow.Location.ChildPaths()
	}
	if err := loc.Validate(s); err != nil {
		return nil, err
	}
	rec := &entry.Record{
		ID:    op.ID,
		Type:  op.Type,
		Title: op.Title,
		Data:  op.Data,
		Meta:  entry.Meta{Index: index, Parent: op.Parent, Locale: locale},
	}
	w, err := writeRecord(rec, loc)
	if err != nil {
		return nil, err
	}
	muts := []Mutation{w}
	if parentRow != nil {
		muts = append(muts, Mutation{Kind: MutationCheck, EntryID: parentRow.ID, Path: parentRow.FilePath})
	}
	return muts, nil
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

// UpdateOp edits one revision. Nil fields are left alone; a nil value in
// Data removes that field.
type UpdateOp struct {
	ID     string
	Locale string
	// Status selects the revision; empty selects the active one.
	Status entry.Status
	Title  *string
	// Path renames the url segment. A published revision moves at once with
	// its descendants; a draft records it until published.
	Path *string
	Data map[string]any
}

func (op *UpdateOp) Describe() string { return "update " + op.ID }

func (op *UpdateOp) Mutations(g *graph.Graph, s *schema.Schema) ([]Mutation, error) {
	l, err := language(g, op.ID, op.Locale)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	row := l.Active()
	if op.Status != "" {
		if row = l.Version(op.Status); row == nil {
			return nil, fmt.Errorf("update %s: no %s version: %w", op.ID, op.Status, ErrNotFound)
		}
	}
	rec := row.Record()
	if op.Title != nil {
		rec.Title = *op.Title
	}
	for k, v := range op.Data {
		if v == nil {
			delete(rec.Data, k)
			continue
		}
		rec.Data[k] = v
	}
	if err := s.CheckData(rec.Type, rec.Data); err != nil {
		return nil, err
	}

	if op.Path == nil || *op.Path == row.Location.Path {
		if op.Path != nil {
			rec.Path = ""
		}
		w, err := writeRecord(rec, row.Location)
		if err != nil {
			return nil, err
		}
		return []Mutation{w}, nil
	}
	if err := entry.ValidatePathSegment(*op.Path); err != nil {
		return nil, err
	}
	if row.Status == entry.Draft && l.Version(entry.Published) != nil {
		rec.Path = *op.Path
		w, err := writeRecord(rec, row.Location)
		if err != nil {
			return nil, err
		}
		return []Mutation{w}, nil
	}
	rec.Path = ""
	return relocate(g, l, *op.Path, map[entry.Status]*entry.Record{row.Status: rec})
}

// ---------------------------------------------------------------------------
// Move
// ---------------------------------------------------------------------------

// MoveOp places an entry under Parent (top level when empty) after the
// sibling After (first when empty). Root switches roots within the same
// workspace. Every locale and phase moves, descendants included.
type MoveOp struct {
	ID     string
	Parent string
	After  string
	Root   string
}

func (op *MoveOp) Describe() string { return "move " + op.ID }

func (op *MoveOp) Mutations(g *graph.Graph, s *schema.Schema) ([]Mutation, error) {
	n := g.ByID(op.ID)
	if n == nil {
		return nil, fmt.Errorf("move %s: %w", op.ID, ErrNotFound)
	}
	root := n.Root
	if op.Root != "" {
		root = op.Root
	}
	if _, ok := s.Root(n.Workspace, root); !ok {
		return nil, &entry.PathError{Path: n.Workspace + "/" + root, Err: entry.ErrInvalidRoot}
	}

	var parent *graph.Node
	if op.Parent != "" {
		if parent = g.ByID(op.Parent); parent == nil {
			return nil, fmt.Errorf("move %s: parent %s: %w", op.ID, op.Parent, ErrNotFound)
		}
		if parent.ID == n.ID {
			return nil, fmt.Errorf("move %s under itself: %w", op.ID, ErrInvalidMove)
		}
		for _, a := range g.Ancestors(parent) {
			if a.ID == n.ID {
				return nil, fmt.Errorf("move %s under its descendant %s: %w", op.ID, op.Parent, ErrInvalidMove)
			}
		}
		if parent.Workspace != n.Workspace || (op.Root != "" && parent.Root != op.Root) {
			return nil, fmt.Errorf("move %s: parent %s lives in %s/%s: %w", op.ID, op.Parent, parent.Workspace, parent.Root, ErrInvalidMove)
		}
		root = parent.Root
	}

	sibs := siblings(g, n.Workspace, root, op.Parent, n.ID)
	lo, hi := "", ""
	if op.After == "" {
		if len(sibs) > 0 {
			hi = sibs[0].Index
		}
	} else {
		i := indexOf(sibs, op.After)
		if i < 0 {
			return nil, fmt.Errorf("move %s after %s: not a sibling: %w", op.ID, op.After, ErrInvalidMove)
		}
		lo = sibs[i].Index
		if i+1 < len(sibs) {
			hi = sibs[i+1].Index
		}
	}
	index, err := entry.KeyBetween(lo, hi)
	if err != nil {
		return nil, fmt.Errorf("move %s: %w", op.ID, err)
	}

	var muts []Mutation
	for _, l := range n.Languages() {
		var parentPaths []string
		if parent != nil {
			pl := parent.Language(l.Locale)
			if pl == nil {
				return nil, fmt.Errorf("move %s: parent %s has no %q version: %w", op.ID, op.Parent, l.Locale, ErrInvalidMove)
			}
			parentPaths = pl.Main().Location.ChildPaths()
			muts = append(muts, Mutation{Kind: MutationCheck, EntryID: parent.ID, Path: pl.Main().FilePath})
		}
		main := l.Main()
		moved := main.Location.ParentDir() != (entry.Location{Workspace: n.Workspace, Root: root, Locale: l.Locale, ParentPaths: parentPaths}).ParentDir()
		if moved && pathTaken(g, n.Workspace, root, op.Parent, l.Locale, main.Location.Path, n.ID) {
			return nil, fmt.Errorf("move %s: %w: %q", op.ID, ErrPathTaken, main.Location.Path)
		}
		for _, row := range l.Versions() {
			rec := row.Record()
			rec.Meta.Index = index
			rec.Meta.Parent = op.Parent
			loc := row.Location
			loc.Root = root
			loc.ParentPaths = parentPaths
			if err := loc.Validate(s); err != nil {
				return nil, err
			}
			if loc.FilePath() != row.FilePath {
				muts = append(muts, Mutation{Kind: MutationRemove, EntryID: n.ID, Path: row.FilePath})
			}
			w, err := writeRecord(rec, loc)
			if err != nil {
				return nil, err
			}
			muts = append(muts, w)
		}
		if moved {
			to := main.Location
			to.Root = root
			to.ParentPaths = parentPaths
			muts = append(muts, Mutation{Kind: MutationRenameDir, EntryID: n.ID, Path: main.ChildrenDir, To: to.ChildrenDir()})
		}
	}
	return muts, nil
}

// ---------------------------------------------------------------------------
// Publish, unpublish, archive
// ---------------------------------------------------------------------------

// PublishOp promotes the draft of one locale to the published revision,
// replacing any published or archived revision. Without a draft the
// archived revision is restored instead. A path recorded on the promoted
// revision relocates the entry and its descendants.
type PublishOp struct {
	ID     string
	Locale string
}

func (op *PublishOp) Describe() string { return "publish " + op.ID }

func (op *PublishOp) Mutations(g *graph.Graph, s *schema.Schema) ([]Mutation, error) {
	l, err := language(g, op.ID, op.Locale)
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	src := l.Version(entry.Draft)
	phases := []entry.Status{entry.Draft, entry.Archived}
	if src == nil {
		src = l.Version(entry.Archived)
		phases = []entry.Status{entry.Archived}
	}
	if src == nil {
		return nil, fmt.Errorf("publish %s: no draft or archived revision: %w", op.ID, ErrNotFound)
	}
	rec := src.Record()
	target := rec.Path
	rec.Path = ""
	if target != "" && target != src.Location.Path {
		records := map[entry.Status]*entry.Record{entry.Published: rec}
		muts, err := relocate(g, l, target, records)
		if err != nil {
			return nil, err
		}
		return retire(muts, l, target, phases...), nil
	}
	loc := src.Location
	loc.Status = entry.Published
	w, err := writeRecord(rec, loc)
	if err != nil {
		return nil, err
	}
	return retire([]Mutation{w}, l, loc.Path, phases...), nil
}

// UnpublishOp turns the published revision of one locale back into a
// draft. An existing draft wins over the published content. Descendants
// stay as they are but no longer resolve as published.
type UnpublishOp struct {
	ID     string
	Locale string
}

func (op *UnpublishOp) Describe() string { return "unpublish " + op.ID }

func (op *UnpublishOp) Mutations(g *graph.Graph, s *schema.Schema) ([]Mutation, error) {
	return demote(g, op.ID, op.Locale, entry.Draft)
}

// ArchiveOp turns the published revision of one locale into the archived
// one. Descendants stay as they are and resolve as archived.
type ArchiveOp struct {
	ID     string
	Locale string
}

func (op *ArchiveOp) Describe() string { return "archive " + op.ID }

func (op *ArchiveOp) Mutations(g *graph.Graph, s *schema.Schema) ([]Mutation, error) {
	return demote(g, op.ID, op.Locale, entry.Archived)
}

func demote(g *graph.Graph, id, locale string, to entry.Status) ([]Mutation, error) {
	l, err := language(g, id, locale)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", verb(to), err)
	}
	pub := l.Version(entry.Published)
	if pub == nil {
		return nil, fmt.Errorf("%s %s: not published: %w", verb(to), id, ErrNotFound)
	}
	if to == entry.Draft && l.Version(entry.Draft) != nil {
		return []Mutation{{Kind: MutationRemove, EntryID: id, Path: pub.FilePath}}, nil
	}
	loc := pub.Location
	loc.Status = to
	return []Mutation{{Kind: MutationRename, EntryID: id, Path: pub.FilePath, To: loc.FilePath()}}, nil
}

func verb(to entry.Status) string {
	if to == entry.Draft {
		return "unpublish"
	}
	return "archive"
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

// DeleteOp removes entries in every locale and phase together with their
// descendants and any other files stored below them.
type DeleteOp struct {
	IDs []string
}

func (op *DeleteOp) Describe() string { return fmt.Sprintf("delete %d entries", len(op.IDs)) }

func (op *DeleteOp) Mutations(g *graph.Graph, s *schema.Schema) ([]Mutation, error) {
	var muts []Mutation
	for _, id := range op.IDs {
		n := g.ByID(id)
		if n == nil {
			return nil, fmt.Errorf("delete %s: %w", id, ErrNotFound)
		}
		nodes := append([]*graph.Node{n}, g.Descendants(n)...)
		for _, d := range nodes {
			for _, row := range d.Rows() {
				muts = append(muts, Mutation{Kind: MutationRemove, EntryID: d.ID, Path: row.FilePath})
			}
		}
		for _, row := range n.Rows() {
			muts = append(muts, Mutation{Kind: MutationRemoveDir, EntryID: n.ID, Path: row.ChildrenDir})
		}
	}
	return muts, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func language(g *graph.Graph, id, locale string) (*graph.Language, error) {
	n := g.ByID(id)
	if n == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	l := n.Language(entry.NormalizeLocale(locale))
	if l == nil {
		return nil, fmt.Errorf("%s has no %q version: %w", id, locale, ErrNotFound)
	}
	return l, nil
}

func writeRecord(rec *entry.Record, loc entry.Location) (Mutation, error) {
	data, err := rec.Encode()
	if err != nil {
		return Mutation{}, err
	}
	return Mutation{Kind: MutationWrite, EntryID: rec.ID, Path: loc.FilePath(), Contents: data}, nil
}

// relocate moves every revision of l to the url segment path and carries
// the children directory along. records replaces the content written for a
// phase.
func relocate(g *graph.Graph, l *graph.Language, path string, records map[entry.Status]*entry.Record) ([]Mutation, error) {
	n := l.Node()
	main := l.Main()
	if err := entry.ValidatePathSegment(path); err != nil {
		return nil, err
	}
	if pathTaken(g, n.Workspace, n.Root, n.Parent, l.Locale, path, n.ID) {
		return nil, fmt.Errorf("relocate %s: %w: %q", n.ID, ErrPathTaken, path)
	}
	var muts []Mutation
	for _, row := range l.Versions() {
		muts = append(muts, Mutation{Kind: MutationRemove, EntryID: n.ID, Path: row.FilePath})
	}
	written := map[entry.Status]bool{}
	for status, rec := range records {
		loc := main.Location
		loc.Path, loc.Status = path, status
		w, err := writeRecord(rec, loc)
		if err != nil {
			return nil, err
		}
		muts = append(muts, w)
		written[status] = true
	}
	for _, row := range l.Versions() {
		if written[row.Status] {
			continue
		}
		loc := row.Location
		loc.Path = path
		rec := row.Record()
		if rec.Path == path {
			rec.Path = ""
		}
		w, err := writeRecord(rec, loc)
		if err != nil {
			return nil, err
		}
		muts = append(muts, w)
	}
	to := main.Location
	to.Path = path
	muts = append(muts, Mutation{Kind: MutationRenameDir, EntryID: n.ID, Path: main.ChildrenDir, To: to.ChildrenDir()})
	return muts, nil
}

// retire drops the writes and adds removals so that the given phases of l
// no longer exist at path.
func retire(muts []Mutation, l *graph.Language, path string, phases ...entry.Status) []Mutation {
	drop := map[string]bool{}
	for _, st := range phases {
		row := l.Version(st)
		if row == nil {
			continue
		}
		loc := row.Location
		loc.Path = path
		drop[loc.FilePath()] = true
		muts = append(muts, Mutation{Kind: MutationRemove, EntryID: row.ID, Path: row.FilePath})
	}
	out := muts[:0]
	for _, m := range muts {
		if m.Kind == MutationWrite && drop[m.Path] {
			continue
		}
		out = append(out, m)
	}
	return out
}

// siblings returns the entries below parent (or the top level of root)
// other than self, ordered by index.
func siblings(g *graph.Graph, workspace, root, parent, self string) []*graph.Node {
	var all []*graph.Node
	if parent == "" {
		all = g.TopLevel(workspace, root)
	} else if p := g.ByID(parent); p != nil {
		all = g.Children(p)
	}
	out := make([]*graph.Node, 0, len(all))
	for _, n := range all {
		if n.ID != self {
			out = append(out, n)
		}
	}
	return out
}

func indexOf(nodes []*graph.Node, id string) int {
	for i, n := range nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// pathTaken reports whether another entry in the same directory and locale
// uses path.
func pathTaken(g *graph.Graph, workspace, root, parent, locale, path, self string) bool {
	for _, n := range siblings(g, workspace, root, parent, self) {
		l := n.Language(locale)
		if l == nil {
			continue
		}
		for _, row := range l.Versions() {
			if row.Location.Path == path {
				return true
			}
		}
	}
	return false
}

func uniquePath(g *graph.Graph, workspace, root, parent, locale, path, self string) string {
	candidate := path
	for i := 1; pathTaken(g, workspace, root, parent, locale, candidate, self); i++ {
		candidate = path + "-" + strconv.Itoa(i)
	}
	return candidate
}
