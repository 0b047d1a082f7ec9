package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/odvcencio/folio/pkg/graph"
	"github.com/odvcencio/folio/pkg/schema"
)

// Resolver plans and runs queries against graph snapshots.
type Resolver struct {
	planner *Planner
	logger  *slog.Logger
}

// NewResolver returns a resolver validating against s. A nil logger
// discards output.
func NewResolver(s *schema.Schema, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{planner: NewPlanner(s), logger: logger}
}

// Planner returns the planner queries are validated with.
func (r *Resolver) Planner() *Planner { return r.planner }

// Resolve runs q against g. The result is an int for Count queries, a
// single value or nil for First queries and a []any otherwise; each value
// is the Select record, or the full entry when nothing is selected.
func (r *Resolver) Resolve(ctx context.Context, g *graph.Graph, q *Query) (any, error) {
	plan, err := r.planner.Plan(q)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkSource(g, q); err != nil {
		return nil, err
	}
	ex := newExecutor(g)
	out := ex.run(plan, nil)
	r.logger.Debug("resolved query", "path", ex.path, "rows", ex.scanned)
	return out, nil
}

// Rows runs q and returns the matching rows after ordering, grouping and
// paging. Select and Count are ignored.
func (r *Resolver) Rows(ctx context.Context, g *graph.Graph, q *Query) ([]*graph.Row, error) {
	plan, err := r.planner.Plan(q)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkSource(g, q); err != nil {
		return nil, err
	}
	rows, _ := newExecutor(g).rows(plan, nil)
	return rows, nil
}

// checkSource fails a top-level edge query whose source entry is missing.
// Nested edges start at projected rows and always have one.
func checkSource(g *graph.Graph, q *Query) error {
	if q.Edge == nil || g.ByID(q.From) != nil {
		return nil
	}
	return fmt.Errorf("query: %s of %q: %w", q.Edge.Kind, q.From, ErrNotFound)
}

// Access path names, cheapest first.
const (
	pathEdge      = "edge"
	pathSearch    = "search"
	pathPreFilter = "prefilter"
	pathIndex     = "index"
	pathScan      = "scan"
)

// executor runs plans against one graph. Its node cache lives for one
// Resolve call.
type executor struct {
	g       *graph.Graph
	nodes   map[string]*graph.Node
	path    string
	scanned int
}

func newExecutor(g *graph.Graph) *executor {
	return &executor{g: g, nodes: map[string]*graph.Node{}}
}

func (ex *executor) node(id string) *graph.Node {
	if n, ok := ex.nodes[id]; ok {
		return n
	}
	n := ex.g.ByID(id)
	ex.nodes[id] = n
	return n
}

func (ex *executor) run(p *Plan, from *graph.Row) any {
	rows, total := ex.rows(p, from)
	q := p.query
	if q.Count {
		return total
	}
	if q.First {
		if len(rows) == 0 {
			return nil
		}
		return ex.project(p, rows[0])
	}
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, ex.project(p, r))
	}
	return out
}

// rows returns the page of matching rows and the match count before paging.
func (ex *executor) rows(p *Plan, from *graph.Row) ([]*graph.Row, int) {
	rows := ex.candidates(p, from)
	q := p.query
	if len(q.OrderBy) > 0 {
		sortRows(rows, q.OrderBy)
	}
	if q.GroupBy != nil {
		rows = groupRows(rows, q.GroupBy)
	}
	total := len(rows)
	if q.Skip > 0 {
		if q.Skip >= len(rows) {
			rows = nil
		} else {
			rows = rows[q.Skip:]
		}
	}
	if q.Take > 0 && q.Take < len(rows) {
		rows = rows[:q.Take]
	}
	if q.First && len(rows) > 1 {
		rows = rows[:1]
	}
	return rows, total
}

// candidates picks the access path: edges, then full-text search, then a
// pre-filtered scan, then an index lookup, then a full scan.
func (ex *executor) candidates(p *Plan, from *graph.Row) []*graph.Row {
	keep := func(r *graph.Row) bool {
		ex.scanned++
		return p.Predicate(r)
	}
	q := p.query
	switch {
	case q.Edge != nil:
		ex.path = pathEdge
		var out []*graph.Row
		for _, r := range ex.edge(p, from) {
			if keep(r) {
				out = append(out, r)
			}
		}
		return out

	case len(p.Search) > 0:
		ex.path = pathSearch
		var out []*graph.Row
		for _, h := range ex.g.Search(p.Search...) {
			if p.Status.Picks(h.Row) && keep(h.Row) {
				out = append(out, h.Row)
			}
		}
		return out

	case p.PreFilter != nil:
		ex.path = pathPreFilter
		var out []*graph.Row
		for _, r := range ex.g.Filter(graph.Condition{Node: p.PreFilter, Status: p.Status}) {
			if keep(r) {
				out = append(out, r)
			}
		}
		return out

	case len(p.IDs) > 0 || len(p.Types) > 0:
		ex.path = pathIndex
		var nodes []*graph.Node
		for _, id := range p.IDs {
			if n := ex.node(id); n != nil {
				nodes = append(nodes, n)
			}
		}
		for _, t := range p.Types {
			nodes = append(nodes, ex.g.ByType(t)...)
		}
		var out []*graph.Row
		seen := map[*graph.Row]bool{}
		for _, n := range nodes {
			for _, l := range n.Languages() {
				for _, r := range p.Status.Pick(l) {
					if !seen[r] && keep(r) {
						seen[r] = true
						out = append(out, r)
					}
				}
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
		return out
	}

	ex.path = pathScan
	var out []*graph.Row
	for _, r := range ex.g.Rows() {
		if p.Status.Picks(r) && keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// source resolves the row an edge starts at.
func (ex *executor) source(p *Plan, from *graph.Row) *graph.Row {
	if from != nil {
		return from
	}
	q := p.query
	n := ex.node(q.From)
	if n == nil {
		return nil
	}
	for _, l := range n.Languages() {
		if q.Locale != nil && l.Locale != *q.Locale {
			continue
		}
		if rows := graph.StatusPreferDraft.Pick(l); len(rows) > 0 {
			return rows[0]
		}
	}
	return nil
}

func (ex *executor) edge(p *Plan, from *graph.Row) []*graph.Row {
	src := ex.source(p, from)
	if src == nil {
		return nil
	}
	q := p.query
	e := q.Edge
	self := src.Node()

	if e.Kind == EdgeTranslations {
		var out []*graph.Row
		for _, l := range self.Languages() {
			if l.Locale == src.Locale && !e.IncludeSelf {
				continue
			}
			out = append(out, p.Status.Pick(l)...)
		}
		return out
	}

	var nodes []*graph.Node
	switch e.Kind {
	case EdgeChildren:
		depth := e.Depth
		if depth == 0 {
			depth = 1
		}
		var walk func(*graph.Node, int)
		walk = func(n *graph.Node, level int) {
			for _, c := range ex.g.Children(n) {
				nodes = append(nodes, c)
				if level < depth {
					walk(c, level+1)
				}
			}
		}
		if e.IncludeSelf {
			nodes = append(nodes, self)
		}
		walk(self, 1)
	case EdgeParent:
		if parent := ex.g.Parent(self); parent != nil {
			nodes = append(nodes, parent)
		}
	case EdgeParents:
		nodes = ex.g.Ancestors(self)
		if e.Depth > 0 && len(nodes) > e.Depth {
			nodes = nodes[:e.Depth]
		}
	case EdgeSiblings:
		for _, s := range ex.g.Siblings(self) {
			if s != self || e.IncludeSelf {
				nodes = append(nodes, s)
			}
		}
	case EdgeNext:
		if n := ex.g.Next(self); n != nil {
			nodes = append(nodes, n)
		}
	case EdgePrevious:
		if n := ex.g.Previous(self); n != nil {
			nodes = append(nodes, n)
		}
	}

	locale := src.Locale
	if q.Locale != nil {
		locale = *q.Locale
	}
	var out []*graph.Row
	for _, n := range nodes {
		ex.nodes[n.ID] = n
		if l := n.Language(locale); l != nil {
			out = append(out, p.Status.Pick(l)...)
		}
	}
	return out
}

func (ex *executor) project(p *Plan, r *graph.Row) any {
	q := p.query
	if len(q.Select) == 0 {
		return EntryValue(r)
	}
	get := accessor(r)
	out := make(map[string]any, len(q.Select))
	for name, sel := range q.Select {
		if sel.Expr != nil {
			out[name] = sel.Expr.eval(get)
			continue
		}
		out[name] = ex.run(p.nested[name], r)
	}
	return out
}

func sortRows(rows []*graph.Row, orders []Order) {
	keys := make(map[*graph.Row][]any, len(rows))
	for _, r := range rows {
		get := accessor(r)
		k := make([]any, len(orders))
		for i, o := range orders {
			k[i] = o.Expr.eval(get)
		}
		keys[r] = k
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ki, kj := keys[rows[i]], keys[rows[j]]
		for n, o := range orders {
			c := compare(ki[n], kj[n])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// groupRows keeps the first row for each distinct value of by.
func groupRows(rows []*graph.Row, by *Expr) []*graph.Row {
	seen := map[string]bool{}
	out := rows[:0:0]
	for _, r := range rows {
		v := by.eval(accessor(r))
		key := fmt.Sprintf("%T:%v", v, v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// accessor reads builtin attributes and data fields of r.
func accessor(r *graph.Row) func(string) any {
	return func(name string) any {
		switch name {
		case "_id", "_i18nId":
			return r.ID
		case "_type":
			return r.Type
		case "title":
			return r.Title
		case "path", "_path":
			return r.Path
		case "_index":
			return r.Index
		case "_parent":
			if r.Parent == "" {
				return nil
			}
			return r.Parent
		case "_locale":
			if r.Locale == "" {
				return nil
			}
			return r.Locale
		case "_status", "_phase":
			return string(r.Status)
		case "_effectiveStatus":
			return string(r.EffectiveStatus)
		case "_workspace":
			return r.Workspace
		case "_root":
			return r.Root
		case "_url":
			return r.URL
		case "_filePath":
			return r.FilePath
		case "_active":
			return r.Active
		case "_main":
			return r.Main
		case "_level":
			return float64(r.Level)
		case "_fileHash":
			return string(r.FileHash)
		case "_rowHash":
			return r.RowHash
		}
		return normalize(r.Data[name])
	}
}

// EntryValue is the default projection of a row: its builtin attributes
// followed by its data fields.
func EntryValue(r *graph.Row) map[string]any {
	out := make(map[string]any, len(r.Data)+15)
	for k, v := range r.Data {
		out[k] = v
	}
	get := accessor(r)
	for _, k := range []string{"_id", "_type", "title", "path", "_index", "_parent", "_locale", "_status", "_effectiveStatus", "_workspace", "_root", "_url", "_filePath", "_active", "_main"} {
		out[k] = get(k)
	}
	return out
}
