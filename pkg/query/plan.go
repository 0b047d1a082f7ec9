package query

import (
	"fmt"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/odvcencio/folio/pkg/entry"
	"github.com/odvcencio/folio/pkg/graph"
	"github.com/odvcencio/folio/pkg/schema"
)

// Plan is a validated, compiled query.
type Plan struct {
	// Predicate accepts rows matching every filter of the query except the
	// status policy, which Status applies.
	Predicate func(*graph.Row) bool
	Status    graph.StatusFilter
	// IDs and Types narrow the scan to an index lookup when set.
	IDs   []string
	Types []string
	// Search routes execution through the full-text index.
	Search []string
	// PreFilter narrows a scan to entries of one workspace or root.
	PreFilter func(*graph.Node) bool

	query  *Query
	nested map[string]*Plan
}

// Planner validates queries against a schema.
type Planner struct {
	schema *schema.Schema
}

// NewPlanner returns a planner for s.
func NewPlanner(s *schema.Schema) *Planner { return &Planner{schema: s} }

// Plan validates q and compiles it. Unknown types and fields fail with a
// *schema.Error before anything runs.
func (p *Planner) Plan(q *Query) (*Plan, error) {
	if q.Edge != nil && q.From == "" {
		return nil, fmt.Errorf("query: %s edge needs a source entry", q.Edge.Kind)
	}
	return p.plan(q)
}

// hasRoot reports whether root exists in workspace, or in any workspace
// when none is named.
func (p *Planner) hasRoot(workspace, root string) bool {
	if workspace != "" {
		_, ok := p.schema.Root(workspace, root)
		return ok
	}
	for _, ws := range p.schema.Workspaces() {
		if _, ok := ws.Root(root); ok {
			return true
		}
	}
	return false
}

func (p *Planner) plan(q *Query) (*Plan, error) {
	status, err := q.status()
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if q.Skip < 0 || q.Take < 0 {
		return nil, fmt.Errorf("query: negative skip or take")
	}
	if q.Edge != nil {
		switch q.Edge.Kind {
		case EdgeChildren, EdgeParent, EdgeParents, EdgeSiblings, EdgeNext, EdgePrevious, EdgeTranslations:
		default:
			return nil, fmt.Errorf("query: unknown edge %q", q.Edge.Kind)
		}
		if q.Edge.Depth < 0 {
			return nil, fmt.Errorf("query: negative edge depth")
		}
	}
	for _, t := range q.Type {
		if _, ok := p.schema.TypeOf(t); !ok {
			return nil, &schema.Error{Type: t}
		}
	}
	if q.Workspace != "" {
		if _, ok := p.schema.Workspace(q.Workspace); !ok {
			return nil, &entry.PathError{Path: q.Workspace, Err: entry.ErrInvalidWorkspace}
		}
	}
	if q.Root != "" && !p.hasRoot(q.Workspace, q.Root) {
		path := q.Root
		if q.Workspace != "" {
			path = q.Workspace + "/" + q.Root
		}
		return nil, &entry.PathError{Path: path, Err: entry.ErrInvalidRoot}
	}
	if q.PathGlob != "" && !doublestar.ValidatePattern(q.PathGlob) {
		return nil, fmt.Errorf("query: invalid path glob %q", q.PathGlob)
	}

	checkField := func(name string) error {
		if len(q.Type) == 0 {
			if !p.schema.HasField("", name) {
				return &schema.Error{Field: name}
			}
			return nil
		}
		for _, t := range q.Type {
			if p.schema.HasField(t, name) {
				return nil
			}
		}
		return &schema.Error{Type: q.Type[0], Field: name}
	}
	var exprs []*Expr
	if q.Where != nil {
		exprs = append(exprs, q.Where)
	}
	if q.GroupBy != nil {
		exprs = append(exprs, q.GroupBy)
	}
	for _, o := range q.OrderBy {
		exprs = append(exprs, o.Expr)
	}
	plan := &Plan{Status: status, Search: q.Search, query: q}
	for _, name := range sortedKeys(q.Select) {
		sel := q.Select[name]
		switch {
		case sel.Expr != nil && sel.Query == nil:
			exprs = append(exprs, sel.Expr)
		case sel.Query != nil && sel.Expr == nil:
			sub, err := p.plan(sel.Query)
			if err != nil {
				return nil, err
			}
			if plan.nested == nil {
				plan.nested = map[string]*Plan{}
			}
			plan.nested[name] = sub
		default:
			return nil, fmt.Errorf("query: selection %q needs exactly one of expr or query", name)
		}
	}
	for _, e := range exprs {
		if err := e.validate(checkField); err != nil {
			return nil, err
		}
	}

	if len(q.ID) > 0 {
		plan.IDs = q.ID
	} else if len(q.Type) > 0 {
		plan.Types = q.Type
	}
	if q.Workspace != "" || q.Root != "" {
		ws, root := q.Workspace, q.Root
		plan.PreFilter = func(n *graph.Node) bool {
			return (ws == "" || n.Workspace == ws) && (root == "" || n.Root == root)
		}
	}
	plan.Predicate = compile(q)
	return plan, nil
}

func compile(q *Query) func(*graph.Row) bool {
	var conds []func(*graph.Row) bool
	if len(q.ID) > 0 {
		ids := q.ID
		conds = append(conds, func(r *graph.Row) bool { return slices.Contains(ids, r.ID) })
	}
	if len(q.Type) > 0 {
		types := q.Type
		conds = append(conds, func(r *graph.Row) bool { return slices.Contains(types, r.Type) })
	}
	if q.Workspace != "" {
		ws := q.Workspace
		conds = append(conds, func(r *graph.Row) bool { return r.Workspace == ws })
	}
	if q.Root != "" {
		root := q.Root
		conds = append(conds, func(r *graph.Row) bool { return r.Root == root })
	}
	if q.Locale != nil {
		locale := *q.Locale
		conds = append(conds, func(r *graph.Row) bool { return r.Locale == locale })
	}
	if q.PathGlob != "" {
		glob := q.PathGlob
		conds = append(conds, func(r *graph.Row) bool {
			ok, _ := doublestar.Match(glob, r.FilePath)
			return ok
		})
	}
	if q.Where != nil {
		where := q.Where
		conds = append(conds, func(r *graph.Row) bool { return truthy(where.eval(accessor(r))) })
	}
	return func(r *graph.Row) bool {
		for _, c := range conds {
			if !c(r) {
				return false
			}
		}
		return true
	}
}
