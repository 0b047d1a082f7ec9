// Package query is the declarative query language over an entry graph: a
// serializable cursor and expression AST, a planner that validates and
// compiles it, and an executor that picks the cheapest access path.
package query

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/odvcencio/folio/pkg/graph"
)

// ErrNotFound reports an edge whose source entry is not in the graph.
var ErrNotFound = errors.New("entry not found")

// EdgeKind names a traversal relative to a source entry.
type EdgeKind string

const (
	EdgeChildren     EdgeKind = "children"
	EdgeParent       EdgeKind = "parent"
	EdgeParents      EdgeKind = "parents"
	EdgeSiblings     EdgeKind = "siblings"
	EdgeNext         EdgeKind = "next"
	EdgePrevious     EdgeKind = "previous"
	EdgeTranslations EdgeKind = "translations"
)

// Edge selects entries related to the source entry instead of the whole
// graph. Depth bounds children and parents; zero means one level for
// children and every level for parents.
type Edge struct {
	Kind        EdgeKind `json:"kind"`
	Depth       int      `json:"depth,omitempty"`
	IncludeSelf bool     `json:"includeSelf,omitempty"`
}

// Order sorts results by an expression.
type Order struct {
	Expr *Expr `json:"expr"`
	Desc bool  `json:"desc,omitempty"`
}

// Asc and Desc build orderings.
func Asc(e *Expr) Order  { return Order{Expr: e} }
func Desc(e *Expr) Order { return Order{Expr: e, Desc: true} }

// Projection is one selected value: an expression evaluated on the row, or
// a nested query whose edges start at the row.
type Projection struct {
	Expr  *Expr  `json:"expr,omitempty"`
	Query *Query `json:"query,omitempty"`
}

// Query is a cursor over entry rows. Zero fields do not filter.
type Query struct {
	// From is the source entry id for Edge in a top-level query. Nested
	// queries start at the row being projected.
	From string `json:"from,omitempty"`
	Edge *Edge  `json:"edge,omitempty"`

	ID        []string `json:"id,omitempty"`
	Type      []string `json:"type,omitempty"`
	Workspace string   `json:"workspace,omitempty"`
	Root      string   `json:"root,omitempty"`
	Locale    *string  `json:"locale,omitempty"`
	Status    string   `json:"status,omitempty"`
	// Search terms all must match; the last one matches as a prefix.
	Search []string `json:"search,omitempty"`
	// PathGlob matches file paths, e.g. "main/pages/**/*.json".
	PathGlob string `json:"pathGlob,omitempty"`
	Where    *Expr  `json:"where,omitempty"`

	OrderBy []Order `json:"orderBy,omitempty"`
	GroupBy *Expr   `json:"groupBy,omitempty"`
	Skip    int     `json:"skip,omitempty"`
	Take    int     `json:"take,omitempty"`

	Select map[string]Projection `json:"select,omitempty"`
	// First returns the first result or nil instead of a list.
	First bool `json:"first,omitempty"`
	// Count returns the number of matches before Skip and Take.
	Count bool `json:"count,omitempty"`
}

// Locale pins a query to one locale; "" selects unlocalized roots.
func Locale(l string) *string { return &l }

// Find starts a query over entries of the given types.
func Find(types ...string) *Query { return &Query{Type: types} }

// Children starts a query over the direct children of an entry.
func Children(from string) *Query {
	return &Query{From: from, Edge: &Edge{Kind: EdgeChildren}}
}

// Decode parses the wire form of a query.
func Decode(data []byte) (*Query, error) {
	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("query: decode: %w", err)
	}
	q.normalizeValues()
	return &q, nil
}

// normalizeValues makes literal values decoded from JSON match the ones the
// constructors produce.
func (q *Query) normalizeValues() {
	var fix func(*Expr)
	fix = func(e *Expr) {
		if e == nil {
			return
		}
		e.Value = normalize(e.Value)
		fix(e.A)
		fix(e.B)
		for _, f := range e.Fields {
			fix(f)
		}
	}
	fix(q.Where)
	fix(q.GroupBy)
	for _, o := range q.OrderBy {
		fix(o.Expr)
	}
	for _, p := range q.Select {
		fix(p.Expr)
		if p.Query != nil {
			p.Query.normalizeValues()
		}
	}
}

func (q *Query) status() (graph.StatusFilter, error) {
	return graph.ParseStatusFilter(q.Status)
}
