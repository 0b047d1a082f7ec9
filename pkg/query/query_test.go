package query

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/odvcencio/folio/pkg/entry"
	"github.com/odvcencio/folio/pkg/graph"
	"github.com/odvcencio/folio/pkg/schema"
	"github.com/odvcencio/folio/pkg/source"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(
		[]*schema.Type{
			{Name: "Page", Fields: []schema.Field{
				{Name: "body", Kind: schema.KindMarkdown, Searchable: true},
				{Name: "category"},
				{Name: "rank", Kind: schema.KindNumber},
			}},
			{Name: "Folder"},
		},
		[]*schema.Workspace{{Name: "main", Roots: []*schema.Root{
			{Name: "pages", Locales: []string{"en", "de"}},
			{Name: "media"},
		}}},
	)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

type fixture struct {
	path string
	rec  *entry.Record
}

func rec(id, typ, title, index, parent, locale string, data map[string]any) *entry.Record {
	if data == nil {
		data = map[string]any{}
	}
	return &entry.Record{ID: id, Type: typ, Title: title, Data: data, Meta: entry.Meta{Index: index, Parent: parent, Locale: locale}}
}

func testGraph(t *testing.T) (*Resolver, *graph.Graph) {
	t.Helper()
	fixtures := []fixture{
		{"main/pages/en/home.json", rec("home", "Folder", "Home", "a0", "", "en", nil)},
		{"main/pages/en/home/a.json", rec("a", "Page", "Alpha", "a0", "home", "en", map[string]any{"category": "x", "rank": 3.0})},
		{"main/pages/en/home/b.json", rec("b", "Page", "Beta", "a1", "home", "en", map[string]any{"category": "y", "rank": 1.0})},
		{"main/pages/en/home/b.draft.json", rec("b", "Page", "Beta draft", "a1", "home", "en", map[string]any{"category": "y", "rank": 1.0})},
		{"main/pages/en/home/c.draft.json", rec("c", "Page", "Gamma", "a2", "home", "en", map[string]any{"category": "x", "rank": 2.0})},
		{"main/pages/de/home.json", rec("home", "Folder", "Startseite", "a0", "", "de", nil)},
		{"main/pages/de/home/a.json", rec("a", "Page", "Alpha DE", "a0", "home", "de", map[string]any{"body": "Ein *kurzer* Text"})},
		{"main/media/logo.json", rec("logo", "Folder", "Logo", "a0", "", "", nil)},
	}
	return graphOf(t, fixtures)
}

func graphOf(t *testing.T, fixtures []fixture) (*Resolver, *graph.Graph) {
	t.Helper()
	files := map[string][]byte{}
	for _, f := range fixtures {
		data, err := f.rec.Encode()
		if err != nil {
			t.Fatal(err)
		}
		files[f.path] = data
	}
	src := source.NewMemory()
	ctx := context.Background()
	if err := src.ApplyChanges(ctx, source.Adds(files)); err != nil {
		t.Fatal(err)
	}
	s := testSchema(t)
	g, err := graph.NewIndex(s, graph.Options{}).Sync(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	return NewResolver(s, nil), g
}

func resolve(t *testing.T, r *Resolver, g *graph.Graph, q *Query) any {
	t.Helper()
	out, err := r.Resolve(context.Background(), g, q)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return out
}

func titles(t *testing.T, v any) []string {
	t.Helper()
	list, ok := v.([]any)
	if !ok {
		t.Fatalf("result %T is not a list", v)
	}
	out := []string{}
	for _, item := range list {
		m := item.(map[string]any)
		out = append(out, m["title"].(string))
	}
	return out
}

func titleOnly() map[string]Projection {
	return map[string]Projection{"title": {Expr: Field("title")}}
}

func pages() *Query {
	q := Find("Page")
	q.Locale = Locale("en")
	q.Select = titleOnly()
	return q
}

func TestDefaultStatusPrefersPublished(t *testing.T) {
	r, g := testGraph(t)
	got := titles(t, resolve(t, r, g, pages()))
	want := []string{"Alpha", "Beta", "Gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("titles = %v, want %v", got, want)
	}

	q := pages()
	q.Status = "draft"
	got = titles(t, resolve(t, r, g, q))
	want = []string{"Beta draft", "Gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("draft titles = %v, want %v", got, want)
	}
}

func TestOrderGroupAndPage(t *testing.T) {
	r, g := testGraph(t)

	q := pages()
	q.OrderBy = []Order{Desc(Field("rank"))}
	if got := titles(t, resolve(t, r, g, q)); !reflect.DeepEqual(got, []string{"Alpha", "Gamma", "Beta"}) {
		t.Fatalf("ordered = %v", got)
	}

	q = pages()
	q.OrderBy = []Order{Asc(Field("title"))}
	q.GroupBy = Field("category")
	if got := titles(t, resolve(t, r, g, q)); !reflect.DeepEqual(got, []string{"Alpha", "Beta"}) {
		t.Fatalf("grouped = %v", got)
	}

	q = pages()
	q.Skip, q.Take = 1, 1
	if got := titles(t, resolve(t, r, g, q)); !reflect.DeepEqual(got, []string{"Beta"}) {
		t.Fatalf("paged = %v", got)
	}

	q = pages()
	q.Take = 1
	q.Count = true
	if got := resolve(t, r, g, q); got != 3 {
		t.Fatalf("count = %v", got)
	}

	q = pages()
	q.Where = Is("category", "x")
	if got := titles(t, resolve(t, r, g, q)); !reflect.DeepEqual(got, []string{"Alpha", "Gamma"}) {
		t.Fatalf("where = %v", got)
	}

	q = pages()
	q.Where = And(Gt(Field("rank"), Value(1)), Not(StartsWith(Field("title"), Value("G"))))
	if got := titles(t, resolve(t, r, g, q)); !reflect.DeepEqual(got, []string{"Alpha"}) {
		t.Fatalf("compound where = %v", got)
	}
}

func TestSiblingEdgesStopAtBoundaries(t *testing.T) {
	r, g := testGraph(t)
	edge := func(from string, kind EdgeKind) any {
		return resolve(t, r, g, &Query{From: from, Edge: &Edge{Kind: kind}, Locale: Locale("en"), First: true, Select: titleOnly()})
	}
	if got := edge("b", EdgeNext); !reflect.DeepEqual(got, map[string]any{"title": "Gamma"}) {
		t.Fatalf("next of b = %v", got)
	}
	if got := edge("b", EdgePrevious); !reflect.DeepEqual(got, map[string]any{"title": "Alpha"}) {
		t.Fatalf("previous of b = %v", got)
	}
	if got := edge("a", EdgePrevious); got != nil {
		t.Fatalf("previous of first = %v", got)
	}
	if got := edge("c", EdgeNext); got != nil {
		t.Fatalf("next of last = %v", got)
	}
	if got := edge("a", EdgeParent); !reflect.DeepEqual(got, map[string]any{"title": "Home"}) {
		t.Fatalf("parent of a = %v", got)
	}

	sibs := resolve(t, r, g, &Query{From: "b", Edge: &Edge{Kind: EdgeSiblings}, Locale: Locale("en"), Select: titleOnly()})
	if got := titles(t, sibs); !reflect.DeepEqual(got, []string{"Alpha", "Gamma"}) {
		t.Fatalf("siblings = %v", got)
	}
}

func TestNestedSelections(t *testing.T) {
	r, g := testGraph(t)
	q := &Query{
		ID:     []string{"home"},
		Locale: Locale("en"),
		First:  true,
		Select: map[string]Projection{
			"title":    {Expr: Field("title")},
			"children": {Query: &Query{Edge: &Edge{Kind: EdgeChildren}, Select: titleOnly()}},
			"count":    {Query: &Query{Edge: &Edge{Kind: EdgeChildren}, Count: true}},
			"de":       {Query: &Query{Edge: &Edge{Kind: EdgeTranslations}, First: true, Select: titleOnly()}},
		},
	}
	got := resolve(t, r, g, q).(map[string]any)
	if got["title"] != "Home" || got["count"] != 3 {
		t.Fatalf("home = %v", got)
	}
	if kids := titles(t, got["children"]); !reflect.DeepEqual(kids, []string{"Alpha", "Beta", "Gamma"}) {
		t.Fatalf("children = %v", kids)
	}
	if !reflect.DeepEqual(got["de"], map[string]any{"title": "Startseite"}) {
		t.Fatalf("translation = %v", got["de"])
	}
}

func TestUnknownSchemaFailsBeforeExecution(t *testing.T) {
	r, g := testGraph(t)
	tests := map[string]*Query{
		"type":       Find("Nope"),
		"where":      {Type: []string{"Page"}, Where: Is("missing", 1)},
		"select":     {Type: []string{"Folder"}, Select: map[string]Projection{"r": {Expr: Field("rank")}}},
		"nested":     {Select: map[string]Projection{"kids": {Query: &Query{Edge: &Edge{Kind: EdgeChildren}, OrderBy: []Order{Asc(Field("nope"))}}}}},
		"any type":   {Where: Is("nope", true)},
		"group":      {Type: []string{"Page"}, GroupBy: Field("color")},
		"order":      {Type: []string{"Page"}, OrderBy: []Order{Desc(Field("color"))}},
		"record sel": {Type: []string{"Page"}, Select: map[string]Projection{"x": {Expr: Record(map[string]*Expr{"c": Field("color")})}}},
	}
	for name, q := range tests {
		t.Run(name, func(t *testing.T) {
			out, err := r.Resolve(context.Background(), g, q)
			if !errors.Is(err, schema.ErrUnknown) {
				t.Fatalf("error = %v, want schema error", err)
			}
			if out != nil {
				t.Fatalf("partial result %v", out)
			}
		})
	}

	if _, err := r.Resolve(context.Background(), g, &Query{Status: "live"}); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if _, err := r.Resolve(context.Background(), g, &Query{Edge: &Edge{Kind: EdgeChildren}}); err == nil {
		t.Fatal("expected error for edge without source")
	}
}

func TestInvalidRootAndMissingSource(t *testing.T) {
	r, g := testGraph(t)
	for _, q := range []*Query{
		{Root: "posts"},
		{Workspace: "main", Root: "posts"},
		{Select: map[string]Projection{"kids": {Query: &Query{Edge: &Edge{Kind: EdgeChildren}, Root: "posts"}}}},
	} {
		if _, err := r.Resolve(context.Background(), g, q); !errors.Is(err, entry.ErrInvalidRoot) {
			t.Fatalf("root %q error = %v, want invalid root", q.Root, err)
		}
	}

	missing := Children("nope")
	if _, err := r.Resolve(context.Background(), g, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve error = %v, want not found", err)
	}
	if _, err := r.Rows(context.Background(), g, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Rows error = %v, want not found", err)
	}
}

func TestEffectiveStatusUnderArchivedParent(t *testing.T) {
	r, g := graphOf(t, []fixture{
		{"main/pages/en/docs.archived.json", rec("docs", "Folder", "Docs", "a0", "", "en", nil)},
		{"main/pages/en/docs/intro.json", rec("intro", "Page", "Intro", "a0", "docs", "en", nil)},
	})
	q := &Query{ID: []string{"intro"}, Status: "archived", First: true}
	got, ok := resolve(t, r, g, q).(map[string]any)
	if !ok {
		t.Fatal("intro missing from archived view")
	}
	if got["_status"] != "published" || got["_effectiveStatus"] != "archived" {
		t.Fatalf("status = %v, effective = %v", got["_status"], got["_effectiveStatus"])
	}

	q = &Query{Type: []string{"Page"}, Where: Is("_effectiveStatus", "archived"), Select: titleOnly()}
	if got := titles(t, resolve(t, r, g, q)); !reflect.DeepEqual(got, []string{"Intro"}) {
		t.Fatalf("where effective status = %v", got)
	}
	q = &Query{ID: []string{"intro"}, Status: "published", First: true}
	if got := resolve(t, r, g, q); got != nil {
		t.Fatalf("published view = %v", got)
	}
}

func TestSearchAndGlob(t *testing.T) {
	r, g := testGraph(t)
	q := &Query{Search: []string{"alpha"}, Select: titleOnly()}
	if got := titles(t, resolve(t, r, g, q)); len(got) != 2 {
		t.Fatalf("search alpha = %v", got)
	}
	q = &Query{Search: []string{"kurz"}, Select: titleOnly()}
	if got := titles(t, resolve(t, r, g, q)); !reflect.DeepEqual(got, []string{"Alpha DE"}) {
		t.Fatalf("search body = %v", got)
	}
	q = &Query{PathGlob: "main/media/**", Select: titleOnly()}
	if got := titles(t, resolve(t, r, g, q)); !reflect.DeepEqual(got, []string{"Logo"}) {
		t.Fatalf("glob = %v", got)
	}
}

func TestAccessPathPriority(t *testing.T) {
	r, g := testGraph(t)
	tests := []struct {
		q    *Query
		want string
	}{
		{&Query{Search: []string{"alpha"}, Root: "pages", Type: []string{"Page"}}, pathSearch},
		{&Query{Root: "pages", Type: []string{"Page"}}, pathPreFilter},
		{&Query{Type: []string{"Page"}}, pathIndex},
		{&Query{ID: []string{"a", "b"}}, pathIndex},
		{&Query{}, pathScan},
	}
	for _, tc := range tests {
		plan, err := r.Planner().Plan(tc.q)
		if err != nil {
			t.Fatal(err)
		}
		ex := newExecutor(g)
		ex.candidates(plan, nil)
		if ex.path != tc.want {
			t.Fatalf("query %+v used %s, want %s", tc.q, ex.path, tc.want)
		}
	}

	// Every path must agree with a full scan.
	indexed, err := r.Rows(context.Background(), g, &Query{Type: []string{"Page"}})
	if err != nil {
		t.Fatal(err)
	}
	scanned, err := r.Rows(context.Background(), g, &Query{Where: Is("_type", "Page")})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(indexed, scanned) {
		t.Fatalf("index rows %d, scan rows %d", len(indexed), len(scanned))
	}
}

func TestWireFormatRoundTrip(t *testing.T) {
	r, g := testGraph(t)
	q := &Query{
		Type:    []string{"Page"},
		Locale:  Locale("en"),
		Where:   Or(In(Field("category"), Value([]string{"x"})), Le(Field("rank"), Value(1))),
		OrderBy: []Order{Desc(Field("rank"))},
		Select: map[string]Projection{
			"t":      {Expr: Record(map[string]*Expr{"title": Field("title"), "status": Field("_status")})},
			"parent": {Query: &Query{Edge: &Edge{Kind: EdgeParent}, First: true, Select: titleOnly()}},
		},
	}
	data, err := json.Marshal(q)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	want := resolve(t, r, g, q)
	got := resolve(t, r, g, decoded)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decoded query result\n%v\nwant\n%v", got, want)
	}
	if n := len(want.([]any)); n != 3 {
		t.Fatalf("result has %d rows", n)
	}
}
