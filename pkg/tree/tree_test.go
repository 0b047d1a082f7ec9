package tree

import (
	"errors"
	"reflect"
	"testing"

	"github.com/odvcencio/folio/pkg/object"
)

func blob(s string) object.Hash { return object.HashBlob([]byte(s)) }

func mustTree(t *testing.T, files map[string]string) *Tree {
	t.Helper()
	idx := make(map[string]object.Hash, len(files))
	for p, c := range files {
		idx[p] = blob(c)
	}
	tr, err := New(idx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestNewMatchesGitWriteTree(t *testing.T) {
	tr := mustTree(t, map[string]string{
		"foo-bar": "a\n",
		"foo/bar": "b\n",
		"fooXbar": "c\n",
	})
	if got := tr.Sha(); got != "8fec06c57dd86b9716685b2312e967635ab73720" {
		t.Fatalf("tree sha = %s", got)
	}
	names := []string{}
	for _, e := range tr.Entries() {
		names = append(names, e.Name)
	}
	if want := []string{"foo-bar", "foo", "fooXbar"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("entry order = %v, want %v", names, want)
	}
	if want := []string{"foo-bar", "foo/bar", "fooXbar"}; !reflect.DeepEqual(tr.Paths(), want) {
		t.Fatalf("paths = %v, want %v", tr.Paths(), want)
	}
}

func TestEmptyTree(t *testing.T) {
	tr, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Sha() != object.EmptyTreeHash {
		t.Fatalf("empty sha = %s", tr.Sha())
	}
	if tr.Len() != 0 {
		t.Fatalf("Len = %d", tr.Len())
	}
}

func TestTreeLookups(t *testing.T) {
	tr := mustTree(t, map[string]string{
		"main/pages/index.json":      "1",
		"main/pages/about.json":      "2",
		"main/pages/about/team.json": "3",
		"main/media/logo.json":       "4",
	})
	if sha, ok := tr.Get("main/pages/about.json"); !ok || sha != blob("2") {
		t.Fatalf("Get about.json = %s, %v", sha, ok)
	}
	if tr.Has("main/pages") {
		t.Fatal("directory reported as file")
	}
	if !tr.HasDir("main/pages/about") || tr.HasDir("main/pages/about.json") {
		t.Fatal("HasDir mismatch")
	}
	if tr.Len() != 4 {
		t.Fatalf("Len = %d", tr.Len())
	}
	if got := tr.Index()["main/media/logo.json"]; got != blob("4") {
		t.Fatalf("Index lookup = %s", got)
	}
}

func TestBuilderShaChangesOnlyWithContent(t *testing.T) {
	base := mustTree(t, map[string]string{"a/x.json": "1", "b/y.json": "2"})

	b := base.Clone()
	if err := b.Add("a/x.json", blob("1")); err != nil {
		t.Fatal(err)
	}
	same, err := b.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if same.Sha() != base.Sha() {
		t.Fatalf("rewriting identical content changed sha: %s != %s", same.Sha(), base.Sha())
	}

	if err := b.Add("a/z.json", blob("3")); err != nil {
		t.Fatal(err)
	}
	changed, err := b.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if changed.Sha() == base.Sha() {
		t.Fatal("sha did not change after add")
	}
	if base.Has("a/z.json") {
		t.Fatal("base tree was mutated")
	}
	// The untouched directory is shared, not rebuilt.
	if changed.Subtree("b") != base.Subtree("b") {
		t.Fatal("untouched subtree was not reused")
	}
	want := mustTree(t, map[string]string{"a/x.json": "1", "a/z.json": "3", "b/y.json": "2"})
	if changed.Sha() != want.Sha() {
		t.Fatalf("incremental sha %s != fresh sha %s", changed.Sha(), want.Sha())
	}
}

func TestBuilderRemovePrunesEmptyDirectories(t *testing.T) {
	base := mustTree(t, map[string]string{"a/b/c.json": "1", "d.json": "2"})
	b := base.Clone()
	sha, err := b.Remove("a/b/c.json")
	if err != nil {
		t.Fatal(err)
	}
	if sha != blob("1") {
		t.Fatalf("removed sha = %s", sha)
	}
	got, err := b.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if got.Sha() != mustTree(t, map[string]string{"d.json": "2"}).Sha() {
		t.Fatal("empty directories were not pruned")
	}
	if _, err := b.Remove("a/b/c.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove error = %v, want ErrNotFound", err)
	}
}

func TestBuilderConflicts(t *testing.T) {
	base := mustTree(t, map[string]string{"a/b.json": "1", "c": "2"})
	b := base.Clone()
	if err := b.Add("a", blob("x")); !errors.Is(err, ErrPathConflict) {
		t.Fatalf("file over dir error = %v", err)
	}
	if err := b.Add("c/d.json", blob("x")); !errors.Is(err, ErrPathConflict) {
		t.Fatalf("dir over file error = %v", err)
	}
	for _, bad := range []string{"", "/abs", "a/../b", "a//b", "trailing/"} {
		if err := b.Add(bad, blob("x")); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("Add(%q) error = %v, want ErrInvalidPath", bad, err)
		}
	}
	got, err := b.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if got.Sha() != base.Sha() {
		t.Fatal("failed adds modified the builder")
	}
}

func TestBuilderRename(t *testing.T) {
	base := mustTree(t, map[string]string{"a.json": "1"})
	b := base.Clone()
	if err := b.Rename("a.json", "a/index.json"); err != nil {
		t.Fatal(err)
	}
	if b.Has("a.json") || !b.Has("a/index.json") {
		t.Fatal("rename did not move the file")
	}
	if err := b.Rename("missing.json", "x.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rename missing error = %v", err)
	}
}

func TestDiffOrdersDeletesBeforeAdds(t *testing.T) {
	a := mustTree(t, map[string]string{"keep/x.json": "1", "old.json": "2", "edit.json": "3"})
	b := mustTree(t, map[string]string{"keep/x.json": "1", "new/y.json": "4", "edit.json": "5"})

	got := Diff(a, b)
	want := []Change{
		{Op: OpDelete, Path: "old.json", Sha: blob("2")},
		{Op: OpAdd, Path: "edit.json", Sha: blob("5")},
		{Op: OpAdd, Path: "new/y.json", Sha: blob("4")},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff =\n%#v\nwant\n%#v", got, want)
	}

	bld := a.Clone()
	if err := bld.ApplyChanges(got); err != nil {
		t.Fatal(err)
	}
	applied, err := bld.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if applied.Sha() != b.Sha() {
		t.Fatal("applying the diff did not reproduce the target tree")
	}
	if len(Diff(b, applied)) != 0 {
		t.Fatal("diff of equal trees is not empty")
	}
}

func TestDiffFileReplacedByDirectory(t *testing.T) {
	a := mustTree(t, map[string]string{"page": "1"})
	b := mustTree(t, map[string]string{"page/index.json": "2"})
	changes := Diff(a, b)
	if len(changes) != 2 || changes[0].Op != OpDelete || changes[1].Op != OpAdd {
		t.Fatalf("changes = %#v", changes)
	}
	bld := a.Clone()
	if err := bld.ApplyChanges(changes); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}
	got, err := bld.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if got.Sha() != b.Sha() {
		t.Fatal("result mismatch")
	}
}

func TestBuilderRenameDir(t *testing.T) {
	base := mustTree(t, map[string]string{
		"a/x.json":     "x",
		"a/x/y.json":   "y",
		"a/x/y/z.json": "z",
		"b/keep.json":  "k",
	})
	b := base.Clone()
	if err := b.Add("a/x/new.json", blob("n")); err != nil {
		t.Fatal(err)
	}
	if got, want := b.Files("a/x"), []string{"a/x/new.json", "a/x/y.json", "a/x/y/z.json"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Files = %v, want %v", got, want)
	}
	if err := b.RenameDir("a/x", "b/x"); err != nil {
		t.Fatal(err)
	}
	if b.Has("a/x/y.json") || !b.Has("b/x/y/z.json") || !b.Has("b/x/new.json") || !b.Has("a/x.json") {
		t.Fatalf("files after rename: %v", b.Files(""))
	}
	if err := b.RenameDir("b", "b/inner"); !errors.Is(err, ErrPathConflict) {
		t.Fatalf("rename into itself error = %v", err)
	}

	conflict := base.Clone()
	if err := conflict.Add("c/y.json/file", blob("f")); err != nil {
		t.Fatal(err)
	}
	before := conflict.Files("")
	if err := conflict.RenameDir("a/x", "c"); !errors.Is(err, ErrPathConflict) {
		t.Fatalf("conflicting rename error = %v", err)
	}
	if after := conflict.Files(""); !reflect.DeepEqual(after, before) {
		t.Fatalf("failed rename left %v, want %v", after, before)
	}
}
