package source

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/tree"
)

type backing struct {
	name string
	open func(t *testing.T) interface {
		Source
		Target
	}
}

func backings() []backing {
	return []backing{
		{name: "memory", open: func(t *testing.T) interface {
			Source
			Target
		} {
			return NewMemory()
		}},
		{name: "fs", open: func(t *testing.T) interface {
			Source
			Target
		} {
			dir := t.TempDir()
			fsrc, err := NewFS(filepath.Join(dir, "content"), FSOptions{CachePath: filepath.Join(dir, ".folio", "hashcache")})
			if err != nil {
				t.Fatalf("NewFS: %v", err)
			}
			return fsrc
		}},
		{name: "sqlite", open: func(t *testing.T) interface {
			Source
			Target
		} {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "content.db"))
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

func TestSourceContract(t *testing.T) {
	ctx := context.Background()
	for _, bk := range backings() {
		t.Run(bk.name, func(t *testing.T) {
			src := bk.open(t)

			empty, err := src.GetTree(ctx)
			if err != nil {
				t.Fatalf("GetTree: %v", err)
			}
			if empty.Sha() != object.EmptyTreeHash {
				t.Fatalf("fresh source sha = %s", empty.Sha())
			}

			files := map[string][]byte{
				"main/pages/index.json":      []byte(`{"id":"home"}`),
				"main/pages/about.json":      []byte(`{"id":"about"}`),
				"main/pages/about/team.json": []byte(`{"id":"team"}`),
			}
			if err := src.ApplyChanges(ctx, Adds(files)); err != nil {
				t.Fatalf("ApplyChanges: %v", err)
			}
			got, err := src.GetTree(ctx)
			if err != nil {
				t.Fatal(err)
			}
			want := mustTreeOf(t, files)
			if got.Sha() != want.Sha() {
				t.Fatalf("tree sha = %s, want %s", got.Sha(), want.Sha())
			}

			same, err := src.GetTreeIfDifferent(ctx, got.Sha())
			if err != nil || same != nil {
				t.Fatalf("GetTreeIfDifferent(current) = %v, %v; want nil, nil", same, err)
			}
			diff, err := src.GetTreeIfDifferent(ctx, object.EmptyTreeHash)
			if err != nil || diff == nil || diff.Sha() != got.Sha() {
				t.Fatalf("GetTreeIfDifferent(stale) = %v, %v", diff, err)
			}

			sha := object.HashBlob(files["main/pages/about.json"])
			blobs, err := src.GetBlobs(ctx, []object.Hash{sha})
			if err != nil {
				t.Fatalf("GetBlobs: %v", err)
			}
			if len(blobs) != 1 || string(blobs[0].Data) != `{"id":"about"}` {
				t.Fatalf("GetBlobs = %+v", blobs)
			}

			missing := object.HashBlob([]byte("nope"))
			if _, err := src.GetBlobs(ctx, []object.Hash{missing}); !errors.Is(err, ErrMissingBlob) {
				t.Fatalf("GetBlobs(unknown) error = %v, want ErrMissingBlob", err)
			}

			// Rename without contents reuses the stored blob.
			rename := []tree.Change{
				{Op: tree.OpDelete, Path: "main/pages/about.json", Sha: sha},
				{Op: tree.OpAdd, Path: "main/pages/about.archived.json", Sha: sha},
			}
			if err := src.ApplyChanges(ctx, rename); err != nil {
				t.Fatalf("rename: %v", err)
			}
			after, err := src.GetTree(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if after.Has("main/pages/about.json") || !after.Has("main/pages/about.archived.json") {
				t.Fatalf("rename not applied: %v", after.Paths())
			}

			// A failing batch leaves the tree untouched.
			bad := []tree.Change{
				{Op: tree.OpAdd, Path: "main/pages/new.json", Sha: object.HashBlob([]byte("x")), Contents: []byte("x")},
				{Op: tree.OpDelete, Path: "main/pages/ghost.json", Sha: missing},
			}
			if err := src.ApplyChanges(ctx, bad); err == nil {
				t.Fatal("expected failing batch to error")
			}
			final, err := src.GetTree(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if final.Sha() != after.Sha() {
				t.Fatalf("failed batch changed tree: %v", final.Paths())
			}
		})
	}
}

func TestApplyRejectsContentHashMismatch(t *testing.T) {
	ctx := context.Background()
	for _, bk := range backings() {
		t.Run(bk.name, func(t *testing.T) {
			src := bk.open(t)
			err := src.ApplyChanges(ctx, []tree.Change{
				{Op: tree.OpAdd, Path: "a.json", Sha: object.HashBlob([]byte("a")), Contents: []byte("b")},
			})
			if !errors.Is(err, object.ErrCorruptData) {
				t.Fatalf("error = %v, want ErrCorruptData", err)
			}
		})
	}
}

func mustTreeOf(t *testing.T, files map[string][]byte) *tree.Tree {
	t.Helper()
	idx := make(map[string]object.Hash, len(files))
	for p, data := range files {
		idx[p] = object.HashBlob(data)
	}
	tr, err := tree.New(idx)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}
