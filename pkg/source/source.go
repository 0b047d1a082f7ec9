// Package source defines the storage contract content trees live behind and
// its memory, filesystem and SQLite implementations.
package source

import (
	"context"
	"sort"

	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/tree"
)

// Blob is the content of one file together with its git blob id.
type Blob struct {
	Sha  object.Hash `json:"sha"`
	Data []byte      `json:"data"`
}

// Source is a content-addressed backing store for one tree of files.
type Source interface {
	// GetTree returns the current snapshot.
	GetTree(ctx context.Context) (*tree.Tree, error)
	// GetTreeIfDifferent returns nil, nil when the current snapshot has sha.
	GetTreeIfDifferent(ctx context.Context, sha object.Hash) (*tree.Tree, error)
	// GetBlobs returns the requested blobs in request order. An unknown sha
	// fails with a *MissingBlobError.
	GetBlobs(ctx context.Context, shas []object.Hash) ([]Blob, error)
	// ApplyChanges applies changes in order. Add changes without Contents
	// must reference a blob the source already holds.
	ApplyChanges(ctx context.Context, changes []tree.Change) error
}

// Target accepts commits with optimistic concurrency checks.
type Target interface {
	Commit(ctx context.Context, req *CommitRequest) (object.Hash, error)
}

// Adds returns add changes carrying contents for every file, sorted by path.
func Adds(files map[string][]byte) []tree.Change {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]tree.Change, 0, len(paths))
	for _, p := range paths {
		data := files[p]
		if data == nil {
			data = []byte{}
		}
		out = append(out, tree.Change{Op: tree.OpAdd, Path: p, Sha: object.HashBlob(data), Contents: data})
	}
	return out
}

func uniqueHashes(in []object.Hash) []object.Hash {
	seen := make(map[object.Hash]struct{}, len(in))
	out := make([]object.Hash, 0, len(in))
	for _, h := range in {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// verifyContents checks that an add change's inline contents hash to its sha.
func verifyContents(c tree.Change) error {
	if c.Contents == nil {
		return nil
	}
	if got := object.HashBlob(c.Contents); got != c.Sha {
		return &object.CorruptDataError{What: "blob", Path: c.Path, Sha: c.Sha, Err: errHashMismatch(got)}
	}
	return nil
}
