package source

import (
	"context"
	"fmt"

	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/tree"
)

// Diff returns the changes that bring local up to date with remote. The
// remote tree is only requested when its sha differs from local's, and blob
// contents are bundled for add changes only.
func Diff(ctx context.Context, local, remote Source) ([]tree.Change, error) {
	localTree, err := local.GetTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("diff: local tree: %w", err)
	}
	remoteTree, err := remote.GetTreeIfDifferent(ctx, localTree.Sha())
	if err != nil {
		return nil, fmt.Errorf("diff: remote tree: %w", err)
	}
	if remoteTree == nil {
		return nil, nil
	}
	changes := tree.Diff(localTree, remoteTree)
	if err := BundleContents(ctx, remote, changes); err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	return changes, nil
}

// BundleContents fills in Contents for every add change from src.
func BundleContents(ctx context.Context, src Source, changes []tree.Change) error {
	var want []object.Hash
	for _, c := range changes {
		if c.Op == tree.OpAdd && c.Contents == nil {
			want = append(want, c.Sha)
		}
	}
	if len(want) == 0 {
		return nil
	}
	blobs, err := src.GetBlobs(ctx, uniqueHashes(want))
	if err != nil {
		return err
	}
	byHash := make(map[object.Hash][]byte, len(blobs))
	for _, b := range blobs {
		byHash[b.Sha] = b.Data
	}
	for i, c := range changes {
		if c.Op != tree.OpAdd || c.Contents != nil {
			continue
		}
		data, ok := byHash[c.Sha]
		if !ok {
			return &MissingBlobError{Sha: c.Sha}
		}
		changes[i].Contents = data
	}
	return nil
}

// SyncWith applies remote's changes to local and returns them. Pushing is
// SyncWith with the roles swapped.
func SyncWith(ctx context.Context, local, remote Source) ([]tree.Change, error) {
	changes, err := Diff(ctx, local, remote)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}
	if err := local.ApplyChanges(ctx, changes); err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}
	return changes, nil
}
