package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/tree"
)

// Memory is an ephemeral Source. Blobs no longer referenced by the current
// tree are dropped after every apply.
type Memory struct {
	commitMu sync.Mutex

	mu    sync.RWMutex
	tree  *tree.Tree
	blobs map[object.Hash][]byte
}

var (
	_ Source = (*Memory)(nil)
	_ Target = (*Memory)(nil)
)

// NewMemory returns an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{tree: tree.Empty(), blobs: make(map[object.Hash][]byte)}
}

func (m *Memory) GetTree(ctx context.Context) (*tree.Tree, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree, nil
}

func (m *Memory) GetTreeIfDifferent(ctx context.Context, sha object.Hash) (*tree.Tree, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tree.Sha() == sha {
		return nil, nil
	}
	return m.tree, nil
}

func (m *Memory) GetBlobs(ctx context.Context, shas []object.Hash) ([]Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Blob, 0, len(shas))
	for _, sha := range shas {
		data, ok := m.blobs[sha]
		if !ok {
			return nil, &MissingBlobError{Sha: sha}
		}
		out = append(out, Blob{Sha: sha, Data: data})
	}
	return out, nil
}

// ApplyChanges is all or nothing: a failing change leaves the source as it
// was.
func (m *Memory) ApplyChanges(ctx context.Context, changes []tree.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[object.Hash][]byte)
	for _, c := range changes {
		if c.Op != tree.OpAdd {
			continue
		}
		if err := verifyContents(c); err != nil {
			return err
		}
		if c.Contents != nil {
			staged[c.Sha] = c.Contents
			continue
		}
		if _, ok := m.blobs[c.Sha]; !ok {
			if _, ok := staged[c.Sha]; !ok {
				return fmt.Errorf("apply %q: %w", c.Path, &MissingBlobError{Sha: c.Sha})
			}
		}
	}

	b := m.tree.Clone()
	if err := b.ApplyChanges(changes); err != nil {
		return err
	}
	next, err := b.Compile()
	if err != nil {
		return err
	}

	blobs := make(map[object.Hash][]byte, next.Len())
	for _, sha := range next.Index() {
		if data, ok := staged[sha]; ok {
			blobs[sha] = data
		} else {
			blobs[sha] = m.blobs[sha]
		}
	}
	m.tree = next
	m.blobs = blobs
	return nil
}

// Commit applies req under the source's commit lock.
func (m *Memory) Commit(ctx context.Context, req *CommitRequest) (object.Hash, error) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	return Commit(ctx, m, req)
}
