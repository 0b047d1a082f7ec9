package txn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/folio/pkg/graph"
	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/schema"
	"github.com/odvcencio/folio/pkg/source"
	"github.com/odvcencio/folio/pkg/tree"
)

// Transaction accumulates operations against one graph snapshot and
// compiles them into a single commit.
type Transaction struct {
	graph  *graph.Graph
	schema *schema.Schema
	base   *tree.Tree
	ops    []Operation
}

// New starts a transaction on base, the tree g was built from.
func New(g *graph.Graph, s *schema.Schema, base *tree.Tree) (*Transaction, error) {
	if base.Sha() != g.Sha() {
		return nil, fmt.Errorf("transaction: graph %s was not built from tree %s", g.Sha().Short(), base.Sha().Short())
	}
	return &Transaction{graph: g, schema: s, base: base}, nil
}

// Add queues operations.
func (tx *Transaction) Add(ops ...Operation) *Transaction {
	tx.ops = append(tx.ops, ops...)
	return tx
}

// Len returns the number of queued operations.
func (tx *Transaction) Len() int { return len(tx.ops) }

// Mutations runs every operation against the snapshot.
func (tx *Transaction) Mutations() ([]Mutation, error) {
	var out []Mutation
	for _, op := range tx.ops {
		muts, err := op.Mutations(tx.graph, tx.schema)
		if err != nil {
			return nil, err
		}
		out = append(out, muts...)
	}
	return out, nil
}

// Compile applies every mutation to a working copy of the base tree and
// returns the commit that turns base into the result. Any failure leaves
// nothing behind: the base tree is never modified.
func (tx *Transaction) Compile() (*source.CommitRequest, error) {
	muts, err := tx.Mutations()
	if err != nil {
		return nil, err
	}
	b := tx.base.Clone()
	contents := map[object.Hash][]byte{}
	checked := map[string]bool{}
	var checks []source.Check
	check := func(p string) {
		if checked[p] {
			return
		}
		checked[p] = true
		sha, _ := tx.base.Get(p)
		checks = append(checks, source.Check{Path: p, Sha: sha})
	}

	for _, m := range muts {
		if err := apply(b, m, contents, check); err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
	}
	into, err := b.Compile()
	if err != nil {
		return nil, err
	}

	changes := tree.Diff(tx.base, into)
	for i, c := range changes {
		if c.Op == tree.OpAdd {
			changes[i].Contents = contents[c.Sha]
		}
		check(c.Path)
	}
	return &source.CommitRequest{
		FromSha:     tx.base.Sha(),
		IntoSha:     into.Sha(),
		Description: tx.describe(),
		Checks:      checks,
		Changes:     changes,
		Rollback:    tree.Diff(into, tx.base),
	}, nil
}

func apply(b *tree.Builder, m Mutation, contents map[object.Hash][]byte, check func(string)) error {
	switch m.Kind {
	case MutationWrite:
		sha := object.HashBlob(m.Contents)
		contents[sha] = m.Contents
		return b.Add(m.Path, sha)
	case MutationRemove:
		if _, err := b.Remove(m.Path); err != nil && !errors.Is(err, tree.ErrNotFound) {
			return err
		}
		return nil
	case MutationRename:
		return b.Rename(m.Path, m.To)
	case MutationRenameDir:
		return b.RenameDir(m.Path, m.To)
	case MutationRemoveDir:
		for _, p := range b.Files(m.Path) {
			if _, err := b.Remove(p); err != nil {
				return err
			}
		}
		return nil
	case MutationCheck:
		check(m.Path)
		return nil
	}
	return fmt.Errorf("unknown mutation %q", m.Kind)
}

func (tx *Transaction) describe() string {
	parts := make([]string, 0, len(tx.ops))
	for _, op := range tx.ops {
		parts = append(parts, op.Describe())
	}
	return strings.Join(parts, "; ")
}
