package source

import (
	"context"
	"fmt"

	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/tree"
)

// Check is a read dependency of a commit: the file at Path must have Sha, or
// be absent when Sha is empty.
type Check struct {
	Path string      `json:"path"`
	Sha  object.Hash `json:"sha,omitempty"`
}

// CommitRequest is one atomic change to a tree. Changes turn the FromSha tree
// into the IntoSha tree; Rollback turns it back.
type CommitRequest struct {
	FromSha     object.Hash   `json:"fromSha"`
	IntoSha     object.Hash   `json:"intoSha"`
	Description string        `json:"description,omitempty"`
	Checks      []Check       `json:"checks,omitempty"`
	Changes     []tree.Change `json:"changes"`
	Rollback    []tree.Change `json:"rollback,omitempty"`
}

// Revert returns the request that undoes r once r has been committed.
func (r *CommitRequest) Revert() *CommitRequest {
	checks := make([]Check, 0, len(r.Changes))
	for _, c := range r.Changes {
		ch := Check{Path: c.Path}
		if c.Op == tree.OpAdd {
			ch.Sha = c.Sha
		}
		checks = append(checks, ch)
	}
	return &CommitRequest{
		FromSha:     r.IntoSha,
		IntoSha:     r.FromSha,
		Description: "revert: " + r.Description,
		Checks:      checks,
		Changes:     r.Rollback,
		Rollback:    r.Changes,
	}
}

// Plan computes the tree req produces on top of current.
//
// When current is the tree the request was built from, the changes apply
// as-is and must produce IntoSha. When the trees diverged the request is
// re-validated against current with CheckCommit and applied anyway if it
// still holds; otherwise Plan fails with a *ShaMismatchError. A request whose
// IntoSha already equals current is a no-op.
func Plan(current *tree.Tree, req *CommitRequest) (*tree.Tree, error) {
	if req.IntoSha != "" && current.Sha() == req.IntoSha {
		return current, nil
	}
	if current.Sha() == req.FromSha {
		next, err := applyTo(current, req.Changes)
		if err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		if req.IntoSha != "" && next.Sha() != req.IntoSha {
			return nil, fmt.Errorf("commit: changes produce %s, request expects %s", next.Sha().Short(), req.IntoSha.Short())
		}
		return next, nil
	}
	next, err := CheckCommit(current, req)
	if err != nil {
		return nil, &ShaMismatchError{Expected: req.FromSha, Actual: current.Sha(), Reason: err.Error()}
	}
	return next, nil
}

// CheckCommit validates req against a tree other than the one it was built
// from: no path may be written twice, every check must hold, and the changes
// must apply cleanly. It returns the resulting tree.
//
// Validation and the later write are not one atomic step on every backing;
// an external writer racing a filesystem source can still slip in between.
func CheckCommit(current *tree.Tree, req *CommitRequest) (*tree.Tree, error) {
	seen := make(map[string]struct{}, len(req.Changes))
	for _, c := range req.Changes {
		if _, dup := seen[c.Path]; dup {
			return nil, fmt.Errorf("duplicate change for %q", c.Path)
		}
		seen[c.Path] = struct{}{}
	}
	for _, ch := range req.Checks {
		sha, ok := current.Get(ch.Path)
		switch {
		case ch.Sha == "" && ok:
			return nil, fmt.Errorf("%q was created concurrently", ch.Path)
		case ch.Sha != "" && !ok:
			return nil, fmt.Errorf("%q was removed concurrently", ch.Path)
		case ch.Sha != "" && sha != ch.Sha:
			return nil, fmt.Errorf("%q was modified concurrently", ch.Path)
		}
	}
	return applyTo(current, req.Changes)
}

// Commit plans req against src's current tree and applies it. Backings that
// can be written by several callers wrap this in their own lock.
func Commit(ctx context.Context, src Source, req *CommitRequest) (object.Hash, error) {
	current, err := src.GetTree(ctx)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	next, err := Plan(current, req)
	if err != nil {
		return "", err
	}
	if next.Sha() == current.Sha() {
		return current.Sha(), nil
	}
	if err := src.ApplyChanges(ctx, req.Changes); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return next.Sha(), nil
}

func applyTo(base *tree.Tree, changes []tree.Change) (*tree.Tree, error) {
	b := base.Clone()
	for _, c := range changes {
		if err := verifyContents(c); err != nil {
			return nil, err
		}
	}
	if err := b.ApplyChanges(changes); err != nil {
		return nil, err
	}
	return b.Compile()
}
