// Package db composes a Source, an entry index and a query resolver into
// one database. Writes run through a single queue so every transaction is
// built against the tree the previous one produced; a second queue orders
// round trips to the remote.
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odvcencio/folio/pkg/entry"
	"github.com/odvcencio/folio/pkg/graph"
	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/query"
	"github.com/odvcencio/folio/pkg/schema"
	"github.com/odvcencio/folio/pkg/source"
	"github.com/odvcencio/folio/pkg/tree"
	"github.com/odvcencio/folio/pkg/txn"
)

var (
	// ErrNoRemote is returned by remote operations on a database opened
	// without one.
	ErrNoRemote = errors.New("no remote configured")
	ErrNoEvents = errors.New("remote does not stream events")
)

// Remote is the source of truth a database commits to first.
type Remote interface {
	source.Source
	source.Target
}

// Subscriber streams the sha of every tree the remote moves to.
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(sha object.Hash)) error
}

// Options configures Open.
type Options struct {
	Logger *slog.Logger
	Remote Remote
}

// DB is safe for concurrent use.
type DB struct {
	schema   *schema.Schema
	local    source.Source
	remote   Remote
	index    *graph.Index
	resolver *query.Resolver
	logger   *slog.Logger

	writes  *Queue
	remoteQ *Queue
}

// Open indexes local and returns the database.
func Open(ctx context.Context, s *schema.Schema, local source.Source, opts Options) (*DB, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db := &DB{
		schema:   s,
		local:    local,
		remote:   opts.Remote,
		index:    graph.NewIndex(s, graph.Options{Logger: logger}),
		resolver: query.NewResolver(s, logger),
		logger:   logger,
		writes:   NewQueue(),
		remoteQ:  NewQueue(),
	}
	if _, err := db.index.Sync(ctx, local); err != nil {
		db.Close()
		return nil, fmt.Errorf("open: %w", err)
	}
	return db, nil
}

// Close waits for the running write and stops both queues.
func (db *DB) Close() {
	db.writes.Close()
	db.remoteQ.Close()
}

func (db *DB) Schema() *schema.Schema { return db.schema }
func (db *DB) Source() source.Source  { return db.local }

// Graph returns the latest indexed snapshot without waiting for queued
// writes.
func (db *DB) Graph() *graph.Graph { return db.index.Graph() }

// Sync re-indexes the local source after every write submitted before it.
func (db *DB) Sync(ctx context.Context) (*graph.Graph, error) {
	var g *graph.Graph
	err := db.writes.Do(ctx, func(ctx context.Context) error {
		var err error
		g, err = db.index.Sync(ctx, db.local)
		return err
	})
	return g, err
}

// SyncWith pulls other's tree into the local source and re-indexes.
func (db *DB) SyncWith(ctx context.Context, other source.Source) ([]tree.Change, error) {
	var changes []tree.Change
	err := db.writes.Do(ctx, func(ctx context.Context) error {
		var err error
		changes, err = db.pull(ctx, other, nil)
		return err
	})
	return changes, err
}

// Pull brings the local source up to date with the remote.
func (db *DB) Pull(ctx context.Context) ([]tree.Change, error) {
	if db.remote == nil {
		return nil, ErrNoRemote
	}
	var changes []tree.Change
	err := db.writes.Do(ctx, func(ctx context.Context) error {
		var err error
		changes, err = db.pull(ctx, db.remote, db.remoteQ)
		return err
	})
	return changes, err
}

// Push applies local changes the remote lacks. Unlike Commit it does not
// check for concurrent remote edits: the remote ends up equal to local.
func (db *DB) Push(ctx context.Context) ([]tree.Change, error) {
	if db.remote == nil {
		return nil, ErrNoRemote
	}
	var changes []tree.Change
	err := db.writes.Do(ctx, func(ctx context.Context) error {
		return db.remoteQ.Do(ctx, func(ctx context.Context) error {
			var err error
			changes, err = source.SyncWith(ctx, db.remote, db.local)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("push: %w", err)
	}
	return changes, nil
}

// pull runs on the write queue. A non-nil gate serializes the round trip
// to other.
func (db *DB) pull(ctx context.Context, other source.Source, gate *Queue) ([]tree.Change, error) {
	var changes []tree.Change
	run := func(ctx context.Context) error {
		var err error
		changes, err = source.SyncWith(ctx, db.local, other)
		return err
	}
	var err error
	if gate != nil {
		err = gate.Do(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}
	if _, err := db.index.Sync(ctx, db.local); err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		db.logger.Info("pulled changes", "count", len(changes))
	}
	return changes, nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Commit runs ops as one transaction and returns the resulting tree sha.
// With a remote configured the transaction is committed there first and
// applied locally only once the remote accepted it; a rejected commit
// leaves the local source untouched.
func (db *DB) Commit(ctx context.Context, ops ...txn.Operation) (object.Hash, error) {
	var sha object.Hash
	err := db.writes.Do(ctx, func(ctx context.Context) error {
		var err error
		sha, err = db.commit(ctx, ops)
		return err
	})
	return sha, err
}

func (db *DB) commit(ctx context.Context, ops []txn.Operation) (object.Hash, error) {
	base, err := db.local.GetTree(ctx)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	g := db.index.Graph()
	if g.Sha() != base.Sha() {
		if g, err = db.index.Build(ctx, base, db.local.GetBlobs); err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
	}
	tx, err := txn.New(g, db.schema, base)
	if err != nil {
		return "", err
	}
	req, err := tx.Add(ops...).Compile()
	if err != nil {
		return "", err
	}
	if req.IntoSha == req.FromSha {
		return base.Sha(), nil
	}
	if err := source.BundleContents(ctx, db.local, req.Changes); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if err := source.BundleContents(ctx, db.local, req.Rollback); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	sha := req.IntoSha
	if db.remote != nil {
		err := db.remoteQ.Do(ctx, func(ctx context.Context) error {
			var err error
			sha, err = db.remote.Commit(ctx, req)
			return err
		})
		if err != nil {
			return "", fmt.Errorf("commit: remote: %w", err)
		}
		// Accepted remotely: finish locally even if the caller gives up.
		ctx = context.WithoutCancel(ctx)
	}
	_, err = db.commitLocal(ctx, req)
	switch {
	case err != nil && db.remote == nil:
		return "", fmt.Errorf("commit: %w", err)
	case err != nil || sha != req.IntoSha:
		if err != nil {
			db.logger.Warn("local commit failed after remote accepted it", "error", err)
		}
		if _, err := db.pull(ctx, db.remote, db.remoteQ); err != nil {
			return "", fmt.Errorf("commit: resync: %w", err)
		}
		return sha, nil
	}
	if _, err := db.index.Sync(ctx, db.local); err != nil {
		return "", err
	}
	db.logger.Debug("committed", "sha", sha.Short(), "description", req.Description, "changes", len(req.Changes))
	return sha, nil
}

func (db *DB) commitLocal(ctx context.Context, req *source.CommitRequest) (object.Hash, error) {
	if t, ok := db.local.(source.Target); ok {
		return t.Commit(ctx, req)
	}
	return source.Commit(ctx, db.local, req)
}

// Create adds an entry revision and returns its id. A top-level entry with
// no workspace or root lands in the first declared ones, and a localized
// root without a locale gets its first locale.
func (db *DB) Create(ctx context.Context, op *txn.CreateOp) (string, error) {
	if _, err := db.Commit(ctx, &defaults{op}); err != nil {
		return "", err
	}
	return op.ID, nil
}

// defaults fills placement from the schema against the transaction's graph.
type defaults struct {
	*txn.CreateOp
}

func (d *defaults) Mutations(g *graph.Graph, s *schema.Schema) ([]txn.Mutation, error) {
	op := d.CreateOp
	if op.Parent != "" || (op.ID != "" && g.ByID(op.ID) != nil) {
		return op.Mutations(g, s)
	}
	if op.Workspace == "" {
		if wss := s.Workspaces(); len(wss) > 0 {
			op.Workspace = wss[0].Name
		}
	}
	if ws, ok := s.Workspace(op.Workspace); ok && op.Root == "" && len(ws.Roots) > 0 {
		op.Root = ws.Roots[0].Name
	}
	if root, ok := s.Root(op.Workspace, op.Root); ok && root.I18n() && op.Locale == "" {
		op.Locale = entry.NormalizeLocale(root.Locales[0])
	}
	return op.Mutations(g, s)
}

// Update edits one revision.
func (db *DB) Update(ctx context.Context, op *txn.UpdateOp) error {
	_, err := db.Commit(ctx, op)
	return err
}

// Move reparents or reorders an entry with its descendants.
func (db *DB) Move(ctx context.Context, op *txn.MoveOp) error {
	_, err := db.Commit(ctx, op)
	return err
}

// Publish promotes the draft of id in locale, or restores its archived
// revision when there is no draft.
func (db *DB) Publish(ctx context.Context, id, locale string) error {
	_, err := db.Commit(ctx, &txn.PublishOp{ID: id, Locale: locale})
	return err
}

// Unpublish turns the published revision of id in locale into a draft.
func (db *DB) Unpublish(ctx context.Context, id, locale string) error {
	_, err := db.Commit(ctx, &txn.UnpublishOp{ID: id, Locale: locale})
	return err
}

// Archive moves the published revision of id in locale to the archive.
func (db *DB) Archive(ctx context.Context, id, locale string) error {
	_, err := db.Commit(ctx, &txn.ArchiveOp{ID: id, Locale: locale})
	return err
}

// Delete removes every revision of the entries and their descendants.
func (db *DB) Delete(ctx context.Context, ids ...string) error {
	_, err := db.Commit(ctx, &txn.DeleteOp{IDs: ids})
	return err
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// Resolve runs q against the latest snapshot.
func (db *DB) Resolve(ctx context.Context, q *query.Query) (any, error) {
	return db.resolver.Resolve(ctx, db.Graph(), q)
}

// Rows runs q and returns the matching rows.
func (db *DB) Rows(ctx context.Context, q *query.Query) ([]*graph.Row, error) {
	return db.resolver.Rows(ctx, db.Graph(), q)
}
