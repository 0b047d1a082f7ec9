package source

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/tree"
)

//go:embed schema.sql
var schemaSQL string

//go:embed pragmas.sql
var pragmasSQL string

// SQLite is a durable Source kept in a single database file. Every apply is
// one SQL transaction.
type SQLite struct {
	conn *sql.DB
	path string

	commitMu sync.Mutex

	mu   sync.Mutex
	tree *tree.Tree
}

var (
	_ Source = (*SQLite)(nil)
	_ Target = (*SQLite)(nil)
)

// OpenSQLite opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// One connection: an in-memory database is per connection, and writes
	// are serialized by the source anyway.
	conn.SetMaxOpenConns(1)

	for _, pragma := range strings.Split(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" || strings.HasPrefix(pragma, "--") {
			continue
		}
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLite{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) GetTree(ctx context.Context) (*tree.Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *SQLite) GetTreeIfDifferent(ctx context.Context, sha object.Hash) (*tree.Tree, error) {
	t, err := s.GetTree(ctx)
	if err != nil {
		return nil, err
	}
	if t.Sha() == sha {
		return nil, nil
	}
	return t, nil
}

func (s *SQLite) GetBlobs(ctx context.Context, shas []object.Hash) ([]Blob, error) {
	out := make([]Blob, 0, len(shas))
	for _, sha := range shas {
		var data []byte
		err := s.conn.QueryRowContext(ctx, `SELECT data FROM blobs WHERE sha = ?`, string(sha)).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &MissingBlobError{Sha: sha}
		}
		if err != nil {
			return nil, fmt.Errorf("querying blob %s: %w", sha.Short(), err)
		}
		if data == nil {
			data = []byte{}
		}
		out = append(out, Blob{Sha: sha, Data: data})
	}
	return out, nil
}

func (s *SQLite) ApplyChanges(ctx context.Context, changes []tree.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return err
	}
	b := current.Clone()
	if err := b.ApplyChanges(changes); err != nil {
		return err
	}
	next, err := b.Compile()
	if err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, c := range changes {
		switch c.Op {
		case tree.OpAdd:
			if err := verifyContents(c); err != nil {
				return err
			}
			if c.Contents != nil {
				if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO blobs (sha, data) VALUES (?, ?)`, string(c.Sha), c.Contents); err != nil {
					return fmt.Errorf("inserting blob: %w", err)
				}
			} else {
				var one int
				err := tx.QueryRowContext(ctx, `SELECT 1 FROM blobs WHERE sha = ?`, string(c.Sha)).Scan(&one)
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("apply %q: %w", c.Path, &MissingBlobError{Sha: c.Sha})
				}
				if err != nil {
					return fmt.Errorf("querying blob: %w", err)
				}
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO files (path, sha) VALUES (?, ?)`, c.Path, string(c.Sha)); err != nil {
				return fmt.Errorf("writing file %q: %w", c.Path, err)
			}
		case tree.OpDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, c.Path); err != nil {
				return fmt.Errorf("deleting file %q: %w", c.Path, err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blobs WHERE sha NOT IN (SELECT sha FROM files)`); err != nil {
		return fmt.Errorf("pruning blobs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES ('tree', ?)`, string(next.Sha())); err != nil {
		return fmt.Errorf("writing tree sha: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.tree = next
	return nil
}

// Commit applies req under the source's commit lock.
func (s *SQLite) Commit(ctx context.Context, req *CommitRequest) (object.Hash, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return Commit(ctx, s, req)
}

func (s *SQLite) load(ctx context.Context) (*tree.Tree, error) {
	if s.tree != nil {
		return s.tree, nil
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT path, sha FROM files`)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	files := make(map[string]object.Hash)
	for rows.Next() {
		var p, sha string
		if err := rows.Scan(&p, &sha); err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		files[p] = object.Hash(sha)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating files: %w", err)
	}
	t, err := tree.New(files)
	if err != nil {
		return nil, &object.CorruptDataError{What: "tree", Err: err}
	}

	var stored string
	err = s.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'tree'`).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying tree sha: %w", err)
	}
	if stored != "" && object.Hash(stored) != t.Sha() {
		return nil, &object.CorruptDataError{What: "tree", Sha: object.Hash(stored), Err: fmt.Errorf("files table hashes to %s", t.Sha().Short())}
	}
	s.tree = t
	return t, nil
}
