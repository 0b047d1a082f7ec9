package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/tree"
)

// FSOptions configures a filesystem source.
type FSOptions struct {
	// Ignore holds doublestar patterns matched against slash separated paths
	// relative to the root. Names starting with a dot are always skipped.
	Ignore []string
	// CachePath persists the stat fingerprint hash cache between runs. Empty
	// keeps the cache in memory only.
	CachePath string
	Logger    *slog.Logger
}

// FS is a Source over a directory of files. Tree snapshots are recomputed by
// walking the directory; a file is only rehashed when its modification time
// or size changed since it was last seen.
//
// The hash cache belongs to one FS value. Two FS values over the same
// directory must not share a CachePath.
type FS struct {
	root      string
	ignore    []string
	cachePath string
	logger    *slog.Logger

	commitMu sync.Mutex

	mu         sync.Mutex
	cache      map[string]fileHashCacheEntry
	cacheDirty bool
	paths      map[object.Hash]string
}

var (
	_ Source = (*FS)(nil)
	_ Target = (*FS)(nil)
)

// NewFS opens root, creating nothing until the first write.
func NewFS(root string, opts FSOptions) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("fs source: %w", err)
	}
	for _, pattern := range opts.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("fs source: invalid ignore pattern %q", pattern)
		}
	}
	cache, err := loadHashCache(opts.CachePath)
	if err != nil {
		return nil, fmt.Errorf("fs source: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FS{
		root:      abs,
		ignore:    append([]string(nil), opts.Ignore...),
		cachePath: opts.CachePath,
		logger:    logger,
		cache:     cache,
	}, nil
}

// Root returns the absolute directory the source reads from.
func (f *FS) Root() string { return f.root }

func (f *FS) GetTree(ctx context.Context) (*tree.Tree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scan(ctx)
}

func (f *FS) GetTreeIfDifferent(ctx context.Context, sha object.Hash) (*tree.Tree, error) {
	t, err := f.GetTree(ctx)
	if err != nil {
		return nil, err
	}
	if t.Sha() == sha {
		return nil, nil
	}
	return t, nil
}

func (f *FS) GetBlobs(ctx context.Context, shas []object.Hash) ([]Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Blob, 0, len(shas))
	for _, sha := range shas {
		data, err := f.readBlob(ctx, sha)
		if err != nil {
			return nil, err
		}
		out = append(out, Blob{Sha: sha, Data: data})
	}
	return out, nil
}

// readBlob finds a file holding sha, rescanning once if the last walk is
// missing or stale.
func (f *FS) readBlob(ctx context.Context, sha object.Hash) ([]byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if f.paths == nil || attempt > 0 {
			if _, err := f.scan(ctx); err != nil {
				return nil, err
			}
		}
		rel, ok := f.paths[sha]
		if !ok {
			continue
		}
		data, err := os.ReadFile(f.abs(rel))
		if err == nil && object.HashBlob(data) == sha {
			return data, nil
		}
	}
	return nil, &MissingBlobError{Sha: sha}
}

type undoRecord struct {
	path    string
	prev    []byte
	existed bool
}

// ApplyChanges writes every change, undoing the ones already written when a
// later change fails. External writers are not locked out.
func (f *FS) ApplyChanges(ctx context.Context, changes []tree.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	contents := make([][]byte, len(changes))
	for i, c := range changes {
		if err := tree.ValidatePath(c.Path); err != nil {
			return err
		}
		if c.Op != tree.OpAdd {
			continue
		}
		if err := verifyContents(c); err != nil {
			return err
		}
		if c.Contents != nil {
			contents[i] = c.Contents
			continue
		}
		data, err := f.readBlob(ctx, c.Sha)
		if err != nil {
			return fmt.Errorf("apply %q: %w", c.Path, err)
		}
		contents[i] = data
	}

	var undo []undoRecord
	for i, c := range changes {
		rec, err := f.applyOne(c, contents[i])
		if err != nil {
			f.rollback(undo)
			return fmt.Errorf("apply %s %q: %w", c.Op, c.Path, err)
		}
		undo = append(undo, rec)
	}
	f.logger.Debug("applied changes", "root", f.root, "changes", len(changes))
	f.flushCache()
	return nil
}

func (f *FS) applyOne(c tree.Change, data []byte) (undoRecord, error) {
	full := f.abs(c.Path)
	rec := undoRecord{path: c.Path}
	prev, err := os.ReadFile(full)
	switch {
	case err == nil:
		rec.prev, rec.existed = prev, true
	case !errors.Is(err, fs.ErrNotExist):
		return rec, err
	}

	switch c.Op {
	case tree.OpDelete:
		if !rec.existed {
			return rec, fs.ErrNotExist
		}
		if err := os.Remove(full); err != nil {
			return rec, err
		}
		delete(f.cache, c.Path)
		f.cacheDirty = true
		if f.paths != nil && f.paths[object.HashBlob(prev)] == c.Path {
			delete(f.paths, object.HashBlob(prev))
		}
		f.pruneEmptyDirs(filepath.Dir(full))
	case tree.OpAdd:
		if rec.existed && bytes.Equal(prev, data) {
			return rec, nil
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return rec, err
		}
		if err := writeFileAtomic(full, data); err != nil {
			return rec, err
		}
		f.remember(c.Path, full, c.Sha)
	default:
		return rec, fmt.Errorf("unknown op %q", c.Op)
	}
	return rec, nil
}

func (f *FS) rollback(undo []undoRecord) {
	for i := len(undo) - 1; i >= 0; i-- {
		rec := undo[i]
		full := f.abs(rec.path)
		var err error
		if rec.existed {
			if err = os.MkdirAll(filepath.Dir(full), 0o755); err == nil {
				err = writeFileAtomic(full, rec.prev)
			}
		} else {
			err = os.Remove(full)
			if errors.Is(err, fs.ErrNotExist) {
				err = nil
			}
			f.pruneEmptyDirs(filepath.Dir(full))
		}
		if err != nil {
			f.logger.Error("rollback failed", "path", rec.path, "error", err)
		}
		delete(f.cache, rec.path)
	}
	f.cacheDirty = true
	f.paths = nil
}

// Commit applies req under the source's commit lock.
func (f *FS) Commit(ctx context.Context, req *CommitRequest) (object.Hash, error) {
	f.commitMu.Lock()
	defer f.commitMu.Unlock()
	return Commit(ctx, f, req)
}

func (f *FS) scan(ctx context.Context) (*tree.Tree, error) {
	files := make(map[string]object.Hash)
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == f.root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if p == f.root {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(d.Name(), ".") || f.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sha, err := f.fileHash(rel, p, info)
		if err != nil {
			return err
		}
		files[rel] = sha
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fs source: walk %s: %w", f.root, err)
	}

	for p := range f.cache {
		if _, ok := files[p]; !ok {
			delete(f.cache, p)
			f.cacheDirty = true
		}
	}
	f.paths = make(map[object.Hash]string, len(files))
	for p, sha := range files {
		if prev, ok := f.paths[sha]; !ok || p < prev {
			f.paths[sha] = p
		}
	}
	f.flushCache()

	t, err := tree.New(files)
	if err != nil {
		return nil, fmt.Errorf("fs source: %w", err)
	}
	return t, nil
}

func (f *FS) fileHash(rel, full string, info fs.FileInfo) (object.Hash, error) {
	fp := fingerprintFromFileInfo(info)
	if e, ok := f.cache[rel]; ok && e.Fingerprint == fp {
		return e.BlobHash, nil
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	sha := object.HashBlob(data)
	f.cache[rel] = fileHashCacheEntry{Fingerprint: fp, BlobHash: sha}
	f.cacheDirty = true
	return sha, nil
}

// remember records a file this source just wrote so the next walk does not
// rehash it.
func (f *FS) remember(rel, full string, sha object.Hash) {
	info, err := os.Stat(full)
	if err != nil {
		delete(f.cache, rel)
	} else {
		f.cache[rel] = fileHashCacheEntry{Fingerprint: fingerprintFromFileInfo(info), BlobHash: sha}
	}
	f.cacheDirty = true
	if f.paths != nil {
		f.paths[sha] = rel
	}
}

func (f *FS) flushCache() {
	if !f.cacheDirty || f.cachePath == "" {
		return
	}
	if err := saveHashCache(f.cachePath, f.cache); err != nil {
		f.logger.Warn("persist hash cache", "path", f.cachePath, "error", err)
		return
	}
	f.cacheDirty = false
}

func (f *FS) ignored(rel string) bool {
	for _, pattern := range f.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (f *FS) pruneEmptyDirs(dir string) {
	for dir != f.root && strings.HasPrefix(dir, f.root+string(filepath.Separator)) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (f *FS) abs(rel string) string {
	return filepath.Join(f.root, filepath.FromSlash(rel))
}
