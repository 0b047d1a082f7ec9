package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/odvcencio/folio/pkg/object"
)

const hashCacheVersion = 1

type fileFingerprint struct {
	ModTimeNano int64 `cbor:"1,keyasint"`
	Size        int64 `cbor:"2,keyasint"`
}

type fileHashCacheEntry struct {
	Fingerprint fileFingerprint `cbor:"1,keyasint"`
	BlobHash    object.Hash     `cbor:"2,keyasint"`
}

type fileHashCacheFile struct {
	Version int                           `cbor:"1,keyasint"`
	Entries map[string]fileHashCacheEntry `cbor:"2,keyasint"`
}

var (
	cacheEncMode cbor.EncMode
	cacheDecMode cbor.DecMode
)

func init() {
	var err error
	cacheEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("source: CBOR encoder initialization failed: " + err.Error())
	}
	cacheDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("source: CBOR decoder initialization failed: " + err.Error())
	}
}

func fingerprintFromFileInfo(info fs.FileInfo) fileFingerprint {
	return fileFingerprint{
		ModTimeNano: info.ModTime().UnixNano(),
		Size:        info.Size(),
	}
}

// loadHashCache reads a persisted cache. A missing, unreadable or outdated
// file yields an empty cache; the next walk simply rehashes.
func loadHashCache(path string) (map[string]fileHashCacheEntry, error) {
	entries := make(map[string]fileHashCacheEntry)
	if path == "" {
		return entries, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read hash cache: %w", err)
	}
	var file fileHashCacheFile
	if err := cacheDecMode.Unmarshal(data, &file); err != nil || file.Version != hashCacheVersion {
		return entries, nil
	}
	for p, e := range file.Entries {
		entries[p] = e
	}
	return entries, nil
}

func saveHashCache(path string, entries map[string]fileHashCacheEntry) error {
	data, err := cacheEncMode.Marshal(fileHashCacheFile{Version: hashCacheVersion, Entries: entries})
	if err != nil {
		return fmt.Errorf("encode hash cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("hash cache mkdir: %w", err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes via temp file + rename in the destination directory.
func writeFileAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: tmpfile: %w", dest, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: close: %w", dest, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: chmod: %w", dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: rename: %w", dest, err)
	}
	return nil
}
