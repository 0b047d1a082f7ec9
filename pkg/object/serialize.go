package object

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// SerializeTreeEntries encodes entries in git's binary tree format:
//
//	<mode> SP <name> NUL <20 byte sha>
//
// repeated for every entry in git sort order (see CompareTreeEntries). The
// input slice is not modified.
func SerializeTreeEntries(entries []TreeEntry) ([]byte, error) {
	sorted := make([]TreeEntry, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.Name == "" || strings.ContainsAny(e.Name, "/\x00") {
			return nil, fmt.Errorf("serialize tree: invalid entry name %q", e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("serialize tree: duplicate entry name %q", e.Name)
		}
		seen[e.Name] = struct{}{}
		mode, err := normalizeMode(e.Mode)
		if err != nil {
			return nil, fmt.Errorf("serialize tree: %w", err)
		}
		e.Mode = mode
		sorted[i] = e
	}
	SortTreeEntries(sorted)

	var buf bytes.Buffer
	for _, e := range sorted {
		raw, err := e.Hash.Raw()
		if err != nil {
			return nil, fmt.Errorf("serialize tree: entry %q: %w", e.Name, err)
		}
		buf.WriteString(e.Mode)
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(raw[:])
	}
	return buf.Bytes(), nil
}

// ParseTreeEntries decodes a git binary tree. Malformed input fails with a
// *CorruptDataError.
func ParseTreeEntries(data []byte) ([]TreeEntry, error) {
	var entries []TreeEntry
	rest := data
	for len(rest) > 0 {
		sp := bytes.IndexByte(rest, ' ')
		if sp < 0 {
			return nil, &CorruptDataError{What: "tree", Err: fmt.Errorf("missing mode separator at offset %d", len(data)-len(rest))}
		}
		mode, err := normalizeMode(string(rest[:sp]))
		if err != nil {
			return nil, &CorruptDataError{What: "tree", Err: err}
		}
		rest = rest[sp+1:]

		nul := bytes.IndexByte(rest, 0)
		if nul <= 0 {
			return nil, &CorruptDataError{What: "tree", Err: fmt.Errorf("missing or empty entry name")}
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]

		if len(rest) < HashSize {
			return nil, &CorruptDataError{What: "tree", Err: fmt.Errorf("entry %q: truncated hash", name)}
		}
		h := Hash(hex.EncodeToString(rest[:HashSize]))
		rest = rest[HashSize:]

		entries = append(entries, TreeEntry{Name: name, Mode: mode, Hash: h})
	}
	return entries, nil
}

// SortTreeEntries sorts entries in place using git's tree order.
func SortTreeEntries(entries []TreeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return CompareTreeEntries(entries[i], entries[j]) < 0
	})
}

// CompareTreeEntries orders entries by raw name bytes, treating directory
// names as if they were suffixed with "/". This places "foo-bar" before the
// directory "foo" and "fooXbar" after it, exactly as git does.
func CompareTreeEntries(a, b TreeEntry) int {
	return strings.Compare(sortName(a), sortName(b))
}

func sortName(e TreeEntry) string {
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

func normalizeMode(mode string) (string, error) {
	switch mode {
	case TreeModeDir, "040000":
		return TreeModeDir, nil
	case TreeModeFile, "":
		return TreeModeFile, nil
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}
