package object

import (
	"errors"
	"reflect"
	"testing"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	entries := []TreeEntry{
		{Name: "a.json", Mode: TreeModeFile, Hash: HashBlob([]byte("a"))},
		{Name: "foo-bar", Mode: TreeModeFile, Hash: HashBlob([]byte("b"))},
		{Name: "foo", Mode: TreeModeDir, Hash: EmptyTreeHash},
		{Name: "fooXbar", Mode: TreeModeFile, Hash: HashBlob([]byte("c"))},
		{Name: "page.draft.json", Mode: TreeModeFile, Hash: HashBlob([]byte("d"))},
	}
	data, err := SerializeTreeEntries(entries)
	if err != nil {
		t.Fatalf("SerializeTreeEntries: %v", err)
	}
	got, err := ParseTreeEntries(data)
	if err != nil {
		t.Fatalf("ParseTreeEntries: %v", err)
	}
	if !reflect.DeepEqual(got, entries) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, entries)
	}
}

func TestSerializeDeterministic(t *testing.T) {
	a := []TreeEntry{
		{Name: "b", Mode: TreeModeFile, Hash: HashBlob([]byte("1"))},
		{Name: "a", Mode: TreeModeFile, Hash: HashBlob([]byte("2"))},
	}
	b := []TreeEntry{a[1], a[0]}
	da, err := SerializeTreeEntries(a)
	if err != nil {
		t.Fatal(err)
	}
	db, err := SerializeTreeEntries(b)
	if err != nil {
		t.Fatal(err)
	}
	if HashTree(da) != HashTree(db) {
		t.Fatal("tree hash depends on input order")
	}
	if a[0].Name != "b" {
		t.Fatal("SerializeTreeEntries mutated its input")
	}
}

func TestSerializeRejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry TreeEntry
	}{
		{name: "empty name", entry: TreeEntry{Mode: TreeModeFile, Hash: EmptyTreeHash}},
		{name: "slash", entry: TreeEntry{Name: "a/b", Mode: TreeModeFile, Hash: EmptyTreeHash}},
		{name: "bad mode", entry: TreeEntry{Name: "a", Mode: "120000", Hash: EmptyTreeHash}},
		{name: "bad hash", entry: TreeEntry{Name: "a", Mode: TreeModeFile, Hash: "nope"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := SerializeTreeEntries([]TreeEntry{tc.entry}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseTreeEntriesCorrupt(t *testing.T) {
	tests := map[string][]byte{
		"no separator":   []byte("100644"),
		"unknown mode":   []byte("777 a\x00aaaaaaaaaaaaaaaaaaaa"),
		"no name":        []byte("100644 \x00aaaaaaaaaaaaaaaaaaaa"),
		"truncated hash": []byte("100644 a\x00short"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTreeEntries(data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrCorruptData) {
				t.Fatalf("error %v is not ErrCorruptData", err)
			}
			var cde *CorruptDataError
			if !errors.As(err, &cde) || cde.What != "tree" {
				t.Fatalf("error %v is not a tree CorruptDataError", err)
			}
		})
	}
}

func TestCompareTreeEntriesDirectorySuffix(t *testing.T) {
	dir := TreeEntry{Name: "foo", Mode: TreeModeDir}
	dash := TreeEntry{Name: "foo-bar", Mode: TreeModeFile}
	x := TreeEntry{Name: "fooXbar", Mode: TreeModeFile}
	if CompareTreeEntries(dash, dir) >= 0 {
		t.Fatal("foo-bar must sort before directory foo")
	}
	if CompareTreeEntries(dir, x) >= 0 {
		t.Fatal("directory foo must sort before fooXbar")
	}
}
