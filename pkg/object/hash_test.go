package object

import (
	"fmt"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
)

func TestHashBlobMatchesGit(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Hash
	}{
		{name: "empty", data: "", want: "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"},
		{name: "hello", data: "hello\n", want: "ce013625030ba8dba906f756967f9e9ca394464a"},
		{name: "a", data: "a\n", want: "78981922613b2afb6025042ff6bd878ac1994e85"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HashBlob([]byte(tc.data)); got != tc.want {
				t.Fatalf("HashBlob(%q) = %s, want %s", tc.data, got, tc.want)
			}
		})
	}
}

func TestHashBlobMatchesGoGit(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("{\"id\":\"page1\"}\n"),
		[]byte("\x00\x01\x02binary\xff"),
		make([]byte, 70000),
	}
	for i := 0; i < 32; i++ {
		inputs = append(inputs, []byte(fmt.Sprintf("entry-%d-%x", i, i*7919)))
	}
	for _, data := range inputs {
		want := plumbing.ComputeHash(plumbing.BlobObject, data).String()
		if got := HashBlob(data); string(got) != want {
			t.Fatalf("HashBlob(%q) = %s, go-git = %s", data, got, want)
		}
	}
}

func TestHashEmptyTree(t *testing.T) {
	data, err := SerializeTreeEntries(nil)
	if err != nil {
		t.Fatalf("SerializeTreeEntries: %v", err)
	}
	if got := HashTree(data); got != EmptyTreeHash {
		t.Fatalf("empty tree = %s, want %s", got, EmptyTreeHash)
	}
}

// The fixture is `git write-tree` over foo-bar, foo/bar and fooXbar
// containing "a\n", "b\n" and "c\n".
func TestHashTreeMatchesGitSortOrder(t *testing.T) {
	sub, err := SerializeTreeEntries([]TreeEntry{
		{Name: "bar", Mode: TreeModeFile, Hash: "61780798228d17af2d34fce4cfbdf35556832472"},
	})
	if err != nil {
		t.Fatal(err)
	}
	subHash := HashTree(sub)
	if subHash != "65264ea34144797275c83285a111a0c6fe7d8398" {
		t.Fatalf("subtree = %s", subHash)
	}

	// Deliberately unsorted input.
	root, err := SerializeTreeEntries([]TreeEntry{
		{Name: "fooXbar", Mode: TreeModeFile, Hash: "f2ad6c76f0115a6ba5b00456a849810e7ec0af20"},
		{Name: "foo", Mode: TreeModeDir, Hash: subHash},
		{Name: "foo-bar", Mode: TreeModeFile, Hash: "78981922613b2afb6025042ff6bd878ac1994e85"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := HashTree(root); got != "8fec06c57dd86b9716685b2312e967635ab73720" {
		t.Fatalf("root tree = %s, want 8fec06c57dd86b9716685b2312e967635ab73720", got)
	}
}

func TestValidateHash(t *testing.T) {
	if err := ValidateHash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"); err != nil {
		t.Fatalf("valid hash rejected: %v", err)
	}
	for _, bad := range []Hash{"", "abc", "E69DE29BB2D1D6434B8B29AE775AD8C2E48C5391", "z69de29bb2d1d6434b8b29ae775ad8c2e48c5391"} {
		if err := ValidateHash(bad); err == nil {
			t.Fatalf("ValidateHash(%q) succeeded, want error", bad)
		}
	}
}
