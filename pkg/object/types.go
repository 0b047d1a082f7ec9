package object

// Hash is a 40-character hex-encoded SHA-1 digest, byte-for-byte the ids git
// prints for the same content.
type Hash string

// ObjectType identifies the kind of object being hashed.
type ObjectType string

const (
	TypeBlob ObjectType = "blob"
	TypeTree ObjectType = "tree"
)

const (
	// HashSize is the length of a raw SHA-1 digest.
	HashSize = 20
	// HashHexSize is the length of a hex-encoded SHA-1 digest.
	HashHexSize = 40
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	TreeModeDir  = "40000"
	TreeModeFile = "100644"
)

// EmptyTreeHash is the id of a tree with no entries.
const EmptyTreeHash Hash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name string
	Mode string
	Hash Hash
}

// IsDir reports whether the entry points at a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Mode == TreeModeDir
}
