// Package txn turns entry operations into file mutations and compiles them
// into commit requests. Operations never touch storage: they read a graph
// snapshot and describe the files to write, remove or rename.
package txn

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrNotFound       = errors.New("entry not found")
	ErrInvalidMove    = errors.New("invalid move")
	ErrPathTaken      = errors.New("entry path taken")
)

// MutationKind is the structural intent of one Mutation.
type MutationKind string

const (
	// MutationWrite writes Contents to Path.
	MutationWrite MutationKind = "write"
	// MutationRemove deletes the file at Path if it still exists.
	MutationRemove MutationKind = "remove"
	// MutationRename moves the file at Path to To.
	MutationRename MutationKind = "rename"
	// MutationRenameDir moves every file below the directory Path to To.
	MutationRenameDir MutationKind = "renameDir"
	// MutationRemoveDir deletes every file below the directory Path.
	MutationRemoveDir MutationKind = "removeDir"
	// MutationCheck records that the file at Path must not change
	// concurrently.
	MutationCheck MutationKind = "check"
)

// Mutation is one file-level intent produced by an operation.
type Mutation struct {
	Kind     MutationKind
	EntryID  string
	Path     string
	To       string
	Contents []byte
}

func (m Mutation) String() string {
	switch m.Kind {
	case MutationRename, MutationRenameDir:
		return fmt.Sprintf("%s %s -> %s", m.Kind, m.Path, m.To)
	}
	return fmt.Sprintf("%s %s", m.Kind, m.Path)
}
