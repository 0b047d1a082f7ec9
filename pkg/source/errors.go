package source

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/odvcencio/folio/pkg/object"
)

var (
	// ErrMissingBlob matches every *MissingBlobError.
	ErrMissingBlob = errors.New("missing blob")
	// ErrShaMismatch matches every *ShaMismatchError.
	ErrShaMismatch = errors.New("sha mismatch")
)

// MissingBlobError means a tree references content the source does not hold.
type MissingBlobError struct {
	Sha object.Hash
}

func (e *MissingBlobError) Error() string {
	return fmt.Sprintf("missing blob %s", e.Sha)
}

func (e *MissingBlobError) Is(target error) bool {
	return target == ErrMissingBlob
}

// ShaMismatchError rejects a commit built against a stale tree. Callers
// recover by syncing and rebuilding the transaction.
type ShaMismatchError struct {
	Expected object.Hash
	Actual   object.Hash
	Reason   string
}

func (e *ShaMismatchError) Error() string {
	msg := fmt.Sprintf("sha mismatch: expected %s, found %s", e.Expected.Short(), e.Actual.Short())
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ShaMismatchError) Is(target error) bool {
	return target == ErrShaMismatch
}

// StatusCode is the HTTP status the remote server answers with.
func (e *ShaMismatchError) StatusCode() int {
	return http.StatusConflict
}

func errHashMismatch(got object.Hash) error {
	return fmt.Errorf("contents hash to %s", got.Short())
}
