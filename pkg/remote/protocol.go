package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/source"
	"github.com/odvcencio/folio/pkg/tree"
)

const (
	// ProtocolVersion is the current folio remote protocol version.
	ProtocolVersion = "1"

	// ClientCapabilities lists all capabilities this client supports.
	ClientCapabilities = "zstd,events"

	headerProtocol     = "Folio-Protocol"
	headerCapabilities = "Folio-Capabilities"
)

// Error codes carried by RemoteError.
const (
	CodeShaMismatch  = "sha_mismatch"
	CodeMissingBlob  = "missing_blob"
	CodeCorrupt      = "corrupt_data"
	CodeBadRequest   = "bad_request"
	CodeUnauthorized = "unauthorized"
	CodeInternal     = "internal"
)

// Capabilities represents a set of protocol capabilities.
type Capabilities struct {
	set map[string]struct{}
}

// ParseCapabilities parses a comma-separated capability string.
func ParseCapabilities(raw string) Capabilities {
	caps := Capabilities{set: make(map[string]struct{})}
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			caps.set[c] = struct{}{}
		}
	}
	return caps
}

// Has returns true if the capability is present.
func (c Capabilities) Has(name string) bool {
	_, ok := c.set[name]
	return ok
}

// Intersect returns capabilities present in both sets.
func (c Capabilities) Intersect(other Capabilities) Capabilities {
	result := Capabilities{set: make(map[string]struct{})}
	for k := range c.set {
		if _, ok := other.set[k]; ok {
			result.set[k] = struct{}{}
		}
	}
	return result
}

// String returns a sorted comma-separated capability string.
func (c Capabilities) String() string {
	names := make([]string, 0, len(c.set))
	for k := range c.set {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// ---------------------------------------------------------------------------
// Wire shapes
// ---------------------------------------------------------------------------

// treeListing is the body of GET /tree: every file with its blob id.
type treeListing struct {
	Sha   object.Hash            `json:"sha"`
	Files map[string]object.Hash `json:"files"`
}

func listTree(t *tree.Tree) treeListing {
	return treeListing{Sha: t.Sha(), Files: t.Index()}
}

// tree rebuilds the listing and verifies it hashes to Sha.
func (l treeListing) tree() (*tree.Tree, error) {
	t, err := tree.New(l.Files)
	if err != nil {
		return nil, &object.CorruptDataError{What: "tree", Sha: l.Sha, Err: err}
	}
	if t.Sha() != l.Sha {
		return nil, &object.CorruptDataError{What: "tree", Sha: l.Sha, Err: fmt.Errorf("listing hashes to %s", t.Sha().Short())}
	}
	return t, nil
}

type blobsRequest struct {
	Shas []object.Hash `json:"shas"`
}

type blobsResponse struct {
	Blobs []source.Blob `json:"blobs"`
}

type changesRequest struct {
	Changes []tree.Change `json:"changes"`
}

type shaResponse struct {
	Sha object.Hash `json:"sha"`
}

// Event is one message on the /events stream.
type Event struct {
	Sha object.Hash `json:"sha"`
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// RemoteError is a structured error from the remote server.
type RemoteError struct {
	Code     string      `json:"code"`
	Message  string      `json:"error"`
	Detail   string      `json:"detail,omitempty"`
	Expected object.Hash `json:"expected,omitempty"`
	Actual   object.Hash `json:"actual,omitempty"`
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%s): %s", e.Message, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// local converts e back into the source error it was raised from.
func (e *RemoteError) local() error {
	switch e.Code {
	case CodeShaMismatch:
		return &source.ShaMismatchError{Expected: e.Expected, Actual: e.Actual, Reason: e.Detail}
	case CodeMissingBlob:
		return &source.MissingBlobError{Sha: e.Expected}
	}
	return e
}

// remoteError maps err to the status and body the server answers with.
func remoteError(err error) (int, *RemoteError) {
	var mismatch *source.ShaMismatchError
	var missing *source.MissingBlobError
	switch {
	case errors.As(err, &mismatch):
		return mismatch.StatusCode(), &RemoteError{
			Code:     CodeShaMismatch,
			Message:  "sha mismatch",
			Detail:   mismatch.Reason,
			Expected: mismatch.Expected,
			Actual:   mismatch.Actual,
		}
	case errors.As(err, &missing):
		return http.StatusNotFound, &RemoteError{Code: CodeMissingBlob, Message: "missing blob", Expected: missing.Sha}
	case errors.Is(err, object.ErrCorruptData):
		return http.StatusUnprocessableEntity, &RemoteError{Code: CodeCorrupt, Message: "corrupt data", Detail: err.Error()}
	}
	return http.StatusInternalServerError, &RemoteError{Code: CodeInternal, Message: "internal error", Detail: err.Error()}
}

// tryParseRemoteError attempts to parse a JSON error response body.
func tryParseRemoteError(body []byte) *RemoteError {
	var re RemoteError
	if err := json.Unmarshal(body, &re); err != nil {
		return nil
	}
	if re.Message == "" && re.Code == "" {
		return nil
	}
	return &re
}
