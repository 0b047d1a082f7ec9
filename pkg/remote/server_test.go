package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/source"
	"github.com/odvcencio/folio/pkg/tree"
)

type testRemote struct {
	mem    *source.Memory
	server *Server
	http   *httptest.Server
	client *Client
}

func newTestRemote(t *testing.T, opts ServerOptions, token string) *testRemote {
	t.Helper()
	t.Setenv("FOLIO_TOKEN", "")
	t.Setenv("FOLIO_USERNAME", "")
	mem := source.NewMemory()
	srv := NewServer(mem, opts)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	c, err := NewClientWithOptions(ts.URL, ClientOptions{Timeout: 5 * time.Second, MaxAttempts: 1, Token: token})
	if err != nil {
		t.Fatal(err)
	}
	return &testRemote{mem: mem, server: srv, http: ts, client: c}
}

func (r *testRemote) seed(t *testing.T, files map[string][]byte) {
	t.Helper()
	if err := r.mem.ApplyChanges(context.Background(), source.Adds(files)); err != nil {
		t.Fatal(err)
	}
}

func treeSha(t *testing.T, src source.Source) object.Hash {
	t.Helper()
	tr, err := src.GetTree(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return tr.Sha()
}

func TestClientReadsTreeAndBlobs(t *testing.T) {
	ctx := context.Background()
	r := newTestRemote(t, ServerOptions{}, "")
	r.seed(t, map[string][]byte{
		"main/pages/en/home.json": []byte(`{"id":"home"}`),
		"main/media/empty.txt":    {},
	})

	tr, err := r.client.GetTree(ctx)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if tr.Sha() != treeSha(t, r.mem) {
		t.Fatalf("tree sha = %s, want %s", tr.Sha(), treeSha(t, r.mem))
	}
	same, err := r.client.GetTreeIfDifferent(ctx, tr.Sha())
	if err != nil || same != nil {
		t.Fatalf("GetTreeIfDifferent(current) = %v, %v; want nil, nil", same, err)
	}

	home, _ := tr.Get("main/pages/en/home.json")
	empty, _ := tr.Get("main/media/empty.txt")
	blobs, err := r.client.GetBlobs(ctx, []object.Hash{empty, home})
	if err != nil {
		t.Fatalf("GetBlobs: %v", err)
	}
	if len(blobs) != 2 || blobs[0].Sha != empty || len(blobs[0].Data) != 0 || string(blobs[1].Data) != `{"id":"home"}` {
		t.Fatalf("blobs = %+v", blobs)
	}

	_, err = r.client.GetBlobs(ctx, []object.Hash{object.HashBlob([]byte("nope"))})
	if !errors.Is(err, source.ErrMissingBlob) {
		t.Fatalf("missing blob err = %v", err)
	}
}

func TestClientCommitConflict(t *testing.T) {
	ctx := context.Background()
	r := newTestRemote(t, ServerOptions{}, "")
	req := &source.CommitRequest{
		FromSha: tree.Empty().Sha(),
		Changes: source.Adds(map[string][]byte{"main/media/x.json": []byte(`{}`)}),
		Checks:  []source.Check{{Path: "main/media/x.json"}},
	}

	sha, err := r.client.Commit(ctx, req)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if sha != treeSha(t, r.mem) {
		t.Fatalf("commit sha = %s, remote at %s", sha, treeSha(t, r.mem))
	}

	_, err = r.client.Commit(ctx, req)
	var mismatch *source.ShaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("replayed commit err = %v, want sha mismatch", err)
	}
	if mismatch.Expected != req.FromSha || mismatch.Actual != sha {
		t.Fatalf("mismatch = %+v", mismatch)
	}
}

func TestSyncThroughClient(t *testing.T) {
	ctx := context.Background()
	r := newTestRemote(t, ServerOptions{}, "")
	r.seed(t, map[string][]byte{"main/pages/en/home.json": []byte(`{"id":"home"}`)})
	local := source.NewMemory()

	changes, err := source.SyncWith(ctx, local, r.client)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(changes) != 1 || treeSha(t, local) != treeSha(t, r.mem) {
		t.Fatalf("pull: %d changes, local %s, remote %s", len(changes), treeSha(t, local), treeSha(t, r.mem))
	}
	if changes, err = source.SyncWith(ctx, local, r.client); err != nil || len(changes) != 0 {
		t.Fatalf("second pull: %d changes, %v", len(changes), err)
	}

	if err := local.ApplyChanges(ctx, source.Adds(map[string][]byte{"main/pages/en/about.json": []byte(`{"id":"about"}`)})); err != nil {
		t.Fatal(err)
	}
	if _, err := source.SyncWith(ctx, r.client, local); err != nil {
		t.Fatalf("push: %v", err)
	}
	if treeSha(t, local) != treeSha(t, r.mem) {
		t.Fatal("remote differs after push")
	}
}

func TestServerRequiresToken(t *testing.T) {
	ctx := context.Background()
	r := newTestRemote(t, ServerOptions{Token: "s3cret"}, "")
	_, err := r.client.GetTree(ctx)
	var re *RemoteError
	if !errors.As(err, &re) || re.Code != CodeUnauthorized {
		t.Fatalf("anonymous GetTree err = %v", err)
	}

	authed, err := NewClientWithOptions(r.http.URL, ClientOptions{Token: "s3cret", MaxAttempts: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := authed.GetTree(ctx); err != nil {
		t.Fatalf("authorized GetTree: %v", err)
	}
	if err := r.client.Ping(ctx); err != nil {
		t.Fatalf("healthz should not need a token: %v", err)
	}
}

func TestServerCompressesOnlyWhenAsked(t *testing.T) {
	r := newTestRemote(t, ServerOptions{}, "")

	get := func(compressed bool) *http.Response {
		req, _ := http.NewRequest(http.MethodGet, r.http.URL+"/tree", nil)
		if compressed {
			req.Header.Set(headerCapabilities, ClientCapabilities)
			req.Header.Set("Accept-Encoding", "zstd")
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	resp := get(true)
	defer resp.Body.Close()
	if resp.Header.Get("Content-Encoding") != "zstd" {
		t.Fatalf("Content-Encoding = %q", resp.Header.Get("Content-Encoding"))
	}
	raw, _ := io.ReadAll(resp.Body)
	body, err := decompressZstd(raw)
	if err != nil {
		t.Fatal(err)
	}
	var listing treeListing
	if err := json.Unmarshal(body, &listing); err != nil || listing.Sha != tree.Empty().Sha() {
		t.Fatalf("listing = %+v, %v", listing, err)
	}

	plain := get(false)
	defer plain.Body.Close()
	raw, _ = io.ReadAll(plain.Body)
	if plain.Header.Get("Content-Encoding") != "" || !bytes.HasPrefix(raw, []byte("{")) {
		t.Fatalf("plain response encoded: %q", plain.Header.Get("Content-Encoding"))
	}
}

func TestEventsStreamTreeShas(t *testing.T) {
	r := newTestRemote(t, ServerOptions{}, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go r.server.Poll(ctx, 10*time.Millisecond)

	shas := make(chan object.Hash, 8)
	done := make(chan error, 1)
	go func() {
		done <- r.client.Subscribe(ctx, func(sha object.Hash) { shas <- sha })
	}()

	next := func() object.Hash {
		t.Helper()
		select {
		case sha := <-shas:
			return sha
		case <-time.After(5 * time.Second):
			t.Fatal("no event")
			return ""
		}
	}

	if got := next(); got != tree.Empty().Sha() {
		t.Fatalf("first event = %s, want the empty tree", got)
	}

	// Through the server.
	if err := r.client.ApplyChanges(ctx, source.Adds(map[string][]byte{"a.json": []byte(`{}`)})); err != nil {
		t.Fatal(err)
	}
	if got := next(); got != treeSha(t, r.mem) {
		t.Fatalf("event after write = %s, want %s", got, treeSha(t, r.mem))
	}

	// Behind the server's back; picked up by Poll.
	r.seed(t, map[string][]byte{"b.json": []byte(`{}`)})
	if got := next(); got != treeSha(t, r.mem) {
		t.Fatalf("event after external write = %s, want %s", got, treeSha(t, r.mem))
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Subscribe returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}
