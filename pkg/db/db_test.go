package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/odvcencio/folio/pkg/entry"
	"github.com/odvcencio/folio/pkg/graph"
	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/query"
	"github.com/odvcencio/folio/pkg/schema"
	"github.com/odvcencio/folio/pkg/source"
	"github.com/odvcencio/folio/pkg/tree"
	"github.com/odvcencio/folio/pkg/txn"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(
		[]*schema.Type{{Name: "Page", Fields: []schema.Field{{Name: "body", Kind: schema.KindMarkdown, Searchable: true}}}},
		[]*schema.Workspace{{Name: "main", Roots: []*schema.Root{
			{Name: "pages", Locales: []string{"en", "de"}},
			{Name: "media"},
		}}},
	)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func open(t *testing.T, local source.Source, remote Remote) *DB {
	t.Helper()
	db, err := Open(context.Background(), testSchema(t), local, Options{Remote: remote})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func sha(t *testing.T, src source.Source) object.Hash {
	t.Helper()
	tr, err := src.GetTree(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return tr.Sha()
}

// pageFile encodes a published english page.
func pageFile(t *testing.T, id, index string) (string, []byte) {
	t.Helper()
	rec := &entry.Record{ID: id, Type: "Page", Title: id, Meta: entry.Meta{Index: index, Locale: "en"}}
	data, err := rec.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return "main/pages/en/" + id + ".json", data
}

func seed(t *testing.T, src source.Source, ids ...string) {
	t.Helper()
	files := map[string][]byte{}
	for i, id := range ids {
		p, data := pageFile(t, id, fmt.Sprintf("b%d", i))
		files[p] = data
	}
	if err := src.ApplyChanges(context.Background(), source.Adds(files)); err != nil {
		t.Fatal(err)
	}
}

type rejecting struct{ *source.Memory }

func (rejecting) Commit(_ context.Context, req *source.CommitRequest) (object.Hash, error) {
	return "", &source.ShaMismatchError{Expected: req.FromSha, Reason: "rejected"}
}

type streaming struct {
	*source.Memory
	events chan object.Hash
}

func (s *streaming) Subscribe(ctx context.Context, fn func(object.Hash)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sha := <-s.events:
			fn(sha)
		}
	}
}

func TestCreateFillsPlacementDefaults(t *testing.T) {
	ctx := context.Background()
	local := source.NewMemory()
	db := open(t, local, nil)

	id, err := db.Create(ctx, &txn.CreateOp{Type: "Page", Title: "Home"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	tr, _ := local.GetTree(ctx)
	if !tr.Has("main/pages/en/home.json") {
		t.Fatalf("paths = %v", tr.Paths())
	}
	n := db.Graph().ByID(id)
	if n == nil || n.Index != "a0" {
		t.Fatalf("node = %+v", n)
	}

	if _, err := db.Create(ctx, &txn.CreateOp{ID: id, Type: "Page", Title: "Start", Locale: "de"}); err != nil {
		t.Fatalf("Create translation: %v", err)
	}
	if db.Graph().ByID(id).Language("de") == nil {
		t.Fatal("translation missing")
	}
}

func TestCommitReachesRemoteFirst(t *testing.T) {
	ctx := context.Background()
	local, remote := source.NewMemory(), source.NewMemory()
	db := open(t, local, remote)

	if _, err := db.Create(ctx, &txn.CreateOp{Type: "Page", Title: "Home"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sha(t, local) != sha(t, remote) {
		t.Fatalf("local %s, remote %s", sha(t, local), sha(t, remote))
	}
}

func TestRejectedCommitLeavesLocalUntouched(t *testing.T) {
	ctx := context.Background()
	local := source.NewMemory()
	db := open(t, local, rejecting{source.NewMemory()})

	_, err := db.Create(ctx, &txn.CreateOp{Type: "Page", Title: "Home"})
	if !errors.Is(err, source.ErrShaMismatch) {
		t.Fatalf("err = %v, want sha mismatch", err)
	}
	if got := sha(t, local); got != tree.Empty().Sha() {
		t.Fatalf("local tree moved to %s", got)
	}
	if db.Graph().Len() != 0 {
		t.Fatalf("graph has %d entries", db.Graph().Len())
	}
}

func TestCommitPullsWhenRemoteDiverged(t *testing.T) {
	ctx := context.Background()
	local, remote := source.NewMemory(), source.NewMemory()
	seed(t, remote, "elsewhere")
	db := open(t, local, remote)

	id, err := db.Create(ctx, &txn.CreateOp{Type: "Page", Title: "Home"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sha(t, local) != sha(t, remote) {
		t.Fatal("local did not catch up with the remote")
	}
	g := db.Graph()
	if g.ByID(id) == nil || g.ByID("elsewhere") == nil {
		t.Fatalf("graph has %d entries, want both", g.Len())
	}
}

func TestConcurrentCreatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	db := open(t, source.NewMemory(), nil)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = db.Create(ctx, &txn.CreateOp{Type: "Page", Title: fmt.Sprintf("Page %d", i)})
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	g, err := db.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	nodes := g.TopLevel("main", "pages")
	if len(nodes) != n {
		t.Fatalf("got %d entries, want %d", len(nodes), n)
	}
	for i := 1; i < len(nodes); i++ {
		if nodes[i-1].Index >= nodes[i].Index {
			t.Fatalf("indexes not strictly increasing: %s, %s", nodes[i-1].Index, nodes[i].Index)
		}
	}
}

func TestPullIsIdempotent(t *testing.T) {
	ctx := context.Background()
	remote := source.NewMemory()
	seed(t, remote, "one", "two")
	db := open(t, source.NewMemory(), remote)

	changes, err := db.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("first pull: %d changes, want 2", len(changes))
	}
	if db.Graph().ByID("two") == nil {
		t.Fatal("pulled entry not indexed")
	}
	changes, err = db.Pull(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Fatalf("second pull: %d changes, want 0", len(changes))
	}
}

func TestPushCopiesLocalToRemote(t *testing.T) {
	ctx := context.Background()
	local, remote := source.NewMemory(), source.NewMemory()
	seed(t, local, "draft-work")
	db := open(t, local, remote)

	if _, err := db.Push(ctx); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if sha(t, local) != sha(t, remote) {
		t.Fatal("remote differs after push")
	}
}

func TestRemoteOperationsNeedRemote(t *testing.T) {
	db := open(t, source.NewMemory(), nil)
	if _, err := db.Pull(context.Background()); !errors.Is(err, ErrNoRemote) {
		t.Fatalf("Pull err = %v", err)
	}
	if _, err := db.WatchRemote(context.Background(), time.Second, func(*graph.Graph) {}); !errors.Is(err, ErrNoRemote) {
		t.Fatalf("WatchRemote err = %v", err)
	}
}

func TestResolveAgainstLatestGraph(t *testing.T) {
	ctx := context.Background()
	db := open(t, source.NewMemory(), nil)
	for _, title := range []string{"Alpha", "Beta", "Gamma"} {
		if _, err := db.Create(ctx, &txn.CreateOp{Type: "Page", Title: title, Data: map[string]any{"body": "about " + title}}); err != nil {
			t.Fatal(err)
		}
	}
	q := query.Find("Page")
	q.Count = true
	got, err := db.Resolve(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Fatalf("count = %v, want 3", got)
	}

	q = query.Find("Page")
	q.Search = []string{"gam"}
	rows, err := db.Rows(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Title != "Gamma" {
		t.Fatalf("search rows = %v", rows)
	}
}

func TestWatchSeesExternalWrites(t *testing.T) {
	local := source.NewMemory()
	db := open(t, local, nil)

	seen := make(chan *graph.Graph, 4)
	stop := db.Watch(context.Background(), 10*time.Millisecond, func(g *graph.Graph) { seen <- g })
	defer stop()

	seed(t, local, "outside")
	select {
	case g := <-seen:
		if g.ByID("outside") == nil {
			t.Fatal("watched graph misses the external entry")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch never fired")
	}
	stop()
}

func TestWatchRemotePullsAnnouncedTrees(t *testing.T) {
	remote := &streaming{Memory: source.NewMemory(), events: make(chan object.Hash)}
	db := open(t, source.NewMemory(), remote)

	seen := make(chan *graph.Graph, 4)
	stop, err := db.WatchRemote(context.Background(), 10*time.Millisecond, func(g *graph.Graph) { seen <- g })
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	seed(t, remote, "announced")
	remote.events <- sha(t, remote)
	select {
	case g := <-seen:
		if g.ByID("announced") == nil {
			t.Fatal("pulled graph misses the announced entry")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("remote watch never fired")
	}
}

func TestQueue(t *testing.T) {
	q := NewQueue()
	var order []int
	for i := range 5 {
		if err := q.Do(context.Background(), func(context.Context) error {
			order = append(order, i)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	if fmt.Sprint(order) != "[0 1 2 3 4]" {
		t.Fatalf("order = %v", order)
	}

	boom := errors.New("boom")
	if err := q.Do(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	if err := q.Do(ctx, func(context.Context) error { ran = true; return nil }); !errors.Is(err, context.Canceled) || ran {
		t.Fatalf("cancelled task: err = %v, ran = %v", err, ran)
	}

	q.Close()
	if err := q.Do(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("after close: err = %v", err)
	}
}
