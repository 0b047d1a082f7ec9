package remote

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/folio/pkg/object"
)

const eventWriteTimeout = 10 * time.Second

// hub fans tree shas out to event subscribers. Each subscriber holds only
// the newest sha it has not yet been sent.
type hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	last   object.Hash
	closed chan struct{}
	once   sync.Once
}

type subscriber struct {
	send chan object.Hash
}

func newHub() *hub {
	return &hub{subs: map[*subscriber]struct{}{}, closed: make(chan struct{})}
}

func (h *hub) subscribe() *subscriber {
	sub := &subscriber{send: make(chan object.Hash, 1)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

func (h *hub) current() object.Hash {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *hub) publish(sha object.Hash) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sha == h.last {
		return
	}
	h.last = sha
	for sub := range h.subs {
		select {
		case <-sub.send:
		default:
		}
		sub.send <- sha
	}
}

func (h *hub) close() {
	h.once.Do(func() { close(h.closed) })
}

// Publish announces sha to every event subscriber. Servers over a source
// that changes behind their back call it, or run Poll.
func (s *Server) Publish(sha object.Hash) {
	s.hub.publish(sha)
}

// Poll checks the source every interval and publishes new trees until ctx
// is done.
func (s *Server) Poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.poll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("poll source", "error", err)
		}
	}
}

// poll holds the write lock so a stale tree never overtakes a commit.
func (s *Server) poll(ctx context.Context) error {
	s.writes.Lock()
	defer s.writes.Unlock()
	t, err := s.src.GetTreeIfDifferent(ctx, s.hub.current())
	if err != nil {
		return err
	}
	if t != nil {
		s.hub.publish(t.Sha())
	}
	return nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)

	t, err := s.src.GetTree(r.Context())
	if err != nil {
		s.logger.Error("events: read tree", "error", err)
		return
	}
	if err := s.sendEvent(conn, t.Sha()); err != nil {
		return
	}

	// The client never writes; reading detects its departure.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	last := t.Sha()
	for {
		select {
		case sha := <-sub.send:
			if sha == last {
				continue
			}
			last = sha
			if err := s.sendEvent(conn, sha); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.hub.closed:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (s *Server) sendEvent(conn *websocket.Conn, sha object.Hash) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
	if err := conn.WriteJSON(Event{Sha: sha}); err != nil {
		s.logger.Debug("events: subscriber gone", "error", err)
		return err
	}
	return nil
}
