package remote

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/source"
	"github.com/odvcencio/folio/pkg/tree"
)

// ServerCapabilities lists the capabilities the server answers with.
const ServerCapabilities = "zstd,events"

// ServerOptions configures NewServer.
type ServerOptions struct {
	Logger *slog.Logger
	// Token, when set, is required as a Bearer token on every request.
	Token        string
	MaxBodyBytes int64 // request body limit (default 64MB)
}

// Server exposes a Source over HTTP:
//
//	GET  /tree     current listing; 304 when If-None-Match names it
//	POST /blobs    blob contents by sha
//	POST /changes  unchecked changes
//	POST /commit   a CommitRequest; 409 on conflict
//	GET  /events   websocket stream of tree shas
//	GET  /healthz  liveness
type Server struct {
	src      source.Source
	logger   *slog.Logger
	token    string
	maxBody  int64
	mux      *http.ServeMux
	hub      *hub
	upgrader websocket.Upgrader

	// writes serializes changes and commits.
	writes sync.Mutex
}

// NewServer returns a handler serving src.
func NewServer(src source.Source, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 20
	}
	s := &Server{
		src:     src,
		logger:  logger,
		token:   opts.Token,
		maxBody: opts.MaxBodyBytes,
		mux:     http.NewServeMux(),
		hub:     newHub(),
	}
	s.mux.HandleFunc("GET /tree", s.authorize(s.handleTree))
	s.mux.HandleFunc("POST /blobs", s.authorize(s.handleBlobs))
	s.mux.HandleFunc("POST /changes", s.authorize(s.handleChanges))
	s.mux.HandleFunc("POST /commit", s.authorize(s.handleCommit))
	s.mux.HandleFunc("GET /events", s.authorize(s.handleEvents))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(headerProtocol, ProtocolVersion)
	w.Header().Set(headerCapabilities, ServerCapabilities)
	s.mux.ServeHTTP(w, r)
}

// Close ends every open event stream.
func (s *Server) Close() {
	s.hub.close()
}

func (s *Server) authorize(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	want := []byte("Bearer " + s.token)
	return func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
			s.writeJSON(w, r, http.StatusUnauthorized, &RemoteError{Code: CodeUnauthorized, Message: "unauthorized"})
			return
		}
		next(w, r)
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	have := object.Hash(strings.Trim(r.Header.Get("If-None-Match"), `" `))
	var (
		t   *tree.Tree
		err error
	)
	if have != "" {
		t, err = s.src.GetTreeIfDifferent(r.Context(), have)
	} else {
		t, err = s.src.GetTree(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if t == nil {
		w.Header().Set("ETag", etag(have))
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag(t.Sha()))
	s.writeJSON(w, r, http.StatusOK, listTree(t))
}

func (s *Server) handleBlobs(w http.ResponseWriter, r *http.Request) {
	var req blobsRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	for _, h := range req.Shas {
		if err := object.ValidateHash(h); err != nil {
			s.badRequest(w, r, err)
			return
		}
	}
	blobs, err := s.src.GetBlobs(r.Context(), req.Shas)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, blobsResponse{Blobs: blobs})
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	var req changesRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	restoreEmpty(req.Changes)

	s.writes.Lock()
	defer s.writes.Unlock()
	if err := s.src.ApplyChanges(r.Context(), req.Changes); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.src.GetTree(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("applied changes", "count", len(req.Changes), "sha", t.Sha().Short())
	s.hub.publish(t.Sha())
	s.writeJSON(w, r, http.StatusOK, shaResponse{Sha: t.Sha()})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req source.CommitRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	restoreEmpty(req.Changes)
	restoreEmpty(req.Rollback)

	s.writes.Lock()
	defer s.writes.Unlock()
	var (
		sha object.Hash
		err error
	)
	if t, ok := s.src.(source.Target); ok {
		sha, err = t.Commit(r.Context(), &req)
	} else {
		sha, err = source.Commit(r.Context(), s.src, &req)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("committed", "sha", sha.Short(), "description", req.Description)
	s.hub.publish(sha)
	s.writeJSON(w, r, http.StatusOK, shaResponse{Sha: sha})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// readJSON decodes the request body, zstd-compressed or not, and answers
// 400 itself on failure.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	var body io.Reader = http.MaxBytesReader(w, r.Body, s.maxBody)
	if isZstdEncoded(r.Header.Get("Content-Encoding")) {
		zr, err := newZstdReader(body)
		if err != nil {
			s.badRequest(w, r, err)
			return false
		}
		defer zr.Close()
		body = zr
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		s.badRequest(w, r, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

// writeJSON answers with v, zstd-compressed when the client accepts it.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode response", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	caps := ParseCapabilities(r.Header.Get(headerCapabilities)).Intersect(ParseCapabilities(ServerCapabilities))
	if !caps.Has("zstd") || !isZstdEncoded(r.Header.Get("Accept-Encoding")) {
		w.WriteHeader(status)
		_, _ = w.Write(payload)
		return
	}
	w.Header().Set("Content-Encoding", "zstd")
	w.WriteHeader(status)
	zw, err := newZstdWriter(w)
	if err != nil {
		s.logger.Error("compress response", "path", r.URL.Path, "error", err)
		return
	}
	if _, err := zw.Write(payload); err != nil {
		s.logger.Warn("write response", "path", r.URL.Path, "error", err)
	}
	if err := zw.Close(); err != nil {
		s.logger.Warn("write response", "path", r.URL.Path, "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, re := remoteError(err)
	if status >= 500 {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, r, status, re)
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	s.writeJSON(w, r, status, &RemoteError{Code: CodeBadRequest, Message: "bad request", Detail: err.Error()})
}

// restoreEmpty gives empty files back the contents JSON omitted.
func restoreEmpty(changes []tree.Change) {
	empty := object.HashBlob(nil)
	for i, c := range changes {
		if c.Op == tree.OpAdd && c.Contents == nil && c.Sha == empty {
			changes[i].Contents = []byte{}
		}
	}
}
