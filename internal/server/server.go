package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gostonefire/hashdb"
	"github.com/gostonefire/hashdb/internal/config"
)

// maxKeys - Upper limit of keys returned by one key listing
const maxKeys = 10000

// Server - HTTP front end of a hash db
type Server struct {
	httpAddr string
	db       *hashdb.DB
	engine   *chi.Mux
	http     *http.Server
	logger   *slog.Logger
}

// StatResponse - Body returned by GET /stat
type StatResponse struct {
	Records      int64 `json:"records"`
	FileSize     int64 `json:"fileSize"`
	Buckets      int64 `json:"buckets"`
	UsedBuckets  int64 `json:"usedBuckets"`
	FreeBlocks   int64 `json:"freeBlocks"`
	FreeBytes    int64 `json:"freeBytes"`
	AlignPow     int8  `json:"alignPow"`
	FreeBlockPow int8  `json:"freeBlockPow"`
	Options      uint8 `json:"options"`
	Writable     bool  `json:"writable"`
	Recovered    bool  `json:"recovered"`
}

// KeysResponse - Body returned by GET /db
type KeysResponse struct {
	Keys      []string `json:"keys"`
	Truncated bool     `json:"truncated"`
}

// New - Returns a pointer to a new Server serving db on the configured address
func New(cfg config.Config, db *hashdb.DB, logger *slog.Logger) *Server {
	srv := &Server{
		httpAddr: cfg.Addr,
		db:       db,
		engine:   chi.NewRouter(),
		logger:   logger,
	}
	srv.engine.Use(middleware.RequestID)
	srv.engine.Use(middleware.Logger)
	srv.engine.Use(middleware.Recoverer)
	srv.registerRoutes()
	srv.http = &http.Server{Addr: srv.httpAddr, Handler: srv.engine}

	return srv
}

// Handler - Returns the router, for use with httptest
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run - Listens and serves until Shutdown is called
func (s *Server) Run() error {
	s.logger.Info("server running", "addr", s.httpAddr)

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown - Stops the server, waiting for active requests until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.engine.Get("/health", s.health)
	s.engine.Get("/stat", s.stat)
	s.engine.Get("/db", s.listKeys)
	s.engine.Get("/db/{key}", s.getEntry)
	s.engine.Put("/db/{key}", s.putEntry)
	s.engine.Post("/db/{key}", s.postEntry)
	s.engine.Patch("/db/{key}", s.appendEntry)
	s.engine.Delete("/db/{key}", s.deleteEntry)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	value, found, err := s.db.Get(keyParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(value)
}

func (s *Server) putEntry(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err = s.db.Put(keyParam(r), body); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// postEntry - Stores the body, with keep=1 only if the key doesn't exist yet
func (s *Server) postEntry(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	key := keyParam(r)

	keep, _ := strconv.ParseBool(r.URL.Query().Get("keep"))
	if !keep {
		if err = s.db.Put(key, body); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		return
	}

	stored, err := s.db.PutKeep(key, body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !stored {
		http.Error(w, "key exists", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) appendEntry(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err = s.db.PutCat(keyParam(r), body); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	removed, err := s.db.Remove(keyParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !removed {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listKeys - Returns up to limit keys (query parameter, default and max maxKeys) in scan order
func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	limit := maxKeys
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxKeys)
	}

	cursor, err := s.db.NewCursor()
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := KeysResponse{Keys: []string{}}
	for {
		key, ok, err := cursor.Next()
		if err != nil {
			s.writeError(w, err)
			return
		}
		if !ok {
			break
		}
		if len(resp.Keys) == limit {
			resp.Truncated = true
			break
		}
		resp.Keys = append(resp.Keys, string(key))
	}

	s.writeJSON(w, resp)
}

func (s *Server) stat(w http.ResponseWriter, _ *http.Request) {
	st, err := s.db.Stat()
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, StatResponse{
		Records:      st.Records,
		FileSize:     st.FileSize,
		Buckets:      st.Tuning.Buckets,
		UsedBuckets:  st.UsedBuckets,
		FreeBlocks:   st.FreeBlocks,
		FreeBytes:    st.FreeBytes,
		AlignPow:     st.Tuning.AlignPow,
		FreeBlockPow: st.Tuning.FreeBlockPow,
		Options:      uint8(st.Tuning.Opts),
		Writable:     st.Writable,
		Recovered:    st.Recovered,
	})
}

// keyParam - Returns the key of the request path, decoded also when chi routed on the escaped path
func keyParam(r *http.Request) []byte {
	key := chi.URLParam(r, "key")
	if r.URL.RawPath != "" {
		if k, err := url.PathUnescape(key); err == nil {
			key = k
		}
	}
	return []byte(key)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("unable to write response", "error", err)
	}
}

// writeError - Maps an engine error to an HTTP status
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch hashdb.ErrCodeOf(err) {
	case hashdb.InvalidArgument:
		status = http.StatusBadRequest
	case hashdb.ReadOnly:
		status = http.StatusForbidden
	case hashdb.WouldBlock, hashdb.InvalidState:
		status = http.StatusServiceUnavailable
	case hashdb.OutOfSpace:
		status = http.StatusInsufficientStorage
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}
