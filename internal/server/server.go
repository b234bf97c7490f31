package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/abramin/symdex/internal/i18n"
	"github.com/abramin/symdex/internal/index"
	"github.com/abramin/symdex/internal/report"
	"github.com/abramin/symdex/internal/store"
	"github.com/abramin/symdex/internal/symbols"
	"github.com/abramin/symdex/internal/vector"
)

// IndexerFactory builds an indexer for one run.
type IndexerFactory func(force bool) (*index.Indexer, error)

// Server is the symdex HTTP server.
type Server struct {
	store      *store.Store
	vectors    *vector.Store
	bundle     *i18n.Bundle
	newIndexer IndexerFactory
	logger     *slog.Logger
	root       string
	lang       string
	httpServer *http.Server
	port       int

	// indexMu serialises index runs.
	indexMu sync.Mutex
}

// Config holds server configuration.
type Config struct {
	Host     string
	Port     int
	Root     string
	Language string

	Store   *store.Store
	Vectors *vector.Store
	Bundle  *i18n.Bundle
	Indexer IndexerFactory
	Logger  *slog.Logger
}

// New creates a new server instance. Store is required; Vectors and Indexer
// are optional and their endpoints answer 503 when missing.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server requires a store")
	}
	bundle := cfg.Bundle
	if bundle == nil {
		var err error
		if bundle, err = i18n.Load(); err != nil {
			return nil, fmt.Errorf("loading catalogs: %w", err)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	lang := cfg.Language
	if !bundle.Has(lang) {
		lang = i18n.DefaultLanguage
	}

	s := &Server{
		store:      cfg.Store,
		vectors:    cfg.Vectors,
		bundle:     bundle,
		newIndexer: cfg.Indexer,
		logger:     logger,
		root:       cfg.Root,
		lang:       i18n.NormalizeCode(lang),
		port:       cfg.Port,
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.corsMiddleware(s.handleHealth))
	mux.HandleFunc("/api/stats", s.corsMiddleware(s.handleStats))
	mux.HandleFunc("/api/files", s.corsMiddleware(s.handleFiles))
	mux.HandleFunc("/api/file", s.corsMiddleware(s.handleFile))
	mux.HandleFunc("/api/symbol", s.corsMiddleware(s.handleSymbol))
	mux.HandleFunc("/api/search", s.corsMiddleware(s.handleSearch))
	mux.HandleFunc("/api/class", s.corsMiddleware(s.handleClass))
	mux.HandleFunc("/api/class/members", s.corsMiddleware(s.handleClassMembers))
	mux.HandleFunc("/api/tree", s.corsMiddleware(s.handleTree))
	mux.HandleFunc("/api/semantic", s.corsMiddleware(s.handleSemantic))
	mux.HandleFunc("/api/index", s.corsMiddleware(s.handleIndex))
	mux.HandleFunc("/api/report", s.corsMiddleware(s.handleReport))
	mux.HandleFunc("/api/i18n", s.corsMiddleware(s.handleI18n))

	mux.HandleFunc("/", s.handlePage)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", "http://"+s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// corsMiddleware adds CORS headers for local development.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding JSON", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func (s *Server) storeError(w http.ResponseWriter, err error, what string) {
	if store.IsNotFound(err) {
		s.writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.logger.Error("store query failed", "what", what, "error", err)
	s.writeError(w, http.StatusInternalServerError, "failed to load "+what)
}

func intParam(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	*store.Stats
	Documents int  `json:"documents"`
	Vectors   bool `json:"vectors"`
}

// handleStats returns index statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.storeError(w, err, "stats")
		return
	}
	resp := statsResponse{Stats: stats, Vectors: s.vectors != nil}
	if s.vectors != nil {
		if resp.Documents, err = s.vectors.Count(r.Context()); err != nil {
			s.logger.Warn("counting documents failed", "error", err)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleFiles handles GET /api/files?recent=N
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	var (
		files []*store.File
		err   error
	)
	if n := intParam(r, "recent", 0); n > 0 {
		files, err = s.store.RecentFiles(r.Context(), n)
	} else {
		files, err = s.store.ListFiles(r.Context())
	}
	if err != nil {
		s.storeError(w, err, "files")
		return
	}
	if files == nil {
		files = []*store.File{}
	}
	s.writeJSON(w, http.StatusOK, files)
}

// handleFile handles GET and DELETE /api/file?path=...
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "path parameter required")
		return
	}
	path = s.resolvePath(path)

	if r.Method == http.MethodDelete {
		s.removeFile(w, r, path)
		return
	}

	file, err := s.store.FileByPath(r.Context(), path)
	if err != nil {
		s.storeError(w, err, "file")
		return
	}
	syms, err := s.store.FileSymbols(r.Context(), path)
	if err != nil {
		s.storeError(w, err, "symbols")
		return
	}
	if syms == nil {
		syms = []*store.Symbol{}
	}
	s.writeJSON(w, http.StatusOK, struct {
		File    *store.File     `json:"file"`
		Symbols []*store.Symbol `json:"symbols"`
	}{file, syms})
}

func (s *Server) removeFile(w http.ResponseWriter, r *http.Request, path string) {
	if s.newIndexer != nil {
		idx, err := s.newIndexer(false)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.indexMu.Lock()
		_, err = idx.Remove(r.Context(), path)
		s.indexMu.Unlock()
		if err != nil {
			s.storeError(w, err, "file")
			return
		}
	} else if err := s.store.RemoveFile(r.Context(), path); err != nil {
		s.storeError(w, err, "file")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"removed": path})
}

// resolvePath maps a request path to the form stored in the index. Relative
// paths are taken from the server root and symlinks are resolved when the
// file exists.
func (s *Server) resolvePath(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

// handleSymbol handles GET /api/symbol?name=...&file=...
func (s *Server) handleSymbol(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "name parameter required")
		return
	}
	file := r.URL.Query().Get("file")
	if file != "" {
		file = s.resolvePath(file)
	}
	syms, err := s.store.SymbolsByName(r.Context(), name, file)
	if err != nil {
		s.storeError(w, err, "symbol")
		return
	}
	if len(syms) == 0 {
		s.writeError(w, http.StatusNotFound, "symbol not found")
		return
	}
	s.writeJSON(w, http.StatusOK, syms)
}

// handleSearch handles GET /api/search?query=xxx[&kind=class][&limit=N]
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	query := r.URL.Query().Get("query")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter required")
		return
	}

	if kind := symbols.Kind(r.URL.Query().Get("kind")); kind != "" {
		if !kind.Valid() {
			s.writeError(w, http.StatusBadRequest, "unknown kind "+string(kind))
			return
		}
		syms, err := s.store.SearchByName(r.Context(), query, kind)
		if err != nil {
			s.storeError(w, err, "search results")
			return
		}
		if syms == nil {
			syms = []*store.Symbol{}
		}
		s.writeJSON(w, http.StatusOK, syms)
		return
	}

	hits, err := s.store.SearchSymbols(r.Context(), query, intParam(r, "limit", 20))
	if err != nil {
		s.storeError(w, err, "search results")
		return
	}
	if hits == nil {
		hits = []store.SearchHit{}
	}
	s.writeJSON(w, http.StatusOK, hits)
}

// handleClass handles GET /api/class?name=...
func (s *Server) handleClass(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "name parameter required")
		return
	}
	info, err := s.store.ClassWithMembers(r.Context(), name)
	if err != nil {
		s.storeError(w, err, "class")
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

// handleClassMembers handles GET /api/class/members?name=...&filter=method|attribute|any
func (s *Server) handleClassMembers(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "name parameter required")
		return
	}
	members, err := s.store.ClassMembers(r.Context(), name, store.ParseMemberFilter(r.URL.Query().Get("filter")))
	if err != nil {
		s.storeError(w, err, "class members")
		return
	}
	if members == nil {
		members = []*store.Symbol{}
	}
	s.writeJSON(w, http.StatusOK, members)
}

// handleTree handles GET /api/tree?root=...
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	root := r.URL.Query().Get("root")
	if root == "" {
		root = s.root
	}
	tree, err := s.store.DirectoryTree(r.Context(), root)
	if err != nil {
		s.storeError(w, err, "tree")
		return
	}
	s.writeJSON(w, http.StatusOK, tree)
}

// handleSemantic handles GET /api/semantic?query=...&top_k=N[&symbol=...]
func (s *Server) handleSemantic(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	if s.vectors == nil {
		s.writeError(w, http.StatusServiceUnavailable, "vector store disabled")
		return
	}
	query := r.URL.Query().Get("query")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter required")
		return
	}
	var filter *vector.Filter
	if sym := r.URL.Query().Get("symbol"); sym != "" {
		filter = &vector.Filter{Symbol: sym}
	}
	matches, err := s.vectors.Query(r.Context(), query, intParam(r, "top_k", 5), filter)
	if err != nil {
		s.logger.Error("semantic query failed", "error", err)
		s.writeError(w, http.StatusBadGateway, "semantic search failed")
		return
	}
	if matches == nil {
		matches = []vector.Match{}
	}
	s.writeJSON(w, http.StatusOK, matches)
}

// handleIndex handles POST /api/index[?force=true]. Only one run at a time.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	if s.newIndexer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "indexing disabled")
		return
	}
	if !s.indexMu.TryLock() {
		s.writeError(w, http.StatusConflict, "an index run is already in progress")
		return
	}
	defer s.indexMu.Unlock()

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	idx, err := s.newIndexer(force)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	res, err := idx.Run(r.Context())
	if err != nil {
		s.logger.Error("index run failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "indexing failed: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleReport handles GET /api/report[?format=text]
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	root := r.URL.Query().Get("root")
	if root == "" {
		root = s.root
	}
	rep, err := report.Build(r.Context(), s.store, root)
	if err != nil {
		s.storeError(w, err, "report")
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := rep.WriteText(w); err != nil {
			s.logger.Error("writing report", "error", err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

// handleI18n handles GET /api/i18n[?lang=zh_cn]
func (s *Server) handleI18n(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Languages []string      `json:"languages"`
		Catalog   *i18n.Catalog `json:"catalog"`
	}{s.bundle.Languages(), s.bundle.Catalog(s.language(r))})
}

// language picks the UI language: ?lang, then Accept-Language, then the
// configured default.
func (s *Server) language(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" && s.bundle.Has(lang) {
		return i18n.NormalizeCode(lang)
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		return s.bundle.Match(accept)
	}
	return s.lang
}
