package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/psl-catalog-crawler/internal/catalog"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	loadTimeout  = 5 * time.Second
)

// Server routes catalog requests to a Source.
type Server struct {
	router chi.Router
	source Source
	logger *zap.Logger
}

// Config wires a Server. Registry defaults to a fresh registry; Gatherer
// defaults to Registry when it is a *prometheus.Registry.
type Config struct {
	Source   Source
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	// RequestTimeout bounds each request; zero means 30s.
	RequestTimeout time.Duration
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Source == nil {
		return nil, errors.New("api: catalog source is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")
	if cfg.Registry == nil {
		reg := prometheus.NewRegistry()
		cfg.Registry = reg
		if cfg.Gatherer == nil {
			cfg.Gatherer = reg
		}
	}
	if cfg.Gatherer == nil {
		if g, ok := cfg.Registry.(prometheus.Gatherer); ok {
			cfg.Gatherer = g
		} else {
			cfg.Gatherer = prometheus.DefaultGatherer
		}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	metrics, err := newHTTPMetrics(cfg.Registry)
	if err != nil {
		return nil, err
	}

	s := &Server{source: cfg.Source, logger: logger}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.middleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, cfg.RequestTimeout, "request timed out")
	})

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1/catalog", func(r chi.Router) {
		r.Get("/", s.listEntries)
		r.Route("/{title}", func(r chi.Router) {
			r.Get("/", s.getEntry)
			r.Get("/files", s.listFiles)
		})
	})
	s.router = r
	return s, nil
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.load(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type entrySummary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	BaseURL     string `json:"base_url"`
	Files       int    `json:"files"`
}

// listEntries handles GET /v1/catalog?q=&limit=&offset=.
func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, ok := s.loadOrFail(w, r)
	if !ok {
		return
	}
	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	matched := make([]entrySummary, 0, len(doc))
	for _, title := range doc.Titles() {
		if query != "" && !strings.Contains(strings.ToLower(title), query) {
			continue
		}
		entry := doc[title]
		matched = append(matched, entrySummary{
			Title:       title,
			Description: entry.Description,
			Public:      entry.Public,
			BaseURL:     entry.BaseURL,
			Files:       entry.Contents.FileCount(),
		})
	}
	total := len(matched)
	start := min(offset, total)
	end := min(start+limit, total)
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"entries": matched[start:end],
	})
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type fileRow struct {
	Path string `json:"path"`
	catalog.FileEntry
}

// listFiles handles GET /v1/catalog/{title}/files, flattening the tree.
func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}
	rows := []fileRow{}
	entry.Contents.Walk(func(path string, node *catalog.ListingNode) {
		for _, f := range node.Files {
			rows = append(rows, fileRow{Path: path, FileEntry: f})
		}
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })
	writeJSON(w, http.StatusOK, map[string]any{
		"title": entry.Title,
		"count": len(rows),
		"files": rows,
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (catalog.CatalogEntry, bool) {
	title, err := titleParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed title")
		return catalog.CatalogEntry{}, false
	}
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return catalog.CatalogEntry{}, false
	}
	doc, ok := s.loadOrFail(w, r)
	if !ok {
		return catalog.CatalogEntry{}, false
	}
	entry, found := doc[title]
	if !found {
		writeError(w, http.StatusNotFound, "dataset not found")
		return catalog.CatalogEntry{}, false
	}
	return entry, true
}

// titleParam returns the decoded {title} segment. chi routes on the raw path
// when one is set, so an escaped slash arrives still encoded.
func titleParam(r *http.Request) (string, error) {
	title := chi.URLParam(r, "title")
	if r.URL.RawPath == "" {
		return title, nil
	}
	return url.PathUnescape(title) //nolint:wrapcheck
}

func (s *Server) load(ctx context.Context) (catalog.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	return s.source.Load(ctx) //nolint:wrapcheck
}

func (s *Server) loadOrFail(w http.ResponseWriter, r *http.Request) (catalog.Document, bool) {
	doc, err := s.load(r.Context())
	if err != nil {
		s.logger.Error("Loading catalog failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return nil, false
	}
	return doc, true
}

func parseLimitOffset(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	limit := defaultLimit
	if raw := q.Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
