package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/reelstash/reelstash/api"
	"github.com/reelstash/reelstash/internal/config"
	"github.com/reelstash/reelstash/internal/fetcher"
	"github.com/reelstash/reelstash/internal/metrics"
	"github.com/reelstash/reelstash/internal/models"
	"github.com/reelstash/reelstash/internal/service"
	"github.com/reelstash/reelstash/internal/store"
)

// Server holds dependencies for the HTTP API.
type Server struct {
	store   store.Store
	catalog *service.Catalog
	cfg     *config.Config
	mux     *http.ServeMux
}

// New creates a Server and registers routes.
func New(s store.Store, catalog *service.Catalog, cfg *config.Config) *Server {
	srv := &Server{store: s, catalog: catalog, cfg: cfg, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Catalog browse
	s.mux.HandleFunc("GET /api/catalog", s.handleListCatalog)
	s.mux.HandleFunc("GET /api/catalog/top", s.handleTopRated)
	s.mux.HandleFunc("GET /api/catalog/genres", s.handleGenres)
	s.mux.HandleFunc("GET /api/catalog/countries", s.handleCountries)
	s.mux.HandleFunc("GET /api/catalog/years", s.handleYears)
	s.mux.HandleFunc("GET /api/catalog/{id}", s.handleGetEntry)

	// Reconciliation
	s.mux.HandleFunc("GET /api/updates", s.handleCheckUpdates)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)

	// Admin cache management
	s.mux.HandleFunc("DELETE /api/catalog", s.handleDeleteAll)
	s.mux.HandleFunc("DELETE /api/catalog/category/{name}", s.handleDeleteCategory)

	// Semantic search
	s.mux.HandleFunc("GET /api/search/semantic", s.handleSemanticSearch)

	// Observability
	s.mux.Handle("GET /metrics", metrics.Handler())

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      withCORS(withLogging(s)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// catalogPage is the paged list envelope. has_more tells clients whether
// another page exists without a second round trip.
type catalogPage struct {
	Entries  any  `json:"entries"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}

func (s *Server) handleListCatalog(w http.ResponseWriter, r *http.Request) {
	filter, err := s.parseFilter(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	view := r.URL.Query().Get("view")
	if view == "" {
		view = "segmented"
	}

	switch view {
	case "segmented":
		entries, total, err := s.store.ListSegmented(r.Context(), filter)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if entries == nil {
			entries = []models.SegmentedEntry{}
		}
		metrics.PagesServed.WithLabelValues("segmented").Inc()
		writeJSON(w, http.StatusOK, catalogPage{
			Entries:  entries,
			Total:    total,
			Page:     filter.Page,
			PageSize: filter.PageSize,
			HasMore:  hasMore(filter.Page, filter.PageSize, total),
		})
	case "full":
		entries, total, err := s.store.ListEntries(r.Context(), filter)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if entries == nil {
			entries = []models.Entry{}
		}
		metrics.PagesServed.WithLabelValues("full").Inc()
		writeJSON(w, http.StatusOK, catalogPage{
			Entries:  entries,
			Total:    total,
			Page:     filter.Page,
			PageSize: filter.PageSize,
			HasMore:  hasMore(filter.Page, filter.PageSize, total),
		})
	default:
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid view: %s (use segmented or full)", view))
	}
}

// hasMore reports whether a page after this one exists.
func hasMore(page, size, total int) bool {
	return page*size+size < total
}

// parseFilter builds an EntryFilter from browse query parameters.
func (s *Server) parseFilter(r *http.Request) (store.EntryFilter, error) {
	q := r.URL.Query()
	filter := store.EntryFilter{
		Category: q.Get("category"),
		Genre:    q.Get("genre"),
		Country:  q.Get("country"),
		Year:     q.Get("year"),
		Search:   q.Get("q"),
		PageSize: s.cfg.PageSize,
	}

	if v := q.Get("ratings"); v != "" {
		for _, rating := range strings.Split(v, ",") {
			if rating = strings.TrimSpace(rating); rating != "" {
				filter.AllowedRatings = append(filter.AllowedRatings, rating)
			}
		}
	}
	switch v := q.Get("include_unrated"); v {
	case "", "false", "0":
	case "true", "1":
		filter.IncludeUnrated = true
	default:
		return filter, fmt.Errorf("invalid include_unrated: %s (use true or false)", v)
	}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid page: %s", v)
		}
		filter.Page = n
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return filter, fmt.Errorf("invalid page_size: %s", v)
		}
		filter.PageSize = n
	}
	if filter.PageSize > s.cfg.MaxPageSize {
		filter.PageSize = s.cfg.MaxPageSize
	}
	return filter, nil
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	entry, err := s.store.GetEntryByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("entry %d not found", id))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleTopRated(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", v))
			return
		}
		limit = n
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}

	top, err := s.store.TopRated(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if top == nil {
		top = []models.SegmentedEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": top, "limit": limit})
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	s.handleDistinct(w, r, "genres", s.store.DistinctGenres)
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	s.handleDistinct(w, r, "countries", s.store.DistinctCountries)
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	s.handleDistinct(w, r, "years", s.store.DistinctYears)
}

func (s *Server) handleDistinct(w http.ResponseWriter, r *http.Request, name string, load func(context.Context) ([]string, error)) {
	values, err := load(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if values == nil {
		values = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{name: values})
}

func (s *Server) handleCheckUpdates(w http.ResponseWriter, r *http.Request) {
	status, err := s.catalog.CheckForUpdates(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoIndexURL) {
			writeErr(w, http.StatusServiceUnavailable, err)
			return
		}
		var netErr *fetcher.NetworkError
		if errors.As(err, &netErr) {
			writeErr(w, http.StatusBadGateway, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	force := false
	switch v := r.URL.Query().Get("force"); v {
	case "", "false", "0":
	case "true", "1":
		force = true
	default:
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid force: %s (use true or false)", v))
		return
	}

	if err := s.catalog.StartRefresh(force); err != nil {
		switch {
		case errors.Is(err, service.ErrRefreshInProgress):
			writeErr(w, http.StatusConflict, err)
		case errors.Is(err, service.ErrNoIndexURL):
			writeErr(w, http.StatusServiceUnavailable, err)
		default:
			writeErr(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true, "force": force})
}

// handleDeleteAll wipes the persisted catalog. The next refresh (or the
// periodic ticker) repopulates it from the remote index.
func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAllEntries(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("category name is required"))
		return
	}
	if err := s.store.DeleteByCategory(r.Context(), name); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "category": name})
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("q parameter is required"))
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", v))
			return
		}
		limit = n
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}

	results, err := s.catalog.SemanticSearch(r.Context(), query, limit)
	if err != nil {
		if errors.Is(err, service.ErrEmbeddingsDisabled) {
			writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("semantic search is not configured (VOYAGE_API_KEY not set)"))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []store.SemanticResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "limit": limit})
}

// --- middleware ---

// withCORS adds CORS headers to every response and handles preflight OPTIONS requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withLogging wraps a handler and logs each request with method, path, status, and duration.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		statusCode := sw.status

		metrics.RequestDuration.WithLabelValues(r.URL.Path, statusClass(statusCode)).
			Observe(duration.Seconds())

		// Color the status code for terminal readability.
		statusColor := colorForStatus(statusCode)
		methodColor := colorForMethod(r.Method)

		log.Printf("%s %-7s %s\x1b[0m  %s %3d %s\x1b[0m  %s",
			methodColor, r.Method, "\x1b[0m",
			statusColor, statusCode, "\x1b[0m",
			formatDuration(duration),
		)
		if r.URL.RawQuery != "" {
			log.Printf("         %s?%s", r.URL.Path, r.URL.RawQuery)
		} else {
			log.Printf("         %s", r.URL.Path)
		}
	})
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

func colorForStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "\x1b[32m" // green
	case code >= 300 && code < 400:
		return "\x1b[36m" // cyan
	case code >= 400 && code < 500:
		return "\x1b[33m" // yellow
	default:
		return "\x1b[31m" // red
	}
}

func colorForMethod(method string) string {
	switch method {
	case http.MethodGet:
		return "\x1b[36m" // cyan
	case http.MethodPost:
		return "\x1b[32m" // green
	case http.MethodPatch, http.MethodPut:
		return "\x1b[33m" // yellow
	case http.MethodDelete:
		return "\x1b[31m" // red
	default:
		return "\x1b[37m" // white
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// --- helpers ---

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// parseID extracts a path parameter by name and parses it as int64.
func parseID(r *http.Request, param string) (int64, error) {
	v := r.PathValue(param)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", param, v)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

func writeErr(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		log.Printf("ERROR %d: %v", status, err)
	}
	writeJSON(w, status, APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: err.Error(),
	})
}

// --- docs handlers ---

func handleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(api.OpenAPISpec)
}

func handleSwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, swaggerUIHTML)
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>ReelStash API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
  <style>html{box-sizing:border-box;overflow-y:scroll}*,*:before,*:after{box-sizing:inherit}body{margin:0;background:#fafafa}</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/docs/openapi.yaml",
      dom_id: "#swagger-ui",
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: "BaseLayout",
    });
  </script>
</body>
</html>`
