package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joblens/job-import-service/internal/config"
	"github.com/joblens/job-import-service/internal/models"
	"github.com/joblens/job-import-service/internal/storage"
)

const logsPerPage = 20

// Server handles HTTP requests
type Server struct {
	config  config.ServerConfig
	storage storage.Storage
	server  *http.Server
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, store storage.Storage) *Server {
	s := &Server{
		config:  cfg,
		storage: store,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/import-logs", s.handleImportLogs)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the server's handler for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleImportLogs handles GET requests for paginated import-log history
func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Any missing or non-positive page falls back to the first page
	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	offset := (page - 1) * logsPerPage

	total, err := s.storage.CountImportLogs(r.Context())
	if err != nil {
		s.writeError(w)
		return
	}

	logs, err := s.storage.ListImportLogs(r.Context(), logsPerPage, offset)
	if err != nil {
		s.writeError(w)
		return
	}

	if logs == nil {
		logs = []models.ImportLog{}
	}
	for i := range logs {
		logs[i].FailureReasons = dedupeReasons(logs[i].FailureReasons)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"logs": logs,
		"pagination": models.Pagination{
			Page:       page,
			PerPage:    logsPerPage,
			Total:      total,
			TotalPages: (total + logsPerPage - 1) / logsPerPage,
		},
	})
}

func (s *Server) writeError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "Failed to fetch import logs.",
	})
}

// dedupeReasons deduplicates failure reasons by trimmed equality, dropping
// empty strings and preserving first-seen order.
func dedupeReasons(reasons []string) []string {
	seen := make(map[string]bool, len(reasons))
	unique := []string{}
	for _, reason := range reasons {
		trimmed := strings.TrimSpace(reason)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		unique = append(unique, trimmed)
	}
	return unique
}
