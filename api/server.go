package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gregtusar/liquidation-heatmap/internal/metrics"
	"github.com/gregtusar/liquidation-heatmap/pkg/store"
	"github.com/sirupsen/logrus"
)

const defaultRunsLimit = 20

// RunHistory is the read side of the run history store.
type RunHistory interface {
	Runs(limit int) ([]store.RunRecord, error)
}

// Server exposes the last written heatmap artifact and the run history.
type Server struct {
	snapshotPath string
	history      RunHistory
	logger       *logrus.Logger
	port         string
	httpServer   *http.Server
}

// NewServer serves the artifact at snapshotPath. history may be nil, in
// which case /api/runs answers 404.
func NewServer(snapshotPath string, history RunHistory, logger *logrus.Logger, port string) *Server {
	return &Server{
		snapshotPath: snapshotPath,
		history:      history,
		logger:       logger,
		port:         port,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/heatmap", s.handleHeatmap)
	mux.HandleFunc("/api/heatmap/{coin}", s.handleCoin)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.Handle("/metrics", metrics.Handler())

	// Enable CORS for the browser visualizer
	return corsMiddleware(mux)
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting API server on port %s", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := store.ReadSnapshot(s.snapshotPath)
	if err != nil {
		s.snapshotError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleCoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := store.ReadSnapshot(s.snapshotPath)
	if err != nil {
		s.snapshotError(w, err)
		return
	}

	coin := strings.ToUpper(r.PathValue("coin"))
	profile, ok := snapshot.Profile(coin)
	if !ok {
		http.Error(w, "No data for "+coin, http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		http.Error(w, "Run history is disabled", http.StatusNotFound)
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.history.Runs(limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load run history")
		http.Error(w, "Failed to load run history", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) snapshotError(w http.ResponseWriter, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "No heatmap has been generated yet", http.StatusNotFound)
		return
	}
	s.logger.WithError(err).Error("Failed to load heatmap")
	http.Error(w, "Failed to load heatmap", http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
