package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/position-monitor/internal/engine"
	"github.com/rickgao/position-monitor/internal/version"
	"github.com/rickgao/position-monitor/internal/view"
)

const (
	writeTimeout    = 5 * time.Second
	pingInterval    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Config holds server configuration.
type Config struct {
	Port        int
	MetricsPath string
}

// Engine is the read side of the engine the server exposes.
type Engine interface {
	Project() []view.Row
	Stats() engine.Stats
}

// CheckFunc reports a dependency's health. A non-nil error marks the
// monitor unhealthy.
type CheckFunc func(ctx context.Context) error

// StatusFunc reports a component's status for /health.
type StatusFunc func() any

// Server serves the monitor's HTTP endpoints.
type Server struct {
	cfg     Config
	eng     Engine
	hub     *Hub
	metrics http.Handler
	logger  *slog.Logger

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	checks   map[string]CheckFunc
	statuses map[string]StatusFunc
}

// New creates a server. hub and metrics may be nil to disable /changes and
// the metrics endpoint.
func New(cfg Config, eng Engine, hub *Hub, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		eng:      eng,
		hub:      hub,
		metrics:  metrics,
		logger:   logger,
		checks:   make(map[string]CheckFunc),
		statuses: make(map[string]StatusFunc),
	}
}

// AddCheck registers a health check.
func (s *Server) AddCheck(name string, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = fn
}

// AddStatus registers an informational component status.
func (s *Server) AddStatus(name string, fn StatusFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[name] = fn
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /positions", s.handlePositions)
	mux.HandleFunc("GET /positions/{id}", s.handlePosition)
	if s.hub != nil {
		mux.HandleFunc("GET /changes", s.handleChanges)
	}
	if s.metrics != nil && s.cfg.MetricsPath != "" {
		mux.Handle(s.cfg.MetricsPath, s.metrics)
	}

	return mux
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "port", s.cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

type healthResponse struct {
	Status     string         `json:"status"`
	Build      version.Info   `json:"build"`
	Components map[string]any `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := healthResponse{
		Status:     "healthy",
		Build:      version.Get(),
		Components: make(map[string]any),
	}

	st := s.eng.Stats()
	health.Components["engine"] = map[string]any{
		"records":           st.Records,
		"active_highlights": st.Highlight.ActiveHighlights,
		"active_markers":    st.Highlight.ActiveMarkers,
		"dropped_changes":   st.DroppedChanges,
	}
	if st.Records == 0 {
		health.Status = "degraded"
	}

	if s.hub != nil {
		hs := s.hub.Stats()
		health.Components["changes"] = map[string]any{
			"subscribers": hs.Subscribers,
			"sent":        hs.Sent,
			"dropped":     hs.Dropped,
		}
	}

	s.mu.RLock()
	for name, fn := range s.statuses {
		health.Components[name] = fn()
	}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components[name] = map[string]string{
				"status": "down",
				"error":  err.Error(),
			}
			continue
		}
		health.Components[name] = "up"
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	rows := s.eng.Project()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"count": len(rows),
		"rows":  rows,
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	for _, row := range s.eng.Project() {
		if row.ID == id {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(row)
			return
		}
	}
	http.Error(w, "position not found", http.StatusNotFound)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	msgs, cancel := s.hub.Subscribe()
	defer cancel()

	// Inbound messages are ignored; the read loop only notices the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-msgs:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeTimeout))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("change subscriber write failed", "err", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
