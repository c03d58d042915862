package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/localforge/llamaserve/internal/chatformat"
	"github.com/localforge/llamaserve/internal/config"
	"github.com/localforge/llamaserve/internal/db"
	"github.com/localforge/llamaserve/internal/llama"
)

// Server is the OpenAI-compatible HTTP server.
type Server struct {
	cfg      *config.Config
	registry *chatformat.Registry
	engine   llama.Engine
	db       *db.DB
	mux      *http.ServeMux
	server   *http.Server
	ready    chan struct{}
	addr     atomic.Value // string, set once the listener is bound
}

// New creates a new web server. Pass nil for database to disable request
// accounting.
func New(cfg *config.Config, registry *chatformat.Registry, engine llama.Engine, database *db.DB) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		engine:   engine,
		db:       database,
		mux:      http.NewServeMux(),
		ready:    make(chan struct{}),
	}

	s.registerRoutes()

	s.server = &http.Server{
		Handler:     s.mux,
		ReadTimeout: 15 * time.Second,
		// No write timeout: a completion response waits for the full
		// generation.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("POST /v1/embeddings", s.handleEmbeddings)
	s.mux.HandleFunc("GET /v1/models", s.handleModels)
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
}

// Start binds the listener, releases Ready, then serves until Shutdown.
// Readiness is signaled only after the listener is accepting, so callers
// that synchronize on Ready never race a not-yet-listening socket.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr.Store(ln.Addr().String())
	log.Printf("llamaserve listening on %s", ln.Addr())
	close(s.ready)

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Ready returns a channel that closes once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address, or "" before Start has bound it.
func (s *Server) Addr() string {
	addr, _ := s.addr.Load().(string)
	return addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleModels handles GET /v1/models. Apps probe this endpoint before
// sending completions, so it stays cheap and static.
func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{
				"id":       s.cfg.Model,
				"object":   "model",
				"created":  1700000000,
				"owned_by": "llamaserve",
			},
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// handleHealth handles GET /api/v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}
