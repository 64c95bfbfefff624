// Package api provides HTTP handlers and the main API server logic for StayPilot.
//
// It exposes RESTful endpoints for automation rule management, the approval
// queue, autonomy settings, and conversation inspection. The API is an outer
// surface over the engine, approval, autonomy, and conversation modules and
// never hosts automation logic itself.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/StayPilot/StayPilot/internal/approval"
	"github.com/StayPilot/StayPilot/internal/autonomy"
	"github.com/StayPilot/StayPilot/internal/conversation"
	"github.com/StayPilot/StayPilot/internal/engine"
	"github.com/StayPilot/StayPilot/internal/genai"
	"github.com/StayPilot/StayPilot/internal/store"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Opts holds configuration options for the API server.
type Opts struct {
	Addr      string
	Responder *genai.Responder
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address for the API server.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithResponder enables AI reply drafting on inbound conversation messages.
func WithResponder(r *genai.Responder) Option {
	return func(o *Opts) { o.Responder = r }
}

// Server wires HTTP endpoints to the automation modules.
type Server struct {
	st        store.Store
	eng       *engine.Engine
	queue     *approval.Queue
	policy    *autonomy.Engine
	tracker   *conversation.Tracker
	responder *genai.Responder

	httpSrv *http.Server
}

// NewServer creates an API server over the given modules, applying any
// provided options for customization.
func NewServer(st store.Store, eng *engine.Engine, queue *approval.Queue, policy *autonomy.Engine, tracker *conversation.Tracker, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		st:        st,
		eng:       eng,
		queue:     queue,
		policy:    policy,
		tracker:   tracker,
		responder: cfg.Responder,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rules", s.rulesHandler)
	mux.HandleFunc("/rules/", s.ruleHandler)
	mux.HandleFunc("/events", s.eventsHandler)
	mux.HandleFunc("/approvals", s.approvalsHandler)
	mux.HandleFunc("/approvals/", s.approvalHandler)
	mux.HandleFunc("/autonomy", s.autonomyHandler)
	mux.HandleFunc("/autonomy/reset", s.autonomyResetHandler)
	mux.HandleFunc("/conversations", s.conversationsHandler)
	mux.HandleFunc("/conversations/", s.conversationHandler)
	mux.HandleFunc("/health", s.healthHandler)

	s.httpSrv = &http.Server{Addr: cfg.Addr, Handler: mux}
	return s
}

// Handler returns the underlying HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	slog.Info("Server.Start: API server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	slog.Info("Server.Shutdown: stopping API server")
	return s.httpSrv.Shutdown(shutdownCtx)
}

// healthHandler provides a health check endpoint for monitoring and load balancing.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// Pending approvals double as a storage liveness probe
	if pending, err := s.st.CountApprovalPending(); err != nil {
		slog.Warn("Server.healthHandler: failed to count pending approvals", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to reach storage backend"
	} else {
		healthData["pending_approvals"] = pending
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
