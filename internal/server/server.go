package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Hanny658/Meta-Recommendation/internal/auth"
	"github.com/Hanny658/Meta-Recommendation/internal/config"
	"github.com/Hanny658/Meta-Recommendation/internal/conversation"
	"github.com/Hanny658/Meta-Recommendation/internal/debug"
	"github.com/Hanny658/Meta-Recommendation/internal/metarec"
	"github.com/Hanny658/Meta-Recommendation/internal/ratelimit"
)

// Server is the MetaRec HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. The debug dependencies may be nil only when the debug surface
// is disabled.
type ServerConfig struct {
	Config        *config.Config
	Service       *metarec.Service
	Conversations *conversation.Store
	Logger        *slog.Logger
	Version       string

	// Debug console dependencies.
	Traces    *debug.TraceStore
	Sessions  *debug.SessionStore
	Registry  *debug.Registry
	Runner    *debug.Runner
	Explainer *debug.Explainer
	Inputs    *debug.InputGenerator
	Verifier  *auth.TokenVerifier

	// LoginLimiter throttles login attempts by client IP. Nil disables
	// throttling (tests).
	LoginLimiter *ratelimit.Limiter
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := &handlers{
		cfg:           cfg.Config,
		svc:           cfg.Service,
		conversations: cfg.Conversations,
		traces:        cfg.Traces,
		sessions:      cfg.Sessions,
		registry:      cfg.Registry,
		runner:        cfg.Runner,
		explainer:     cfg.Explainer,
		inputs:        cfg.Inputs,
		verifier:      cfg.Verifier,
		loginLimiter:  cfg.LoginLimiter,
		logger:        cfg.Logger,
		version:       cfg.Version,
	}

	mux := http.NewServeMux()

	// Health and frontend config (no auth).
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api", h.handleAPIRoot)
	mux.HandleFunc("GET /api/config", h.handleAPIConfig)

	// Recommendation pipeline.
	mux.HandleFunc("POST /api/process", h.handleProcess)
	mux.HandleFunc("GET /api/status/{task_id}", h.handleTaskStatus)

	// Conversation storage.
	mux.HandleFunc("POST /api/conversations", h.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations", h.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{conversation_id}", h.handleGetConversation)
	mux.HandleFunc("PATCH /api/conversations/{conversation_id}", h.handleRenameConversation)
	mux.HandleFunc("DELETE /api/conversations/{conversation_id}", h.handleDeleteConversation)
	mux.HandleFunc("POST /api/conversations/{conversation_id}/messages", h.handleAddMessage)
	mux.HandleFunc("GET /api/conversations/{conversation_id}/preferences", h.handleGetPreferences)
	mux.HandleFunc("PUT /api/conversations/{conversation_id}/preferences", h.handleUpdatePreferences)
	mux.HandleFunc("POST /api/update-preferences", h.handleUpdateUserPreferences)
	mux.HandleFunc("GET /api/user-preferences/{user_id}", h.handleGetUserPreferences)

	// Debug console. Every route goes through the feature-flag gate;
	// authenticated routes additionally require an admin session.
	gate := h.debugGate
	authed := func(fn http.HandlerFunc) http.HandlerFunc { return gate(h.requireDebugAuth(fn)) }
	mux.HandleFunc("GET /internal/debug/config", gate(h.handleDebugConfig))
	mux.HandleFunc("POST /internal/debug/login", gate(h.handleDebugLogin))
	mux.HandleFunc("POST /internal/debug/logout", gate(h.handleDebugLogout))
	mux.HandleFunc("GET /internal/debug/session", authed(h.handleDebugSession))
	mux.HandleFunc("GET /internal/debug/behavior-tests", authed(h.handleListBehaviorTests))
	mux.HandleFunc("POST /internal/debug/behavior-tests", authed(h.handleCreateBehaviorTest))
	mux.HandleFunc("POST /internal/debug/behavior-tests/track", authed(h.handleTrackBehaviorTest))
	mux.HandleFunc("GET /internal/debug/behavior-tests/{run_id}", authed(h.handleGetBehaviorTest))
	mux.HandleFunc("POST /internal/debug/behavior-tests/{run_id}/explain", authed(h.handleExplainBehaviorTest))
	mux.HandleFunc("GET /internal/debug/unit-tests/units", authed(h.handleListUnits))
	mux.HandleFunc("POST /internal/debug/unit-tests/generate-input", authed(h.handleGenerateUnitInput))
	mux.HandleFunc("POST /internal/debug/unit-tests/run", authed(h.handleRunUnit))
	mux.HandleFunc("POST /internal/debug/api-playground/generate-input", authed(h.handlePlaygroundGenerateInput))

	// Middleware chain (outermost executes first):
	// request ID → security headers → CORS → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.Config.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
			Handler:      handler,
			ReadTimeout:  cfg.Config.ReadTimeout,
			WriteTimeout: cfg.Config.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// shutdownTimeout bounds graceful drain in main.
const ShutdownTimeout = 15 * time.Second
