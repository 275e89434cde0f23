package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/Hanny658/Meta-Recommendation/internal/debug"
	"github.com/Hanny658/Meta-Recommendation/internal/model"
	"github.com/Hanny658/Meta-Recommendation/internal/schema"
)

// debugGate hides the whole debug surface when the feature flag is off.
// Disabled means 404, not 403: the surface's existence is not revealed.
func (h *handlers) debugGate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.cfg.DebugUIEnabled {
			writeError(w, http.StatusNotFound, model.ErrCodeNotFound, "not found")
			return
		}
		next(w, r)
	}
}

// requireDebugAuth resolves the session cookie into an admin session.
func (h *handlers) requireDebugAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(h.cfg.DebugCookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, model.ErrCodeUnauthorized, "not authenticated")
			return
		}
		sess, ok := h.sessions.Get(cookie.Value)
		if !ok {
			writeError(w, http.StatusUnauthorized, model.ErrCodeUnauthorized, "session expired or invalid")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeySession, &sess)
		next(w, r.WithContext(ctx))
	}
}

func (h *handlers) handleDebugConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.DebugConfigResponse{
		Enabled:           true,
		LLMExplainEnabled: h.cfg.DebugLLMExplainEnabled && h.cfg.LLMConfigured(),
		AuthMode:          "cookie_session",
		CookieName:        h.cfg.DebugCookieName,
	})
}

func (h *handlers) handleDebugLogin(w http.ResponseWriter, r *http.Request) {
	if h.loginLimiter != nil && !h.loginLimiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, model.ErrCodeRateLimited, "too many login attempts")
		return
	}

	var req model.DebugLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if !h.verifier.Verify(req.Token) {
		h.logger.Warn("debug login rejected", "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid token")
		return
	}

	sess := h.sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.DebugCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.DebugCookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"role":          sess.Role,
		"expires_at":    sess.ExpiresAt,
	})
}

// clientIP keys login rate limiting. RemoteAddr only: X-Forwarded-For
// is client-controlled unless a trusted proxy sanitizes it.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *handlers) handleDebugLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cfg.DebugCookieName); err == nil {
		h.sessions.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.DebugCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
}

func (h *handlers) handleDebugSession(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"role":          sess.Role,
		"created_at":    sess.CreatedAt,
		"expires_at":    sess.ExpiresAt,
	})
}

func (h *handlers) handleListBehaviorTests(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.traces.ListRuns()
	if err != nil {
		h.logger.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternal, "list runs failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": summaries})
}

func (h *handlers) handleCreateBehaviorTest(w http.ResponseWriter, r *http.Request) {
	var req model.BehaviorCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "query is required")
		return
	}

	rec, err := h.runner.StartBehaviorCreate(req)
	if err != nil {
		h.logger.Error("behavior test not started", "error", err)
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternal, "behavior test not started")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": rec.ID, "status": rec.Status})
}

func (h *handlers) handleTrackBehaviorTest(w http.ResponseWriter, r *http.Request) {
	var req model.BehaviorTrackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.TaskID == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "task_id is required")
		return
	}

	// Preflight: a tracking run for a task the provider has never heard
	// of would only ever record "not found" warnings.
	if _, ok := h.svc.GetTaskStatus(r.Context(), req.TaskID, req.UserID, ""); !ok {
		writeError(w, http.StatusNotFound, model.ErrCodeNotFound, "task not found")
		return
	}

	rec, err := h.runner.StartBehaviorTrack(req)
	if err != nil {
		h.logger.Error("tracking run not started", "error", err)
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternal, "tracking run not started")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": rec.ID, "status": rec.Status})
}

func (h *handlers) handleGetBehaviorTest(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	rec, err := h.traces.Load(runID)
	if err != nil {
		if errors.Is(err, debug.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
			return
		}
		h.logger.Error("load run failed", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternal, "load run failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":         rec,
		"job_running": h.runner.JobRunning(runID),
	})
}

func (h *handlers) handleExplainBehaviorTest(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.DebugLLMExplainEnabled {
		writeError(w, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "llm explanation disabled")
		return
	}
	var req model.ExplainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	expl, err := h.explainer.Explain(r.Context(), r.PathValue("run_id"))
	if err != nil {
		switch {
		case errors.Is(err, debug.ErrRunNotFound):
			writeError(w, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
		case errors.Is(err, debug.ErrExplainUnavailable):
			writeError(w, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "llm client not configured")
		default:
			h.logger.Error("explain failed", "error", err)
			writeError(w, http.StatusInternalServerError, model.ErrCodeInternal, "explanation failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"explanation": expl})
}

func (h *handlers) handleListUnits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"units": h.registry.Specs()})
}

func (h *handlers) handleGenerateUnitInput(w http.ResponseWriter, r *http.Request) {
	var req model.UnitGenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	spec, ok := h.registry.Spec(req.UnitName)
	if !ok {
		writeError(w, http.StatusNotFound, model.ErrCodeNotFound, "unknown unit")
		return
	}

	input := h.inputs.GenerateForUnit(r.Context(), spec, req.Mode)
	writeJSON(w, http.StatusOK, map[string]any{
		"unit_name":         spec.Name,
		"input_data":        input,
		"validation_errors": schema.Validate(input, spec.InputSchema),
	})
}

func (h *handlers) handleRunUnit(w http.ResponseWriter, r *http.Request) {
	var req model.UnitRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	spec, ok := h.registry.Spec(req.UnitName)
	if !ok {
		writeError(w, http.StatusNotFound, model.ErrCodeNotFound, "unknown unit")
		return
	}

	input, source := h.inputs.ResolveInput(r.Context(), spec, req)
	validationErrors := schema.Validate(input, spec.InputSchema)
	result := h.registry.Run(r.Context(), spec.Name, input)

	writeJSON(w, http.StatusOK, map[string]any{
		"unit_name":         spec.Name,
		"input_source":      source,
		"input_data":        input,
		"validation_errors": validationErrors,
		"result":            result,
	})
}

func (h *handlers) handlePlaygroundGenerateInput(w http.ResponseWriter, r *http.Request) {
	var req model.PlaygroundGenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.Schema == nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "schema is required")
		return
	}

	input := h.inputs.GenerateForPlayground(r.Context(), req)
	writeJSON(w, http.StatusOK, map[string]any{
		"input_data":        input,
		"validation_errors": schema.Validate(input, req.Schema),
	})
}
