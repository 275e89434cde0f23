package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Hanny658/Meta-Recommendation/internal/auth"
	"github.com/Hanny658/Meta-Recommendation/internal/config"
	"github.com/Hanny658/Meta-Recommendation/internal/conversation"
	"github.com/Hanny658/Meta-Recommendation/internal/debug"
	"github.com/Hanny658/Meta-Recommendation/internal/metarec"
	"github.com/Hanny658/Meta-Recommendation/internal/model"
	"github.com/Hanny658/Meta-Recommendation/internal/ratelimit"
)

type handlers struct {
	cfg           *config.Config
	svc           *metarec.Service
	conversations *conversation.Store
	traces        *debug.TraceStore
	sessions      *debug.SessionStore
	registry      *debug.Registry
	runner        *debug.Runner
	explainer     *debug.Explainer
	inputs        *debug.InputGenerator
	verifier      *auth.TokenVerifier
	loginLimiter  *ratelimit.Limiter
	logger        *slog.Logger
	version       string
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
	})
}

func (h *handlers) handleAPIRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "metarec",
		"version": h.version,
	})
}

// handleAPIConfig exposes the subset of configuration the frontend needs.
func (h *handlers) handleAPIConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"googleMapsApiKey": h.cfg.GoogleMapsAPIKey,
	})
}

type processRequest struct {
	Query          string             `json:"query"`
	UserID         string             `json:"user_id"`
	History        []metarec.ChatTurn `json:"history,omitempty"`
	SessionID      string             `json:"session_id,omitempty"`
	UseOnlineAgent bool               `json:"use_online_agent,omitempty"`
}

func (h *handlers) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "query is required")
		return
	}
	if req.UserID == "" {
		req.UserID = "anonymous"
	}
	if req.SessionID == "" {
		req.SessionID = req.UserID
	}

	result, err := h.svc.SubmitUserRequest(r.Context(), metarec.SubmitRequest{
		Query:          req.Query,
		UserID:         req.UserID,
		History:        req.History,
		SessionID:      req.SessionID,
		UseOnlineAgent: req.UseOnlineAgent,
	})
	if err != nil {
		h.logger.Error("process request failed", "error", err, "user_id", req.UserID)
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternal, "request processing failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	userID := r.URL.Query().Get("user_id")
	sessionID := r.URL.Query().Get("session_id")

	status, ok := h.svc.GetTaskStatus(r.Context(), taskID, userID, sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, model.ErrCodeNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// userFor resolves the acting user for conversation routes. There is no
// end-user authentication; the frontend passes its anonymous user id.
func userFor(r *http.Request) string {
	if id := r.URL.Query().Get("user_id"); id != "" {
		return id
	}
	return "anonymous"
}

func (h *handlers) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req model.CreateConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.Title == "" {
		req.Title = "New conversation"
	}

	conv, err := h.conversations.Create(r.Context(), userFor(r), req.Title, req.Model)
	if err != nil {
		h.logger.Error("create conversation failed", "error", err)
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternal, "create conversation failed")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *handlers) handleListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.conversations.List(r.Context(), userFor(r))
	if err != nil {
		h.logger.Error("list conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternal, "list conversations failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (h *handlers) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.Get(r.Context(), userFor(r), r.PathValue("conversation_id"))
	if err != nil {
		h.conversationError(w, err, "get conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *handlers) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateConversationRequest
	if err := decodeJSON(r, &req); err != nil || req.Title == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "title is required")
		return
	}
	if err := h.conversations.Rename(r.Context(), userFor(r), r.PathValue("conversation_id"), req.Title); err != nil {
		h.conversationError(w, err, "rename conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *handlers) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.Delete(r.Context(), userFor(r), r.PathValue("conversation_id")); err != nil {
		h.conversationError(w, err, "delete conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *handlers) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req model.AddMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.Role != "user" && req.Role != "assistant" {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "role must be user or assistant")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "content is required")
		return
	}

	msg, err := h.conversations.AddMessage(r.Context(), userFor(r), r.PathValue("conversation_id"), req.Role, req.Content)
	if err != nil {
		h.conversationError(w, err, "add message")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *handlers) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.conversations.Preferences(r.Context(), userFor(r), r.PathValue("conversation_id"))
	if err != nil {
		h.conversationError(w, err, "get preferences")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
}

func (h *handlers) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Preferences map[string]any `json:"preferences"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if err := h.conversations.UpdatePreferences(r.Context(), userFor(r), r.PathValue("conversation_id"), req.Preferences); err != nil {
		h.conversationError(w, err, "update preferences")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

type updateUserPreferencesRequest struct {
	UserID          string         `json:"user_id"`
	RestaurantTypes []string       `json:"restaurantTypes"`
	FlavorProfiles  []string       `json:"flavorProfiles"`
	DiningPurpose   string         `json:"diningPurpose"`
	BudgetRange     map[string]any `json:"budgetRange"`
	Location        string         `json:"location"`
}

// handleUpdateUserPreferences stores a user's default dining preferences.
// These seed new conversations; every missing field falls back to the
// open-ended "any" so the recommender never filters on absent data.
func (h *handlers) handleUpdateUserPreferences(w http.ResponseWriter, r *http.Request) {
	var req updateUserPreferencesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}
	if len(req.RestaurantTypes) == 0 {
		req.RestaurantTypes = []string{"any"}
	}
	if len(req.FlavorProfiles) == 0 {
		req.FlavorProfiles = []string{"any"}
	}
	if req.DiningPurpose == "" {
		req.DiningPurpose = "any"
	}
	if req.BudgetRange == nil {
		req.BudgetRange = map[string]any{"min": 20, "max": 60, "currency": "SGD", "per": "person"}
	}
	if req.Location == "" {
		req.Location = "any"
	}

	prefs := map[string]any{
		"restaurant_types": req.RestaurantTypes,
		"flavor_profiles":  req.FlavorProfiles,
		"dining_purpose":   req.DiningPurpose,
		"budget_range":     req.BudgetRange,
		"location":         req.Location,
	}
	if err := h.conversations.SetUserPreferences(r.Context(), req.UserID, prefs); err != nil {
		h.logger.Error("update user preferences failed", "error", err, "user_id", req.UserID)
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternal, "update preferences failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Preferences updated successfully",
		"preferences": prefs,
	})
}

func (h *handlers) handleGetUserPreferences(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	prefs, err := h.conversations.UserPreferences(r.Context(), userID)
	if err != nil {
		h.logger.Error("get user preferences failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternal, "get preferences failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"preferences": prefs,
	})
}

func (h *handlers) conversationError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, model.ErrCodeNotFound, "conversation not found")
		return
	}
	h.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, model.ErrCodeInternal, op+" failed")
}
