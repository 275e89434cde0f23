package metarec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Hanny658/Meta-Recommendation/internal/model"
)

// Completer is the outbound LLM contract used for small-talk replies.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float64, jsonMode bool) (string, error)
}

// Service is the production recommendation service. The rule-based pieces
// (intent, preference extraction, planner input, restaurant merging) double
// as the LLM fallback path and are individually exposed as debug units.
type Service struct {
	logger *slog.Logger
	llm    Completer // nil = canned replies only
	tasks  *TaskManager

	mu      sync.Mutex
	pending map[string]map[string]any // session id → preferences awaiting confirmation
}

// New creates a Service. llm may be nil.
func New(logger *slog.Logger, llm Completer, tasks *TaskManager) *Service {
	return &Service{
		logger:  logger,
		llm:     llm,
		tasks:   tasks,
		pending: make(map[string]map[string]any),
	}
}

// Intent is the outcome of rule-based intent classification.
type Intent struct {
	Type          string  `json:"type"` // "confirmation" or "new_query"
	Confidence    float64 `json:"confidence"`
	OriginalQuery string  `json:"original_query"`
}

var confirmationPhrases = []string{
	"yes", "yep", "yeah", "correct", "confirm", "sure", "ok", "okay",
	"that's correct", "that's right", "sounds good", "go ahead", "please do",
}

// AnalyzeUserIntent classifies a query as a confirmation of previously
// extracted preferences or a new query. Rule-based fallback: exact phrase
// matches score higher than substring hits.
func (s *Service) AnalyzeUserIntent(query string) Intent {
	normalized := strings.ToLower(strings.TrimRight(strings.TrimSpace(query), ".!"))

	for _, phrase := range confirmationPhrases {
		if normalized == phrase {
			return Intent{Type: "confirmation", Confidence: 0.95, OriginalQuery: query}
		}
	}
	for _, phrase := range confirmationPhrases {
		if len(phrase) > 3 && strings.Contains(normalized, phrase) {
			return Intent{Type: "confirmation", Confidence: 0.7, OriginalQuery: query}
		}
	}
	return Intent{Type: "new_query", Confidence: 0.8, OriginalQuery: query}
}

var cuisineKeywords = map[string]string{
	"sichuan":   "sichuan",
	"szechuan":  "sichuan",
	"cantonese": "cantonese",
	"dim sum":   "cantonese",
	"japanese":  "japanese",
	"sushi":     "japanese",
	"ramen":     "japanese",
	"korean":    "korean",
	"thai":      "thai",
	"italian":   "italian",
	"pizza":     "italian",
	"pasta":     "italian",
	"indian":    "indian",
	"malay":     "malay",
	"peranakan": "peranakan",
	"western":   "western",
	"hotpot":    "hotpot",
	"hot pot":   "hotpot",
}

var restaurantTypeKeywords = map[string]string{
	"fine dining": "fine-dining",
	"fine-dining": "fine-dining",
	"casual":      "casual",
	"hawker":      "hawker",
	"cafe":        "cafe",
	"coffee":      "cafe",
	"buffet":      "buffet",
	"bar":         "bar",
}

var flavorKeywords = map[string]string{
	"spicy":   "spicy",
	"mala":    "spicy",
	"sweet":   "sweet",
	"sour":    "sour",
	"savory":  "savory",
	"savoury": "savory",
	"salty":   "salty",
	"mild":    "mild",
}

var purposeKeywords = map[string]string{
	"friends":    "friends",
	"family":     "family",
	"date":       "date",
	"romantic":   "date",
	"business":   "business",
	"colleagues": "business",
	"solo":       "solo",
	"alone":      "solo",
}

var (
	budgetRangeRe = regexp.MustCompile(`(\d+)\s*(?:to|-|~)\s*(\d+)`)
	budgetCapRe   = regexp.MustCompile(`(?:under|below|max|up to)\s*\$?(\d+)`)
	locationRe    = regexp.MustCompile(`(?i:\b(?:in|at|around|near))\s+((?:[A-Z][\w']*\s?)+)`)
)

// ExtractPreferences parses structured dining preferences out of free text.
// Rule-based baseline parser; the LLM path refines but never replaces it.
func (s *Service) ExtractPreferences(query, userID, sessionID string) map[string]any {
	lower := strings.ToLower(query)
	prefs := map[string]any{}

	if hits := keywordHits(lower, cuisineKeywords); len(hits) > 0 {
		prefs["cuisine_preferences"] = hits
	}
	if hits := keywordHits(lower, restaurantTypeKeywords); len(hits) > 0 {
		prefs["restaurant_types"] = hits
	}
	if hits := keywordHits(lower, flavorKeywords); len(hits) > 0 {
		prefs["flavor_profiles"] = hits
	}
	if hits := keywordHits(lower, purposeKeywords); len(hits) > 0 {
		prefs["dining_purpose"] = hits[0]
	}

	if m := budgetRangeRe.FindStringSubmatch(lower); m != nil {
		min, _ := strconv.Atoi(m[1])
		max, _ := strconv.Atoi(m[2])
		if min <= max {
			prefs["budget_range"] = budgetRange(min, max)
		}
	} else if m := budgetCapRe.FindStringSubmatch(lower); m != nil {
		max, _ := strconv.Atoi(m[1])
		prefs["budget_range"] = budgetRange(0, max)
	}

	if m := locationRe.FindStringSubmatch(query); m != nil {
		prefs["location"] = strings.TrimSpace(m[1])
	}

	return prefs
}

func budgetRange(min, max int) map[string]any {
	return map[string]any{
		"min":      min,
		"max":      max,
		"currency": "SGD",
		"per":      "person",
	}
}

func keywordHits(lower string, keywords map[string]string) []string {
	seen := map[string]bool{}
	for keyword, canonical := range keywords {
		if strings.Contains(lower, keyword) {
			seen[canonical] = true
		}
	}
	out := make([]string, 0, len(seen))
	for canonical := range seen {
		out = append(out, canonical)
	}
	sort.Strings(out)
	return out
}

// PreferencesToAgentInput renders the query and preferences as the JSON
// text handed to the planning agent.
func (s *Service) PreferencesToAgentInput(query string, prefs map[string]any) (string, error) {
	payload := map[string]any{
		"task":        "restaurant_recommendation",
		"query":       query,
		"preferences": prefs,
		"output_requirements": map[string]any{
			"count":          3,
			"include_reason": true,
			"include_price":  true,
		},
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("metarec: marshal agent input: %w", err)
	}
	return string(raw), nil
}

// ExtractRestaurants merges the planner summary with Google Maps search
// executions into frontend restaurant objects. Summary entries always
// survive; map data enriches them when the names line up.
func (s *Service) ExtractRestaurants(executionData map[string]any) []map[string]any {
	places := gmapPlaces(executionData)

	summary, _ := executionData["summary"].(map[string]any)
	recs, _ := summary["recommendations"].([]any)

	out := make([]map[string]any, 0, len(recs))
	for _, raw := range recs {
		rec, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := rec["name"].(string)
		restaurant := map[string]any{
			"name":    name,
			"area":    rec["area"],
			"cuisine": rec["cuisine"],
			"price":   rec["price_per_person_sgd"],
			"why":     rec["why"],
			"sources": rec["sources"],
		}
		if place := matchPlace(name, places); place != nil {
			for _, key := range []string{"rating", "reviews", "price", "address", "gps_coordinates", "open_state"} {
				if v, ok := place[key]; ok {
					restaurant[key] = v
				}
			}
		}
		out = append(out, restaurant)
	}
	return out
}

func gmapPlaces(executionData map[string]any) []map[string]any {
	executions, _ := executionData["executions"].([]any)
	var places []map[string]any
	for _, raw := range executions {
		exec, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		tool, _ := exec["tool"].(string)
		success, _ := exec["success"].(bool)
		if !strings.HasPrefix(tool, "gmap.") || !success {
			continue
		}
		output, _ := exec["output"].([]any)
		for _, p := range output {
			if place, ok := p.(map[string]any); ok {
				places = append(places, place)
			}
		}
	}
	return places
}

func matchPlace(name string, places []map[string]any) map[string]any {
	lower := strings.ToLower(name)
	if lower == "" {
		return nil
	}
	for _, place := range places {
		title, _ := place["title"].(string)
		titleLower := strings.ToLower(title)
		if titleLower == "" {
			continue
		}
		if strings.Contains(titleLower, lower) || strings.Contains(lower, titleLower) {
			return place
		}
	}
	return nil
}

// SubmitUserRequest runs a query through intent analysis, preference
// extraction and the confirmation flow. The result is a tagged union;
// callers dispatch on Kind.
func (s *Service) SubmitUserRequest(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	intent := s.AnalyzeUserIntent(req.Query)

	if intent.Type == "confirmation" {
		prefs := s.takePending(req.SessionID)
		if prefs != nil {
			taskID := s.tasks.Create(req.UserID, req.SessionID, req.Query, prefs)
			s.logger.Info("recommendation task created",
				"task_id", taskID, "user_id", req.UserID, "session_id", req.SessionID)
			return &SubmitResult{
				Kind:    ResultTaskCreated,
				TaskID:  taskID,
				Message: "Searching restaurants for you now",
			}, nil
		}
		// A confirmation with nothing pending is just small talk.
		return s.reply(ctx, req.Query)
	}

	prefs := s.ExtractPreferences(req.Query, req.UserID, req.SessionID)
	if !meaningful(prefs) {
		return s.reply(ctx, req.Query)
	}

	s.setPending(req.SessionID, prefs)
	return &SubmitResult{
		Kind: ResultConfirmation,
		Confirmation: &ConfirmationRequest{
			Message:     confirmationPrompt(prefs),
			Preferences: prefs,
		},
	}, nil
}

// GetTaskStatus reports progress for a recommendation task, or absent when
// the id is unknown (or belongs to a different user).
func (s *Service) GetTaskStatus(ctx context.Context, taskID, userID, sessionID string) (*model.TaskStatus, bool) {
	return s.tasks.Status(taskID, userID, sessionID)
}

func meaningful(prefs map[string]any) bool {
	for _, key := range []string{
		"cuisine_preferences", "restaurant_types", "flavor_profiles",
		"dining_purpose", "budget_range", "location",
	} {
		if _, ok := prefs[key]; ok {
			return true
		}
	}
	return false
}

func confirmationPrompt(prefs map[string]any) string {
	var parts []string
	if flavors, ok := prefs["flavor_profiles"].([]string); ok {
		parts = append(parts, strings.Join(flavors, "/"))
	}
	if cuisines, ok := prefs["cuisine_preferences"].([]string); ok {
		parts = append(parts, strings.Join(cuisines, "/"))
	}
	if loc, ok := prefs["location"].(string); ok {
		parts = append(parts, "around "+loc)
	}
	if purpose, ok := prefs["dining_purpose"].(string); ok {
		parts = append(parts, "for "+purpose)
	}
	if budget, ok := prefs["budget_range"].(map[string]any); ok {
		parts = append(parts, fmt.Sprintf("budget %v-%v SGD per person", budget["min"], budget["max"]))
	}

	summary := strings.Join(parts, ", ")
	if summary == "" {
		summary = "your request"
	}
	return fmt.Sprintf("I understand you're looking for: %s. Shall I search for recommendations?", summary)
}

func (s *Service) reply(ctx context.Context, query string) (*SubmitResult, error) {
	if s.llm != nil {
		prompt := "You are MetaRec, a friendly restaurant-recommendation assistant in Singapore. " +
			"Reply briefly to this message:\n" + query
		if text, err := s.llm.Complete(ctx, prompt, 0.7, false); err == nil && text != "" {
			return &SubmitResult{Kind: ResultLLMReply, Reply: strings.TrimSpace(text)}, nil
		} else if err != nil {
			s.logger.Warn("llm reply failed, using canned response", "error", err)
		}
	}
	return &SubmitResult{
		Kind:  ResultLLMReply,
		Reply: "Tell me what you feel like eating (cuisine, area, budget) and I'll find somewhere good.",
	}, nil
}

func (s *Service) setPending(sessionID string, prefs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[sessionID] = prefs
}

func (s *Service) takePending(sessionID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs, ok := s.pending[sessionID]
	if !ok {
		return nil
	}
	delete(s.pending, sessionID)
	return prefs
}
