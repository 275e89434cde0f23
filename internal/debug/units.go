package debug

import (
	"context"
	"fmt"
	"os"

	"github.com/Hanny658/Meta-Recommendation/internal/conversation"
	"github.com/Hanny658/Meta-Recommendation/internal/metarec"
	"github.com/Hanny658/Meta-Recommendation/internal/model"
)

// RegisterDefaultUnits wires the production service functions into the
// registry so the console can exercise them in isolation.
func RegisterDefaultUnits(r *Registry, svc *metarec.Service) {
	r.Register(model.UnitSpec{
		Name:         "metarec.analyze_user_intent",
		Description:  "Classify a query as a confirmation or a new query.",
		FunctionName: "AnalyzeUserIntent",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"query"},
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "minLength": 1},
			},
		},
		ExpectedIO: map[string]any{
			"output": map[string]any{"type": "confirmation | new_query", "confidence": 0.95},
		},
		SampleInput: map[string]any{"query": "Yes, that's correct"},
	}, func(ctx context.Context, input map[string]any) (any, error) {
		query, err := stringField(input, "query")
		if err != nil {
			return nil, err
		}
		return svc.AnalyzeUserIntent(query), nil
	})

	r.Register(model.UnitSpec{
		Name:         "metarec.extract_preferences_from_query",
		Description:  "Parse dining preferences (cuisine, budget, location) out of free text.",
		FunctionName: "ExtractPreferences",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"query"},
			"properties": map[string]any{
				"query":      map[string]any{"type": "string", "minLength": 1},
				"user_id":    map[string]any{"type": "string"},
				"session_id": map[string]any{"type": "string"},
			},
		},
		SampleInput: map[string]any{
			"query":   "Spicy sichuan hotpot in Chinatown, 30 to 50 per person",
			"user_id": "debug_user",
		},
	}, func(ctx context.Context, input map[string]any) (any, error) {
		query, err := stringField(input, "query")
		if err != nil {
			return nil, err
		}
		userID, _ := input["user_id"].(string)
		sessionID, _ := input["session_id"].(string)
		return svc.ExtractPreferences(query, userID, sessionID), nil
	})

	r.Register(model.UnitSpec{
		Name:         "metarec.preferences_to_agent_input",
		Description:  "Render a query and preference map as planner agent input.",
		FunctionName: "PreferencesToAgentInput",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"query"},
			"properties": map[string]any{
				"query":       map[string]any{"type": "string", "minLength": 1},
				"preferences": map[string]any{"type": "object"},
			},
		},
		SampleInput: map[string]any{
			"query":       "spicy food with friends",
			"preferences": map[string]any{"flavor_profiles": []any{"spicy"}},
		},
	}, func(ctx context.Context, input map[string]any) (any, error) {
		query, err := stringField(input, "query")
		if err != nil {
			return nil, err
		}
		prefs, _ := input["preferences"].(map[string]any)
		return svc.PreferencesToAgentInput(query, prefs)
	})

	r.Register(model.UnitSpec{
		Name:         "metarec.extract_restaurants_from_execution_data",
		Description:  "Merge planner recommendations with map search results.",
		FunctionName: "ExtractRestaurants",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"execution_data"},
			"properties": map[string]any{
				"execution_data": map[string]any{"type": "object"},
			},
		},
		SampleInput: map[string]any{
			"execution_data": map[string]any{
				"summary": map[string]any{
					"recommendations": []any{
						map[string]any{"name": "Example Kitchen", "cuisine": "thai"},
					},
				},
				"executions": []any{},
			},
		},
	}, func(ctx context.Context, input map[string]any) (any, error) {
		data, ok := input["execution_data"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("execution_data must be an object")
		}
		return svc.ExtractRestaurants(data), nil
	})
}

// RegisterStorageUnits adds the conversation-store lifecycle unit. It
// runs against a throwaway database, never the production file.
func RegisterStorageUnits(r *Registry) {
	r.Register(model.UnitSpec{
		Name:         "conversation_storage.sandbox_lifecycle",
		Description:  "Create, write, read and delete a conversation in a sandbox database.",
		FunctionName: "sandboxLifecycle",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{"type": "string"},
				"title":   map[string]any{"type": "string"},
			},
		},
		SampleInput: map[string]any{"user_id": "debug_user", "title": "sandbox conversation"},
	}, sandboxLifecycle)
}

func sandboxLifecycle(ctx context.Context, input map[string]any) (any, error) {
	userID, _ := input["user_id"].(string)
	if userID == "" {
		userID = "debug_user"
	}
	title, _ := input["title"].(string)
	if title == "" {
		title = "sandbox conversation"
	}

	dir, err := os.MkdirTemp("", "metarec-sandbox-*")
	if err != nil {
		return nil, fmt.Errorf("create sandbox dir: %w", err)
	}
	defer os.RemoveAll(dir)

	store, err := conversation.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open sandbox store: %w", err)
	}
	defer store.Close()

	conv, err := store.Create(ctx, userID, title, "sandbox")
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	if _, err := store.AddMessage(ctx, userID, conv.ID, "user", "hello from the sandbox"); err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	loaded, err := store.Get(ctx, userID, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("reload conversation: %w", err)
	}
	if err := store.Delete(ctx, userID, conv.ID); err != nil {
		return nil, fmt.Errorf("delete conversation: %w", err)
	}

	return map[string]any{
		"conversation_id": conv.ID,
		"title":           loaded.Title,
		"message_count":   len(loaded.Messages),
		"deleted":         true,
	}, nil
}

func stringField(input map[string]any, key string) (string, error) {
	v, ok := input[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return v, nil
}
