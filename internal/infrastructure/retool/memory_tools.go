package retool

import (
	"fmt"

	"context"

	"github.com/shells-above/swarmre/internal/domain/entity"
	"github.com/shells-above/swarmre/internal/domain/memory"
	domaintool "github.com/shells-above/swarmre/internal/domain/tool"
	"go.uber.org/zap"
)

// StoreAnalysisTool wraps memory.Store.Store (spec §4.3). It never conflicts
// with another agent's write — each agent owns its own key namespace — and is
// not in the Conflict Detector's collision table, so the driver neither
// records nor conflict-checks it. The Consolidation Engine (§4.7) finds the
// keys an agent used from the store_analysis calls in its conversation.
type StoreAnalysisTool struct {
	store  *memory.Store
	logger *zap.Logger
}

func NewStoreAnalysisTool(store *memory.Store, logger *zap.Logger) *StoreAnalysisTool {
	return &StoreAnalysisTool{store: store, logger: logger}
}

func (t *StoreAnalysisTool) Name() string { return "store_analysis" }
func (t *StoreAnalysisTool) Description() string {
	return "Store a keyed analysis note, finding, hypothesis, question, or analysis."
}
func (t *StoreAnalysisTool) Kind() domaintool.Kind { return domaintool.KindThink }
func (t *StoreAnalysisTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"key":     strProp("unique key; auto-suffixed on collision"),
		"content": strProp("free-text content"),
		"type":    strProp("one of: note, finding, hypothesis, question, analysis"),
		"address": intProp("optional primary address"),
	}, "key", "content", "type")
}

func (t *StoreAnalysisTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	key, err := stringArg(args, "key")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	category, err := stringArg(args, "type")
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	var address *uint64
	if v, ok := args["address"]; ok {
		a, err := toAddress(v)
		if err != nil {
			return &domaintool.Result{Success: false, Error: "address must be a number"}, nil
		}
		address = &a
	}

	var related []uint64
	if raw, ok := args["related_addresses"].([]interface{}); ok {
		for _, r := range raw {
			a, err := toAddress(r)
			if err != nil {
				return &domaintool.Result{Success: false, Error: "related_addresses must be numbers"}, nil
			}
			related = append(related, a)
		}
	}

	finalKey, err := t.store.Store(key, content, entity.AnalysisCategory(category), address, related)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: fmt.Sprintf("stored as %s", finalKey), Metadata: map[string]interface{}{"key": finalKey}}, nil
}

// GetAnalysisTool wraps memory.Store.Get.
type GetAnalysisTool struct {
	store  *memory.Store
	logger *zap.Logger
}

func NewGetAnalysisTool(store *memory.Store, logger *zap.Logger) *GetAnalysisTool {
	return &GetAnalysisTool{store: store, logger: logger}
}

func (t *GetAnalysisTool) Name() string        { return "get_analysis" }
func (t *GetAnalysisTool) Description() string { return "Retrieve stored analyses by key, address, type, or content pattern." }
func (t *GetAnalysisTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *GetAnalysisTool) Schema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"key":     strProp("exact key; short-circuits to 0 or 1 results"),
		"address": intProp("filter to entries with this primary address"),
		"type":    strProp("filter to one of: note, finding, hypothesis, question, analysis"),
		"pattern": strProp("case-insensitive regex over content"),
	})
}

func (t *GetAnalysisTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	filter := memory.GetFilter{}
	if v, ok := args["key"].(string); ok {
		filter.Key = v
	}
	if v, ok := args["type"].(string); ok {
		filter.Category = entity.AnalysisCategory(v)
	}
	if v, ok := args["pattern"].(string); ok {
		filter.Pattern = v
	}
	if v, ok := args["address"]; ok {
		a, err := toAddress(v)
		if err != nil {
			return &domaintool.Result{Success: false, Error: "address must be a number"}, nil
		}
		filter.Address = &a
	}

	entries, err := t.store.Get(filter)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	out := ""
	for _, e := range entries {
		out += fmt.Sprintf("[%s] %s: %s\n", e.Category, e.Key, e.Content)
	}
	return &domaintool.Result{Success: true, Output: out, Metadata: map[string]interface{}{"count": len(entries)}}, nil
}
