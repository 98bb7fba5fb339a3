package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shells-above/swarmre/internal/domain/entity"
	"github.com/shells-above/swarmre/internal/infrastructure/eventbus"
	"go.uber.org/zap"
)

// consolidationRequestPrompt is the fixed request-phase prompt (spec §4.7
// step 1): asked once the context guard trips, before anything else happens
// to the conversation. The model is expected to call store_analysis for
// every finding worth keeping, then answer with a short plain-text summary.
const consolidationRequestPrompt = `Your context window for this task is almost full. Before continuing, ` +
	`consolidate your work: call store_analysis once for every finding, hypothesis, or decision you need to ` +
	`keep, each under its own key. When you are done storing, reply with a short plain-text summary of what ` +
	`you have learned and what remains to be done. Do not call any other tool in this turn.`

// consolidationContinuationTemplate rebuilds the first user message after a
// rebuild (spec §4.7 step 3), carrying the original task, the model's own
// summary, and the keys it just stored forward into the fresh conversation.
const consolidationContinuationTemplate = `Continuing task: %s

Summary of work so far:
%s

Stored analysis keys from the prior session: %s

Pick up where you left off. Use get_analysis to recall any stored finding in full.`

// ConsolidationEngine implements the context-limit-triggered compression
// pass (spec §4.7): it never summarizes history in place. Instead it asks
// the model to harvest its own findings into the Memory Store, then resets
// the conversation to a single continuation message built from that harvest
// and the model's own summary text.
type ConsolidationEngine struct {
	llm       DriverLLMClient
	tools     ToolExecRegistry
	bus       eventbus.Bus
	tokenizer Tokenizer
	logger    *zap.Logger
}

// Tokenizer matches internal/domain/context.Tokenizer, re-declared here so
// this package doesn't need to import the context package (whose name
// collides with the stdlib package the driver imports throughout).
type Tokenizer interface {
	Count(text string) int
}

// NewConsolidationEngine creates a Consolidation Engine.
func NewConsolidationEngine(llm DriverLLMClient, tools ToolExecRegistry, bus eventbus.Bus, tokenizer Tokenizer, logger *zap.Logger) *ConsolidationEngine {
	return &ConsolidationEngine{
		llm:       llm,
		tools:     tools,
		bus:       bus,
		tokenizer: tokenizer,
		logger:    logger,
	}
}

// Run executes one consolidation pass: request phase (model harvests
// findings via store_analysis and summarizes), then rebuild phase (session
// rollover, execution state reset to one continuation message). task is the
// agent's current top-level task text, used to re-anchor the continuation.
func (e *ConsolidationEngine) Run(ctx context.Context, agentID, model, task string, state *entity.ExecutionState, usage *entity.TokenUsage) error {
	e.publish(agentID, "started")

	req := DriverRequest{
		Model:        model,
		SystemPrompt: "You are consolidating your own working context. Be thorough and terse.",
		Messages:     append(append([]entity.Message{}, state.Messages()...), entity.TextOnly(entity.RoleUser, consolidationRequestPrompt)),
		Tools:        e.tools.List(),
		MaxTokens:    4096,
	}

	resp, err := e.llm.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("consolidation request failed: %w", err)
	}
	usage.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.CacheReadTokens, resp.Usage.CacheCreationTokens)

	var keys []string
	for _, block := range resp.Message.Content {
		if block.Kind != entity.ContentToolUse || block.ToolName != "store_analysis" {
			continue
		}
		result := e.tools.Dispatch(ctx, block.ToolName, block.ToolInput)
		if result.Success {
			if k, ok := result.Metadata["key"].(string); ok {
				keys = append(keys, k)
			}
		}
	}
	e.publish(agentID, "extracted")

	summary := strings.TrimSpace(resp.Message.Text())
	if summary == "" {
		e.logger.Warn("consolidation response carried no summary text, synthesizing fallback",
			zap.String("agent_id", agentID), zap.Int("keys", len(keys)))
		summary = fallbackSummary(keys)
	}

	usage.RolloverSession()

	keyList := "(none)"
	if len(keys) > 0 {
		keyList = strings.Join(keys, ", ")
	}
	continuation := fmt.Sprintf(consolidationContinuationTemplate, task, summary, keyList)
	state.RebuildFrom([]entity.Message{entity.TextOnly(entity.RoleUser, continuation)})

	e.publish(agentID, "rebuilt")
	return nil
}

func fallbackSummary(keys []string) string {
	if len(keys) == 0 {
		return "No findings were stored before the context limit was reached."
	}
	return "Findings stored under: " + strings.Join(keys, ", ") + ". See each via get_analysis for detail."
}

func (e *ConsolidationEngine) publish(agentID, status string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(context.Background(), eventbus.NewEvent(eventbus.EventTypeContextConsolidation, eventbus.ContextConsolidationPayload{
		AgentID: agentID,
		Status:  status,
	}))
}
