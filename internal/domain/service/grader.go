package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shells-above/swarmre/internal/domain/entity"
	"github.com/shells-above/swarmre/internal/infrastructure/eventbus"
	"go.uber.org/zap"
)

// graderSystemPrompt is the fixed peer-review prompt the grader's
// thinking-enabled call uses (spec §4.6 step 2): it judges the agent's own
// transcript against its task, not against some external rubric.
const graderSystemPrompt = `You are reviewing another analyst's work on a reverse-engineering task. Read the ` +
	`full transcript below and judge only whether the stated task has actually been completed: every claim ` +
	`verified, every requested artifact produced. Be skeptical of unverified claims. Explain your reasoning, ` +
	`then state your verdict.`

// graderClassifierPrompt drives the second, deterministic call: a small
// model reduces the grader's own reasoning to a strict verdict object.
const graderClassifierPrompt = `Read the review below and respond with exactly one JSON object of the form ` +
	`{"reasoning": "<one sentence>", "is_complete": true|false}. No other text.`

// GraderVerdict is the grader's structured output (spec §4.6 step 2).
type GraderVerdict struct {
	Reasoning  string `json:"reasoning"`
	IsComplete bool   `json:"is_complete"`
}

// Grader implements the quality gate the driver consults at the end of a
// turn that looks finished (spec §4.6): a thinking-enabled peer-review call
// over the full transcript, classified down to a strict {reasoning,
// is_complete} verdict by a second, deterministic call. Disabled, it always
// reports the most recent assistant text as complete.
type Grader struct {
	llm             DriverLLMClient
	classifierModel string
	reviewModel     string
	tokenizer       Tokenizer
	tokenBudget     int
	bus             eventbus.Bus
	logger          *zap.Logger
	enabled         bool
}

// NewGrader creates a Grader. classifierModel may equal reviewModel; the
// spec only requires the classifier call to be deterministic (temperature
// 0), not a smaller model, though a cheaper model is the natural choice.
func NewGrader(llm DriverLLMClient, reviewModel, classifierModel string, tokenizer Tokenizer, tokenBudget int, bus eventbus.Bus, logger *zap.Logger) *Grader {
	return &Grader{
		llm:             llm,
		reviewModel:     reviewModel,
		classifierModel: classifierModel,
		tokenizer:       tokenizer,
		tokenBudget:     tokenBudget,
		bus:             bus,
		logger:          logger,
		enabled:         true,
	}
}

// Disable turns the Grader into the pass-through fallback: the most recent
// assistant text is treated as the final report, and the task is always
// marked complete (spec §4.6: "if disabled, ...").
func (g *Grader) Disable() { g.enabled = false }

// Grade reviews the agent's transcript and returns a verdict. agentID is the
// agent whose turn is being graded; task is its current top-level task.
func (g *Grader) Grade(ctx context.Context, agentID, task string, messages []entity.Message) (GraderVerdict, error) {
	if !g.enabled {
		return GraderVerdict{Reasoning: "grading disabled", IsComplete: true}, nil
	}

	prioritized := g.prioritize(messages)
	transcript := renderTranscript(prioritized)

	reviewReq := DriverRequest{
		Model:             g.reviewModel,
		SystemPrompt:      graderSystemPrompt,
		Messages:          []entity.Message{entity.TextOnly(entity.RoleUser, fmt.Sprintf("Task: %s\n\nTranscript:\n%s", task, transcript))},
		MaxTokens:         2048,
		MaxThinkingTokens: 1024,
		EnableThinking:    true,
	}
	reviewResp, err := g.llm.Send(ctx, reviewReq)
	if err != nil {
		return GraderVerdict{}, fmt.Errorf("grader review call failed: %w", err)
	}
	review := reviewResp.Message.Text()

	classifyReq := DriverRequest{
		Model:        g.classifierModel,
		SystemPrompt: graderClassifierPrompt,
		Messages:     []entity.Message{entity.TextOnly(entity.RoleUser, review)},
		MaxTokens:    256,
		Temperature:  0,
	}
	classifyResp, err := g.llm.Send(ctx, classifyReq)
	verdict := GraderVerdict{Reasoning: review, IsComplete: false}
	if err != nil {
		g.logger.Warn("grader classifier call failed, defaulting to incomplete", zap.String("agent_id", agentID), zap.Error(err))
		g.publish(agentID, verdict)
		return verdict, nil
	}

	if parsed, ok := parseVerdict(classifyResp.Message.Text()); ok {
		verdict = parsed
	} else {
		g.logger.Warn("grader classifier reply was not valid verdict JSON, defaulting to incomplete",
			zap.String("agent_id", agentID))
	}

	g.publish(agentID, verdict)
	return verdict, nil
}

// FeedbackMessage wraps a grader rejection as a GraderFeedback-marked user
// message, so the execution state records it distinctly from a human's own
// continuation (spec §4.6: grader-feedback messages are stripped from the
// grader's own future transcript reconstruction).
func FeedbackMessage(reasoning string) entity.Message {
	m := entity.TextOnly(entity.RoleUser, "Grading feedback: "+reasoning+"\n\nContinue the task.")
	m.GraderFeedback = true
	return m
}

// prioritize drops prior grader-feedback messages (spec §4.6: the grader
// must not review its own past verdicts) and truncates the oldest messages
// until the transcript fits tokenBudget, always keeping the first message
// (the original task) and the most recent messages.
func (g *Grader) prioritize(messages []entity.Message) []entity.Message {
	var kept []entity.Message
	for _, m := range messages {
		if m.GraderFeedback {
			continue
		}
		kept = append(kept, m)
	}
	if g.tokenBudget <= 0 || len(kept) == 0 {
		return kept
	}

	total := 0
	for _, m := range kept {
		total += g.tokenizer.Count(m.Text())
	}
	if total <= g.tokenBudget {
		return kept
	}

	first := kept[0]
	rest := kept[1:]
	budget := g.tokenBudget - g.tokenizer.Count(first.Text())
	start := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		c := g.tokenizer.Count(rest[i].Text())
		if budget-c < 0 {
			break
		}
		budget -= c
		start = i
	}
	out := make([]entity.Message, 0, 1+len(rest)-start)
	out = append(out, first)
	out = append(out, rest[start:]...)
	return out
}

func renderTranscript(messages []entity.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Text())
		for _, tu := range entity.ToolUses(m.Content) {
			fmt.Fprintf(&b, "  tool_use %s(%v)\n", tu.ToolName, tu.ToolInput)
		}
	}
	return b.String()
}

func parseVerdict(raw string) (GraderVerdict, bool) {
	raw = strings.TrimSpace(raw)
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return GraderVerdict{}, false
	}
	var v GraderVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return GraderVerdict{}, false
	}
	return v, true
}

func (g *Grader) publish(agentID string, v GraderVerdict) {
	if g.bus == nil {
		return
	}
	g.bus.Publish(context.Background(), eventbus.NewEvent(eventbus.EventTypeGraderFeedback, eventbus.GraderFeedbackPayload{
		AgentID:  agentID,
		Text:     v.Reasoning,
		Complete: v.IsComplete,
	}))
}
