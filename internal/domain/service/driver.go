package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shells-above/swarmre/internal/domain/conflict"
	"github.com/shells-above/swarmre/internal/domain/entity"
	"github.com/shells-above/swarmre/internal/infrastructure/eventbus"
	"go.uber.org/zap"
)

// DriverConfig bounds one agent's iteration loop (spec §4.5, §4.7).
type DriverConfig struct {
	MaxIterations      int           // 0 = unbounded
	ContextTokenLimit  int           // triggers the Consolidation Engine when exceeded
	MaxRetries         int           // per-turn transient-error retries
	RetryBaseWait      time.Duration
	SystemPrompt       string
}

// DefaultDriverConfig mirrors the teacher's AgentLoopConfig defaults,
// retargeted: generous iteration budget for a long RE session, conservative
// retry backoff.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		MaxIterations:     200,
		ContextTokenLimit: 150_000,
		MaxRetries:        3,
		RetryBaseWait:     2 * time.Second,
		SystemPrompt:      defaultSystemPrompt,
	}
}

const defaultSystemPrompt = `You are one of several independent agents reverse-engineering a shared binary. ` +
	`Other agents may be editing the same binary concurrently. Use the provided tools to inspect, annotate, and ` +
	`patch it. If a write tool reports a conflict with another agent's prior write, discuss on the named ` +
	`channel via send_message and call mark_consensus_reached with byte-identical text once you agree. When the ` +
	`task is fully done, stop calling tools and report your findings in plain text.`

// Driver runs one agent's LLM-driven iteration loop end to end (spec §4.5):
// cache-marker reshaping, request dispatch with OAuth-retry-once, verbatim
// assistant-message preservation, tool dispatch guarded by the Conflict
// Detector and escalated through the Conflict Coordinator on collision,
// context-limit-triggered consolidation, and end-of-turn grading.
type Driver struct {
	agent  *entity.Agent
	state  *entity.ExecutionState
	usage  *entity.TokenUsage
	config DriverConfig

	llm   DriverLLMClient
	oauth OAuthRefresher
	tools ToolExecRegistry

	detector    *conflict.Detector
	coordinator *conflict.Coordinator
	outbox      Outbox

	injected      *InjectedMessageQueue
	consolidation *ConsolidationEngine
	grader        *Grader

	bus    eventbus.Bus
	logger *zap.Logger

	activeMu      sync.Mutex
	activeChannel string
	oauthRetried  bool
}

// DriverDeps aggregates everything one Driver instance needs.
type DriverDeps struct {
	Agent         *entity.Agent
	State         *entity.ExecutionState
	Usage         *entity.TokenUsage
	Config        DriverConfig
	LLM           DriverLLMClient
	OAuth         OAuthRefresher
	Tools         ToolExecRegistry
	Detector      *conflict.Detector
	Coordinator   *conflict.Coordinator
	Outbox        Outbox
	Injected      *InjectedMessageQueue
	Consolidation *ConsolidationEngine
	Grader        *Grader
	Bus           eventbus.Bus
	Logger        *zap.Logger
}

// NewDriver wires a Driver from its dependencies.
func NewDriver(deps DriverDeps) *Driver {
	if deps.Injected == nil {
		deps.Injected = NewInjectedMessageQueue()
	}
	return &Driver{
		agent:         deps.Agent,
		state:         deps.State,
		usage:         deps.Usage,
		config:        deps.Config,
		llm:           deps.LLM,
		oauth:         deps.OAuth,
		tools:         deps.Tools,
		detector:      deps.Detector,
		coordinator:   deps.Coordinator,
		outbox:        deps.Outbox,
		injected:      deps.Injected,
		consolidation: deps.Consolidation,
		grader:        deps.Grader,
		bus:           deps.Bus,
		logger:        deps.Logger,
	}
}

// Inject queues a message for the agent's next iteration (spec §4.11).
func (d *Driver) Inject(text string) { d.injected.Push(text) }

// CurrentConflictChannel implements retool.ActiveConflict: the channel of
// the conflict this agent is currently a participant in, if any. A channel
// whose descriptor has since resolved or been abandoned is forgotten, so a
// fresh collision on the same address can open a new deliberation.
func (d *Driver) CurrentConflictChannel() (string, bool) {
	d.activeMu.Lock()
	channel := d.activeChannel
	d.activeMu.Unlock()
	if channel == "" {
		return "", false
	}
	if d.coordinator != nil {
		if descriptor, ok := d.coordinator.Get(channel); ok {
			if descriptor.Phase == entity.ConflictResolved || descriptor.Phase == entity.ConflictAbandoned {
				d.activeMu.Lock()
				if d.activeChannel == channel {
					d.activeChannel = ""
				}
				d.activeMu.Unlock()
				return "", false
			}
		}
	}
	return channel, true
}

func (d *Driver) setActiveConflict(channel string) {
	d.activeMu.Lock()
	d.activeChannel = channel
	d.activeMu.Unlock()
}

// DriverResult is what Run returns on a clean completion.
type DriverResult struct {
	FinalText  string
	Iterations int
	Usage      entity.TokenUsage
}

// Run drives task to completion: a new task resets execution state, a
// resume restarts the loop against the live state, a continuation appends
// one user message first. Returns once the agent reports it is done (per
// the Grader, or immediately if grading is disabled), the agent is paused
// by a recoverable error, or the iteration budget is exhausted.
func (d *Driver) Run(ctx context.Context, task Task) (*DriverResult, error) {
	switch task.Kind {
	case TaskNew:
		if task.Text == "" {
			return nil, entity.ErrNoTask
		}
		d.agent.SetTask(task.Text)
		d.state.Reset()
		d.state.Append(entity.TextOnly(entity.RoleUser, task.Text))
	case TaskResume:
		if !d.state.Valid() {
			return nil, entity.ErrExecutionStateInvalid
		}
	case TaskContinue:
		if !d.state.Valid() {
			return nil, entity.ErrExecutionStateInvalid
		}
		d.state.Append(entity.TextOnly(entity.RoleUser, task.Text))
	}

	d.setState(entity.AgentRunning)

	for {
		if err := ctx.Err(); err != nil {
			d.setState(entity.AgentPaused)
			return nil, err
		}

		iter := d.state.NextIteration()
		if d.config.MaxIterations > 0 && iter > d.config.MaxIterations {
			d.setState(entity.AgentPaused)
			return nil, entity.ErrMaxIterationsReached
		}

		for _, text := range d.injected.DrainAll() {
			d.state.Append(entity.TextOnly(entity.RoleUser, text))
		}

		if d.consolidation != nil && d.config.ContextTokenLimit > 0 && d.estimatedTokens() > d.config.ContextTokenLimit {
			if err := d.consolidation.Run(ctx, d.agent.ID(), d.agent.ModelConfig().Model(), d.agent.Task(), d.state, d.usage); err != nil {
				d.logger.Error("consolidation pass failed", zap.String("agent_id", d.agent.ID()), zap.Error(err))
			}
			continue
		}

		resp, err := d.send(ctx)
		if err != nil {
			if err == errTurnUnrecoverable {
				d.state.Invalidate()
				d.setState(entity.AgentIdle)
				return nil, fmt.Errorf("unrecoverable driver error")
			}
			d.setState(entity.AgentPaused)
			return nil, err
		}

		d.state.Append(resp.Message)
		d.usage.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.CacheReadTokens, resp.Usage.CacheCreationTokens)

		toolUses := entity.ToolUses(resp.Message.Content)
		if len(toolUses) > 0 {
			d.runToolTurn(ctx, toolUses)
			continue
		}

		if iter <= 1 {
			continue
		}

		verdict, done := d.grade(ctx)
		if !done {
			d.state.Append(FeedbackMessage(verdict.Reasoning))
			continue
		}

		d.setState(entity.AgentCompleted)
		return &DriverResult{
			FinalText:  resp.Message.Text(),
			Iterations: d.state.Iteration(),
			Usage:      *d.usage,
		}, nil
	}
}

// grade asks the Grader whether the turn's text-only reply means the task
// is actually finished. With no grader configured, any text-only reply ends
// the run (spec §4.6 disabled fallback).
func (d *Driver) grade(ctx context.Context) (GraderVerdict, bool) {
	if d.grader == nil {
		return GraderVerdict{IsComplete: true}, true
	}
	verdict, err := d.grader.Grade(ctx, d.agent.ID(), d.agent.Task(), d.state.Messages())
	if err != nil {
		d.logger.Warn("grader call failed, treating turn as complete", zap.String("agent_id", d.agent.ID()), zap.Error(err))
		return GraderVerdict{IsComplete: true}, true
	}
	return verdict, verdict.IsComplete
}

// errTurnUnrecoverable signals send should not be retried and the execution
// state should be invalidated.
var errTurnUnrecoverable = fmt.Errorf("unrecoverable LLM turn error")

// send builds the request (with cache-marker reshaping applied to a
// snapshot, never mutating the live execution state) and dispatches it,
// retrying transient failures with backoff and refreshing OAuth exactly
// once on an expired-token error.
func (d *Driver) send(ctx context.Context) (*DriverResponse, error) {
	mc := d.agent.ModelConfig()
	messages := ReanchorCache(d.state.Messages())

	req := DriverRequest{
		Model:                     mc.Model(),
		SystemPrompt:              d.config.SystemPrompt,
		Messages:                  messages,
		Tools:                     d.tools.List(),
		MaxTokens:                 mc.MaxTokens(),
		MaxThinkingTokens:         mc.ThinkingBudget(),
		Temperature:               mc.Temperature(),
		EnableThinking:            mc.ThinkingEnabled(),
		EnableInterleavedThinking: mc.Interleaved(),
	}

	var lastErr error
	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		resp, err := d.llm.Send(ctx, req)
		if err == nil && resp.Success {
			return resp, nil
		}
		if err == nil {
			err = fmt.Errorf("%s", resp.Error)
		}

		if strings.Contains(strings.ToLower(err.Error()), "oauth token has expired") && d.oauth != nil && !d.oauthRetried {
			d.oauthRetried = true
			if refreshErr := d.oauth.Refresh(ctx); refreshErr == nil {
				continue
			}
		}

		classified := ClassifyError(err, mc.Provider(), mc.Model())
		lastErr = classified
		d.publishError(classified.Error())

		if !classified.IsRetryable() || attempt == d.config.MaxRetries {
			switch classified.Kind {
			case ErrKindCancelled:
				return nil, ctx.Err()
			case ErrKindAuth, ErrKindBadRequest, ErrKindContentFilter:
				return nil, errTurnUnrecoverable
			default:
				return nil, classified
			}
		}

		wait := d.config.RetryBaseWait * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

// runToolTurn dispatches every tool-use block from the latest assistant
// message, guarding writes through the Conflict Detector and escalating a
// detected collision to the Conflict Coordinator instead of applying the
// write (spec §4.4, §4.10). All results are merged into a single user
// message, as the protocol requires.
func (d *Driver) runToolTurn(ctx context.Context, toolUses []entity.ContentBlock) {
	results := make([]entity.ContentBlock, 0, len(toolUses))

	for _, tu := range toolUses {
		d.state.RecordToolUse(tu.ToolUseID, tu.ToolName)
		d.publishToolCall(eventbus.ToolCallStarted, tu.ToolUseID, tu.ToolName, tu.ToolInput, nil, 0)

		if d.detector != nil && d.detector.IsWriteTool(tu.ToolName) {
			if address, ok := addressFromInput(tu.ToolInput); ok {
				if result, handled := d.guardedDispatch(ctx, tu, address); handled {
					results = append(results, result)
					continue
				}
			}
		}

		start := time.Now()
		result := d.tools.Dispatch(ctx, tu.ToolName, tu.ToolInput)
		results = append(results, entity.NewToolResult(tu.ToolUseID, result.DisplayOrOutput(), !result.Success))
		d.publishToolCall(eventbus.ToolCallCompleted, tu.ToolUseID, tu.ToolName, tu.ToolInput, result, time.Since(start))
	}

	d.state.Append(entity.NewMessage(entity.RoleUser, results...))
}

// guardedDispatch runs the Conflict Detector's check before a write. If a
// colliding prior write is found, it opens (or rejoins) a conflict instead
// of applying the write, and returns a tool-result that steers the agent to
// mark_consensus_reached. If no collision is found, it dispatches the tool
// and records the write. handled reports whether result is final.
func (d *Driver) guardedDispatch(ctx context.Context, tu entity.ContentBlock, address uint64) (entity.ContentBlock, bool) {
	conflictors, err := d.detector.CheckConflict(tu.ToolName, address, d.agent.ID())
	if err != nil {
		d.logger.Warn("conflict check failed, proceeding without guard", zap.Error(err))
		return entity.ContentBlock{}, false
	}
	if len(conflictors) == 0 {
		start := time.Now()
		result := d.tools.Dispatch(ctx, tu.ToolName, tu.ToolInput)
		if result.Success {
			if recErr := d.detector.Record(tu.ToolName, address, tu.ToolInput, d.agent.ID(), time.Now()); recErr != nil {
				d.logger.Warn("failed to record tool call for conflict tracking", zap.Error(recErr))
			}
		}
		d.publishToolCall(eventbus.ToolCallCompleted, tu.ToolUseID, tu.ToolName, tu.ToolInput, result, time.Since(start))
		return entity.NewToolResult(tu.ToolUseID, result.DisplayOrOutput(), !result.Success), true
	}

	class, _ := d.detector.ClassOf(tu.ToolName)
	initiator := entity.ConflictingCall{AgentID: d.agent.ID(), Tool: tu.ToolName, Address: address, Params: tu.ToolInput}
	descriptor, frame := d.coordinator.Propose(class, initiator, conflictors)
	d.setActiveConflict(descriptor.Channel)

	if d.outbox != nil {
		if err := d.outbox.Join(descriptor.Channel); err != nil {
			d.logger.Warn("failed to join conflict channel", zap.String("channel", descriptor.Channel), zap.Error(err))
		}
		if err := d.outbox.Send("#agents", frame.Encode()); err != nil {
			d.logger.Warn("failed to broadcast conflict force frame", zap.Error(err))
		}
	}

	msg := fmt.Sprintf("write conflicts with a prior write by another agent at this address. A conflict "+
		"discussion has been opened on %s. Discuss via send_message, then call mark_consensus_reached with "+
		"identical text to every other participant once you agree on the final value.", descriptor.Channel)
	result := entity.NewToolResult(tu.ToolUseID, msg, true)
	d.publishToolCall(eventbus.ToolCallCompleted, tu.ToolUseID, tu.ToolName, tu.ToolInput, msg, 0)
	return result, true
}

func (d *Driver) estimatedTokens() int {
	return int(d.usage.Total())
}

func (d *Driver) setState(s entity.AgentState) {
	old := d.agent.State()
	d.agent.SetState(s)
	if d.bus == nil {
		return
	}
	d.bus.Publish(context.Background(), eventbus.NewEvent(eventbus.EventTypeStateChanged, eventbus.StateChangedPayload{
		AgentID:  d.agent.ID(),
		OldState: string(old),
		NewState: string(s),
	}))
}

func (d *Driver) publishError(text string) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(context.Background(), eventbus.NewEvent(eventbus.EventTypeError, eventbus.ErrorPayload{
		AgentID: d.agent.ID(),
		Text:    text,
	}))
}

func (d *Driver) publishToolCall(phase eventbus.ToolCallPhase, id, name string, input map[string]interface{}, result any, dur time.Duration) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(context.Background(), eventbus.NewEvent(eventbus.EventTypeToolCall, eventbus.ToolCallPayload{
		AgentID:  d.agent.ID(),
		Phase:    phase,
		ID:       id,
		Name:     name,
		Input:    input,
		Result:   result,
		Duration: dur,
	}))
}

func addressFromInput(input map[string]interface{}) (uint64, bool) {
	v, ok := input["address"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return uint64(n), true
	case int:
		return uint64(n), true
	case int64:
		return uint64(n), true
	case uint64:
		return n, true
	default:
		return 0, false
	}
}
