package entity

import (
	"time"

	"github.com/shells-above/swarmre/internal/domain/valueobject"
)

// AgentState is the agent's place in the top-level state machine (spec §4.5).
type AgentState string

const (
	AgentIdle      AgentState = "idle"
	AgentRunning   AgentState = "running"
	AgentPaused    AgentState = "paused"
	AgentCompleted AgentState = "completed"
)

// Agent is the per-worker identity: a single LLM-driven worker with its own
// execution state, tool catalog, and coordination client identity (spec
// GLOSSARY). The execution state, memory store, patch manager and
// coordination client are owned by the service-layer orchestrator that
// wraps this identity, not by this entity itself (spec §9: "per-agent state
// as owned aggregate").
type Agent struct {
	id          string
	task        string
	modelConfig valueobject.ModelConfig
	state       AgentState
	createdAt   time.Time
	updatedAt   time.Time
}

// NewAgent creates a new agent identity bound to a top-level task.
func NewAgent(id, task string, modelConfig valueobject.ModelConfig) (*Agent, error) {
	if id == "" {
		return nil, ErrInvalidAgentID
	}
	now := time.Now()
	return &Agent{
		id:          id,
		task:        task,
		modelConfig: modelConfig,
		state:       AgentIdle,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// ID returns the agent's identifier.
func (a *Agent) ID() string { return a.id }

// Task returns the agent's current top-level task text.
func (a *Agent) Task() string { return a.task }

// SetTask replaces the top-level task (a new NewTask command, spec §4.5).
func (a *Agent) SetTask(task string) {
	a.task = task
	a.updatedAt = time.Now()
}

// ModelConfig returns the model configuration driving this agent.
func (a *Agent) ModelConfig() valueobject.ModelConfig { return a.modelConfig }

// State returns the agent's current top-level state.
func (a *Agent) State() AgentState { return a.state }

// SetState transitions the agent to a new top-level state.
func (a *Agent) SetState(s AgentState) {
	a.state = s
	a.updatedAt = time.Now()
}

// CreatedAt returns the agent's creation time.
func (a *Agent) CreatedAt() time.Time { return a.createdAt }
