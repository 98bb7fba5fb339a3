package service

import (
	"context"

	"github.com/shells-above/swarmre/internal/domain/entity"
	domaintool "github.com/shells-above/swarmre/internal/domain/tool"
)

// StopReason mirrors the LLM transport's turn-termination signal (spec §6).
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopUnknown   StopReason = ""
)

// DriverUsage is the per-turn token accounting the transport reports,
// feeding entity.TokenUsage.Add (spec §3 Token Usage).
type DriverUsage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
}

// DriverRequest is the request the LLM Driver sends to the LLM transport
// (spec §6): a system prompt, the typed message history, the tool catalog,
// and the thinking/cache knobs the Anthropic protocol exposes.
type DriverRequest struct {
	Model                     string
	SystemPrompt              string
	Messages                  []entity.Message
	Tools                     []domaintool.Definition
	MaxTokens                 int
	MaxThinkingTokens         int
	Temperature               float64
	EnableThinking            bool
	EnableInterleavedThinking bool
}

// DriverResponse is the transport's reply: success/error, the assistant
// message (content blocks including any thinking/redacted_thinking that
// must travel verbatim with tool-use blocks), the stop reason, and usage.
type DriverResponse struct {
	Success    bool
	Message    entity.Message
	StopReason StopReason
	Usage      DriverUsage
	Error      string
}

// DriverLLMClient is the seam the LLM Driver and Grader call through. The
// concrete implementation (internal/infrastructure/llm/anthropic) owns
// HTTP transport, OAuth, and cache-breakpoint placement translation.
type DriverLLMClient interface {
	Send(ctx context.Context, req DriverRequest) (*DriverResponse, error)
}

// OAuthRefresher is the external OAuth collaborator (spec §6): invoked once
// when a response's error text contains "OAuth token has expired".
type OAuthRefresher interface {
	Refresh(ctx context.Context) error
}

// ToolExecRegistry is the narrow Tool Registry surface the driver dispatches
// through (spec §4.1).
type ToolExecRegistry interface {
	Dispatch(ctx context.Context, name string, args map[string]interface{}) *domaintool.Result
	List() []domaintool.Definition
}

// Outbox is the send-side of the Coordination Client the driver uses to
// broadcast a CONFLICT_FORCE directive (spec §4.10).
type Outbox interface {
	Send(channel, text string) error
	Join(channel string) error
}

