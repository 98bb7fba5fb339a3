package entity

import "time"

// Role identifies who produced a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ContentKind discriminates the polymorphic content blocks that make up a
// message. A single serialization surface, one small dispatch function per
// kind — no inheritance hierarchy.
type ContentKind string

const (
	ContentText             ContentKind = "text"
	ContentToolUse          ContentKind = "tool_use"
	ContentToolResult       ContentKind = "tool_result"
	ContentThinking         ContentKind = "thinking"
	ContentRedactedThinking ContentKind = "redacted_thinking"
)

// ContentBlock is one tagged-union element of a message's content list.
//
// Thinking and redacted-thinking blocks that accompany tool-use blocks in
// the same assistant turn must be preserved verbatim — never rewritten,
// reordered, or summarized — or the provider rejects the next turn.
type ContentBlock struct {
	Kind ContentKind

	// ContentText
	Text      string
	Cacheable bool

	// ContentToolUse
	ToolUseID string
	ToolName  string
	ToolInput map[string]interface{}

	// ContentToolResult
	ToolResultFor string
	ResultBody    string
	ResultIsError bool

	// ContentThinking / ContentRedactedThinking
	Thinking    string
	RedactedSig string // opaque encrypted payload for redacted-thinking
}

// NewText builds a visible-prose content block.
func NewText(text string) ContentBlock {
	return ContentBlock{Kind: ContentText, Text: text}
}

// NewCacheableText builds a visible-prose block annotated with a cache marker.
func NewCacheableText(text string) ContentBlock {
	return ContentBlock{Kind: ContentText, Text: text, Cacheable: true}
}

// NewToolUse builds a tool invocation request block.
func NewToolUse(id, name string, input map[string]interface{}) ContentBlock {
	return ContentBlock{Kind: ContentToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

// NewToolResult builds a tool-result block referencing the triggering tool-use id.
func NewToolResult(toolUseID, body string, isError bool) ContentBlock {
	return ContentBlock{Kind: ContentToolResult, ToolResultFor: toolUseID, ResultBody: body, ResultIsError: isError}
}

// NewThinking builds an opaque reasoning block.
func NewThinking(thinking string) ContentBlock {
	return ContentBlock{Kind: ContentThinking, Thinking: thinking}
}

// NewRedactedThinking builds an encrypted reasoning block.
func NewRedactedThinking(sig string) ContentBlock {
	return ContentBlock{Kind: ContentRedactedThinking, RedactedSig: sig}
}

// HasToolUse reports whether the block set carries at least one tool-use.
func HasToolUse(blocks []ContentBlock) bool {
	for _, b := range blocks {
		if b.Kind == ContentToolUse {
			return true
		}
	}
	return false
}

// ToolUses filters the tool-use blocks, preserving emission order.
func ToolUses(blocks []ContentBlock) []ContentBlock {
	var out []ContentBlock
	for _, b := range blocks {
		if b.Kind == ContentToolUse {
			out = append(out, b)
		}
	}
	return out
}

// ThinkingBlocks filters the thinking and redacted-thinking blocks, in order.
func ThinkingBlocks(blocks []ContentBlock) []ContentBlock {
	var out []ContentBlock
	for _, b := range blocks {
		if b.Kind == ContentThinking || b.Kind == ContentRedactedThinking {
			out = append(out, b)
		}
	}
	return out
}

// TextContent concatenates every visible text block, in order.
func TextContent(blocks []ContentBlock) string {
	var out string
	for _, b := range blocks {
		if b.Kind == ContentText {
			out += b.Text
		}
	}
	return out
}

// Message is one entry in the Execution State's conversation history.
type Message struct {
	Role      Role
	Content   []ContentBlock
	Timestamp time.Time

	// GraderFeedback marks a user message as grader-rejection feedback
	// threaded back to the agent (spec §4.6); such messages are stripped
	// when the grader reconstructs the user's original request so the
	// grader never judges its own prior verdicts.
	GraderFeedback bool
}

// NewMessage creates a conversation message stamped with the current time.
func NewMessage(role Role, content ...ContentBlock) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// TextOnly builds a plain single-text-block message.
func TextOnly(role Role, text string) Message {
	return NewMessage(role, NewText(text))
}

// HasToolCalls reports whether this message carries tool-use blocks.
func (m Message) HasToolCalls() bool {
	return HasToolUse(m.Content)
}

// Text concatenates the message's visible text blocks.
func (m Message) Text() string {
	return TextContent(m.Content)
}
