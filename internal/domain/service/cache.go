package service

import "github.com/shells-above/swarmre/internal/domain/entity"

// MaxCacheBreakpoints is the provider constraint spec §4.5 step 1 and §9
// flag as an open question ("4 breakpoints... an implementer must confirm
// the current limit"). This package places exactly one of them, on the
// conversation. The transport (internal/infrastructure/llm/anthropic) puts no
// marker on the tool catalog or the system prompt, so the other three are
// left unused.
const MaxCacheBreakpoints = 4

// ReanchorCache strips every ephemeral cache marker from the conversation
// and places exactly one marker on the most recent tool-result-bearing user
// message (spec §4.5 step 1, invariant 4). No-op if there is no such
// message. Mutates messages in place and also returns it for chaining.
func ReanchorCache(messages []entity.Message) []entity.Message {
	target := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != entity.RoleUser {
			continue
		}
		if hasToolResult(messages[i].Content) {
			target = i
			break
		}
	}

	for i := range messages {
		for j := range messages[i].Content {
			if messages[i].Content[j].Kind == entity.ContentText {
				messages[i].Content[j].Cacheable = false
			}
		}
	}

	if target < 0 {
		return messages
	}

	content := messages[target].Content
	for j := len(content) - 1; j >= 0; j-- {
		if content[j].Kind == entity.ContentText {
			content[j].Cacheable = true
			return messages
		}
	}
	// No text block on the tool-result message yet: append an empty
	// cacheable anchor so the invariant still holds.
	messages[target].Content = append(content, entity.ContentBlock{Kind: entity.ContentText, Cacheable: true})
	return messages
}

func hasToolResult(blocks []entity.ContentBlock) bool {
	for _, b := range blocks {
		if b.Kind == entity.ContentToolResult {
			return true
		}
	}
	return false
}
