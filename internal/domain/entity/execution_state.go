package entity

import (
	"sync"
	"time"
)

// ToolUseRecord tracks which iteration a tool-use id was issued at, so the
// driver can correlate a later tool-result back to its originating turn.
type ToolUseRecord struct {
	ToolName  string
	Iteration int
}

// ExecutionState is the single owned aggregate of conversation history for
// one agent: mutated only by the LLM Driver, cleared on a new top-level
// task, and reset to the consolidation summary after a consolidation
// rebuild (spec §3, §4.7).
type ExecutionState struct {
	mu sync.RWMutex

	messages     []Message
	toolUseIndex map[string]ToolUseRecord
	iteration    int
	valid        bool
	lastSaved    time.Time
}

// NewExecutionState creates a fresh, valid, empty execution state.
func NewExecutionState() *ExecutionState {
	return &ExecutionState{
		toolUseIndex: make(map[string]ToolUseRecord),
		valid:        true,
		lastSaved:    time.Now(),
	}
}

// Append adds a message to the conversation history.
func (s *ExecutionState) Append(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	s.lastSaved = time.Now()
}

// RecordToolUse indexes a tool-use id issued at the current iteration.
func (s *ExecutionState) RecordToolUse(id, toolName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolUseIndex[id] = ToolUseRecord{ToolName: toolName, Iteration: s.iteration}
}

// LookupToolUse returns the record for a previously issued tool-use id.
func (s *ExecutionState) LookupToolUse(id string) (ToolUseRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.toolUseIndex[id]
	return r, ok
}

// Messages returns a snapshot copy of the conversation history.
func (s *ExecutionState) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len reports the number of messages currently held.
func (s *ExecutionState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Iteration returns the current iteration counter.
func (s *ExecutionState) Iteration() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iteration
}

// NextIteration increments and returns the iteration counter. The counter is
// incremented at the top of the loop, so the first call returns 1.
func (s *ExecutionState) NextIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iteration++
	return s.iteration
}

// Valid reports whether "resume" is legal against this state.
func (s *ExecutionState) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valid
}

// Invalidate marks the state as unresumable (unrecoverable error path).
func (s *ExecutionState) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = false
}

// LastSaved returns the freshness timestamp of the last mutation.
func (s *ExecutionState) LastSaved() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSaved
}

// Reset clears history and tool-use bookkeeping for a new top-level task,
// leaving the iteration counter at zero and the state valid.
func (s *ExecutionState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.toolUseIndex = make(map[string]ToolUseRecord)
	s.iteration = 0
	s.valid = true
	s.lastSaved = time.Now()
}

// RebuildFrom replaces the conversation history wholesale with the result of
// a consolidation rebuild (spec §4.7 step 3), resetting the iteration
// counter to zero so the next NextIteration() call yields 1.
func (s *ExecutionState) RebuildFrom(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = messages
	s.toolUseIndex = make(map[string]ToolUseRecord)
	s.iteration = 0
	s.valid = true
	s.lastSaved = time.Now()
}

// LastUserMessageIndex returns the index of the most recent user-role
// message, or -1 if there is none.
func (s *ExecutionState) LastUserMessageIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// AppendTextToMessage appends a text block to the message at index i.
// Caller must have verified i is in range (e.g. via LastUserMessageIndex).
func (s *ExecutionState) AppendTextToMessage(i int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.messages) {
		return
	}
	s.messages[i].Content = append(s.messages[i].Content, NewText(text))
}
