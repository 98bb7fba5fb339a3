package service

import "sync"

// TaskKind discriminates what a Task asks the driver to do with an agent's
// execution state (spec §4.5: new task / resume / continue).
type TaskKind string

const (
	// TaskNew clears execution state and starts a fresh top-level task.
	TaskNew TaskKind = "new_task"
	// TaskResume restarts the iteration loop against the existing, valid
	// execution state without appending anything.
	TaskResume TaskKind = "resume"
	// TaskContinue appends a new user message to the existing execution
	// state and restarts the loop.
	TaskContinue TaskKind = "continue"
)

// Task is one command handed to the driver's Run method.
type Task struct {
	Kind TaskKind
	Text string // the task prompt (TaskNew) or the appended message (TaskContinue)
}

// NewTask builds a TaskNew command.
func NewTask(text string) Task { return Task{Kind: TaskNew, Text: text} }

// Resume builds a TaskResume command.
func Resume() Task { return Task{Kind: TaskResume} }

// Continue builds a TaskContinue command.
func Continue(text string) Task { return Task{Kind: TaskContinue, Text: text} }

// InjectedMessageQueue is a thread-safe FIFO of user messages injected into
// an agent mid-run — from a peer agent's coordination message, a human
// operator, or a grader rejection (spec §4.11). The driver drains it once
// per iteration, in insertion order, attaching every queued message to the
// next user turn.
type InjectedMessageQueue struct {
	mu   sync.Mutex
	msgs []string
}

// NewInjectedMessageQueue creates an empty queue.
func NewInjectedMessageQueue() *InjectedMessageQueue {
	return &InjectedMessageQueue{}
}

// Push appends a message to the tail of the queue.
func (q *InjectedMessageQueue) Push(text string) {
	if text == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, text)
}

// DrainAll atomically removes and returns every queued message, in
// insertion order. Returns nil if the queue is empty.
func (q *InjectedMessageQueue) DrainAll() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return nil
	}
	out := q.msgs
	q.msgs = nil
	return out
}

// Len reports how many messages are currently queued.
func (q *InjectedMessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}
