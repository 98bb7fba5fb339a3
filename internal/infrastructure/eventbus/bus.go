package eventbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event 事件接口
type Event interface {
	Type() string
	Timestamp() time.Time
	Payload() any
}

// BaseEvent 基础事件实现
type BaseEvent struct {
	EventType      string
	EventTimestamp time.Time
	EventPayload   any
}

// Type 返回事件类型
func (e *BaseEvent) Type() string {
	return e.EventType
}

// Timestamp 返回事件时间戳
func (e *BaseEvent) Timestamp() time.Time {
	return e.EventTimestamp
}

// Payload 返回事件载荷
func (e *BaseEvent) Payload() any {
	return e.EventPayload
}

// NewEvent 创建新事件
func NewEvent(eventType string, payload any) *BaseEvent {
	return &BaseEvent{
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}
}

// Handler 事件处理函数
type Handler func(ctx context.Context, event Event)

// Bus 事件总线接口
type Bus interface {
	// Publish 发布事件
	Publish(ctx context.Context, event Event)
	// Subscribe 订阅事件
	Subscribe(eventType string, handler Handler)
	// Unsubscribe 取消订阅
	Unsubscribe(eventType string, handler Handler)
	// Close 关闭事件总线
	Close()
}

// InMemoryBus 内存事件总线
type InMemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler
	eventChan chan eventWrapper
	closed    bool
	logger    *zap.Logger
	wg        sync.WaitGroup
}

type eventWrapper struct {
	ctx   context.Context
	event Event
}

// NewInMemoryBus 创建内存事件总线
func NewInMemoryBus(logger *zap.Logger, bufferSize int) *InMemoryBus {
	bus := &InMemoryBus{
		handlers:  make(map[string][]Handler),
		eventChan: make(chan eventWrapper, bufferSize),
		logger:    logger,
	}

	// 启动事件分发协程
	bus.wg.Add(1)
	go bus.dispatch()

	return bus
}

// Publish 发布事件
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	// 非阻塞发送
	select {
	case b.eventChan <- eventWrapper{ctx: ctx, event: event}:
		b.logger.Debug("Event published",
			zap.String("type", event.Type()),
		)
	default:
		b.logger.Warn("Event buffer full, dropping event",
			zap.String("type", event.Type()),
		)
	}
}

// Subscribe 订阅事件
func (b *InMemoryBus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make([]Handler, 0)
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", eventType),
	)
}

// Unsubscribe 取消订阅（移除该事件类型最后注册的处理器；handler 参数不参与比较）
func (b *InMemoryBus) Unsubscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[eventType]
	if len(handlers) == 0 {
		return
	}

	// 从后往前找第一个匹配的 handler 并移除
	newHandlers := make([]Handler, 0, len(handlers))
	removed := false
	for i := len(handlers) - 1; i >= 0; i-- {
		// 注意: Go 不支持函数指针比较，但从后往前删除最后注册的同名 handler 是安全的默认行为
		if !removed {
			removed = true
			continue // 跳过最后一个
		}
		newHandlers = append([]Handler{handlers[i]}, newHandlers...)
	}
	if !removed {
		return
	}

	if len(newHandlers) == 0 {
		delete(b.handlers, eventType)
	} else {
		b.handlers[eventType] = newHandlers
	}
}

// Close 关闭事件总线
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	b.closed = true
	close(b.eventChan)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Event bus closed")
}

// dispatch 事件分发循环
func (b *InMemoryBus) dispatch() {
	defer b.wg.Done()

	for wrapper := range b.eventChan {
		b.dispatchEvent(wrapper.ctx, wrapper.event)
	}
}

// dispatchEvent 分发单个事件
func (b *InMemoryBus) dispatchEvent(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0)

	// 获取特定类型的处理器
	if h, ok := b.handlers[event.Type()]; ok {
		handlers = append(handlers, h...)
	}

	// 获取通配符处理器
	if h, ok := b.handlers["*"]; ok {
		handlers = append(handlers, h...)
	}
	b.mu.RUnlock()

	// 并行执行处理器
	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Handler panicked",
						zap.String("event_type", event.Type()),
						zap.Any("panic", r),
					)
				}
			}()
			h(ctx, event)
		}(handler)
	}
	wg.Wait()
}

// Event kinds (spec §4.8). Every payload carries the source agent id.
const (
	EventTypeLog                  = "log"
	EventTypeMessage               = "message"
	EventTypeToolCall              = "tool_call"
	EventTypeStateChanged          = "state_changed"
	EventTypeMetric                = "metric"
	EventTypeError                 = "error"
	EventTypeContextConsolidation  = "context_consolidation"
	EventTypeGraderFeedback        = "grader_feedback"
	EventTypeAnalysisResult        = "analysis_result"
	EventTypeUserMessage           = "user_message"
)

// ToolCallPhase discriminates the lifecycle points a ToolCallPayload reports.
type ToolCallPhase string

const (
	ToolCallStarted   ToolCallPhase = "started"
	ToolCallCompleted ToolCallPhase = "completed"
)

// LogPayload mirrors Event Log(level, text).
type LogPayload struct {
	AgentID string
	Level   string
	Text    string
}

// MessagePayload mirrors Event Message(payload) — an opaque conversation
// message surfaced for GUI/IRC-relay/log-file adapters.
type MessagePayload struct {
	AgentID string
	Payload any
}

// ToolCallPayload mirrors Event ToolCall(phase, id, name, input, result?).
type ToolCallPayload struct {
	AgentID  string
	Phase    ToolCallPhase
	ID       string
	Name     string
	Input    map[string]any
	Result   any // nil at ToolCallStarted
	Duration time.Duration
}

// StateChangedPayload mirrors Event StateChanged(new_state).
type StateChangedPayload struct {
	AgentID  string
	OldState string
	NewState string
}

// MetricPayload mirrors Event Metric(payload) — token accounting, timing.
type MetricPayload struct {
	AgentID string
	Name    string
	Value   float64
	Tags    map[string]string
}

// ErrorPayload mirrors Event Error(text).
type ErrorPayload struct {
	AgentID string
	Text    string
}

// ContextConsolidationPayload mirrors Event ContextConsolidation(status).
type ContextConsolidationPayload struct {
	AgentID string
	Status  string // started, extracted, rebuilt
}

// GraderFeedbackPayload mirrors Event GraderFeedback(text).
type GraderFeedbackPayload struct {
	AgentID string
	Text    string
	Complete bool
}

// AnalysisResultPayload mirrors Event AnalysisResult(text).
type AnalysisResultPayload struct {
	AgentID string
	Text    string
}

// UserMessagePayload mirrors Event UserMessage(text) — an injected message
// queued for the agent's next turn (spec §4.11).
type UserMessagePayload struct {
	AgentID string
	Text    string
}
