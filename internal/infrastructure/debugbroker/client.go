// Package debugbroker implements the Debugger Broker Client (spec §4.12):
// request/response correlation for debugger tool calls, carried as
// LLDB_*|<request_id>|... frames over the coordination control channel. The
// broker itself is external and serializes debugger access across agents;
// this client only frames requests and waits for the matching response.
package debugbroker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shells-above/swarmre/internal/domain/entity"
	"go.uber.org/zap"
)

// DefaultTimeout bounds how long a debugger request waits for a response
// when the caller supplies none.
const DefaultTimeout = 30 * time.Second

// Outbox is the narrow send surface the broker client needs; satisfied by
// *coordination.Client.
type Outbox interface {
	Send(channel, text string) error
}

// Client frames debugger control requests and correlates responses purely
// by request_id (spec §4.12), the same pattern as sideload's JSON-RPC
// pending-map, adapted to pipe-delimited frames instead of JSON envelopes.
type Client struct {
	outbox  Outbox
	channel string
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]chan entity.CoordinationFrame
}

// NewClient creates a Debugger Broker Client that frames requests on
// channel (the control channel, conventionally "#debug"). A zero timeout
// falls back to DefaultTimeout.
func NewClient(outbox Outbox, channel string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		outbox:  outbox,
		channel: channel,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]chan entity.CoordinationFrame),
	}
}

// HandleFrame implements coordination.DebugSink: it completes the pending
// request matching the frame's request_id, if one is still waiting.
func (c *Client) HandleFrame(frame entity.CoordinationFrame) {
	if frame.Kind != entity.FrameDebugControl {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[frame.RequestID]
	if ok {
		delete(c.pending, frame.RequestID)
	}
	c.mu.Unlock()

	if !ok {
		if c.logger != nil {
			c.logger.Warn("debug response with no matching pending request", zap.String("request_id", frame.RequestID))
		}
		return
	}
	ch <- frame
}

// Request sends verb|request_id|fields... on the control channel and
// blocks until the matching response frame arrives, ctx is cancelled, or
// the timeout elapses.
func (c *Client) Request(ctx context.Context, verb string, fields ...string) (entity.CoordinationFrame, error) {
	requestID := uuid.NewString()
	respCh := make(chan entity.CoordinationFrame, 1)

	c.mu.Lock()
	c.pending[requestID] = respCh
	c.mu.Unlock()

	frame := entity.CoordinationFrame{
		Kind:      entity.FrameDebugControl,
		DebugVerb: verb,
		RequestID: requestID,
		Fields:    fields,
	}
	if err := c.outbox.Send(c.channel, frame.Encode()); err != nil {
		c.clearPending(requestID)
		return entity.CoordinationFrame{}, fmt.Errorf("send debug request: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		return resp, nil
	case <-timer.C:
		c.clearPending(requestID)
		return entity.CoordinationFrame{}, entity.ErrDebuggerRequestTimeout
	case <-ctx.Done():
		c.clearPending(requestID)
		return entity.CoordinationFrame{}, ctx.Err()
	}
}

// StartSession, SendCommand, ConvertAddress, and StopSession are the four
// debug verbs spec §6 names, wired directly to Request.
func (c *Client) StartSession(ctx context.Context, target string) (entity.CoordinationFrame, error) {
	return c.Request(ctx, "START_SESSION", target)
}

func (c *Client) SendCommand(ctx context.Context, sessionID, command string) (entity.CoordinationFrame, error) {
	return c.Request(ctx, "SEND_COMMAND", sessionID, command)
}

func (c *Client) ConvertAddress(ctx context.Context, sessionID string, address uint64) (entity.CoordinationFrame, error) {
	return c.Request(ctx, "CONVERT_ADDRESS", sessionID, fmt.Sprintf("0x%x", address))
}

func (c *Client) StopSession(ctx context.Context, sessionID string) (entity.CoordinationFrame, error) {
	return c.Request(ctx, "STOP_SESSION", sessionID)
}

func (c *Client) clearPending(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}
