// Package coordination implements the Coordination Client (spec §4.9): a
// connection to the external line-oriented chat server that agents use as
// the pub/sub substrate for discussion, conflict deliberation, and debugger
// control frames.
package coordination

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/shells-above/swarmre/internal/domain/conflict"
	"github.com/shells-above/swarmre/internal/domain/entity"
	"go.uber.org/zap"
)

// CommonChannel is the channel every agent joins on connect (spec §4.9).
const CommonChannel = "#agents"

// Sink receives formatted notification text to inject into an agent's
// conversation. *service.Driver satisfies this via its Inject method.
type Sink interface {
	Inject(text string)
}

// Client is a single agent's connection to the chat server. It owns no
// retry/backoff policy beyond what Dial's caller wants; one Client per
// agent, mirroring one TCPTransport per sideload module connection.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader

	agentID     string
	sink        Sink
	debugSink   DebugSink
	coordinator *conflict.Coordinator // optional: enriches CONFLICT_FORCE briefings
	logger      *zap.Logger

	mu      sync.Mutex
	joined  map[string]struct{}
	peers   map[string]string // agentID -> task, from SYSTEM AGENT_JOIN/LEAVE
	closeOnce sync.Once
	done    chan struct{}
}

// Dial connects to the chat server at address and returns a Client that has
// not yet joined any channel.
func Dial(ctx context.Context, address, agentID string, sink Sink, coordinator *conflict.Coordinator, logger *zap.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial coordination server %s: %w", address, err)
	}

	c := &Client{
		conn:        conn,
		reader:      bufio.NewReaderSize(conn, 64*1024),
		agentID:     agentID,
		sink:        sink,
		coordinator: coordinator,
		logger:      logger,
		joined:      make(map[string]struct{}),
		peers:       make(map[string]string),
		done:        make(chan struct{}),
	}

	go c.readLoop()
	return c, nil
}

// Announce joins the common channel and tells every other agent the task
// this agent is working on (spec §4.9: "announces its current task").
func (c *Client) Announce(task string) error {
	if err := c.Join(CommonChannel); err != nil {
		return err
	}
	return c.Send(CommonChannel, "MY_TASK: "+task)
}

// Join joins a channel, idempotently.
func (c *Client) Join(channel string) error {
	c.mu.Lock()
	if _, ok := c.joined[channel]; ok {
		c.mu.Unlock()
		return nil
	}
	c.joined[channel] = struct{}{}
	c.mu.Unlock()
	return c.writeLine(fmt.Sprintf("JOIN %s", channel))
}

// Leave parts a channel.
func (c *Client) Leave(channel string) error {
	c.mu.Lock()
	delete(c.joined, channel)
	c.mu.Unlock()
	return c.writeLine(fmt.Sprintf("PART %s", channel))
}

// Send posts text to channel, implementing service.Outbox and
// retool.Outbox.
func (c *Client) Send(channel, text string) error {
	return c.writeLine(fmt.Sprintf("PRIVMSG %s :%s", channel, text))
}

// PeerTask returns the task a known peer last announced, if any.
func (c *Client) PeerTask(agentID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.peers[agentID]
	return task, ok
}

// Close shuts down the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func (c *Client) writeLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

// readLoop parses "<sender> <channel> :<text>" lines from the server and
// dispatches them per spec §4.9's channel-kind rules. SYSTEM lines instead
// carry "SYSTEM :<payload>" with no channel.
func (c *Client) readLoop() {
	defer close(c.done)

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if c.logger != nil {
				c.logger.Info("coordination connection closed", zap.String("agent_id", c.agentID), zap.Error(err))
			}
			return
		}
		c.handleLine(strings.TrimRight(line, "\r\n"))
	}
}

func (c *Client) handleLine(line string) {
	sender, channel, payload, ok := splitWireLine(line)
	if !ok {
		return
	}

	frame := entity.ParseFrame(sender, payload)

	switch frame.Kind {
	case entity.FrameSystem:
		c.handleSystemFrame(frame)
	case entity.FrameConflictForce:
		c.handleConflictForce(frame)
	case entity.FrameDebugControl:
		if c.debugSink != nil {
			c.debugSink.HandleFrame(frame)
		}
	default:
		c.inject(formatDiscussion(channel, sender, payload))
	}
}

// inject forwards text to the Driver sink, if one has been wired yet.
// SetSink runs just after Dial but the read loop starts immediately, so a
// message can in principle arrive first.
func (c *Client) inject(text string) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink.Inject(text)
	}
}

// DebugSink receives debug-control frames (LLDB_*) read off the control
// channel, routed separately from the conversation-injection Sink since
// they carry request/response correlation, not free-form text.
type DebugSink interface {
	HandleFrame(frame entity.CoordinationFrame)
}

// SetDebugSink wires the Debugger Broker Client in; a Client with no debug
// sink silently drops debug-control frames (spec: only relevant for agents
// that use the debugger tools).
func (c *Client) SetDebugSink(sink DebugSink) {
	c.debugSink = sink
}

// SetSink wires the Driver in after construction, since the Driver itself
// needs this Client as its Outbox — the two are built in sequence, not one
// from the other.
func (c *Client) SetSink(sink Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

func (c *Client) handleSystemFrame(frame entity.CoordinationFrame) {
	c.mu.Lock()
	switch frame.SystemEvent {
	case "AGENT_JOIN":
		c.peers[frame.AgentID] = frame.Task
	case "AGENT_LEAVE":
		delete(c.peers, frame.AgentID)
	}
	c.mu.Unlock()

	c.inject(fmt.Sprintf("[system] %s", frame.Encode()))
}

// handleConflictForce joins the named channel when this agent is the
// target and injects an urgent briefing naming both colliding parameter
// payloads, pulled from the shared Conflict Coordinator when available
// (spec line: "the target agent MUST join the channel and MUST receive
// both parameter payloads").
func (c *Client) handleConflictForce(frame entity.CoordinationFrame) {
	if frame.TargetAgent != c.agentID {
		return
	}
	if err := c.Join(frame.Channel); err != nil {
		if c.logger != nil {
			c.logger.Warn("failed to join forced conflict channel", zap.String("channel", frame.Channel), zap.Error(err))
		}
	}

	briefing := fmt.Sprintf("[conflict] you have been pulled into a write conflict on %s. "+
		"Discuss via send_message and call mark_consensus_reached once you agree.", frame.Channel)
	if c.coordinator != nil {
		if descriptor, ok := c.coordinator.Get(frame.Channel); ok {
			briefing = fmt.Sprintf("[conflict] write conflict on %s: %s called %s(addr=0x%x, %v); %s called %s(addr=0x%x, %v). "+
				"Discuss via send_message and call mark_consensus_reached once you agree.",
				frame.Channel,
				descriptor.CallA.AgentID, descriptor.CallA.Tool, descriptor.CallA.Address, descriptor.CallA.Params,
				descriptor.CallB.AgentID, descriptor.CallB.Tool, descriptor.CallB.Address, descriptor.CallB.Params)
		}
	}
	c.inject(briefing)
}

func formatDiscussion(channel, sender, text string) string {
	switch {
	case channel == CommonChannel:
		return fmt.Sprintf("[broadcast] %s: %s", sender, text)
	case strings.HasPrefix(channel, "#private_"):
		return fmt.Sprintf("[private] %s: %s", sender, text)
	case strings.HasPrefix(channel, "#conflict_"):
		return fmt.Sprintf("[conflict] %s: %s", sender, text)
	default:
		return fmt.Sprintf("[%s] %s: %s", channel, sender, text)
	}
}

// splitWireLine decodes "<sender> <channel> :<text>" (or "SYSTEM :<text>"
// with no channel) into its parts.
func splitWireLine(line string) (sender, channel, payload string, ok bool) {
	colon := strings.Index(line, " :")
	if colon < 0 {
		return "", "", "", false
	}
	head := line[:colon]
	payload = line[colon+2:]

	fields := strings.Fields(head)
	switch len(fields) {
	case 1:
		return fields[0], "", payload, true
	case 2:
		return fields[0], fields[1], payload, true
	default:
		return "", "", "", false
	}
}
