package entity

import (
	"fmt"
	"strings"
)

// FrameKind discriminates the coordination wire-frame families (spec §3, §6).
type FrameKind string

const (
	FrameDiscussion      FrameKind = "discussion"
	FrameConflictForce   FrameKind = "conflict_force"
	FrameMarkedConsensus FrameKind = "marked_consensus"
	FrameDebugControl    FrameKind = "debug_control"
	FrameSystem          FrameKind = "system"
)

// CoordinationFrame is one line-oriented record transmitted over a channel.
type CoordinationFrame struct {
	Kind FrameKind

	Channel string
	Sender  string
	Text    string // FrameDiscussion raw payload

	// FrameConflictForce
	TargetAgent string

	// FrameMarkedConsensus
	ConsensusAgent   string
	ConsensusPayload string

	// FrameDebugControl
	DebugVerb string // START_SESSION | SEND_COMMAND | CONVERT_ADDRESS | STOP_SESSION
	RequestID string
	Fields    []string // remaining pipe-delimited fields after request_id

	// FrameSystem
	SystemEvent string // AGENT_JOIN | AGENT_LEAVE
	AgentID     string
	Task        string
}

// ParseFrame decodes a raw line into a CoordinationFrame. Unrecognized
// prefixes decode as free-form discussion text.
func ParseFrame(sender, raw string) CoordinationFrame {
	switch {
	case sender == "SYSTEM" && strings.HasPrefix(raw, "AGENT_JOIN:"):
		rest := strings.TrimPrefix(raw, "AGENT_JOIN:")
		parts := strings.SplitN(rest, "|", 2)
		f := CoordinationFrame{Kind: FrameSystem, Sender: sender, SystemEvent: "AGENT_JOIN", AgentID: parts[0]}
		if len(parts) > 1 {
			f.Task = parts[1]
		}
		return f

	case sender == "SYSTEM" && strings.HasPrefix(raw, "AGENT_LEAVE:"):
		return CoordinationFrame{
			Kind: FrameSystem, Sender: sender, SystemEvent: "AGENT_LEAVE",
			AgentID: strings.TrimPrefix(raw, "AGENT_LEAVE:"),
		}

	case strings.HasPrefix(raw, "CONFLICT_FORCE:"):
		parts := strings.SplitN(strings.TrimPrefix(raw, "CONFLICT_FORCE:"), ":", 2)
		f := CoordinationFrame{Kind: FrameConflictForce, Sender: sender}
		if len(parts) > 0 {
			f.TargetAgent = parts[0]
		}
		if len(parts) > 1 {
			f.Channel = parts[1]
		}
		return f

	case strings.HasPrefix(raw, "MARKED_CONSENSUS|"):
		parts := strings.SplitN(strings.TrimPrefix(raw, "MARKED_CONSENSUS|"), "|", 2)
		f := CoordinationFrame{Kind: FrameMarkedConsensus, Sender: sender}
		if len(parts) > 0 {
			f.ConsensusAgent = parts[0]
		}
		if len(parts) > 1 {
			f.ConsensusPayload = parts[1]
		}
		return f

	case strings.HasPrefix(raw, "LLDB_"):
		parts := strings.Split(raw, "|")
		verb := strings.TrimPrefix(parts[0], "LLDB_")
		f := CoordinationFrame{Kind: FrameDebugControl, Sender: sender, DebugVerb: verb}
		if len(parts) > 1 {
			f.RequestID = parts[1]
		}
		if len(parts) > 2 {
			f.Fields = parts[2:]
		}
		return f

	default:
		return CoordinationFrame{Kind: FrameDiscussion, Sender: sender, Text: raw}
	}
}

// Encode renders a frame back into its line-oriented wire form.
func (f CoordinationFrame) Encode() string {
	switch f.Kind {
	case FrameConflictForce:
		return fmt.Sprintf("CONFLICT_FORCE:%s:%s", f.TargetAgent, f.Channel)
	case FrameMarkedConsensus:
		return fmt.Sprintf("MARKED_CONSENSUS|%s|%s", f.ConsensusAgent, f.ConsensusPayload)
	case FrameDebugControl:
		parts := append([]string{"LLDB_" + f.DebugVerb, f.RequestID}, f.Fields...)
		return strings.Join(parts, "|")
	case FrameSystem:
		if f.SystemEvent == "AGENT_JOIN" {
			return fmt.Sprintf("AGENT_JOIN:%s|%s", f.AgentID, f.Task)
		}
		return fmt.Sprintf("AGENT_LEAVE:%s", f.AgentID)
	default:
		return f.Text
	}
}
